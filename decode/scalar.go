package decode

// Service $01 (current data) scalar PID decoders, per spec.md §4.5's
// formula table. Each entry takes the PID's data bytes (A, B, C, D... in
// spec order) and returns the engineering Value.

// ScalarDecoder converts a PID's raw data bytes into a Value. data holds
// only the PID's own bytes (SID and PID already stripped by the
// message factory).
type ScalarDecoder func(data []byte) (Value, error)

// scalarDecoders maps SID $01 PID -> decoder, for every formula spec.md
// §4.5 names explicitly. PIDs not listed here fall back to a generic
// raw-bytes Value in the response factory.
var scalarDecoders = map[byte]ScalarDecoder{
	0x04: func(d []byte) (Value, error) { return pctOf255(d, "Calculated Engine Load") },
	0x05: func(d []byte) (Value, error) { return minus40(d, "Engine Coolant Temperature") },
	0x06: func(d []byte) (Value, error) { return fuelTrim(d, "Short Term Fuel Trim — Bank 1") },
	0x07: func(d []byte) (Value, error) { return fuelTrim(d, "Long Term Fuel Trim — Bank 1") },
	0x08: func(d []byte) (Value, error) { return fuelTrim(d, "Short Term Fuel Trim — Bank 2") },
	0x09: func(d []byte) (Value, error) { return fuelTrim(d, "Long Term Fuel Trim — Bank 2") },
	0x0A: func(d []byte) (Value, error) { return fuelRailPressureGauge(d) },
	0x0B: func(d []byte) (Value, error) { return byteKPa(d, "Intake Manifold Absolute Pressure") },
	0x0C: func(d []byte) (Value, error) { return engineRPM(d) },
	0x0D: func(d []byte) (Value, error) { return vehicleSpeed(d) },
	0x0E: func(d []byte) (Value, error) { return sparkAdvance(d) },
	0x0F: func(d []byte) (Value, error) { return minus40(d, "Intake Air Temperature") },
	0x10: func(d []byte) (Value, error) { return maf(d) },
	0x11: func(d []byte) (Value, error) { return pctOf255(d, "Throttle Position") },
	0x14: func(d []byte) (Value, error) { return o2VoltageAndTrim(d, "O2 Sensor (Bank 1, Sensor 1)") },
	0x15: func(d []byte) (Value, error) { return o2VoltageAndTrim(d, "O2 Sensor (Bank 1, Sensor 2)") },
	0x16: func(d []byte) (Value, error) { return o2VoltageAndTrim(d, "O2 Sensor (Bank 1, Sensor 3)") },
	0x17: func(d []byte) (Value, error) { return o2VoltageAndTrim(d, "O2 Sensor (Bank 1, Sensor 4)") },
	0x18: func(d []byte) (Value, error) { return o2VoltageAndTrim(d, "O2 Sensor (Bank 2, Sensor 1)") },
	0x19: func(d []byte) (Value, error) { return o2VoltageAndTrim(d, "O2 Sensor (Bank 2, Sensor 2)") },
	0x1A: func(d []byte) (Value, error) { return o2VoltageAndTrim(d, "O2 Sensor (Bank 2, Sensor 3)") },
	0x1B: func(d []byte) (Value, error) { return o2VoltageAndTrim(d, "O2 Sensor (Bank 2, Sensor 4)") },
	0x1F: func(d []byte) (Value, error) { return bigEndianCount(d, "Run Time Since Engine Start", "s") },
	0x21: func(d []byte) (Value, error) { return bigEndianCount(d, "Distance Traveled With MIL On", "km") },
	0x22: func(d []byte) (Value, error) { return fuelRailPressureVacuum(d) },
	0x23: func(d []byte) (Value, error) { return fuelRailGaugePressure(d, "Fuel Rail Gauge Pressure") },
	0x24: func(d []byte) (Value, error) { return o2WideLambdaVoltage(d, "O2 Sensor (Bank 1, Sensor 1) Wide Range") },
	0x25: func(d []byte) (Value, error) { return o2WideLambdaVoltage(d, "O2 Sensor (Bank 1, Sensor 2) Wide Range") },
	0x26: func(d []byte) (Value, error) { return o2WideLambdaVoltage(d, "O2 Sensor (Bank 2, Sensor 1) Wide Range") },
	0x27: func(d []byte) (Value, error) { return o2WideLambdaVoltage(d, "O2 Sensor (Bank 2, Sensor 2) Wide Range") },
	0x28: func(d []byte) (Value, error) { return o2WideLambdaVoltage(d, "O2 Sensor (Bank 1, Sensor 3) Wide Range") },
	0x29: func(d []byte) (Value, error) { return o2WideLambdaVoltage(d, "O2 Sensor (Bank 1, Sensor 4) Wide Range") },
	0x2A: func(d []byte) (Value, error) { return o2WideLambdaVoltage(d, "O2 Sensor (Bank 2, Sensor 3) Wide Range") },
	0x2B: func(d []byte) (Value, error) { return o2WideLambdaVoltage(d, "O2 Sensor (Bank 2, Sensor 4) Wide Range") },
	0x2C: func(d []byte) (Value, error) { return pctOf255(d, "Commanded EGR") },
	0x2F: func(d []byte) (Value, error) { return pctOf255(d, "Fuel Level Input") },
	0x31: func(d []byte) (Value, error) { return bigEndianCount(d, "Distance Since Codes Cleared", "km") },
	0x33: func(d []byte) (Value, error) { return byteKPa(d, "Absolute Barometric Pressure") },
	0x34: func(d []byte) (Value, error) { return o2WideLambdaCurrent(d, "O2 Sensor (Bank 1, Sensor 1) Current") },
	0x35: func(d []byte) (Value, error) { return o2WideLambdaCurrent(d, "O2 Sensor (Bank 1, Sensor 2) Current") },
	0x36: func(d []byte) (Value, error) { return o2WideLambdaCurrent(d, "O2 Sensor (Bank 2, Sensor 1) Current") },
	0x37: func(d []byte) (Value, error) { return o2WideLambdaCurrent(d, "O2 Sensor (Bank 2, Sensor 2) Current") },
	0x38: func(d []byte) (Value, error) { return o2WideLambdaCurrent(d, "O2 Sensor (Bank 1, Sensor 3) Current") },
	0x39: func(d []byte) (Value, error) { return o2WideLambdaCurrent(d, "O2 Sensor (Bank 1, Sensor 4) Current") },
	0x3A: func(d []byte) (Value, error) { return o2WideLambdaCurrent(d, "O2 Sensor (Bank 2, Sensor 3) Current") },
	0x3B: func(d []byte) (Value, error) { return o2WideLambdaCurrent(d, "O2 Sensor (Bank 2, Sensor 4) Current") },
	0x45: func(d []byte) (Value, error) { return pctOf255(d, "Relative Throttle Position") },
	0x46: func(d []byte) (Value, error) { return minus40(d, "Ambient Air Temperature") },
	0x5A: func(d []byte) (Value, error) { return relativeAccelPedal(d) },
	0x5C: func(d []byte) (Value, error) { return minus40(d, "Engine Oil Temperature") },
	0x59: func(d []byte) (Value, error) { return fuelRailGaugePressure(d, "Fuel Rail Absolute Pressure") },
	0x42: func(d []byte) (Value, error) { return controlModuleVoltage(d) },
}

// ScalarForPID returns the registered decoder for SID $01 PID pid, if
// any.
func ScalarForPID(pid byte) (ScalarDecoder, bool) {
	d, ok := scalarDecoders[pid]
	return d, ok
}

func need(d []byte, n int) error {
	if len(d) < n {
		return ErrShortPayload
	}
	return nil
}

func pctOf255(d []byte, label string) (Value, error) {
	if err := need(d, 1); err != nil {
		return Value{}, err
	}
	return percentage(label, float64(d[0])/2.55), nil
}

func minus40(d []byte, label string) (Value, error) {
	if err := need(d, 1); err != nil {
		return Value{}, err
	}
	return temperatureC(label, float64(d[0])-40), nil
}

func fuelTrim(d []byte, label string) (Value, error) {
	if err := need(d, 1); err != nil {
		return Value{}, err
	}
	return percentage(label, float64(d[0])/1.28-100), nil
}

func byteKPa(d []byte, label string) (Value, error) {
	if err := need(d, 1); err != nil {
		return Value{}, err
	}
	return pressure(label, float64(d[0])), nil
}

func fuelRailPressureGauge(d []byte) (Value, error) {
	if err := need(d, 1); err != nil {
		return Value{}, err
	}
	return pressure("Fuel Pressure", float64(d[0])*3), nil
}

func fuelRailPressureVacuum(d []byte) (Value, error) {
	if err := need(d, 2); err != nil {
		return Value{}, err
	}
	ab := uint16(d[0])<<8 | uint16(d[1])
	return pressure("Fuel Rail Pressure (relative to vacuum)", 0.079*float64(ab)), nil
}

func fuelRailGaugePressure(d []byte, label string) (Value, error) {
	if err := need(d, 2); err != nil {
		return Value{}, err
	}
	ab := uint16(d[0])<<8 | uint16(d[1])
	return pressure(label, 10*float64(ab)), nil
}

func engineRPM(d []byte) (Value, error) {
	if err := need(d, 2); err != nil {
		return Value{}, err
	}
	ab := uint16(d[0])<<8 | uint16(d[1])
	return rpm("Engine Speed", float64(ab)/4), nil
}

func vehicleSpeed(d []byte) (Value, error) {
	if err := need(d, 1); err != nil {
		return Value{}, err
	}
	return velocityKMH("Vehicle Speed", float64(d[0])), nil
}

func sparkAdvance(d []byte) (Value, error) {
	if err := need(d, 1); err != nil {
		return Value{}, err
	}
	return timing("Timing Advance", (float64(d[0])-128)/2), nil
}

func maf(d []byte) (Value, error) {
	if err := need(d, 2); err != nil {
		return Value{}, err
	}
	ab := uint16(d[0])<<8 | uint16(d[1])
	return scalar("Mass Air Flow Rate", float64(ab)/100, "g/s"), nil
}

func controlModuleVoltage(d []byte) (Value, error) {
	if err := need(d, 2); err != nil {
		return Value{}, err
	}
	ab := uint16(d[0])<<8 | uint16(d[1])
	return voltage("Control Module Voltage", float64(ab)/1000), nil
}

func bigEndianCount(d []byte, label, units string) (Value, error) {
	if err := need(d, 2); err != nil {
		return Value{}, err
	}
	ab := uint16(d[0])<<8 | uint16(d[1])
	return count(label, float64(ab), units), nil
}

func relativeAccelPedal(d []byte) (Value, error) {
	if err := need(d, 1); err != nil {
		return Value{}, err
	}
	return percentage("Relative Accelerator Pedal Position", float64(d[0])/2.55), nil
}

// o2VoltageAndTrim decodes the $14-$1B O2-sensor group: A is sensor
// voltage (5·A mV), B is short-term fuel trim using the standard fuel
// trim formula. Returned as a voltage Value (Number in V) with the fuel
// trim rendered as a string in Flags, since the pair doesn't share a
// single unit.
func o2VoltageAndTrim(d []byte, label string) (Value, error) {
	if err := need(d, 2); err != nil {
		return Value{}, err
	}
	voltageMV := 5 * float64(d[0])
	trim := float64(d[1])/1.28 - 100
	if d[1] == 0xFF {
		// 0xFF marks "trim not used" on single-wire sensors; surface
		// the voltage reading alone.
		return Value{Label: label, Kind: KindVoltage, Number: voltageMV / 1000, Units: "V"}, nil
	}
	v := Value{Label: label, Kind: KindVoltage, Number: voltageMV / 1000, Units: "V"}
	v.Flags = []string{scalar("fuel trim", trim, "%").String()}
	return v, nil
}

// o2WideLambdaVoltage decodes the $24-$2B wide-range group's λ (bytes
// A,B) and voltage (bytes C,D).
func o2WideLambdaVoltage(d []byte, label string) (Value, error) {
	if err := need(d, 4); err != nil {
		return Value{}, err
	}
	ab := uint16(d[0])<<8 | uint16(d[1])
	cd := uint16(d[2])<<8 | uint16(d[3])
	lambda := float64(ab) * 0.0000305
	v := scalar(label+" (λ)", lambda, "λ")
	volts := float64(cd) * 8 / 65535
	v.Flags = []string{voltage(label+" voltage", volts).String()}
	return v, nil
}

// o2WideLambdaCurrent decodes the $34-$3B wide-range current group's λ
// (bytes A,B) and sensor current (bytes C,D).
func o2WideLambdaCurrent(d []byte, label string) (Value, error) {
	if err := need(d, 4); err != nil {
		return Value{}, err
	}
	ab := uint16(d[0])<<8 | uint16(d[1])
	cd := uint16(d[2])<<8 | uint16(d[3])
	lambda := float64(ab) * 0.0000305
	v := scalar(label+" (λ)", lambda, "λ")
	mA := float64(cd)*128/32768 - 128
	v.Flags = []string{current(label+" current", mA).String()}
	return v, nil
}
