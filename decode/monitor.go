package decode

import "fmt"

// MonitorTest is one system-readiness monitor as reported by a Service
// $01 PID $01 response: whether the vehicle supports the monitor at
// all, and if so, whether its self-test has completed.
type MonitorTest struct {
	Name       string
	Supported  bool
	Ready      bool // only meaningful when Supported
}

// Status renders the three-way monitor status spec.md §4.5 requires:
// "Not Supported", "Ready", "Not Ready".
func (m MonitorTest) Status() string {
	if !m.Supported {
		return "Not Supported"
	}
	if m.Ready {
		return "Ready"
	}
	return "Not Ready"
}

func (m MonitorTest) String() string {
	return fmt.Sprintf("%s: %s", m.Name, m.Status())
}

// MonitorStatus is the decoded Service $01 PID $01 response: MIL state,
// stored DTC count, and the per-monitor readiness table. Byte B bit 3
// selects between the spark and compression-ignition (diesel) monitor
// definitions for bytes C and D; "egr" is reported under both.
type MonitorStatus struct {
	MIL      bool
	DTCCount int
	Diesel   bool

	Monitors map[string]MonitorTest
	// Ordered holds the keys of Monitors in display order (the order
	// monitorDefinitions lists them), filtered to the monitors this
	// response variant (spark or diesel) actually carries.
	Ordered []string
}

type monitorDef struct {
	Key           string
	Name          string
	SupportedFlag string
	ReadyFlag     string
}

// monitorDefinitions is the name/supported-flag/ready-flag triple for
// every monitor, in display order. A given response only populates the
// monitors whose flags its spark-or-diesel table defines; the rest are
// silently absent from MonitorStatus.Monitors.
var monitorDefinitions = []monitorDef{
	{"misfire", "Misfire", "MIS_SUP", "MIS_RDY"},
	{"fuel_system", "Fuel System", "FUEL_SUP", "FUEL_RDY"},
	{"components", "Components", "CCM_SUP", "CCM_RDY"},
	{"catalyst", "Catalyst", "CAT_SUP", "CAT_RDY"},
	{"catalyst_heater", "Catalyst Heater", "HCAT_SUP", "HCAT_RDY"},
	{"evap", "Evaporative System", "EVAP_SUP", "EVAP_RDY"},
	{"secondary_air", "Secondary Air System", "AIR_SUP", "AIR_RDY"},
	{"ac", "A/C System", "ACRF_SUP", "ACRF_RDY"},
	{"o2", "O2 Sensor", "O2S_SUP", "O2S_RDY"},
	{"o2_heater", "O2 Sensor Heater", "HTR_SUP", "HTR_RDY"},
	{"nmhc_catalyst", "NMHC Catalyst", "HCCATSUP", "HCCATRDY"},
	{"nox", "NOx Aftertreatment", "NCAT_SUP", "NCAT_RDY"},
	{"egs", "Exhaust Gas Sensor", "EGS_SUP", "EGS_RDY"},
	{"pm_filter", "PM Filter", "PM_SUP", "PM_RDY"},
	{"egr", "Exhaust Gas Recirculation (EGR)", "EGR_SUP", "EGR_RDY"},
}

var continuousMonitors = map[string]bool{
	"misfire":     true,
	"fuel_system": true,
	"components":  true,
}

// DecodeMonitorStatus decodes a Service $01 PID $01 response body (the
// four bytes following SID and PID, labeled A-D). Byte A's low 7 bits
// are the DTC count and its high bit is the MIL; byte B bits 0-2 are
// the three continuous-monitor support flags and bit 3 selects the
// spark or diesel table for bytes C and D; readiness bits are 0=ready,
// 1=not ready, so they're inverted on the way in.
func DecodeMonitorStatus(payload []byte) (MonitorStatus, error) {
	if len(payload) < 4 {
		return MonitorStatus{}, ErrShortPayload
	}
	a, b, c, d := payload[0], payload[1], payload[2], payload[3]
	diesel := b&(1<<3) != 0

	flags := map[string]bool{
		"MIS_SUP":  b&(1<<0) != 0,
		"FUEL_SUP": b&(1<<1) != 0,
		"CCM_SUP":  b&(1<<2) != 0,
		"MIS_RDY":  b&(1<<4) == 0,
		"FUEL_RDY": b&(1<<5) == 0,
		"CCM_RDY":  b&(1<<6) == 0,
	}
	if diesel {
		flags["HCCATSUP"] = c&(1<<0) != 0
		flags["NCAT_SUP"] = c&(1<<1) != 0
		flags["BP_SUP"] = c&(1<<3) != 0
		flags["EGS_SUP"] = c&(1<<5) != 0
		flags["PM_SUP"] = c&(1<<6) != 0
		flags["EGR_SUP"] = c&(1<<7) != 0
		flags["HCCATRDY"] = d&(1<<0) == 0
		flags["NCAT_RDY"] = d&(1<<1) == 0
		flags["BP_RDY"] = d&(1<<3) == 0
		flags["EGS_RDY"] = d&(1<<5) == 0
		flags["PM_RDY"] = d&(1<<6) == 0
		flags["EGR_RDY"] = d&(1<<7) == 0
	} else {
		flags["CAT_SUP"] = c&(1<<0) != 0
		flags["HCAT_SUP"] = c&(1<<1) != 0
		flags["EVAP_SUP"] = c&(1<<2) != 0
		flags["AIR_SUP"] = c&(1<<3) != 0
		flags["ACRF_SUP"] = c&(1<<4) != 0
		flags["O2S_SUP"] = c&(1<<5) != 0
		flags["HTR_SUP"] = c&(1<<6) != 0
		flags["EGR_SUP"] = c&(1<<7) != 0
		flags["CAT_RDY"] = d&(1<<0) == 0
		flags["HCAT_RDY"] = d&(1<<1) == 0
		flags["EVAP_RDY"] = d&(1<<2) == 0
		flags["AIR_RDY"] = d&(1<<3) == 0
		flags["ACRF_RDY"] = d&(1<<4) == 0
		flags["O2S_RDY"] = d&(1<<5) == 0
		flags["HTR_RDY"] = d&(1<<6) == 0
		flags["EGR_RDY"] = d&(1<<7) == 0
	}

	monitors := make(map[string]MonitorTest, len(monitorDefinitions))
	var ordered []string
	for _, def := range monitorDefinitions {
		sup, supOK := flags[def.SupportedFlag]
		rdy, rdyOK := flags[def.ReadyFlag]
		if !supOK || !rdyOK {
			continue // spark-only or diesel-only monitor not in this table
		}
		monitors[def.Key] = MonitorTest{Name: def.Name, Supported: sup, Ready: rdy}
		ordered = append(ordered, def.Key)
	}

	return MonitorStatus{
		MIL:      a&(1<<7) != 0,
		DTCCount: int(a & 0x7F),
		Diesel:   diesel,
		Monitors: monitors,
		Ordered:  ordered,
	}, nil
}

// SupportedMonitors returns the keys of monitors the vehicle reports as
// supported (status != "Not Supported").
func (s MonitorStatus) SupportedMonitors() []string {
	var out []string
	for _, key := range s.Ordered {
		if s.Monitors[key].Supported {
			out = append(out, key)
		}
	}
	return out
}

// IncompleteMonitors returns the keys of supported monitors that have
// not yet completed their self-test.
func (s MonitorStatus) IncompleteMonitors() []string {
	var out []string
	for _, key := range s.Ordered {
		m := s.Monitors[key]
		if m.Supported && !m.Ready {
			out = append(out, key)
		}
	}
	return out
}

// ContinuousMonitor reports whether key names one of the three
// always-monitored tests (misfire, fuel system, components) as opposed
// to a non-continuous (drive-cycle) monitor.
func ContinuousMonitor(key string) bool {
	return continuousMonitors[key]
}

// Value renders the decoded status as a generic decode.Value: one flag
// per monitor reading "key: status", plus the MIL/DTC summary in Text.
func (s MonitorStatus) Value() Value {
	v := Value{Label: "Monitor status", Kind: KindMonitorStatus}
	v.Text = fmt.Sprintf("MIL=%v DTCCount=%d", s.MIL, s.DTCCount)
	for _, key := range s.Ordered {
		v.Flags = append(v.Flags, fmt.Sprintf("%s: %s", key, s.Monitors[key].Status()))
	}
	return v
}
