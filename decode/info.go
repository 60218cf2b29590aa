package decode

import (
	"fmt"
	"strings"
)

// Service $09 (vehicle information) string and counter decoders.
// Per spec.md §4.5: VIN is 17 ASCII bytes; CALID is a variable count of
// 16-byte ASCII strings; CVN is a variable count of 4-byte values
// rendered as 8-hex-digit uppercase; ECUNAME is a single 20-byte field
// split at a dash delimiter; IPT is a fixed set of 2-byte big-endian
// counters (16 or 20 on spark vehicles, 16 with a distinct label set on
// diesel).

// DecodeVIN decodes a Service $09 PID $02 response body (the payload
// after SID+PID) into the 17-character VIN. On non-CAN buses the payload
// carries 3 leading NUL padding bytes before the 17 ASCII characters; on
// CAN it carries the 1-byte item count instead. Either way the VIN is the
// last 17 bytes, so a longer payload is cut down to those; a payload of
// 17 bytes or fewer is used whole. Embedded NUL bytes are removed.
func DecodeVIN(payload []byte) (string, error) {
	body := payload
	if len(body) > 17 {
		body = body[len(body)-17:]
	}
	return stripNUL(body), nil
}

// DecodeCALID decodes a Service $09 PID $04 response body into its
// variable count of 16-byte ASCII calibration IDs.
func DecodeCALID(payload []byte) ([]string, error) {
	if len(payload)%16 != 0 {
		return nil, fmt.Errorf("decode: CALID payload length %d is not a multiple of 16", len(payload))
	}
	var out []string
	for i := 0; i+16 <= len(payload); i += 16 {
		out = append(out, stripNUL(payload[i:i+16]))
	}
	return out, nil
}

// DecodeCVN decodes a Service $09 PID $06 response body into its
// variable count of 4-byte calibration verification numbers, each
// rendered as 8 uppercase hex digits.
func DecodeCVN(payload []byte) ([]string, error) {
	if len(payload)%4 != 0 {
		return nil, fmt.Errorf("decode: CVN payload length %d is not a multiple of 4", len(payload))
	}
	var out []string
	for i := 0; i+4 <= len(payload); i += 4 {
		out = append(out, fmt.Sprintf("%02X%02X%02X%02X", payload[i], payload[i+1], payload[i+2], payload[i+3]))
	}
	return out, nil
}

// ECUName is the decoded Service $09 PID $0A response: a 20-byte field
// split at byte 4 (the dash delimiter) into an ECU identifier and a
// free-text name.
type ECUName struct {
	ECU     string
	ECUName string
}

// DecodeECUName decodes a Service $09 PID $0A response body.
func DecodeECUName(payload []byte) (ECUName, error) {
	if len(payload) < 20 {
		return ECUName{}, ErrShortPayload
	}
	return ECUName{
		ECU:     stripNUL(payload[:4]),
		ECUName: stripNUL(payload[4:20]),
	}, nil
}

// ipt16Labels is the 16-counter label set for spark-ignition PID $08
// (IPT), in wire order.
var ipt16Labels = []string{
	"OBDCOND", "IGNCNTR",
	"CATCOMP1", "CATCOND1",
	"CATCOMP2", "CATCOND2",
	"O2SCOMP1", "O2SCOND1",
	"O2SCOMP2", "O2SCOND2",
	"EGRCOMP", "EGRCOND",
	"AIRCOMP", "AIRCOND",
	"EVAPCOMP", "EVAPCOND",
}

// ipt20ExtraLabels are the 4 additional counters some spark-ignition
// vehicles report alongside the base 16, making a 20-counter response.
var ipt20ExtraLabels = []string{
	"SO2SCOMP", "SO2SCOND",
	"SAIRCOMP", "SAIRCOND",
}

// dieselIPTLabels is the 16-counter label set for compression-ignition
// (diesel) PID $0B.
var dieselIPTLabels = []string{
	"OBDCOND", "IGNCNTR",
	"HCCATCOMP", "HCCATCOND",
	"NCATCOMP", "NCATCOND",
	"NADSCOMP", "NADSCOND",
	"PMCOMP", "PMCOND",
	"EGSCOMP", "EGSCOND",
	"EGRCOMP", "EGRCOND",
	"BPCOMP", "BPCOND",
}

// IPTCounter is one named in-use-performance-tracking counter.
type IPTCounter struct {
	Label string
	Value uint16
}

// DecodeIPT decodes a Service $09 PID $08 (spark) response body: 16 or
// 20 two-byte big-endian counters with the fixed label set above.
func DecodeIPT(payload []byte) ([]IPTCounter, error) {
	return decodeCounters(payload, ipt16Labels, ipt20ExtraLabels)
}

// DecodeDieselIPT decodes a Service $09 PID $0B response body: 16
// two-byte big-endian counters with the diesel label set.
func DecodeDieselIPT(payload []byte) ([]IPTCounter, error) {
	return decodeCounters(payload, dieselIPTLabels, nil)
}

func decodeCounters(payload []byte, base, extra []string) ([]IPTCounter, error) {
	n := len(payload) / 2
	if len(payload)%2 != 0 || (n != len(base) && n != len(base)+len(extra)) {
		return nil, fmt.Errorf("decode: IPT payload has %d bytes, expected %d or %d",
			len(payload), len(base)*2, (len(base)+len(extra))*2)
	}
	labels := base
	if n == len(base)+len(extra) {
		labels = append(append([]string(nil), base...), extra...)
	}
	out := make([]IPTCounter, n)
	for i := 0; i < n; i++ {
		out[i] = IPTCounter{
			Label: labels[i],
			Value: uint16(payload[2*i])<<8 | uint16(payload[2*i+1]),
		}
	}
	return out, nil
}

func stripNUL(b []byte) string {
	return strings.ReplaceAll(string(b), "\x00", "")
}
