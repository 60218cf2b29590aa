package decode

import "testing"

func TestDecodeCALID(t *testing.T) {
	payload := []byte("XYZ0001000000000")
	ids, err := DecodeCALID(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(ids) != 1 || ids[0] != "XYZ0001000000000" {
		t.Fatalf("got %v", ids)
	}
}

func TestDecodeCALIDViaRegistryStripsLeadingCountOnCAN(t *testing.T) {
	r := NewRegistry()
	// One leading item-count byte (0x01) on CAN, then one 16-byte CALID.
	data := append([]byte{0x49, 0x04, 0x01}, []byte("XYZ0001000000000")...)
	resp, err := r.Create(data, true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	cr, ok := resp.(CALIDResponse)
	if !ok {
		t.Fatalf("expected CALIDResponse, got %T", resp)
	}
	if len(cr.CALIDs) != 1 || cr.CALIDs[0] != "XYZ0001000000000" {
		t.Fatalf("got %v", cr.CALIDs)
	}
}

func TestDecodeCALIDViaRegistryNoLeadingCountOnLegacy(t *testing.T) {
	r := NewRegistry()
	// No leading count byte on non-CAN: payload is the CALID directly.
	data := append([]byte{0x49, 0x04}, []byte("XYZ0001000000000")...)
	resp, err := r.Create(data, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	cr := resp.(CALIDResponse)
	if len(cr.CALIDs) != 1 || cr.CALIDs[0] != "XYZ0001000000000" {
		t.Fatalf("got %v", cr.CALIDs)
	}
}

func TestDecodeCVN(t *testing.T) {
	cvns, err := DecodeCVN([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cvns) != 1 || cvns[0] != "DEADBEEF" {
		t.Fatalf("got %v", cvns)
	}
}

func TestDecodeCVNViaRegistryStripsLeadingCountOnCAN(t *testing.T) {
	r := NewRegistry()
	data := []byte{0x49, 0x06, 0x01, 0xDE, 0xAD, 0xBE, 0xEF}
	resp, err := r.Create(data, true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	cr, ok := resp.(CVNResponse)
	if !ok {
		t.Fatalf("expected CVNResponse, got %T", resp)
	}
	if len(cr.CVNs) != 1 || cr.CVNs[0] != "DEADBEEF" {
		t.Fatalf("got %v", cr.CVNs)
	}
}

func TestDecodeECUName(t *testing.T) {
	payload := append([]byte("ECM\x00"), []byte("PowertrainModule\x00\x00\x00\x00")...)
	n, err := DecodeECUName(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n.ECU != "ECM" || n.ECUName != "PowertrainModule" {
		t.Fatalf("got %+v", n)
	}
}

func TestDecodeECUNameViaRegistryStripsLeadingCountOnCAN(t *testing.T) {
	r := NewRegistry()
	ecuName := append([]byte("ECM\x00"), []byte("PowertrainModule\x00\x00\x00\x00")...)
	data := append([]byte{0x49, 0x0A, 0x01}, ecuName...)
	resp, err := r.Create(data, true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	nr, ok := resp.(ECUNameResponse)
	if !ok {
		t.Fatalf("expected ECUNameResponse, got %T", resp)
	}
	if nr.Name.ECU != "ECM" || nr.Name.ECUName != "PowertrainModule" {
		t.Fatalf("got %+v", nr.Name)
	}
}

func TestDecodeECUNameViaRegistryNoLeadingCountOnLegacy(t *testing.T) {
	r := NewRegistry()
	ecuName := append([]byte("ECM\x00"), []byte("PowertrainModule\x00\x00\x00\x00")...)
	data := append([]byte{0x49, 0x0A}, ecuName...)
	resp, err := r.Create(data, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	nr := resp.(ECUNameResponse)
	if nr.Name.ECU != "ECM" || nr.Name.ECUName != "PowertrainModule" {
		t.Fatalf("got %+v", nr.Name)
	}
}

func TestDecodeIPT16Counters(t *testing.T) {
	payload := make([]byte, 32)
	for i := range payload {
		payload[i] = byte(i)
	}
	counters, err := DecodeIPT(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(counters) != 16 || counters[0].Label != "OBDCOND" {
		t.Fatalf("got %+v", counters)
	}
}

func TestDecodeIPTViaRegistryStripsLeadingCountOnCAN(t *testing.T) {
	r := NewRegistry()
	counters := make([]byte, 32)
	for i := range counters {
		counters[i] = byte(i)
	}
	data := append([]byte{0x49, 0x08, 0x01}, counters...)
	resp, err := r.Create(data, true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	ir, ok := resp.(IPTResponse)
	if !ok {
		t.Fatalf("expected IPTResponse, got %T", resp)
	}
	if len(ir.Counters) != 16 {
		t.Fatalf("got %d counters", len(ir.Counters))
	}
}

func TestDecodeIPTViaRegistryNoLeadingCountOnLegacy(t *testing.T) {
	r := NewRegistry()
	counters := make([]byte, 32)
	for i := range counters {
		counters[i] = byte(i)
	}
	data := append([]byte{0x49, 0x08}, counters...)
	resp, err := r.Create(data, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	ir := resp.(IPTResponse)
	if len(ir.Counters) != 16 {
		t.Fatalf("got %d counters", len(ir.Counters))
	}
}

func TestDecodeDieselIPT(t *testing.T) {
	payload := make([]byte, 32)
	for i := range payload {
		payload[i] = byte(i)
	}
	counters, err := DecodeDieselIPT(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(counters) != 16 || counters[0].Label != "OBDCOND" {
		t.Fatalf("got %+v", counters)
	}
}

func TestDecodeDieselIPTViaRegistryStripsLeadingCountOnCAN(t *testing.T) {
	r := NewRegistry()
	counters := make([]byte, 32)
	for i := range counters {
		counters[i] = byte(i)
	}
	data := append([]byte{0x49, 0x0B, 0x01}, counters...)
	resp, err := r.Create(data, true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	ir, ok := resp.(IPTResponse)
	if !ok {
		t.Fatalf("expected IPTResponse, got %T", resp)
	}
	if len(ir.Counters) != 16 || ir.Counters[0].Label != "OBDCOND" {
		t.Fatalf("got %+v", ir.Counters)
	}
}
