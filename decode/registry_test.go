package decode

import (
	"testing"

	"pgregory.net/rapid"
)

func TestRegistryCreateVIN(t *testing.T) {
	r := NewRegistry()
	// spec.md §8 scenario 1: ISO-15765 reassembled VIN payload.
	data := []byte{0x49, 0x02, 0x01, 0x31, 0x47, 0x31, 0x4A, 0x43, 0x35, 0x34, 0x34, 0x34, 0x52, 0x37, 0x32, 0x35, 0x32, 0x33, 0x36, 0x37}
	resp, err := r.Create(data, true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	vin, ok := resp.(VINResponse)
	if !ok {
		t.Fatalf("expected VINResponse, got %T", resp)
	}
	if vin.VIN != "1G1JC5444R7252367" {
		t.Fatalf("got VIN %q", vin.VIN)
	}
}

func TestRegistryCreateMonitorStatusReadinessPass(t *testing.T) {
	r := NewRegistry()
	// spec.md §8 scenario 2.
	data := []byte{0x41, 0x01, 0x00, 0x07, 0x65, 0x00}
	resp, err := r.Create(data, true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	mr, ok := resp.(MonitorStatusResponse)
	if !ok {
		t.Fatalf("expected MonitorStatusResponse, got %T", resp)
	}
	if mr.Status.MIL {
		t.Fatalf("expected MIL false")
	}
	if mr.Status.DTCCount != 0 {
		t.Fatalf("expected 0 DTCs, got %d", mr.Status.DTCCount)
	}
	for _, key := range []string{"catalyst", "evap", "o2", "o2_heater"} {
		m := mr.Status.Monitors[key]
		if !m.Supported || !m.Ready {
			t.Fatalf("%s: expected supported+ready, got %+v", key, m)
		}
	}
}

func TestRegistryCreateMonitorStatusReadinessFail(t *testing.T) {
	r := NewRegistry()
	// spec.md §8 scenario 3.
	data := []byte{0x41, 0x01, 0x00, 0x07, 0x65, 0x25}
	resp, err := r.Create(data, true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	mr := resp.(MonitorStatusResponse)
	incomplete := mr.Status.IncompleteMonitors()
	if len(incomplete) != 3 {
		t.Fatalf("expected 3 incomplete monitors, got %v", incomplete)
	}
	for _, key := range []string{"catalyst", "evap", "o2"} {
		m := mr.Status.Monitors[key]
		if m.Ready {
			t.Fatalf("%s: expected not ready", key)
		}
	}
	if !mr.Status.Monitors["o2_heater"].Ready {
		t.Fatalf("o2_heater: expected ready")
	}
}

func TestRegistryCreateMonitorStatusMILWithDTCs(t *testing.T) {
	r := NewRegistry()
	// spec.md §8 scenario 4.
	data := []byte{0x41, 0x01, 0xA9, 0x00, 0x00, 0x00}
	resp, err := r.Create(data, true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	mr := resp.(MonitorStatusResponse)
	if !mr.Status.MIL {
		t.Fatalf("expected MIL true")
	}
	if mr.Status.DTCCount != 41 {
		t.Fatalf("expected 41 DTCs, got %d", mr.Status.DTCCount)
	}
}

func TestRegistryCreateO2WideSensorMax(t *testing.T) {
	r := NewRegistry()
	// spec.md §8 scenario 5.
	data := []byte{0x41, 0x24, 0xFF, 0xFF, 0x00, 0x00}
	resp, err := r.Create(data, true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	sr := resp.(ScalarResponse)
	if sr.Decoded.Units != "λ" {
		t.Fatalf("expected λ value, got %+v", sr.Decoded)
	}
	if sr.Decoded.Number < 1.99 || sr.Decoded.Number > 2.0 {
		t.Fatalf("λ = %v, want ≈1.999", sr.Decoded.Number)
	}
}

func TestRegistryCreateDTCResponse(t *testing.T) {
	r := NewRegistry()
	// Two codes (one zero pair discarded), legacy framing (no leading
	// item-count byte to strip).
	data := []byte{0x43, 0x03, 0x01, 0x00, 0x00, 0x04, 0x22}
	resp, err := r.Create(data, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	dr := resp.(DTCResponse)
	if len(dr.DTCs) != 2 {
		t.Fatalf("expected 2 DTCs, got %v", dr.DTCs)
	}
	if dr.DTCs[0].String() != "P0301" || dr.DTCs[1].String() != "P0422" {
		t.Fatalf("got %v", dr.DTCs)
	}
}

func TestRegistryCreatePIDSupported(t *testing.T) {
	r := NewRegistry()
	data := []byte{0x41, 0x00, 0xFF, 0xFF, 0xFF, 0xFF}
	resp, err := r.Create(data, true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	ps := resp.(PIDSupportResponse)
	if len(ps.Supported) != 0x20 {
		t.Fatalf("expected 32 supported PIDs, got %d", len(ps.Supported))
	}
}

// TestPIDSupportedCompletenessProperty is spec.md §8's "PID-support
// completeness" property, generalized over arbitrary bitmaps rather
// than just the all-ones case: for any 4-byte PID-supported payload,
// PIDSupported must report base+k supported if and only if bit (32-k)
// of the bitmap is set, for every k from 1 to 0x20.
func TestPIDSupportedCompletenessProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		base := byte(rapid.IntRange(0, 0xE0).Draw(rt, "base"))
		payload := make([]byte, 4)
		for i := range payload {
			payload[i] = byte(rapid.IntRange(0, 0xFF).Draw(rt, "byte"))
		}
		bitmap := uint32(payload[0])<<24 | uint32(payload[1])<<16 | uint32(payload[2])<<8 | uint32(payload[3])

		supported, err := PIDSupported(base, payload)
		if err != nil {
			rt.Fatalf("PIDSupported: %v", err)
		}

		want := make(map[byte]bool)
		for k := 1; k <= 0x20; k++ {
			bit := uint(32 - k)
			if bitmap&(1<<bit) != 0 {
				want[base+byte(k)] = true
			}
		}

		if len(supported) != len(want) {
			rt.Fatalf("got %d supported PIDs, want %d (bitmap %08X)", len(supported), len(want), bitmap)
		}
		for _, p := range supported {
			if !want[p] {
				rt.Fatalf("PID %02X reported supported but its bit is unset (bitmap %08X)", p, bitmap)
			}
			delete(want, p)
		}
		if len(want) != 0 {
			rt.Fatalf("missing supported PIDs %v for bitmap %08X", want, bitmap)
		}
	})
}

func TestRegistryCreateUnregisteredFallsBackToMessage(t *testing.T) {
	r := NewEmptyRegistry()
	data := []byte{0x41, 0x99, 0x01, 0x02}
	resp, err := r.Create(data, true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok := resp.(Message); !ok {
		t.Fatalf("expected generic Message fallback, got %T", resp)
	}
}

func TestRegistryRegisterPIDConflict(t *testing.T) {
	r := NewEmptyRegistry()
	ctor := func(payload []byte, _ bool) (Response, error) {
		return Message{baseResponse{data: payload}}, nil
	}
	if err := r.RegisterPID(0x01, 0x0C, ctor, false); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.RegisterPID(0x01, 0x0C, ctor, false); err == nil {
		t.Fatalf("expected conflict error without overwrite")
	}
	if err := r.RegisterPID(0x01, 0x0C, ctor, true); err != nil {
		t.Fatalf("overwrite register: %v", err)
	}
}

func TestSupportedPIDsChain(t *testing.T) {
	r0, err := PIDSupported(0x00, []byte{0x80, 0x00, 0x00, 0x01})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp0 := PIDSupportResponse{baseResponse{pid: 0x00}, r0}
	all := SupportedPIDs([]PIDSupportResponse{resp0})
	if len(all) != 2 || all[0] != 0x01 || all[1] != 0x20 {
		t.Fatalf("got %v", all)
	}
}
