package request

import (
	"reflect"
	"testing"
)

func TestOBDRequestNoPID(t *testing.T) {
	r := NewOBDRequest(0x03)
	if !reflect.DeepEqual(r.Bytes(), []byte{0x03}) {
		t.Fatalf("got %v", r.Bytes())
	}
	if r.SID() != 0x03 {
		t.Fatalf("got SID %x", r.SID())
	}
}

func TestOBDRequestSinglePID(t *testing.T) {
	r := NewOBDRequestPID(0x01, 0x0C)
	if !reflect.DeepEqual(r.Bytes(), []byte{0x01, 0x0C}) {
		t.Fatalf("got %v", r.Bytes())
	}
}

func TestOBDRequestPIDList(t *testing.T) {
	r := NewOBDRequestPIDs(0x01, 0x0C, 0x0D, 0x05)
	if !reflect.DeepEqual(r.Bytes(), []byte{0x01, 0x0C, 0x0D, 0x05}) {
		t.Fatalf("got %v", r.Bytes())
	}
}

func TestRawRequestUnchanged(t *testing.T) {
	r := NewRawRequest([]byte{0xAA, 0xBB, 0xCC})
	if !reflect.DeepEqual(r.Bytes(), []byte{0xAA, 0xBB, 0xCC}) {
		t.Fatalf("got %v", r.Bytes())
	}
	if r.SID() != 0xAA {
		t.Fatalf("got SID %x", r.SID())
	}
}

func TestRawRequestEmptySID(t *testing.T) {
	r := NewRawRequest(nil)
	if r.SID() != 0 {
		t.Fatalf("got SID %x, want 0", r.SID())
	}
}
