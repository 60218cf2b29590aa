// Package request serializes OBD and raw requests into the wire bytes
// the ELM driver's per-protocol framing turns into an ASCII command
// line (spec.md §4.4, C8). The interface (package obd), not this
// package, is responsible for that per-protocol framing.
package request

import "fmt"

// Request is anything that can serialize itself to the raw bytes an
// ELM327-family scan tool expects after the standard hex-byte framing
// (spec.md §4.6): the leading service ID, an optional PID or PID list,
// or an arbitrary raw payload.
type Request interface {
	// Bytes returns the wire payload: [sid], [sid, pid], [sid, p0, p1,
	// ...], or arbitrary raw bytes for a RawRequest.
	Bytes() []byte
	// SID returns the request's service ID, for reset-guard and
	// response-factory dispatch.
	SID() byte
}

// OBDRequest is a standard OBD-II request: a service ID with zero, one,
// or several PIDs.
type OBDRequest struct {
	sid  byte
	pids []byte
}

// NewOBDRequest builds a request for sid with no PID (e.g. Service $03,
// $04).
func NewOBDRequest(sid byte) OBDRequest {
	return OBDRequest{sid: sid}
}

// NewOBDRequestPID builds a request for sid with a single PID (e.g.
// Service $01 PID $0C).
func NewOBDRequestPID(sid, pid byte) OBDRequest {
	return OBDRequest{sid: sid, pids: []byte{pid}}
}

// NewOBDRequestPIDs builds a request for sid with a list of PIDs, for
// scan tools/ECUs that accept a batched query.
func NewOBDRequestPIDs(sid byte, pids ...byte) OBDRequest {
	return OBDRequest{sid: sid, pids: append([]byte(nil), pids...)}
}

func (r OBDRequest) SID() byte { return r.sid }

// Bytes renders [sid] if no PID was given, [sid, pid] for a single PID,
// or [sid, p0, p1, ...] for a list, per spec.md §4.4.
func (r OBDRequest) Bytes() []byte {
	out := make([]byte, 0, 1+len(r.pids))
	out = append(out, r.sid)
	return append(out, r.pids...)
}

func (r OBDRequest) String() string {
	if len(r.pids) == 0 {
		return fmt.Sprintf("Service $%02X", r.sid)
	}
	return fmt.Sprintf("Service $%02X PIDs %v", r.sid, r.pids)
}

// RawRequest emits its bytes unchanged, for callers bypassing the
// SID/PID request shape entirely (vendor-specific or manual bus
// traffic).
type RawRequest struct {
	data []byte
}

// NewRawRequest wraps data for unmodified transmission. SID() returns
// data[0], or 0 for an empty request. The reset-confirmation guard in
// package obd inspects SID() of every request, so a raw request whose
// first byte is 0x04 needs the same confirmation as any Service $04
// request.
func NewRawRequest(data []byte) RawRequest {
	return RawRequest{data: append([]byte(nil), data...)}
}

func (r RawRequest) Bytes() []byte { return append([]byte(nil), r.data...) }

func (r RawRequest) SID() byte {
	if len(r.data) == 0 {
		return 0
	}
	return r.data[0]
}
