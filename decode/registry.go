package decode

import "fmt"

// Response is a decoded SID/PID response object, as produced by a
// [Registry]'s factory (spec.md §4.5 "C7"). Every concrete response
// type embeds baseResponse for the SID/PID/raw-bytes bookkeeping and
// implements Values() for its own decoded shape.
type Response interface {
	SID() byte
	HasPID() bool
	PID() byte
	DataBytes() []byte
	Values() []Value
}

type baseResponse struct {
	sid    byte
	pid    byte
	hasPID bool
	data   []byte
}

func (b baseResponse) SID() byte         { return b.sid }
func (b baseResponse) HasPID() bool      { return b.hasPID }
func (b baseResponse) PID() byte         { return b.pid }
func (b baseResponse) DataBytes() []byte { return b.data }

// Message is the generic fallback Response for an (SID, PID) pair with
// no registered decoder — spec.md §4.5's factory "default[s] to a
// generic Message when unregistered".
type Message struct{ baseResponse }

func (m Message) Values() []Value {
	return []Value{{Label: "raw", Kind: KindText, Text: fmt.Sprintf("% X", m.data)}}
}

// PIDSupportResponse wraps a 4-byte PID-supported bitmap decode.
type PIDSupportResponse struct {
	baseResponse
	Supported []byte
}

func (r PIDSupportResponse) Values() []Value {
	v := Value{Label: "Supported PIDs", Kind: KindBitfield}
	for _, p := range r.Supported {
		v.Flags = append(v.Flags, fmt.Sprintf("$%02X", p))
	}
	return []Value{v}
}

// MonitorStatusResponse wraps a Service $01 PID $01 readiness decode.
type MonitorStatusResponse struct {
	baseResponse
	Status MonitorStatus
}

func (r MonitorStatusResponse) Values() []Value { return []Value{r.Status.Value()} }

// ScalarResponse wraps a single-value Service $01 scalar PID decode.
type ScalarResponse struct {
	baseResponse
	Decoded Value
}

func (r ScalarResponse) Values() []Value { return []Value{r.Decoded} }

// DTCResponse wraps a Service $03/$07 stored-DTC list decode.
type DTCResponse struct {
	baseResponse
	DTCs []DTC
}

func (r DTCResponse) Values() []Value {
	v := Value{Label: "DTCs", Kind: KindBitfield}
	for _, d := range r.DTCs {
		v.Flags = append(v.Flags, d.String())
	}
	return []Value{v}
}

// VINResponse wraps a Service $09 PID $02 decode.
type VINResponse struct {
	baseResponse
	VIN string
}

func (r VINResponse) Values() []Value { return []Value{text("VIN", r.VIN)} }

// CALIDResponse wraps a Service $09 PID $04 decode.
type CALIDResponse struct {
	baseResponse
	CALIDs []string
}

func (r CALIDResponse) Values() []Value {
	out := make([]Value, 0, len(r.CALIDs))
	for _, c := range r.CALIDs {
		out = append(out, text("CALID", c))
	}
	return out
}

// CVNResponse wraps a Service $09 PID $06 decode.
type CVNResponse struct {
	baseResponse
	CVNs []string
}

func (r CVNResponse) Values() []Value {
	out := make([]Value, 0, len(r.CVNs))
	for _, c := range r.CVNs {
		out = append(out, text("CVN", c))
	}
	return out
}

// ECUNameResponse wraps a Service $09 PID $0A decode.
type ECUNameResponse struct {
	baseResponse
	Name ECUName
}

func (r ECUNameResponse) Values() []Value {
	return []Value{
		text("ECU", r.Name.ECU),
		text("ECU Name", r.Name.ECUName),
	}
}

// IPTResponse wraps a Service $09 PID $08/$0B in-use performance
// tracking counter decode.
type IPTResponse struct {
	baseResponse
	Counters []IPTCounter
}

func (r IPTResponse) Values() []Value {
	out := make([]Value, 0, len(r.Counters))
	for _, c := range r.Counters {
		out = append(out, count(c.Label, float64(c.Value), "count"))
	}
	return out
}

// MessageCountResponse wraps one of the Service $09 MessageCount-only
// replies (PIDs $01,$03,$05,$07,$09): a single unchanged-payload byte
// count, per spec.md §4.3.
type MessageCountResponse struct {
	baseResponse
	Count int
}

func (r MessageCountResponse) Values() []Value {
	return []Value{count("Message Count", float64(r.Count), "messages")}
}

// Constructor builds a Response from a payload already advanced past
// SID (and PID, when the SID is PID-keyed). isCAN tells a variable-length
// constructor whether to expect and strip an ISO-15765 leading
// "number of items" byte (spec.md §4.5).
type Constructor func(payload []byte, isCAN bool) (Response, error)

// ErrAlreadyRegistered is returned by Register when a constructor is
// already bound to the given (SID, PID) and overwrite was not
// requested.
var ErrAlreadyRegistered = fmt.Errorf("decode: constructor already registered")

type pidTable map[byte]Constructor

// Registry is the two-level (SID -> PID-keyed table | flat) index of
// spec.md §4.5's C7. Registering a decoder is explicit. Build one with
// NewEmptyRegistry (nothing registered) or NewRegistry (the SAE
// J1979-populated default); the zero value has nil tables, so
// RegisterPID and RegisterSID panic on it.
type Registry struct {
	pidKeyed map[byte]pidTable   // SID -> PID -> Constructor, for PID-keyed SIDs
	flat     map[byte]Constructor // SID -> Constructor, for SIDs with no PID
}

// NewEmptyRegistry returns a Registry with nothing registered.
func NewEmptyRegistry() *Registry {
	return &Registry{pidKeyed: make(map[byte]pidTable), flat: make(map[byte]Constructor)}
}

// pidKeyedSIDs lists the SIDs whose second byte is a PID selector
// rather than part of the payload: $01 current data and $09 vehicle
// information. $03/$07 stored/pending DTCs carry no PID.
var pidKeyedSIDs = map[byte]bool{0x01: true, 0x09: true}

// IsPIDKeyed reports whether sid's responses carry a PID byte.
func IsPIDKeyed(sid byte) bool { return pidKeyedSIDs[sid] }

// RegisterPID binds ctor to (sid, pid) in a PID-keyed SID's table.
func (r *Registry) RegisterPID(sid, pid byte, ctor Constructor, overwrite bool) error {
	t, ok := r.pidKeyed[sid]
	if !ok {
		t = make(pidTable)
		r.pidKeyed[sid] = t
	}
	if _, exists := t[pid]; exists && !overwrite {
		return fmt.Errorf("%w: SID $%02X PID $%02X", ErrAlreadyRegistered, sid, pid)
	}
	t[pid] = ctor
	return nil
}

// RegisterSID binds ctor to a non-PID-keyed sid.
func (r *Registry) RegisterSID(sid byte, ctor Constructor, overwrite bool) error {
	if _, exists := r.flat[sid]; exists && !overwrite {
		return fmt.Errorf("%w: SID $%02X", ErrAlreadyRegistered, sid)
	}
	r.flat[sid] = ctor
	return nil
}

// Create reads SID (and PID, if sid is PID-keyed) from the front of
// data — a reassembled bus message's DataBytes, SID byte included —
// advances past them, and instantiates the registered response,
// defaulting to a generic Message when unregistered, per spec.md §4.5.
func (r *Registry) Create(data []byte, isCAN bool) (Response, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("decode: cannot create response from empty bus message")
	}
	sid := data[0] & 0xBF
	hasPID := IsPIDKeyed(sid)

	offset := 1
	var pid byte
	if hasPID {
		if len(data) < 2 {
			return nil, ErrShortPayload
		}
		pid = data[1]
		offset = 2
	}
	payload := data[offset:]

	var ctor Constructor
	if hasPID {
		if t, ok := r.pidKeyed[sid]; ok {
			ctor = t[pid]
		}
	} else {
		ctor = r.flat[sid]
	}
	if ctor == nil {
		return Message{baseResponse{sid: sid, pid: pid, hasPID: hasPID, data: payload}}, nil
	}
	return ctor(payload, isCAN)
}

// stripLeadingCount drops the ISO-15765 "number of items" byte a
// variable-length Service $09/$03 response carries in front of its
// payload on CAN buses; legacy buses carry no such byte and the item
// count is inferred from total payload length instead (spec.md §4.5).
func stripLeadingCount(payload []byte, isCAN bool) []byte {
	if isCAN && len(payload) > 0 {
		return payload[1:]
	}
	return payload
}

// NewRegistry returns a Registry pre-populated with every SID $01, $03,
// $07, and $09 decoder spec.md §4.5 names.
func NewRegistry() *Registry {
	r := NewEmptyRegistry()

	// SID $01 current data: PID-supported bitmaps at the standard
	// bases, the monitor-status readiness response, and every scalar
	// PID spec.md §4.5 lists a formula for.
	for _, base := range []byte{0x00, 0x20, 0x40, 0x60, 0x80, 0xA0, 0xC0} {
		base := base
		must(r.RegisterPID(0x01, base, pidSupportCtor(base), false))
	}
	must(r.RegisterPID(0x01, 0x01, func(payload []byte, _ bool) (Response, error) {
		s, err := DecodeMonitorStatus(payload)
		if err != nil {
			return nil, err
		}
		return MonitorStatusResponse{baseResponse{sid: 0x01, pid: 0x01, hasPID: true, data: payload}, s}, nil
	}, false))
	for pid, dec := range scalarDecoders {
		pid, dec := pid, dec
		must(r.RegisterPID(0x01, pid, func(payload []byte, _ bool) (Response, error) {
			v, err := dec(payload)
			if err != nil {
				return nil, err
			}
			return ScalarResponse{baseResponse{sid: 0x01, pid: pid, hasPID: true, data: payload}, v}, nil
		}, false))
	}

	// SID $03/$07 stored/pending DTCs: no PID, variable-length list of
	// 2-byte codes with an ISO-15765 leading count byte.
	dtcCtor := func(payload []byte, isCAN bool) (Response, error) {
		body := stripLeadingCount(payload, isCAN)
		dtcs, err := DecodeDTCs(body)
		if err != nil {
			return nil, err
		}
		return DTCResponse{baseResponse{sid: 0, hasPID: false, data: body}, dtcs}, nil
	}
	must(r.RegisterSID(0x03, dtcCtor, false))
	must(r.RegisterSID(0x07, dtcCtor, false))

	// SID $09 vehicle information.
	must(r.RegisterPID(0x09, 0x00, pidSupportCtor(0x00), false))
	must(r.RegisterPID(0x09, 0x02, func(payload []byte, _ bool) (Response, error) {
		vin, err := DecodeVIN(payload)
		if err != nil {
			return nil, err
		}
		return VINResponse{baseResponse{sid: 0x09, pid: 0x02, hasPID: true, data: payload}, vin}, nil
	}, false))
	must(r.RegisterPID(0x09, 0x04, func(payload []byte, isCAN bool) (Response, error) {
		ids, err := DecodeCALID(stripLeadingCount(payload, isCAN))
		if err != nil {
			return nil, err
		}
		return CALIDResponse{baseResponse{sid: 0x09, pid: 0x04, hasPID: true, data: payload}, ids}, nil
	}, false))
	must(r.RegisterPID(0x09, 0x06, func(payload []byte, isCAN bool) (Response, error) {
		cvns, err := DecodeCVN(stripLeadingCount(payload, isCAN))
		if err != nil {
			return nil, err
		}
		return CVNResponse{baseResponse{sid: 0x09, pid: 0x06, hasPID: true, data: payload}, cvns}, nil
	}, false))
	must(r.RegisterPID(0x09, 0x08, func(payload []byte, isCAN bool) (Response, error) {
		counters, err := DecodeIPT(stripLeadingCount(payload, isCAN))
		if err != nil {
			return nil, err
		}
		return IPTResponse{baseResponse{sid: 0x09, pid: 0x08, hasPID: true, data: payload}, counters}, nil
	}, false))
	must(r.RegisterPID(0x09, 0x0A, func(payload []byte, isCAN bool) (Response, error) {
		n, err := DecodeECUName(stripLeadingCount(payload, isCAN))
		if err != nil {
			return nil, err
		}
		return ECUNameResponse{baseResponse{sid: 0x09, pid: 0x0A, hasPID: true, data: payload}, n}, nil
	}, false))
	must(r.RegisterPID(0x09, 0x0B, func(payload []byte, isCAN bool) (Response, error) {
		counters, err := DecodeDieselIPT(stripLeadingCount(payload, isCAN))
		if err != nil {
			return nil, err
		}
		return IPTResponse{baseResponse{sid: 0x09, pid: 0x0B, hasPID: true, data: payload}, counters}, nil
	}, false))
	for _, pid := range []byte{0x01, 0x03, 0x05, 0x07, 0x09} {
		pid := pid
		must(r.RegisterPID(0x09, pid, func(payload []byte, _ bool) (Response, error) {
			n := 0
			if len(payload) > 0 {
				n = int(payload[0])
			}
			return MessageCountResponse{baseResponse{sid: 0x09, pid: pid, hasPID: true, data: payload}, n}, nil
		}, false))
	}

	return r
}

func pidSupportCtor(base byte) Constructor {
	return func(payload []byte, _ bool) (Response, error) {
		supported, err := PIDSupported(base, payload)
		if err != nil {
			return nil, err
		}
		return PIDSupportResponse{baseResponse{sid: 0, pid: base, hasPID: true, data: payload}, supported}, nil
	}
}

// must panics on a registration error; only used for NewRegistry's own
// static, conflict-free default table — a conflict here is a
// programming error, not a runtime condition callers should handle.
func must(err error) {
	if err != nil {
		panic(err)
	}
}
