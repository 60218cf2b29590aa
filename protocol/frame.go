package protocol

import (
	"errors"
	"fmt"
)

// ErrIgnorableFrame is returned by ParseFrame for bytes that are valid
// on the wire but carry no reassembly-relevant payload: ISO-15765 Flow
// Control frames and any other PCI type outside {SF, FF, CF}. Per
// spec.md §4.3 these are "tolerated and ignored" — callers should drop
// them rather than treat the error as a fault.
var ErrIgnorableFrame = errors.New("protocol: ignorable frame")

// Frame is a parsed bus frame. Every protocol family's frame type
// implements the four reassembly queries spec.md §3 assigns to a
// Frame, plus accessors for its header and payload.
type Frame interface {
	Header() Header
	DataBytes() []byte
	SequenceKey() []byte
	// SequenceNumber returns this frame's 0-based position within its
	// sequence, given the highest sequence number seen so far in the
	// same entry (-1 if none yet), or false if the position cannot be
	// determined from this frame alone.
	SequenceNumber(lastSeen int) (int, bool)
	// SequenceLength returns the expected total frame count for this
	// frame's sequence, if statically known from this frame alone.
	SequenceLength() (int, bool)
	// AssembleMessage concatenates an ordered, possibly sparse (nil =
	// missing) slice of frames from the same sequence into the final
	// bus-message payload.
	AssembleMessage(frames []Frame) ([]byte, error)
}

// ParseFrame parses the raw byte vector emitted by the ELM driver (one
// already-hex-decoded line) into a Frame according to d.
func ParseFrame(d Descriptor, raw []byte) (Frame, error) {
	hdr, err := ParseHeader(d, raw)
	if err != nil {
		return nil, err
	}
	body := raw[len(hdr.Raw):]

	switch d.FrameKind {
	case FrameKindLegacy:
		return newLegacyFrame(hdr, body)
	case FrameKindCAN:
		return newCANFrame(hdr, body)
	default:
		return nil, ErrProtocolNotImplemented
	}
}

// ---- Legacy frames (J1850 PWM/VPW, ISO-9141-2, ISO-14230-4) ----

// legacyFrame is a frame from a protocol with no native multi-frame
// sequencing: the checksum trails the payload, and multi-frame
// responses simply repeat the SID (and, for SID $09, the PID and a
// 1-based MessageCount byte) in every frame.
type legacyFrame struct {
	header   Header
	data     []byte // excludes trailing checksum
	checksum byte
	hasCksum bool
}

func newLegacyFrame(hdr Header, body []byte) (*legacyFrame, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("protocol: legacy frame with empty body")
	}
	f := &legacyFrame{header: hdr}
	f.data = append([]byte(nil), body[:len(body)-1]...)
	f.checksum = body[len(body)-1]
	f.hasCksum = true
	return f, nil
}

func (f *legacyFrame) Header() Header    { return f.header }
func (f *legacyFrame) DataBytes() []byte { return f.data }

// sid09Kind classifies SID $09 PIDs for reassembly purposes.
type sid09Kind int

const (
	sid09Other sid09Kind = iota
	sid09Fixed           // VIN, IPT, ECUNAME: constant frame count
	sid09Variable        // CALID, CVN: variable frame count
	sid09Count           // MessageCount-only PIDs: always single frame
)

func classifySID09(pid byte) (sid09Kind, int) {
	switch pid {
	case 0x02: // VIN
		return sid09Fixed, 5
	case 0x08: // IPT
		return sid09Fixed, 8
	case 0x0A: // ECUNAME
		return sid09Fixed, 5
	case 0x04, 0x06: // CALID, CVN
		return sid09Variable, 0
	case 0x01, 0x03, 0x05, 0x07, 0x09: // MessageCount responses
		return sid09Count, 1
	default:
		return sid09Other, 0
	}
}

// Positive-response SIDs: the bus carries the request service ID with
// the 0x40 reply bit set, so a Mode 3 response starts with 0x43 and a
// Mode 9 response starts with 0x49, never the bare request codes.
const (
	sidMode03Response = 0x43
	sidMode09Response = 0x49
)

func (f *legacyFrame) SequenceKey() []byte {
	key := append([]byte(nil), f.header.Raw...)
	if len(f.data) == 0 {
		return key
	}
	sid := f.data[0]
	switch sid {
	case sidMode03Response:
		return append(key, sid)
	case sidMode09Response:
		if len(f.data) >= 2 {
			return append(key, sid, f.data[1])
		}
		return append(key, sid)
	default:
		return key
	}
}

func (f *legacyFrame) SequenceNumber(lastSeen int) (int, bool) {
	if len(f.data) == 0 {
		return 0, false
	}
	if f.data[0] == sidMode09Response && len(f.data) >= 3 {
		kind, _ := classifySID09(f.data[1])
		if kind == sid09Fixed {
			mc := f.data[2]
			if mc >= 1 {
				return int(mc) - 1, true
			}
		}
		if kind == sid09Count {
			return 0, true
		}
	}
	return 0, false
}

func (f *legacyFrame) SequenceLength() (int, bool) {
	if len(f.data) == 0 {
		return 0, false
	}
	if f.data[0] == sidMode09Response && len(f.data) >= 2 {
		kind, n := classifySID09(f.data[1])
		if kind == sid09Fixed || kind == sid09Count {
			return n, true
		}
	}
	return 0, false
}

// AssembleMessage implements the legacy reassembly policies of
// spec.md §4.3: SID $03 strips a repeated SID byte per frame, SID $09
// strips a repeated [SID, PID, MessageCount] prefix (except for
// MessageCount-only responses, returned unchanged), and any other SID
// is passed through as a conservative single-frame concatenation —
// spec.md §9 notes this path is untested upstream, so we keep its
// behavior simple rather than guessing at framing it never specifies.
func (f *legacyFrame) AssembleMessage(frames []Frame) ([]byte, error) {
	if len(f.data) == 0 {
		return nil, fmt.Errorf("protocol: cannot assemble from empty frame")
	}
	sid := f.data[0]
	switch sid {
	case sidMode03Response:
		return assembleLegacyStrip(frames, []byte{sid}, 1)
	case sidMode09Response:
		if len(f.data) < 2 {
			return nil, fmt.Errorf("protocol: SID $09 frame missing PID")
		}
		pid := f.data[1]
		kind, _ := classifySID09(pid)
		if kind == sid09Count {
			return append([]byte(nil), f.data...), nil
		}
		return assembleLegacyStrip(frames, []byte{sid, pid}, 3)
	default:
		var out []byte
		for _, fr := range frames {
			if fr == nil {
				continue
			}
			lf, ok := fr.(*legacyFrame)
			if !ok {
				return nil, fmt.Errorf("protocol: mixed frame types in legacy sequence")
			}
			out = append(out, lf.data...)
		}
		return out, nil
	}
}

// assembleLegacyStrip concatenates prefix once, then each frame's
// data bytes after stripPrefixLen, using the sending frame's own
// length as the per-frame contribution size for missing-frame
// placeholders (len_per_frame in spec.md §4.3).
func assembleLegacyStrip(frames []Frame, prefix []byte, stripPrefixLen int) ([]byte, error) {
	out := append([]byte(nil), prefix...)
	lenPerFrame := stripPrefixLen // fallback if every frame is missing
	for _, fr := range frames {
		if lf, ok := fr.(*legacyFrame); ok {
			lenPerFrame = len(lf.data)
			break
		}
	}
	for _, fr := range frames {
		if fr == nil {
			placeholders := lenPerFrame - stripPrefixLen
			if placeholders < 0 {
				placeholders = 0
			}
			out = append(out, make([]byte, placeholders)...)
			continue
		}
		lf, ok := fr.(*legacyFrame)
		if !ok {
			return nil, fmt.Errorf("protocol: mixed frame types in legacy sequence")
		}
		if len(lf.data) < stripPrefixLen {
			continue
		}
		out = append(out, lf.data[stripPrefixLen:]...)
	}
	return out, nil
}

// ---- CAN frames (ISO-15765-4) ----

type canPCIType int

const (
	canPCISingle canPCIType = iota
	canPCIFirst
	canPCIConsecutive
	canPCIOther
)

// canFrame is a frame from ISO-15765-4: PCI-framed Single/First/
// Consecutive/Flow-Control frames, as described in spec.md §4.3.
type canFrame struct {
	header   Header
	raw      []byte // body after the header, PCI byte(s) included
	pciType  canPCIType
	sfLength int // Single Frame payload length (PCI low nibble)
	ffTotal  int // First Frame declared total payload length
	cfSeq    int // Consecutive Frame 4-bit sequence nibble
}

func newCANFrame(hdr Header, body []byte) (Frame, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("protocol: CAN frame with empty body")
	}
	pci := body[0]
	switch pci >> 4 {
	case 0x0:
		return &canFrame{header: hdr, raw: body, pciType: canPCISingle, sfLength: int(pci & 0x0F)}, nil
	case 0x1:
		if len(body) < 2 {
			return nil, fmt.Errorf("protocol: CAN First Frame too short")
		}
		total := (int(pci&0x0F) << 8) | int(body[1])
		return &canFrame{header: hdr, raw: body, pciType: canPCIFirst, ffTotal: total}, nil
	case 0x2:
		return &canFrame{header: hdr, raw: body, pciType: canPCIConsecutive, cfSeq: int(pci & 0x0F)}, nil
	default:
		return nil, ErrIgnorableFrame
	}
}

func (f *canFrame) Header() Header { return f.header }

// DataBytes returns this single frame's own payload slice (PCI
// stripped, trimmed to its declared length where known). It does not
// assemble across frames — see AssembleMessage for that.
func (f *canFrame) DataBytes() []byte {
	switch f.pciType {
	case canPCISingle:
		end := 1 + f.sfLength
		if end > len(f.raw) {
			end = len(f.raw)
		}
		return f.raw[1:end]
	case canPCIFirst:
		if len(f.raw) <= 2 {
			return nil
		}
		return f.raw[2:]
	default:
		if len(f.raw) <= 1 {
			return nil
		}
		return f.raw[1:]
	}
}

func (f *canFrame) SequenceKey() []byte {
	return append([]byte(nil), f.header.Raw...)
}

func (f *canFrame) SequenceNumber(lastSeen int) (int, bool) {
	switch f.pciType {
	case canPCISingle, canPCIFirst:
		return 0, true
	case canPCIConsecutive:
		seq := f.cfSeq
		if lastSeen >= 0 {
			for seq <= lastSeen-8 {
				seq += 16
			}
		}
		return seq, true
	default:
		return 0, false
	}
}

func (f *canFrame) SequenceLength() (int, bool) {
	switch f.pciType {
	case canPCISingle:
		return 1, true
	case canPCIFirst:
		return canFrameCount(f.ffTotal), true
	default:
		return 0, false
	}
}

// canFrameCount computes the total frame count (First Frame plus
// Consecutive Frames) for a declared ISO-15765 payload length. The
// First Frame carries 6 payload bytes (after its 2-byte PCI); every
// Consecutive Frame after it carries 7 (after its 1-byte PCI). This is
// the literal ISO-TP framing math; spec.md §4.3's prose formula is
// treated as shorthand for it (see DESIGN.md) since it must agree with
// the missing-frame placeholder-count property in spec.md §8.
func canFrameCount(total int) int {
	if total <= 7 {
		return 1
	}
	remaining := total - 6
	cf := remaining / 7
	if remaining%7 != 0 {
		cf++
	}
	return 1 + cf
}

// AssembleMessage concatenates an ordered, possibly sparse frame list
// into the ISO-15765 payload: 2 PCI bytes stripped from slot 0 when the
// sequence is multi-frame (First Frame), 1 PCI byte stripped from every
// other slot (Single Frame or Consecutive Frame). When a First Frame is
// present anywhere in frames, its declared total length trims the final
// slot's contribution so trailing CAN-frame padding is never included.
func (f *canFrame) AssembleMessage(frames []Frame) ([]byte, error) {
	multiFrame := len(frames) > 1

	declaredTotal, haveTotal := -1, false
	for _, fr := range frames {
		if cf, ok := fr.(*canFrame); ok && cf.pciType == canPCIFirst {
			declaredTotal, haveTotal = cf.ffTotal, true
			break
		}
	}

	var out []byte
	consumed := 0
	for idx, fr := range frames {
		nominal := 7
		if idx == 0 {
			if multiFrame {
				nominal = 6
			} else {
				nominal = -1 // Single Frame: use its own declared length
			}
		}

		if fr == nil {
			size := nominal
			if size < 0 {
				size = 7
			}
			if haveTotal {
				if remaining := declaredTotal - consumed; remaining < size {
					size = max(remaining, 0)
				}
			}
			out = append(out, make([]byte, size)...)
			consumed += size
			continue
		}

		cf, ok := fr.(*canFrame)
		if !ok {
			return nil, fmt.Errorf("protocol: mixed frame types in CAN sequence")
		}
		chunk := cf.DataBytes()
		if haveTotal {
			if remaining := declaredTotal - consumed; remaining < len(chunk) {
				if remaining < 0 {
					remaining = 0
				}
				chunk = chunk[:remaining]
			}
		}
		out = append(out, chunk...)
		consumed += len(chunk)
	}
	return out, nil
}
