package protocol

import "errors"

// ErrProtocolNotImplemented is returned by ParseHeader/ParseFrame for
// families spec.md declares but does not require a working parser for
// (currently only SAE-J1939).
var ErrProtocolNotImplemented = errors.New("protocol: not implemented")

// ErrShortHeader is returned when raw has fewer bytes than the
// protocol's declared header size.
var ErrShortHeader = errors.New("protocol: short header")

// Header carries the raw header bytes a frame was parsed from plus the
// fields each protocol family is able to derive from them. Not every
// field is meaningful for every family; HasRxID says whether RxID was
// derived at all.
type Header struct {
	Raw      []byte
	Priority byte
	AddrMode byte
	TxID     byte
	RxID     byte
	HasRxID  bool
}

// Equal compares headers by raw bytes and derived fields.
func (h Header) Equal(o Header) bool {
	if len(h.Raw) != len(o.Raw) {
		return false
	}
	for i := range h.Raw {
		if h.Raw[i] != o.Raw[i] {
			return false
		}
	}
	return h.Priority == o.Priority && h.AddrMode == o.AddrMode &&
		h.TxID == o.TxID && h.RxID == o.RxID && h.HasRxID == o.HasRxID
}

// ParseHeader extracts a Header from the leading bytes of raw according
// to d's family, per spec.md §4.2. It does not consume raw; callers
// slice off d.HeaderSize bytes themselves once parsing succeeds.
func ParseHeader(d Descriptor, raw []byte) (Header, error) {
	switch d.Family {
	case FamilyJ1850, FamilyISO9141:
		return parseLegacy3ByteHeader(raw)
	case FamilyISO14230:
		return parseISO14230Header(raw)
	case FamilyISO15765:
		if d.IDLength == 29 {
			return parseCAN29Header(raw)
		}
		return parseCAN11Header(raw)
	default:
		return Header{}, ErrProtocolNotImplemented
	}
}

// parseLegacy3ByteHeader handles J1850 PWM/VPW and ISO-9141-2, which
// share the same 3-byte layout: priority, addr_mode, tx_id.
func parseLegacy3ByteHeader(raw []byte) (Header, error) {
	if len(raw) < 3 {
		return Header{}, ErrShortHeader
	}
	return Header{
		Raw:      append([]byte(nil), raw[:3]...),
		Priority: raw[0],
		AddrMode: raw[1],
		TxID:     raw[2],
	}, nil
}

// parseISO14230Header handles ISO-14230-4 (KWP): byte0 = 0xC0 | data
// length, byte1 is the fixed functional-address byte 0x33, byte2 is
// the responding ECU's tx_id.
func parseISO14230Header(raw []byte) (Header, error) {
	if len(raw) < 3 {
		return Header{}, ErrShortHeader
	}
	return Header{
		Raw:      append([]byte(nil), raw[:3]...),
		Priority: raw[0],
		AddrMode: raw[1],
		TxID:     raw[2],
	}, nil
}

// parseCAN29Header handles ISO-15765 29-bit headers: priority, addr
// mode (0xDB functional / 0xDA physical), rx_id (0x33 = broadcast
// tester address), tx_id.
func parseCAN29Header(raw []byte) (Header, error) {
	if len(raw) < 4 {
		return Header{}, ErrShortHeader
	}
	return Header{
		Raw:      append([]byte(nil), raw[:4]...),
		Priority: raw[0],
		AddrMode: raw[1],
		RxID:     raw[2],
		HasRxID:  true,
		TxID:     raw[3],
	}, nil
}

// parseCAN11Header handles ISO-15765 11-bit headers. 11-bit CAN IDs are
// logically 3 nibbles but are always left-padded with zeros to a
// 4-byte buffer (spec.md §3) so every header in the system is the same
// width. Within that 4-byte buffer: priority is the low nibble of
// byte 2, addr_mode is the high nibble of byte 3.
//
//   - addr_mode 0xD0 (functional): tx_id is synthesized as 0xF1 (the
//     conventional external-tester address) since a functional request
//     has no single responding ECU encoded in the ID.
//   - addr_mode 0xE0 (physical) with bit 3 of the low nibble set: this
//     is a response FROM an ECU, so tx_id is the low 3 bits of byte 3
//     and rx_id is 0xF1 (the tester).
//   - addr_mode 0xE0 physical otherwise (bit 3 clear): this is a
//     request TO an ECU, so the roles mirror: tx_id is 0xF1 and rx_id
//     is the low 3 bits of byte 3.
func parseCAN11Header(raw []byte) (Header, error) {
	if len(raw) < 4 {
		return Header{}, ErrShortHeader
	}
	h := Header{
		Raw:      append([]byte(nil), raw[:4]...),
		Priority: raw[2] & 0x0F,
		AddrMode: raw[3] & 0xF0,
	}
	switch h.AddrMode {
	case 0xD0:
		h.TxID = 0xF1
	case 0xE0:
		low := raw[3] & 0x0F
		if low&0x08 != 0 {
			h.TxID = low & 0x07
			h.RxID = 0xF1
			h.HasRxID = true
		} else {
			h.TxID = 0xF1
			h.RxID = low & 0x07
			h.HasRxID = true
		}
	}
	return h, nil
}
