// Package protocol describes the bus protocols an ELM327-family scan
// tool can be commanded to speak, and the header/frame shapes each one
// puts on the wire. Protocols and frames are modeled as tagged variants
// (a closed Family/FrameKind enum plus per-kind methods) rather than an
// open inheritance hierarchy, the same way the reference TNC driver this
// stack is modeled on keeps its protocol-specific frame handling in
// per-type methods instead of runtime reflection.
package protocol

import "fmt"

// Family identifies a bus-protocol family. Families are closed: callers
// switch over them exhaustively rather than registering new ones at
// runtime.
type Family int

const (
	FamilyJ1850 Family = iota
	FamilyISO9141
	FamilyISO14230
	FamilyISO15765
	FamilyJ1939
)

func (f Family) String() string {
	switch f {
	case FamilyJ1850:
		return "SAE-J1850"
	case FamilyISO9141:
		return "ISO-9141-2"
	case FamilyISO14230:
		return "ISO-14230-4"
	case FamilyISO15765:
		return "ISO-15765-4"
	case FamilyJ1939:
		return "SAE-J1939"
	default:
		return fmt.Sprintf("Family(%d)", int(f))
	}
}

// Variant distinguishes sub-protocols within a family: PWM/VPW for
// J1850, FAST/5BAUD initialization for ISO-14230-4. Empty when the
// family has no variant (ISO-9141-2, ISO-15765-4, J1939).
type Variant string

const (
	VariantNone   Variant = ""
	VariantPWM    Variant = "PWM"
	VariantVPW    Variant = "VPW"
	VariantFast   Variant = "FAST"
	Variant5Baud  Variant = "5BAUD"
)

// FrameKind distinguishes the wire framing a protocol uses, which in
// turn determines which Frame implementation ParseFrame constructs.
type FrameKind int

const (
	// FrameKindLegacy covers J1850 PWM/VPW, ISO-9141-2, and ISO-14230-4:
	// fixed 3-byte header, a trailing 1-byte checksum, and no native
	// multi-frame sequencing (SID is repeated in each frame instead).
	FrameKindLegacy FrameKind = iota
	// FrameKindCAN covers ISO-15765-4: 4-byte (possibly left-padded)
	// header, PCI-based single/first/consecutive/flow-control framing.
	FrameKindCAN
	// FrameKindUndeclared covers SAE-J1939, which spec.md declares but
	// does not require a working header parser or frame model for.
	FrameKindUndeclared
)

// Descriptor is an immutable protocol descriptor. Equality is
// structural (plain field comparison — Descriptor has no slice or
// pointer fields, so Go's == does the right thing).
type Descriptor struct {
	Family     Family
	Variant    Variant
	IDLength   int // 0, 11, or 29; meaningful only for FamilyISO15765
	Baud       int
	HeaderSize int
	FrameKind  FrameKind
}

// Name renders a human-readable protocol name, the same label ELM
// drivers display next to "ATDPN" results.
func (d Descriptor) Name() string {
	switch d.Family {
	case FamilyJ1850:
		return fmt.Sprintf("SAE J1850 %s", d.Variant)
	case FamilyISO9141:
		return "ISO 9141-2"
	case FamilyISO14230:
		return fmt.Sprintf("ISO 14230-4 (KWP %s)", d.Variant)
	case FamilyISO15765:
		return fmt.Sprintf("ISO 15765-4 (CAN %d/%d)", d.IDLength, d.Baud)
	case FamilyJ1939:
		return "SAE J1939"
	default:
		return "unknown protocol"
	}
}

// Equal reports whether two descriptors are structurally identical.
func (d Descriptor) Equal(o Descriptor) bool { return d == o }

// Well-known descriptor constructors, one per protocol spec.md names.

func J1850PWM() Descriptor {
	return Descriptor{Family: FamilyJ1850, Variant: VariantPWM, Baud: 41600, HeaderSize: 3, FrameKind: FrameKindLegacy}
}

func J1850VPW() Descriptor {
	return Descriptor{Family: FamilyJ1850, Variant: VariantVPW, Baud: 10400, HeaderSize: 3, FrameKind: FrameKindLegacy}
}

func ISO9141_2() Descriptor {
	return Descriptor{Family: FamilyISO9141, Baud: 10400, HeaderSize: 3, FrameKind: FrameKindLegacy}
}

func ISO14230_4Fast() Descriptor {
	return Descriptor{Family: FamilyISO14230, Variant: VariantFast, Baud: 10400, HeaderSize: 3, FrameKind: FrameKindLegacy}
}

func ISO14230_4FiveBaud() Descriptor {
	return Descriptor{Family: FamilyISO14230, Variant: Variant5Baud, Baud: 10400, HeaderSize: 3, FrameKind: FrameKindLegacy}
}

// ISO15765_4 builds a CAN descriptor for the given addressing width (11
// or 29 bits) and bit rate (500000 or 250000), per spec.md §3.
func ISO15765_4(idLength, baud int) (Descriptor, error) {
	if idLength != 11 && idLength != 29 {
		return Descriptor{}, fmt.Errorf("protocol: invalid CAN id length %d", idLength)
	}
	if baud != 500000 && baud != 250000 {
		return Descriptor{}, fmt.Errorf("protocol: invalid CAN baud %d", baud)
	}
	return Descriptor{Family: FamilyISO15765, IDLength: idLength, Baud: baud, HeaderSize: 4, FrameKind: FrameKindCAN}, nil
}

// J1939 returns the declared-but-not-fully-implemented SAE J1939
// descriptor (spec.md §3: "declarable, not fully implemented"). It
// carries no header size/frame kind that ParseHeader/ParseFrame can act
// on; callers get ErrProtocolNotImplemented from both.
func J1939() Descriptor {
	return Descriptor{Family: FamilyJ1939, FrameKind: FrameKindUndeclared}
}

// All returns every descriptor the registry knows about, in no
// particular order. Automatic search order (with its inter-attempt
// delays) is a concern of the elm package, not the registry — spec.md
// §4.6 ties it to connection bring-up, not to protocol identity.
func All() []Descriptor {
	iso11_500, _ := ISO15765_4(11, 500000)
	iso11_250, _ := ISO15765_4(11, 250000)
	iso29_500, _ := ISO15765_4(29, 500000)
	iso29_250, _ := ISO15765_4(29, 250000)
	return []Descriptor{
		J1850PWM(),
		J1850VPW(),
		ISO9141_2(),
		ISO14230_4FiveBaud(),
		ISO14230_4Fast(),
		iso11_500,
		iso11_250,
		iso29_500,
		iso29_250,
		J1939(),
	}
}
