package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHeaderLegacy3Byte(t *testing.T) {
	d := J1850VPW()
	h, err := ParseHeader(d, []byte{0x48, 0x6B, 0x10, 0x41, 0x00, 0xBE})
	require.NoError(t, err)
	require.Equal(t, byte(0x48), h.Priority)
	require.Equal(t, byte(0x6B), h.AddrMode)
	require.Equal(t, byte(0x10), h.TxID)
	require.False(t, h.HasRxID)
}

func TestParseHeaderISO14230(t *testing.T) {
	d := ISO14230_4Fast()
	h, err := ParseHeader(d, []byte{0xC2, 0x33, 0x10, 0x41, 0x00})
	require.NoError(t, err)
	require.Equal(t, byte(0xC2), h.Priority)
	require.Equal(t, byte(0x33), h.AddrMode)
	require.Equal(t, byte(0x10), h.TxID)
}

func TestParseHeaderCAN29(t *testing.T) {
	d, err := ISO15765_4(29, 500000)
	require.NoError(t, err)
	h, err := ParseHeader(d, []byte{0x18, 0xDA, 0xF1, 0x10, 0x41, 0x00})
	require.NoError(t, err)
	require.Equal(t, byte(0x18), h.Priority)
	require.Equal(t, byte(0xDA), h.AddrMode)
	require.Equal(t, byte(0xF1), h.RxID)
	require.True(t, h.HasRxID)
	require.Equal(t, byte(0x10), h.TxID)
}

// TestParseHeaderCAN11Padding is the universal "Header padding"
// property from spec.md §8: once the ELM line decoder (elm package) has
// left-padded an odd-digit-count 11-bit CAN line to a 4-byte header
// (e.g. "7E8..." becomes [0x00, 0x00, 0x07, 0xE8, ...]), the resulting
// header's high five nibbles are zero.
func TestParseHeaderCAN11Padding(t *testing.T) {
	d, err := ISO15765_4(11, 500000)
	require.NoError(t, err)

	raw := []byte{0x00, 0x00, 0x07, 0xE8, 0x03, 0x41, 0x00}
	h, err := ParseHeader(d, raw)
	require.NoError(t, err)
	require.Len(t, h.Raw, 4)
	require.Equal(t, byte(0x00), h.Raw[0])
	require.Equal(t, byte(0x00), h.Raw[1])
	require.Equal(t, byte(0x00), h.Raw[2]&0xF0) // high nibble of byte2 is also zero
}

func TestParseHeaderCAN11Functional(t *testing.T) {
	d, err := ISO15765_4(11, 500000)
	require.NoError(t, err)
	// Functional request to 0x7DF: byte2 low nibble = priority, byte3
	// high nibble 0xD0 marks functional addressing.
	h, err := ParseHeader(d, []byte{0x00, 0x00, 0x07, 0xDF, 0x01, 0x00})
	require.NoError(t, err)
	require.Equal(t, byte(0xD0), h.AddrMode)
	require.Equal(t, byte(0xF1), h.TxID)
}

func TestParseHeaderCAN11PhysicalResponse(t *testing.T) {
	d, err := ISO15765_4(11, 500000)
	require.NoError(t, err)
	// Physical response from ECU 0x8: byte3 = 0xE8 (0xE0 | 0x08, bit3 set).
	h, err := ParseHeader(d, []byte{0x00, 0x00, 0x07, 0xE8, 0x03, 0x41, 0x00})
	require.NoError(t, err)
	require.Equal(t, byte(0xE0), h.AddrMode)
	require.Equal(t, byte(0x00), h.TxID) // low 3 bits of 0xE8 == 0
	require.Equal(t, byte(0xF1), h.RxID)
}

func TestParseHeaderCAN11PhysicalRequest(t *testing.T) {
	d, err := ISO15765_4(11, 500000)
	require.NoError(t, err)
	// Physical request to ECU 0x0 (bit3 clear): tx/rx mirror the response case.
	h, err := ParseHeader(d, []byte{0x00, 0x00, 0x07, 0xE0, 0x02, 0x01, 0x00})
	require.NoError(t, err)
	require.Equal(t, byte(0xF1), h.TxID)
	require.Equal(t, byte(0x00), h.RxID)
}

func TestParseHeaderShort(t *testing.T) {
	d := J1850VPW()
	_, err := ParseHeader(d, []byte{0x48, 0x6B})
	require.ErrorIs(t, err, ErrShortHeader)
}

func TestParseHeaderJ1939NotImplemented(t *testing.T) {
	_, err := ParseHeader(J1939(), []byte{0x01, 0x02, 0x03, 0x04})
	require.ErrorIs(t, err, ErrProtocolNotImplemented)
}

func TestDescriptorEquality(t *testing.T) {
	a := J1850PWM()
	b := J1850PWM()
	require.True(t, a.Equal(b))

	c11, _ := ISO15765_4(11, 500000)
	c29, _ := ISO15765_4(29, 500000)
	require.False(t, c11.Equal(c29))
}

func TestISO15765InvalidCombo(t *testing.T) {
	_, err := ISO15765_4(12, 500000)
	require.Error(t, err)
	_, err = ISO15765_4(11, 100000)
	require.Error(t, err)
}
