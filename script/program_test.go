package script

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProgramBytesRoundTripWithAddrTable(t *testing.T) {
	p := &Program{
		Header: Header{EntryOffset: 0, AddrTableOffset: 0},
		Code:   []byte{0x01, 0x02, 0x03, 0x04},
		Addrs:  []uint32{10, 20, 30},
	}
	// AddrTableOffset points just past the header+code, matching how
	// Assemble lays the blob out.
	p.Header.AddrTableOffset = HeaderSize + uint32(len(p.Code))

	blob := p.Bytes()
	require.Len(t, blob, HeaderSize+len(p.Code)+4*len(p.Addrs))

	got, err := ParseProgram(blob)
	require.NoError(t, err)
	require.Equal(t, p.Header, got.Header)
	require.Equal(t, p.Code, got.Code)
	require.Equal(t, p.Addrs, got.Addrs)
}

func TestProgramBytesRoundTripWithoutAddrTable(t *testing.T) {
	p := &Program{
		Header: Header{EntryOffset: 4, AddrTableOffset: 0},
		Code:   []byte{0xAA, 0xBB},
	}

	blob := p.Bytes()
	got, err := ParseProgram(blob)
	require.NoError(t, err)
	require.Equal(t, p.Header, got.Header)
	require.Equal(t, p.Code, got.Code)
	require.Empty(t, got.Addrs)
}

func TestParseProgramRejectsShortBlob(t *testing.T) {
	_, err := ParseProgram([]byte{0x01, 0x02})
	require.ErrorIs(t, err, ErrMalformedOperand)
}

func TestParseProgramRejectsOutOfRangeAddrTableOffset(t *testing.T) {
	blob := make([]byte, HeaderSize)
	// AddrTableOffset far past the end of the blob.
	blob[4], blob[5], blob[6], blob[7] = 0xFF, 0xFF, 0x00, 0x00
	_, err := ParseProgram(blob)
	require.ErrorIs(t, err, ErrMalformedOperand)
}

func TestParseProgramRejectsPartialAddrTableWord(t *testing.T) {
	// header + one code byte + AddrTableOffset pointing at 2 trailing
	// bytes (not a whole number of u32 words).
	p := &Program{
		Header: Header{EntryOffset: 0, AddrTableOffset: HeaderSize + 1},
		Code:   []byte{0x00},
	}
	blob := p.Bytes()
	blob = append(blob, 0x01, 0x02)

	_, err := ParseProgram(blob)
	require.ErrorIs(t, err, ErrMalformedOperand)
}

func TestAssembleProducesRoundTrippableProgram(t *testing.T) {
	const source = `
.named
@main:
CPY $x 7
PUSH_RET $x
RET
`
	program, err := Assemble(source)
	require.NoError(t, err)

	blob := program.Bytes()
	reparsed, err := ParseProgram(blob)
	require.NoError(t, err)

	machine := NewMachine(reparsed, nil)
	code, err := machine.Run()
	require.NoError(t, err)
	require.Equal(t, 7, code)
}
