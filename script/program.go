package script

import (
	"encoding/binary"
	"fmt"
	"math"
)

// HeaderSize is the fixed 8-byte header every bytecode blob starts with
// (spec §3.3, §6.5).
const HeaderSize = 8

// Header is the blob's two leading u32 fields.
type Header struct {
	EntryOffset     uint32
	AddrTableOffset uint32
}

// Program is a fully assembled bytecode blob split into its addressable
// pieces: the header, the instruction bytes (Code[0] sits at blob offset
// HeaderSize; the offsets instructions encode are absolute blob offsets,
// header included), and the optional address table used by computed
// jumps (§4.2.4).
type Program struct {
	Header Header
	Code   []byte
	Addrs  []uint32
}

// Bytes serializes the program back into the flat blob layout of §6.5.
func (p *Program) Bytes() []byte {
	out := make([]byte, HeaderSize, HeaderSize+len(p.Code)+4*len(p.Addrs))
	binary.LittleEndian.PutUint32(out[0:4], p.Header.EntryOffset)
	binary.LittleEndian.PutUint32(out[4:8], p.Header.AddrTableOffset)
	out = append(out, p.Code...)
	for _, a := range p.Addrs {
		var word [4]byte
		binary.LittleEndian.PutUint32(word[:], a)
		out = append(out, word[:]...)
	}
	return out
}

// ParseProgram reads the header and splits the rest of the blob into code
// and (if present) the address table, per §3.3/§6.5.
func ParseProgram(blob []byte) (*Program, error) {
	if len(blob) < HeaderSize {
		return nil, fmt.Errorf("%w: blob shorter than header", ErrMalformedOperand)
	}
	h := Header{
		EntryOffset:     binary.LittleEndian.Uint32(blob[0:4]),
		AddrTableOffset: binary.LittleEndian.Uint32(blob[4:8]),
	}

	p := &Program{Header: h}
	if h.AddrTableOffset == 0 {
		p.Code = blob[HeaderSize:]
		return p, nil
	}

	if int(h.AddrTableOffset) < HeaderSize || int(h.AddrTableOffset) > len(blob) {
		return nil, fmt.Errorf("%w: address table offset out of range", ErrMalformedOperand)
	}
	p.Code = blob[HeaderSize:h.AddrTableOffset]
	table := blob[h.AddrTableOffset:]
	if len(table)%4 != 0 {
		return nil, fmt.Errorf("%w: address table is not a whole number of u32 words", ErrMalformedOperand)
	}
	p.Addrs = make([]uint32, len(table)/4)
	for i := range p.Addrs {
		p.Addrs[i] = binary.LittleEndian.Uint32(table[i*4 : i*4+4])
	}
	return p, nil
}

// putUint32 / putString append little-endian integers and length-prefixed
// UTF-8 strings, matching the wire format used throughout §4.1.3 and
// §4.2.3. These mirror the teacher's uint32ToBytes helper, generalized to
// also carry the string encoding the value model needs.
func putUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func putUint16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

func putInt64(buf []byte, v int64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(v))
	return append(buf, tmp[:]...)
}

func putFloat64(buf []byte, v float64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v))
	return append(buf, tmp[:]...)
}

func putString(buf []byte, s string) []byte {
	buf = putUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// getUint32 / getString mirror the encoders above for the interpreter's
// decode side; all take a cursor index and return the advanced cursor.
func getUint32(code []byte, at int) (uint32, int, error) {
	if at < 0 || at+4 > len(code) {
		return 0, at, fmt.Errorf("%w: truncated u32 operand", ErrMalformedOperand)
	}
	return binary.LittleEndian.Uint32(code[at : at+4]), at + 4, nil
}

func getUint16(code []byte, at int) (uint16, int, error) {
	if at < 0 || at+2 > len(code) {
		return 0, at, fmt.Errorf("%w: truncated u16 operand", ErrMalformedOperand)
	}
	return binary.LittleEndian.Uint16(code[at : at+2]), at + 2, nil
}

func getInt64(code []byte, at int) (int64, int, error) {
	if at < 0 || at+8 > len(code) {
		return 0, at, fmt.Errorf("%w: truncated i64 operand", ErrMalformedOperand)
	}
	return int64(binary.LittleEndian.Uint64(code[at : at+8])), at + 8, nil
}

func getFloat64(code []byte, at int) (float64, int, error) {
	if at < 0 || at+8 > len(code) {
		return 0, at, fmt.Errorf("%w: truncated f64 operand", ErrMalformedOperand)
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(code[at : at+8])), at + 8, nil
}

func getString(code []byte, at int) (string, int, error) {
	n, at, err := getUint32(code, at)
	if err != nil {
		return "", at, err
	}
	end := at + int(n)
	if end < at || end > len(code) {
		return "", at, fmt.Errorf("%w: truncated string operand", ErrMalformedOperand)
	}
	return string(code[at:end]), end, nil
}
