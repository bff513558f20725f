package script

import (
	"fmt"
	"math"
)

// Tag identifies which variant of the Value union is active (spec §3.1).
type Tag byte

const (
	TagNull Tag = iota
	TagString
	TagChar
	TagInt
	TagFloat
	TagBool
	TagReference
)

func (t Tag) String() string {
	switch t {
	case TagNull:
		return "null"
	case TagString:
		return "string"
	case TagChar:
		return "char"
	case TagInt:
		return "int"
	case TagFloat:
		return "float"
	case TagBool:
		return "bool"
	case TagReference:
		return "reference"
	default:
		return "?unknown?"
	}
}

// Value is a tagged union over the runtime value domain (spec §3.1).
// It is passed and stored by copy; the only field that can alias
// interpreter state is Ref, which names a slot index rather than holding
// a pointer (spec §9's portability guidance for Reference).
type Value struct {
	Tag Tag

	Str string  // TagString
	Chr uint32  // TagChar
	I   int64   // TagInt
	F   float64 // TagFloat
	B   bool    // TagBool
	Ref uint32  // TagReference: index into the variable store
}

var Null = Value{Tag: TagNull}

func String(s string) Value   { return Value{Tag: TagString, Str: s} }
func Char(c uint32) Value     { return Value{Tag: TagChar, Chr: c} }
func Int(i int64) Value       { return Value{Tag: TagInt, I: i} }
func Float(f float64) Value   { return Value{Tag: TagFloat, F: f} }
func Bool(b bool) Value       { return Value{Tag: TagBool, B: b} }
func Reference(slot uint32) Value { return Value{Tag: TagReference, Ref: slot} }

func (v Value) IsNull() bool { return v.Tag == TagNull }

func (v Value) IsNumeric() bool {
	return v.Tag == TagInt || v.Tag == TagFloat || v.Tag == TagChar
}

// IsZero implements the "zero" predicate used by JZ/JNZ. Strings are zero
// when empty, numerics when their value is 0, Null is always zero.
func (v Value) IsZero() bool {
	switch v.Tag {
	case TagString:
		return v.Str == ""
	case TagInt:
		return v.I == 0
	case TagFloat:
		return v.F == 0
	case TagChar:
		return v.Chr == 0
	case TagBool:
		return !v.B
	case TagNull:
		return true
	default:
		return false
	}
}

// Format renders a Value the way PRINT does: every tag has a textual
// representation, including Null ("null").
func (v Value) Format() string {
	switch v.Tag {
	case TagString:
		return v.Str
	case TagChar:
		return string(rune(v.Chr))
	case TagInt:
		return fmt.Sprintf("%d", v.I)
	case TagFloat:
		return fmt.Sprintf("%g", v.F)
	case TagBool:
		return fmt.Sprintf("%t", v.B)
	case TagReference:
		return fmt.Sprintf("&%d", v.Ref)
	default:
		return "null"
	}
}

// asInt64 widens a numeric Value to the signed 64-bit domain, per the
// Char -> u32 -> i64 -> f64 coercion ladder in spec §3.1.
func (v Value) asInt64() (int64, bool) {
	switch v.Tag {
	case TagInt:
		return v.I, true
	case TagChar:
		return int64(v.Chr), true
	case TagFloat:
		return int64(v.F), true
	default:
		return 0, false
	}
}

func (v Value) asFloat64() (float64, bool) {
	switch v.Tag {
	case TagFloat:
		return v.F, true
	case TagInt:
		return float64(v.I), true
	case TagChar:
		return float64(v.Chr), true
	default:
		return 0, false
	}
}

// Cmp is the compare flag the interpreter keeps as part of its state
// (spec §4.1.1).
type Cmp int

const (
	CmpEmpty Cmp = iota
	CmpEqual
	CmpNotEqual
	CmpLess
	CmpGreater
)

// Compare implements CMP's semantics (spec §4.1.5). Both operands are
// assumed to already have any Reference followed (one level, spec §3.1).
func Compare(a, b Value) (Cmp, error) {
	if a.Tag == TagNull || b.Tag == TagNull {
		if a.Tag == TagNull && b.Tag == TagNull {
			return CmpEqual, nil
		}
		return CmpNotEqual, nil
	}

	if a.Tag == TagString && b.Tag == TagString {
		if a.Str == b.Str {
			return CmpEqual, nil
		}
		return CmpNotEqual, nil
	}

	if a.Tag == TagBool && b.Tag == TagBool {
		if a.B == b.B {
			return CmpEqual, nil
		}
		return CmpNotEqual, nil
	}

	if a.IsNumeric() && b.IsNumeric() {
		// Float is the widest domain in play; only promote to it when
		// either side actually is one (spec: "coerce the narrower
		// operand to the wider numeric domain").
		if a.Tag == TagFloat || b.Tag == TagFloat {
			af, _ := a.asFloat64()
			bf, _ := b.asFloat64()
			if math.IsNaN(af) || math.IsNaN(bf) {
				return CmpNotEqual, nil
			}
			switch {
			case af < bf:
				return CmpLess, nil
			case af > bf:
				return CmpGreater, nil
			default:
				return CmpEqual, nil
			}
		}

		ai, _ := a.asInt64()
		bi, _ := b.asInt64()
		switch {
		case ai < bi:
			return CmpLess, nil
		case ai > bi:
			return CmpGreater, nil
		default:
			return CmpEqual, nil
		}
	}

	return CmpEmpty, fmt.Errorf("%w: cannot compare %s with %s", ErrTypeMismatch, a.Tag, b.Tag)
}

// Inc/Dec implement INC/DEC (spec §4.1.4): defined only on numeric
// variants, destination tag is preserved.
func (v Value) Inc() (Value, error) {
	switch v.Tag {
	case TagInt:
		v.I++
	case TagFloat:
		v.F++
	case TagChar:
		v.Chr++
	default:
		return v, fmt.Errorf("%w: cannot increment %s", ErrTypeMismatch, v.Tag)
	}
	return v, nil
}

func (v Value) Dec() (Value, error) {
	switch v.Tag {
	case TagInt:
		v.I--
	case TagFloat:
		v.F--
	case TagChar:
		v.Chr--
	default:
		return v, fmt.Errorf("%w: cannot decrement %s", ErrTypeMismatch, v.Tag)
	}
	return v, nil
}

type arithOp int

const (
	opAdd arithOp = iota
	opSub
	opMul
	opDiv
	opMod
)

// Arith implements ADD/SUB/MUL/DIV/MOD (spec §4.1.4): "the destination's
// current type" is preserved, the other operand is coerced into it.
func Arith(op arithOp, dst, src Value) (Value, error) {
	switch dst.Tag {
	case TagInt:
		n, ok := src.asInt64()
		if !ok {
			return dst, fmt.Errorf("%w: cannot apply arithmetic between int and %s", ErrTypeMismatch, src.Tag)
		}
		var err error
		dst.I, err = intArith(op, dst.I, n)
		return dst, err
	case TagFloat:
		n, ok := src.asFloat64()
		if !ok {
			return dst, fmt.Errorf("%w: cannot apply arithmetic between float and %s", ErrTypeMismatch, src.Tag)
		}
		var err error
		dst.F, err = floatArith(op, dst.F, n)
		return dst, err
	case TagChar:
		n, ok := src.asInt64()
		if !ok {
			return dst, fmt.Errorf("%w: cannot apply arithmetic between char and %s", ErrTypeMismatch, src.Tag)
		}
		r, err := intArith(op, int64(dst.Chr), n)
		dst.Chr = uint32(r)
		return dst, err
	default:
		return dst, fmt.Errorf("%w: cannot apply arithmetic to %s", ErrTypeMismatch, dst.Tag)
	}
}

func intArith(op arithOp, a, b int64) (int64, error) {
	switch op {
	case opAdd:
		return a + b, nil
	case opSub:
		return a - b, nil
	case opMul:
		return a * b, nil
	case opDiv:
		if b == 0 {
			return 0, ErrDivideByZero
		}
		return a / b, nil
	case opMod:
		if b == 0 {
			return 0, ErrDivideByZero
		}
		return a % b, nil
	default:
		panic("unreachable arith op")
	}
}

func floatArith(op arithOp, a, b float64) (float64, error) {
	switch op {
	case opAdd:
		return a + b, nil
	case opSub:
		return a - b, nil
	case opMul:
		return a * b, nil
	case opDiv:
		return a / b, nil
	case opMod:
		return math.Mod(a, b), nil
	default:
		panic("unreachable arith op")
	}
}

type bitOp int

const (
	opAnd bitOp = iota
	opOr
	opXor
)

// Bitwise implements AND/OR/XOR (spec §4.1.4): integer-domain values or
// both-Bool, destination tag preserved.
func Bitwise(op bitOp, dst, src Value) (Value, error) {
	if dst.Tag == TagBool && src.Tag == TagBool {
		var r bool
		switch op {
		case opAnd:
			r = dst.B && src.B
		case opOr:
			r = dst.B || src.B
		case opXor:
			r = dst.B != src.B
		}
		dst.B = r
		return dst, nil
	}

	switch dst.Tag {
	case TagInt:
		n, ok := src.asInt64()
		if !ok {
			return dst, fmt.Errorf("%w: cannot apply bitwise op between int and %s", ErrTypeMismatch, src.Tag)
		}
		dst.I = bitwiseInt(op, dst.I, n)
		return dst, nil
	case TagChar:
		n, ok := src.asInt64()
		if !ok {
			return dst, fmt.Errorf("%w: cannot apply bitwise op between char and %s", ErrTypeMismatch, src.Tag)
		}
		dst.Chr = uint32(bitwiseInt(op, int64(dst.Chr), n))
		return dst, nil
	default:
		return dst, fmt.Errorf("%w: cannot apply bitwise op to %s", ErrTypeMismatch, dst.Tag)
	}
}

func bitwiseInt(op bitOp, a, b int64) int64 {
	switch op {
	case opAnd:
		return a & b
	case opOr:
		return a | b
	case opXor:
		return a ^ b
	default:
		panic("unreachable bitwise op")
	}
}

// Not implements NOT: bitwise complement on integer-domain values,
// logical negation on Bool.
func (v Value) Not() (Value, error) {
	switch v.Tag {
	case TagBool:
		v.B = !v.B
	case TagInt:
		v.I = ^v.I
	case TagChar:
		v.Chr = ^v.Chr
	default:
		return v, fmt.Errorf("%w: cannot apply NOT to %s", ErrTypeMismatch, v.Tag)
	}
	return v, nil
}

// Neg implements NEG: arithmetic negation on numeric values.
func (v Value) Neg() (Value, error) {
	switch v.Tag {
	case TagInt:
		v.I = -v.I
	case TagFloat:
		v.F = -v.F
	case TagChar:
		v.Chr = uint32(-int64(v.Chr))
	default:
		return v, fmt.Errorf("%w: cannot apply NEG to %s", ErrTypeMismatch, v.Tag)
	}
	return v, nil
}

type shiftOp int

const (
	shiftLeft shiftOp = iota
	shiftRightLogical
	shiftRightArith
)

// Shift implements SHL/SHR/SAR (spec §4.1.4). SHR is unsigned (logical),
// SAR is signed (arithmetic), matching the documented semantics for Int;
// Char shares the same rule (see SPEC_FULL.md §6 on the SHR Open
// Question: one instruction, one consistent semantics).
func Shift(op shiftOp, dst, src Value) (Value, error) {
	count, ok := src.asInt64()
	if !ok {
		return dst, fmt.Errorf("%w: shift count must be numeric, got %s", ErrTypeMismatch, src.Tag)
	}

	switch dst.Tag {
	case TagInt:
		dst.I = shiftInt(op, dst.I, count)
		return dst, nil
	case TagChar:
		dst.Chr = uint32(shiftInt(op, int64(dst.Chr), count))
		return dst, nil
	default:
		return dst, fmt.Errorf("%w: cannot shift %s", ErrTypeMismatch, dst.Tag)
	}
}

func shiftInt(op shiftOp, a, count int64) int64 {
	n := uint(count)
	switch op {
	case shiftLeft:
		return a << n
	case shiftRightLogical:
		return int64(uint64(a) >> n)
	case shiftRightArith:
		return a >> n
	default:
		panic("unreachable shift op")
	}
}
