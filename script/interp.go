package script

import (
	"fmt"
	"os"
	"runtime/debug"
)

// Machine holds all interpreter state (spec §4.1.1): a read cursor, the
// variable store, the call and argument stacks, the return register, the
// compare flag, and the address table used by computed jumps.
type Machine struct {
	code   []byte
	addrs  []uint32
	vars   []Value
	calls  []int
	args   []Value
	retReg Value
	cmp    Cmp
	cursor int

	progArgs []string
}

// NewMachine builds interpreter state from a parsed Program and the
// program's argument vector (the `%` operand tag indexes into progArgs).
func NewMachine(p *Program, progArgs []string) *Machine {
	return &Machine{
		// Entry, jump and call offsets are absolute blob offsets, so the
		// cursor indexes the header-prefixed code, not p.Code alone.
		code:     p.Bytes()[:HeaderSize+len(p.Code)],
		addrs:    p.Addrs,
		cursor:   int(p.Header.EntryOffset),
		progArgs: progArgs,
	}
}

// Run executes from the entry offset until END or an empty-call-stack RET
// (spec §4.1.2), returning the process exit code. The GC is disabled for
// the duration of the hot loop and restored afterward, mirroring the
// teacher's RunProgram (vm/run.go) — bytecode execution allocates no
// long-lived garbage worth collecting mid-run.
func (m *Machine) Run() (int, error) {
	prevPercent := debug.SetGCPercent(-1)
	defer debug.SetGCPercent(prevPercent)

	for {
		done, exitCode, err := m.step()
		if err != nil {
			return 1, err
		}
		if done {
			return exitCode, nil
		}
	}
}

// step executes exactly one instruction. It reports done=true when the
// program should stop (END, or RET with an empty call stack).
func (m *Machine) step() (done bool, exitCode int, err error) {
	op, err := m.fetchOpcode()
	if err != nil {
		return false, 0, err
	}

	switch op {
	case OpNOP:
		return false, 0, nil

	case OpEND:
		return true, m.exitCode(), nil

	case OpMOV:
		return false, 0, m.execMov()
	case OpCPY:
		return false, 0, m.execCpy()

	case OpJMP:
		return false, 0, m.execJmpUnconditional()
	case OpJZ, OpJNZ, OpJN, OpJNN:
		return false, 0, m.execJmpConditionalValue(op)
	case OpCMP:
		return false, 0, m.execCmp()
	case OpJE, OpJNE, OpJG, OpJGE, OpJL, OpJLE:
		return false, 0, m.execJmpFlag(op)

	case OpCALL:
		return false, 0, m.execCall()
	case OpRET:
		return m.execRet()

	case OpINC, OpDEC:
		return false, 0, m.execIncDec(op)
	case OpADD, OpSUB, OpMUL, OpDIV, OpMOD:
		return false, 0, m.execArith(op)

	case OpAND, OpOR, OpXOR:
		return false, 0, m.execBitwise(op)
	case OpNOT:
		return false, 0, m.execUnary(op)
	case OpNEG:
		return false, 0, m.execUnary(op)
	case OpSHL, OpSHR, OpSAR:
		return false, 0, m.execShift(op)

	case OpPUSH:
		return false, 0, m.execPush()
	case OpPOP:
		return false, 0, m.execPop()
	case OpPUSHRET:
		return false, 0, m.execPushRet()
	case OpPOPRET:
		return false, 0, m.execPopRet()

	case OpPRINT:
		return false, 0, m.execPrint()
	case OpSH:
		return false, 0, m.execSh()

	default:
		return false, 0, fmt.Errorf("%w: opcode %d at offset %d", ErrUnknownInstruction, op, m.cursor-1)
	}
}

func (m *Machine) exitCode() int {
	if m.retReg.Tag == TagInt {
		return int(m.retReg.I)
	}
	return 0
}

func (m *Machine) fetchOpcode() (Opcode, error) {
	if m.cursor < 0 || m.cursor >= len(m.code) {
		return 0, fmt.Errorf("%w: cursor %d out of range", ErrJumpOutOfRange, m.cursor)
	}
	op := Opcode(m.code[m.cursor])
	m.cursor++
	return op, nil
}

// ensureSlot grows the variable vector with Null as needed (spec §4.1.4:
// "All $/* destinations grow the variable vector with Null as needed").
func (m *Machine) ensureSlot(idx uint32) {
	for uint32(len(m.vars)) <= idx {
		m.vars = append(m.vars, Null)
	}
}

func (m *Machine) slot(idx uint32) (*Value, error) {
	if int(idx) < 0 {
		return nil, ErrVarOutOfRange
	}
	m.ensureSlot(idx)
	return &m.vars[idx], nil
}

// readOperand decodes one value operand starting at the cursor (spec
// §4.1.3). When take is true and the operand is a plain `$` variable, the
// source slot is replaced with Null (MOV's move semantics); CPY and every
// other read always clones.
func (m *Machine) readOperand(take bool) (Value, error) {
	if m.cursor >= len(m.code) {
		return Null, fmt.Errorf("%w: truncated operand", ErrMalformedOperand)
	}
	tag := OperandTag(m.code[m.cursor])
	m.cursor++

	switch tag {
	case TagLiteralString:
		s, next, err := getString(m.code, m.cursor)
		if err != nil {
			return Null, err
		}
		m.cursor = next
		return String(s), nil

	case TagVariable:
		idx, next, err := getUint32(m.code, m.cursor)
		if err != nil {
			return Null, err
		}
		m.cursor = next
		v, err := m.slot(idx)
		if err != nil {
			return Null, err
		}
		if take {
			out := *v
			*v = Null
			return out, nil
		}
		return *v, nil

	case TagReferenceOp:
		idx, next, err := getUint32(m.code, m.cursor)
		if err != nil {
			return Null, err
		}
		m.cursor = next
		m.ensureSlot(idx)
		return Reference(idx), nil

	case TagDeref:
		idx, next, err := getUint32(m.code, m.cursor)
		if err != nil {
			return Null, err
		}
		m.cursor = next
		slot, err := m.slot(idx)
		if err != nil {
			return Null, err
		}
		if slot.Tag != TagReference {
			return Null, fmt.Errorf("%w: slot %d", ErrNotAReference, idx)
		}
		target, err := m.slot(slot.Ref)
		if err != nil {
			return Null, err
		}
		return *target, nil

	case TagArgument:
		idx, err := m.readArgIndex()
		if err != nil {
			return Null, err
		}
		if idx < 0 || idx >= len(m.progArgs) {
			return Null, fmt.Errorf("%w: %d", ErrArgOutOfRange, idx)
		}
		return String(m.progArgs[idx]), nil

	case TagBuiltin:
		id, next, err := getUint32(m.code, m.cursor)
		if err != nil {
			return Null, err
		}
		m.cursor = next
		return Int(int64(id)), nil

	case TagIntLit:
		n, next, err := getInt64(m.code, m.cursor)
		if err != nil {
			return Null, err
		}
		m.cursor = next
		return Int(n), nil

	case TagFloatLit:
		f, next, err := getFloat64(m.code, m.cursor)
		if err != nil {
			return Null, err
		}
		m.cursor = next
		return Float(f), nil

	case TagCharLit:
		c, next, err := getUint32(m.code, m.cursor)
		if err != nil {
			return Null, err
		}
		m.cursor = next
		return Char(c), nil

	case TagBoolTrue:
		return Bool(true), nil
	case TagBoolFalse:
		return Bool(false), nil
	case TagNullLit:
		return Null, nil

	default:
		return Null, fmt.Errorf("%w: tag %q", ErrMalformedOperand, byte(tag))
	}
}

// readArgIndex decodes the nested tag inside a `%` operand (spec §4.1.3):
// either `$`+u32 (a variable holding the index) or a raw u16 literal.
func (m *Machine) readArgIndex() (int, error) {
	if m.cursor >= len(m.code) {
		return 0, fmt.Errorf("%w: truncated argument operand", ErrMalformedOperand)
	}
	if OperandTag(m.code[m.cursor]) == TagVariable {
		m.cursor++
		idx, next, err := getUint32(m.code, m.cursor)
		if err != nil {
			return 0, err
		}
		m.cursor = next
		v, err := m.slot(idx)
		if err != nil {
			return 0, err
		}
		if v.Tag != TagInt {
			return 0, fmt.Errorf("%w: argument index variable must be Int", ErrTypeMismatch)
		}
		return int(v.I), nil
	}
	n, next, err := getUint16(m.code, m.cursor)
	if err != nil {
		return 0, err
	}
	m.cursor = next
	return int(n), nil
}

// resolveRef follows a single Reference hop, per spec §3.1's "transparently
// follow a Reference to its target (one level at a time)".
func (m *Machine) resolveRef(v Value) (Value, error) {
	if v.Tag != TagReference {
		return v, nil
	}
	slot, err := m.slot(v.Ref)
	if err != nil {
		return Null, err
	}
	return *slot, nil
}

// destRef names a slot to be written without yet resolving a pointer into
// the variable vector. Decoding and resolving are kept separate so that an
// instruction can decode its destination, then decode further operands
// that might grow the variable vector (and reallocate its backing array),
// and only resolve a live *Value pointer once no more growth can happen.
type destRef struct {
	deref bool
	idx   uint32
}

func (m *Machine) decodeDest() (destRef, error) {
	if m.cursor >= len(m.code) {
		return destRef{}, fmt.Errorf("%w: truncated destination operand", ErrMalformedOperand)
	}
	tag := OperandTag(m.code[m.cursor])
	m.cursor++

	switch tag {
	case TagVariable, TagReferenceOp:
		idx, next, err := getUint32(m.code, m.cursor)
		if err != nil {
			return destRef{}, err
		}
		m.cursor = next
		return destRef{idx: idx}, nil

	case TagDeref:
		idx, next, err := getUint32(m.code, m.cursor)
		if err != nil {
			return destRef{}, err
		}
		m.cursor = next
		return destRef{deref: true, idx: idx}, nil

	default:
		return destRef{}, fmt.Errorf("%w: invalid destination tag %q", ErrMalformedOperand, byte(tag))
	}
}

func (m *Machine) resolveDest(d destRef) (*Value, error) {
	if !d.deref {
		return m.slot(d.idx)
	}
	slot, err := m.slot(d.idx)
	if err != nil {
		return nil, err
	}
	if slot.Tag != TagReference {
		return nil, fmt.Errorf("%w: slot %d", ErrNotAReference, d.idx)
	}
	return m.slot(slot.Ref)
}

// addressable decodes a destination operand (`$`, `&`, or `*`) and
// immediately resolves it to a pointer into the variable vector, growing
// the vector as needed (spec §4.1.4). Safe only when no further operand
// decoding follows in the same instruction (nothing left to reallocate
// the vector out from under the returned pointer).
func (m *Machine) addressable() (*Value, error) {
	d, err := m.decodeDest()
	if err != nil {
		return nil, err
	}
	return m.resolveDest(d)
}

// writeOperand decodes a destination operand and stores val into it.
func (m *Machine) writeOperand(val Value) error {
	slot, err := m.addressable()
	if err != nil {
		return err
	}
	*slot = val
	return nil
}

func (m *Machine) execMov() error {
	d, err := m.decodeDest()
	if err != nil {
		return err
	}
	src, err := m.readOperand(true)
	if err != nil {
		return err
	}
	slot, err := m.resolveDest(d)
	if err != nil {
		return err
	}
	*slot = src
	return nil
}

func (m *Machine) execCpy() error {
	d, err := m.decodeDest()
	if err != nil {
		return err
	}
	src, err := m.readOperand(false)
	if err != nil {
		return err
	}
	slot, err := m.resolveDest(d)
	if err != nil {
		return err
	}
	*slot = src
	return nil
}

// jumpTarget decodes a jump destination: either a literal u32 absolute
// offset, or `$`+var index that indexes into the address table (spec
// §4.2.4, computed jumps).
func (m *Machine) jumpTarget() (int, error) {
	if m.cursor >= len(m.code) {
		return 0, fmt.Errorf("%w: truncated jump target", ErrMalformedOperand)
	}
	if OperandTag(m.code[m.cursor]) == TagVariable {
		m.cursor++
		idx, next, err := getUint32(m.code, m.cursor)
		if err != nil {
			return 0, err
		}
		m.cursor = next
		v, err := m.slot(idx)
		if err != nil {
			return 0, err
		}
		if v.Tag != TagInt {
			return 0, fmt.Errorf("%w: computed jump index must be Int", ErrTypeMismatch)
		}
		if v.I < 0 || int(v.I) >= len(m.addrs) {
			return 0, fmt.Errorf("%w: address table index %d", ErrJumpOutOfRange, v.I)
		}
		return int(m.addrs[v.I]), nil
	}
	off, next, err := getUint32(m.code, m.cursor)
	if err != nil {
		return 0, err
	}
	m.cursor = next
	return int(off), nil
}

func (m *Machine) jumpTo(offset int) error {
	if offset < 0 || offset > len(m.code) {
		return fmt.Errorf("%w: offset %d", ErrJumpOutOfRange, offset)
	}
	m.cursor = offset
	return nil
}

func (m *Machine) execJmpUnconditional() error {
	dst, err := m.jumpTarget()
	if err != nil {
		return err
	}
	return m.jumpTo(dst)
}

// execJmpConditionalValue implements JZ/JNZ/JN/JNN: a value operand then a
// jump target.
func (m *Machine) execJmpConditionalValue(op Opcode) error {
	v, err := m.readOperand(false)
	if err != nil {
		return err
	}
	v, err = m.resolveRef(v)
	if err != nil {
		return err
	}
	dst, err := m.jumpTarget()
	if err != nil {
		return err
	}

	var take bool
	switch op {
	case OpJZ:
		take = v.IsZero()
	case OpJNZ:
		take = !v.IsZero()
	case OpJN:
		take = v.IsNull()
	case OpJNN:
		take = !v.IsNull()
	}
	if take {
		return m.jumpTo(dst)
	}
	return nil
}

func (m *Machine) execCmp() error {
	a, err := m.readOperand(false)
	if err != nil {
		return err
	}
	b, err := m.readOperand(false)
	if err != nil {
		return err
	}
	a, err = m.resolveRef(a)
	if err != nil {
		return err
	}
	b, err = m.resolveRef(b)
	if err != nil {
		return err
	}
	cmp, err := Compare(a, b)
	if err != nil {
		return err
	}
	m.cmp = cmp
	return nil
}

func (m *Machine) execJmpFlag(op Opcode) error {
	dst, err := m.jumpTarget()
	if err != nil {
		return err
	}
	var take bool
	switch op {
	case OpJE:
		take = m.cmp == CmpEqual
	case OpJNE:
		take = m.cmp == CmpNotEqual
	case OpJG:
		take = m.cmp == CmpGreater
	case OpJGE:
		take = m.cmp == CmpGreater || m.cmp == CmpEqual
	case OpJL:
		take = m.cmp == CmpLess
	case OpJLE:
		take = m.cmp == CmpLess || m.cmp == CmpEqual
	}
	if take {
		return m.jumpTo(dst)
	}
	return nil
}

func (m *Machine) execCall() error {
	if m.cursor >= len(m.code) {
		return fmt.Errorf("%w: truncated call target", ErrMalformedOperand)
	}
	if OperandTag(m.code[m.cursor]) == TagBuiltin {
		m.cursor++
		id, next, err := getUint32(m.code, m.cursor)
		if err != nil {
			return err
		}
		m.cursor = next
		return m.callBuiltin(id)
	}
	target, next, err := getUint32(m.code, m.cursor)
	if err != nil {
		return err
	}
	m.cursor = next
	m.calls = append(m.calls, m.cursor)
	return m.jumpTo(int(target))
}

func (m *Machine) execRet() (done bool, exitCode int, err error) {
	if len(m.calls) == 0 {
		return true, m.exitCode(), nil
	}
	ret := m.calls[len(m.calls)-1]
	m.calls = m.calls[:len(m.calls)-1]
	if err := m.jumpTo(ret); err != nil {
		return false, 0, err
	}
	return false, 0, nil
}

func (m *Machine) execIncDec(op Opcode) error {
	slot, err := m.addressable()
	if err != nil {
		return err
	}
	var v Value
	if op == OpINC {
		v, err = slot.Inc()
	} else {
		v, err = slot.Dec()
	}
	if err != nil {
		return err
	}
	*slot = v
	return nil
}

func (m *Machine) arithOpFor(op Opcode) arithOp {
	switch op {
	case OpADD:
		return opAdd
	case OpSUB:
		return opSub
	case OpMUL:
		return opMul
	case OpDIV:
		return opDiv
	default:
		return opMod
	}
}

func (m *Machine) execArith(op Opcode) error {
	d, err := m.decodeDest()
	if err != nil {
		return err
	}
	src, err := m.readOperand(false)
	if err != nil {
		return err
	}
	src, err = m.resolveRef(src)
	if err != nil {
		return err
	}

	slot, err := m.resolveDest(d)
	if err != nil {
		return err
	}
	result, err := Arith(m.arithOpFor(op), *slot, src)
	if err != nil {
		return err
	}
	*slot = result
	return nil
}

func (m *Machine) bitOpFor(op Opcode) bitOp {
	switch op {
	case OpAND:
		return opAnd
	case OpOR:
		return opOr
	default:
		return opXor
	}
}

func (m *Machine) execBitwise(op Opcode) error {
	d, err := m.decodeDest()
	if err != nil {
		return err
	}
	src, err := m.readOperand(false)
	if err != nil {
		return err
	}
	src, err = m.resolveRef(src)
	if err != nil {
		return err
	}

	slot, err := m.resolveDest(d)
	if err != nil {
		return err
	}
	result, err := Bitwise(m.bitOpFor(op), *slot, src)
	if err != nil {
		return err
	}
	*slot = result
	return nil
}

func (m *Machine) execUnary(op Opcode) error {
	slot, err := m.addressable()
	if err != nil {
		return err
	}
	var v Value
	if op == OpNOT {
		v, err = slot.Not()
	} else {
		v, err = slot.Neg()
	}
	if err != nil {
		return err
	}
	*slot = v
	return nil
}

func (m *Machine) shiftOpFor(op Opcode) shiftOp {
	switch op {
	case OpSHL:
		return shiftLeft
	case OpSHR:
		return shiftRightLogical
	default:
		return shiftRightArith
	}
}

func (m *Machine) execShift(op Opcode) error {
	d, err := m.decodeDest()
	if err != nil {
		return err
	}
	src, err := m.readOperand(false)
	if err != nil {
		return err
	}
	src, err = m.resolveRef(src)
	if err != nil {
		return err
	}

	slot, err := m.resolveDest(d)
	if err != nil {
		return err
	}
	result, err := Shift(m.shiftOpFor(op), *slot, src)
	if err != nil {
		return err
	}
	*slot = result
	return nil
}

func (m *Machine) execPush() error {
	v, err := m.readOperand(false)
	if err != nil {
		return err
	}
	m.args = append(m.args, v)
	return nil
}

func (m *Machine) popArg() (Value, error) {
	if len(m.args) == 0 {
		return Null, ErrEmptyArgStack
	}
	v := m.args[len(m.args)-1]
	m.args = m.args[:len(m.args)-1]
	return v, nil
}

func (m *Machine) execPop() error {
	v, err := m.popArg()
	if err != nil {
		return err
	}
	return m.writeOperand(v)
}

func (m *Machine) execPushRet() error {
	v, err := m.readOperand(false)
	if err != nil {
		return err
	}
	m.retReg = v
	return nil
}

func (m *Machine) execPopRet() error {
	v := m.retReg
	m.retReg = Null
	return m.writeOperand(v)
}

func (m *Machine) execPrint() error {
	v, err := m.readOperand(false)
	if err != nil {
		return err
	}
	v, err = m.resolveRef(v)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, v.Format())
	return nil
}

func (m *Machine) execSh() error {
	v, err := m.readOperand(false)
	if err != nil {
		return err
	}
	v, err = m.resolveRef(v)
	if err != nil {
		return err
	}
	runShell(v.Format())
	return nil
}
