package script

import "errors"

// Fatal error taxonomy (spec §7). All of these are terminal: the driver
// prints the error and exits with status 1. None are recovered from.
var (
	ErrNoMainFunction     = errors.New("no main function found")
	ErrUnreturnedFunction = errors.New("function did not end in RET or END")
	ErrUnknownInstruction = errors.New("unknown instruction")
	ErrUnknownLabel       = errors.New("unknown label")
	ErrUnknownFunction    = errors.New("unknown function")
	ErrDuplicateFileName  = errors.New("duplicate adapted file name")
	ErrIndexModeLinked    = errors.New("files linked together must start with .named")
	ErrExternalNotFound   = errors.New("external dependency not present")

	ErrVarOutOfRange   = errors.New("variable index out of range")
	ErrArgOutOfRange   = errors.New("argument index out of range")
	ErrJumpOutOfRange  = errors.New("jump address out of range")
	ErrEmptyArgStack   = errors.New("argument stack is empty")
	ErrNotAReference   = errors.New("slot does not hold a reference")
	ErrTypeMismatch    = errors.New("type mismatch")
	ErrDivideByZero    = errors.New("division by zero")
	ErrUnknownBuiltin  = errors.New("unknown built-in function")
	ErrEmptyBuiltin    = errors.New("built-in id 0 is not callable")
	ErrMalformedOperand = errors.New("malformed operand")
)
