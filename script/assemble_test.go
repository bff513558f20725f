package script

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func assembleAndRun(t *testing.T, source string, progArgs []string) int {
	t.Helper()
	program, err := Assemble(source)
	require.NoError(t, err)

	machine := NewMachine(program, progArgs)
	code, err := machine.Run()
	require.NoError(t, err)
	return code
}

func TestAssembleRunArithmeticAndReturn(t *testing.T) {
	const source = `
.named
@main:
CPY $x 5
ADD $x 3
PUSH_RET $x
RET
`
	require.Equal(t, 8, assembleAndRun(t, source, nil))
}

func TestAssembleRunConditionalJump(t *testing.T) {
	const source = `
.named
@main:
CPY $x 0
CPY $i 0
.loop:
CMP $i 5
JGE done
ADD $x $i
INC $i
JMP loop
.done:
PUSH_RET $x
RET
`
	// sum of 0..4 == 10
	require.Equal(t, 10, assembleAndRun(t, source, nil))
}

func TestAssembleRunCallAndArguments(t *testing.T) {
	const source = `
.named
@main:
CPY $x 10
PUSH $x
CALL double
POP_RET $result
PUSH_RET $result
RET
@double:
POP $n
CPY $n2 $n
ADD $n2 $n2
PUSH_RET $n2
RET
`
	require.Equal(t, 20, assembleAndRun(t, source, nil))
}

func TestAssembleUnresolvedMainFails(t *testing.T) {
	const source = `
.named
@helper:
RET
`
	_, err := Assemble(source)
	require.ErrorIs(t, err, ErrNoMainFunction)
}

func TestAssembleUnreturnedFunctionFails(t *testing.T) {
	const source = `
.named
@main:
CPY $x 1
@other:
RET
`
	_, err := Assemble(source)
	require.ErrorIs(t, err, ErrUnreturnedFunction)
}

func TestAssembleProgramArguments(t *testing.T) {
	const source = `
.named
@main:
CPY $a %0
PRINT $a
END
`
	program, err := Assemble(source)
	require.NoError(t, err)

	machine := NewMachine(program, []string{"hello"})
	code, err := machine.Run()
	require.NoError(t, err)
	require.Equal(t, 0, code)
}
