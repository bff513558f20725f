package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FactoryIsland/mvs/compiler"
	"github.com/FactoryIsland/mvs/script"
)

func compileAssembleRun(t *testing.T, source string, progArgs []string) int {
	t.Helper()
	asm, err := compiler.Compile(source)
	require.NoError(t, err)

	program, err := script.Assemble(asm)
	require.NoError(t, err)

	machine := script.NewMachine(program, progArgs)
	code, err := machine.Run()
	require.NoError(t, err)
	return code
}

func TestCompileForLoopSum(t *testing.T) {
	const source = `
fn main() -> int {
	let x: int = 0;
	for i in 0..5 {
		x += i;
	}
	return x;
}
`
	require.Equal(t, 10, compileAssembleRun(t, source, nil))
}

func TestCompileWhileLoopAndIf(t *testing.T) {
	const source = `
fn main() -> int {
	let x: int = 0;
	let i: int = 0;
	while i < 5 {
		if i == 2 {
			x = x + 10;
		} else {
			x = x + 1;
		}
		i = i + 1;
	}
	return x;
}
`
	// four iterations add 1 (i=0,1,3,4), one iteration (i=2) adds 10
	require.Equal(t, 14, compileAssembleRun(t, source, nil))
}

func TestCompileFunctionCall(t *testing.T) {
	const source = `
fn double(n: int) -> int {
	return n * 2;
}

fn main() -> int {
	let result: int = double(21);
	return result;
}
`
	require.Equal(t, 42, compileAssembleRun(t, source, nil))
}

func TestCompileBreakAndContinue(t *testing.T) {
	const source = `
fn main() -> int {
	let x: int = 0;
	let i: int = 0;
	while i < 10 {
		i = i + 1;
		if i == 5 {
			break;
		}
		if i == 2 {
			continue;
		}
		x = x + 1;
	}
	return x;
}
`
	// i runs 1,2,3,4,5: skip (continue) at i==2, stop (break) at i==5.
	// x increments for i==1,3,4 -> 3.
	require.Equal(t, 3, compileAssembleRun(t, source, nil))
}

func TestCompileGlobalDeclaration(t *testing.T) {
	const source = `
let base: int = 100;

fn main() -> int {
	return base + 1;
}
`
	require.Equal(t, 101, compileAssembleRun(t, source, nil))
}

func TestCompileUnresolvedIdentifierFails(t *testing.T) {
	const source = `
fn main() -> int {
	return unknown_fn();
}
`
	asm, err := compiler.Compile(source)
	require.NoError(t, err)
	_, err = script.Assemble(asm)
	require.Error(t, err)
}
