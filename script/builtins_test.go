package script

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuiltinNamesMatchIds(t *testing.T) {
	require.Equal(t, uint32(BuiltinGitAddAll), builtinNames["GIT_ADD_ALL"])
	require.Equal(t, uint32(BuiltinGitAdd), builtinNames["GIT_ADD"])
	require.Equal(t, uint32(BuiltinGitCommitDefault), builtinNames["GIT_COMMIT_DEFAULT"])
	require.Equal(t, uint32(BuiltinGitCommit), builtinNames["GIT_COMMIT"])
	require.Equal(t, uint32(BuiltinGitPushUpstream), builtinNames["GIT_PUSH_UPSTREAM"])
	require.Equal(t, uint32(BuiltinGitPush), builtinNames["GIT_PUSH"])
}

func TestCallBuiltinUnknownIDIsFatal(t *testing.T) {
	m := &Machine{}
	err := m.callBuiltin(999)
	require.ErrorIs(t, err, ErrUnknownBuiltin)
}

func TestCallBuiltinZeroIsFatal(t *testing.T) {
	m := &Machine{}
	err := m.callBuiltin(0)
	require.ErrorIs(t, err, ErrEmptyBuiltin)
}

func TestPopStringFormatsPoppedValue(t *testing.T) {
	m := &Machine{args: []Value{Int(42)}}
	s, err := m.popString()
	require.NoError(t, err)
	require.Equal(t, "42", s)
	require.Empty(t, m.args)
}

func TestPopStringOnEmptyStackIsFatal(t *testing.T) {
	m := &Machine{}
	_, err := m.popString()
	require.ErrorIs(t, err, ErrEmptyArgStack)
}

func TestAssembleCallsBuiltinByName(t *testing.T) {
	const source = `
.named
@main:
CALL @GIT_ADD_ALL
END
`
	program, err := Assemble(source)
	require.NoError(t, err)
	require.NotNil(t, program)
}
