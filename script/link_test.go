package script

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLinkSingleFileRoundTrips(t *testing.T) {
	files := []AssemblyFile{
		{Name: "alpha", Code: `
.named
@main:
CPY $x 2
ADD $x 2
PUSH_RET $x
RET
`},
	}

	linked, err := Link(files, nil)
	require.NoError(t, err)
	require.Equal(t, 4, assembleAndRun(t, linked, nil))
}

func TestLinkRenamesLocalLabelsPerFile(t *testing.T) {
	files := []AssemblyFile{
		{Name: "alpha", Code: `
.named
@main:
JMP skip
PUSH_RET 999
.skip:
PUSH_RET 7
RET
`},
	}

	linked, err := Link(files, nil)
	require.NoError(t, err)
	require.Contains(t, linked, "alpha_skip")
	require.Equal(t, 7, assembleAndRun(t, linked, nil))
}

func TestLinkDuplicateFileNamesRejected(t *testing.T) {
	files := []AssemblyFile{
		{Name: "util.x", Code: ".named\n@main:\nRET\n"},
		{Name: "util_x", Code: ".named\n@helper:\nRET\n"},
	}

	_, err := Link(files, nil)
	require.ErrorIs(t, err, ErrDuplicateFileName)
}

func TestLinkRejectsIndexModeSource(t *testing.T) {
	files := []AssemblyFile{
		{Name: "idx", Code: "@main:\nRET\n"},
	}

	_, err := Link(files, nil)
	require.ErrorIs(t, err, ErrIndexModeLinked)
}

func TestAdaptName(t *testing.T) {
	require.Equal(t, "a", adaptName(""))
	require.Equal(t, "foo_bar", adaptName("foo.bar"))
	require.Equal(t, "a1util", adaptName("1util"))
}
