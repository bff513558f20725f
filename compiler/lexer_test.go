package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func lexAll(t *testing.T, src string) []Token {
	t.Helper()
	l := NewLexer(src)
	var toks []Token
	for {
		tok, err := l.NextToken()
		require.NoError(t, err)
		if tok.Kind == TokEOF {
			return toks
		}
		toks = append(toks, tok)
	}
}

func TestLexerKeywordsAndIdentifiers(t *testing.T) {
	toks := lexAll(t, "let x = 5;")
	require.Len(t, toks, 5)
	require.Equal(t, Token{Kind: TokKeyword, Keyword: KwLet}, toks[0])
	require.Equal(t, Token{Kind: TokIdentifier, Ident: "x"}, toks[1])
	require.Equal(t, Token{Kind: TokOperator, Operator: OpAssign}, toks[2])
	require.Equal(t, Token{Kind: TokLiteral, Literal: Literal{Kind: LitInteger, Int: 5}}, toks[3])
	require.Equal(t, Token{Kind: TokSemicolon}, toks[4])
}

func TestLexerFloatLiteral(t *testing.T) {
	toks := lexAll(t, "3.5")
	require.Len(t, toks, 1)
	require.Equal(t, LitFloat, toks[0].Literal.Kind)
	require.InDelta(t, 3.5, toks[0].Literal.Flt, 1e-9)
}

func TestLexerStringAndCharLiterals(t *testing.T) {
	toks := lexAll(t, `"hi" 'a' '\n'`)
	require.Len(t, toks, 3)
	require.Equal(t, "hi", toks[0].Literal.Str)
	require.Equal(t, rune('a'), toks[1].Literal.Chr)
	require.Equal(t, rune('\n'), toks[2].Literal.Chr)
}

func TestLexerMultiCharOperators(t *testing.T) {
	toks := lexAll(t, "== != <= >= && || << >> >>> ..")
	want := []Operator{
		OpEqual, OpNotEqual, OpLessOrEqual, OpGreaterOrEqual,
		OpAnd, OpOr, OpLeftShift, OpLogicalRightShift,
		OpArithmeticRightShift, OpRange,
	}
	require.Len(t, toks, len(want))
	for i, op := range want {
		require.Equal(t, TokOperator, toks[i].Kind, "token %d", i)
		require.Equal(t, op, toks[i].Operator, "token %d", i)
	}
}

func TestLexerCommentsAreSkipped(t *testing.T) {
	toks := lexAll(t, "1 // comment\n2 /* block */ 3")
	require.Len(t, toks, 3)
	require.Equal(t, int64(1), toks[0].Literal.Int)
	require.Equal(t, int64(2), toks[1].Literal.Int)
	require.Equal(t, int64(3), toks[2].Literal.Int)
}

func TestLexerRevertPushesTokenBack(t *testing.T) {
	l := NewLexer("a b")
	first, err := l.NextToken()
	require.NoError(t, err)
	l.Revert(first)

	replayed, err := l.NextToken()
	require.NoError(t, err)
	require.Equal(t, first, replayed)

	second, err := l.NextToken()
	require.NoError(t, err)
	require.Equal(t, "b", second.Ident)
}

func TestLexerIllegalCharacter(t *testing.T) {
	l := NewLexer("@")
	_, err := l.NextToken()
	require.Error(t, err)
}
