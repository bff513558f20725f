package script

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompareAcrossDomains(t *testing.T) {
	cases := []struct {
		name string
		a, b Value
		want Cmp
	}{
		{"int less", Int(1), Int(2), CmpLess},
		{"int equal", Int(5), Int(5), CmpEqual},
		{"int greater", Int(9), Int(2), CmpGreater},
		{"float vs int promotes", Float(1.5), Int(1), CmpGreater},
		{"char widens to int", Char('a'), Int(int64('a')), CmpEqual},
		{"string equal", String("hi"), String("hi"), CmpEqual},
		{"string not equal", String("hi"), String("lo"), CmpNotEqual},
		{"bool equal", Bool(true), Bool(true), CmpEqual},
		{"null vs null", Null, Null, CmpEqual},
		{"null vs int", Null, Int(0), CmpNotEqual},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Compare(c.a, c.b)
			require.NoError(t, err)
			require.Equal(t, c.want, got)
		})
	}
}

func TestCompareTypeMismatchIsFatal(t *testing.T) {
	_, err := Compare(String("x"), Int(1))
	require.ErrorIs(t, err, ErrTypeMismatch)
}

func TestIncDecPreservesTag(t *testing.T) {
	v, err := Int(1).Inc()
	require.NoError(t, err)
	require.Equal(t, TagInt, v.Tag)
	require.Equal(t, int64(2), v.I)

	v, err = Float(1.5).Dec()
	require.NoError(t, err)
	require.Equal(t, TagFloat, v.Tag)
	require.Equal(t, 1.5-1, v.F)

	_, err = String("x").Inc()
	require.ErrorIs(t, err, ErrTypeMismatch)
}

func TestArithIntAndFloat(t *testing.T) {
	sum, err := Arith(opAdd, Int(2), Int(3))
	require.NoError(t, err)
	require.Equal(t, Int(5), sum)

	quot, err := Arith(opDiv, Float(10), Float(4))
	require.NoError(t, err)
	require.Equal(t, Float(2.5), quot)
}

func TestArithDivisionByZero(t *testing.T) {
	_, err := Arith(opDiv, Int(1), Int(0))
	require.ErrorIs(t, err, ErrDivideByZero)
}

func TestFormat(t *testing.T) {
	require.Equal(t, "5", Int(5).Format())
	require.Equal(t, "true", Bool(true).Format())
	require.Equal(t, "null", Null.Format())
	require.Equal(t, "hi", String("hi").Format())
}
