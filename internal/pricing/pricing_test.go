package pricing

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := map[string]float64{
		"$1,299.99":       1299.99,
		"":                0,
		"Free!":           0,
		"   ":             0,
		"£45":             45,
		"€ 12.50":         12.5,
		"¥1,000":          1000,
		"US $19.99":       19.99,
		"$ 1 234.00":      1234,
		"Now $24.99 each": 24.99,
		".99":             0.99,
		"12.34.56":        12.34,
		"$$$":             0,
		"...":             0,
		"3.":              3,
		"\t$7\n":          7,
	}
	for in, want := range cases {
		require.InDelta(t, want, Parse(in), 1e-9, "input %q", in)
	}
}

func TestParse_NeverNaN(t *testing.T) {
	for _, in := range []string{"NaN", "Inf", "-1", "1e10", "$", ",", "£,€"} {
		v := Parse(in)
		require.False(t, math.IsNaN(v), in)
		require.False(t, math.IsInf(v, 0), in)
		require.GreaterOrEqual(t, v, 0.0, in)
	}
}

func TestParse_HugeDigitRun(t *testing.T) {
	in := "$1" + strings.Repeat("0", 400)
	require.Zero(t, Parse(in))
	require.Zero(t, Parse(in+".99"))
}

func TestNonFiniteAmounts(t *testing.T) {
	inf := math.Inf(1)
	require.NotPanics(t, func() {
		require.False(t, SameCents(inf, 10))
		require.True(t, SameCents(math.NaN(), 0))
		require.Equal(t, 10.0, Savings(10, inf))
		require.Equal(t, 0, PercentOff(inf, 10))
		require.Equal(t, "0.00", Format(math.NaN()))
	})
}

func TestSavingsAndPercentOff(t *testing.T) {
	require.Equal(t, 20.0, Savings(100, 80))
	require.Equal(t, 0.1, Savings(0.3, 0.2))
	require.Equal(t, 20, PercentOff(100, 80))
	require.Equal(t, 33, PercentOff(60, 40))
	require.Equal(t, 0, PercentOff(0, 10))
	require.Equal(t, "1299.90", Format(1299.9))
}

func TestSameCents(t *testing.T) {
	require.True(t, SameCents(79.99, 79.99))
	require.True(t, SameCents(0.1+0.2, 0.3))
	require.False(t, SameCents(80, 79.99))
}
