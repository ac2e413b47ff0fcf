package numeric

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrent(t *testing.T) {
	tests := []struct {
		name string
		f    func(float64) float64
		a, b float64
		want float64
	}{
		{"sqrt2", func(x float64) float64 { return x*x - 2 }, 0, 2, math.Sqrt2},
		{"decreasing", func(x float64) float64 { return 1 - x }, 0, 3, 1},
		{"cosine", math.Cos, 0, 3, math.Pi / 2},
		{"cubic", func(x float64) float64 { return x*x*x - 2*x - 5 }, 2, 3, 2.0945514815423265},
		{"root at bracket end", func(x float64) float64 { return x - 4 }, 0, 4, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Brent(tt.f, tt.a, tt.b, DefaultRootSettings())
			require.NoError(t, err)
			assert.InDelta(t, tt.want, res.Root, 1e-10)
			assert.LessOrEqual(t, res.Iterations, 100)
		})
	}
}

func TestBrent_NotBracketed(t *testing.T) {
	_, err := Brent(func(x float64) float64 { return x*x + 1 }, -1, 1, DefaultRootSettings())
	assert.ErrorIs(t, err, ErrNotBracketed)
}

func TestBrent_NonFinite(t *testing.T) {
	_, err := Brent(math.Log, 0, 2, DefaultRootSettings())
	assert.ErrorIs(t, err, ErrNonFinite)
}

func TestBrent_IterationLimit(t *testing.T) {
	settings := RootSettings{XTol: 1e-300, RTol: 0, MaxIter: 2}
	_, err := Brent(func(x float64) float64 { return math.Exp(x) - 10 }, -50, 50, settings)
	assert.ErrorIs(t, err, ErrMaxIterations)
}
