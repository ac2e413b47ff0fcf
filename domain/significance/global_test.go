package significance

import (
	"math"
	"testing"

	"globalsig/domain/core"
	"globalsig/domain/toys"
	"globalsig/internal/numeric"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/distuv"
)

// fiveExperiments is the 5 x 2 scan with max significances [0, 2, 1.5, 3, 2]
func fiveExperiments() []toys.Experiment {
	stats := [][2]float64{{0, 0}, {1, 4}, {0, 2.25}, {9, 0}, {4, 1}}
	exps := make([]toys.Experiment, len(stats))
	for i, q := range stats {
		exps[i] = toys.Experiment{
			ToyIndex: i,
			Good:     true,
			Records: []toys.ToyRecord{
				{ToyIndex: i, Mass: 100, TestStatistic: q[0], FittedSignalStrength: 1},
				{ToyIndex: i, Mass: 200, TestStatistic: q[1], FittedSignalStrength: 1},
			},
		}
	}
	return exps
}

func TestMaxSignificances(t *testing.T) {
	maxSig, err := MaxSignificances(fiveExperiments(), Asymptotic{})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 2, 1.5, 3, 2}, maxSig)
}

func TestEstimate_FiveExperiments(t *testing.T) {
	maxSig, err := MaxSignificances(fiveExperiments(), Asymptotic{})
	require.NoError(t, err)

	res, err := NewGlobalEstimator().Estimate(maxSig, 2.5)
	require.NoError(t, err)

	assert.Equal(t, 5, res.NumExperiments)
	assert.Equal(t, 1, res.NumExceeding)
	assert.InDelta(t, 0.2, res.PValue, 1e-15)
	assert.InDelta(t, 0.8416212335729143, res.Significance, 1e-9)
	assert.Equal(t, distuv.UnitNormal.Quantile(1-res.PValue), res.Significance)

	assert.True(t, res.PValueInterval.contains(res.PValue))
	assert.True(t, res.SignificanceInterval.contains(res.Significance))
	assert.Less(t, res.PValueInterval.Lo, res.PValueInterval.Hi)
}

func TestPointEstimate_NoExperiments(t *testing.T) {
	_, err := PointEstimate(nil, 1)
	assert.ErrorIs(t, err, core.ErrNoExperiments)
}

func TestCountExceedingIsStrict(t *testing.T) {
	assert.Equal(t, 1, CountExceeding([]float64{2.5, 2.5, 2.6}, 2.5))
}

func TestBinomialInterval_BracketsEstimate(t *testing.T) {
	cases := []struct{ k, n int }{
		{1, 5}, {4, 5}, {3, 100}, {25, 1000}, {50, 1000}, {999, 1000}, {17, 100000},
	}
	for _, c := range cases {
		iv, err := BinomialInterval(c.k, c.n, DefaultIntervalBracket, numeric.DefaultRootSettings())
		require.NoError(t, err, "k=%d n=%d", c.k, c.n)

		pHat := float64(c.k) / float64(c.n)
		assert.LessOrEqual(t, iv.Lo, pHat)
		assert.GreaterOrEqual(t, iv.Hi, pHat)

		// Both ends sit where -2 ΔlnL = 1
		ll := func(p float64) float64 {
			return float64(c.k)*math.Log(p) + float64(c.n-c.k)*math.Log(1-p)
		}
		assert.InDelta(t, 1.0, -2*(ll(iv.Lo)-ll(pHat)), 1e-6, "lower k=%d n=%d", c.k, c.n)
		assert.InDelta(t, 1.0, -2*(ll(iv.Hi)-ll(pHat)), 1e-6, "upper k=%d n=%d", c.k, c.n)
	}
}

func TestBinomialInterval_Deterministic(t *testing.T) {
	a, err := BinomialInterval(30, 1000, DefaultIntervalBracket, numeric.DefaultRootSettings())
	require.NoError(t, err)
	b, err := BinomialInterval(30, 1000, DefaultIntervalBracket, numeric.DefaultRootSettings())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBinomialInterval_Edges(t *testing.T) {
	iv, err := BinomialInterval(0, 200, DefaultIntervalBracket, numeric.DefaultRootSettings())
	require.NoError(t, err)
	assert.Equal(t, 0.0, iv.Lo)
	assert.InDelta(t, 1-math.Exp(-1.0/400), iv.Hi, 1e-9)

	iv, err = BinomialInterval(200, 200, DefaultIntervalBracket, numeric.DefaultRootSettings())
	require.NoError(t, err)
	assert.Equal(t, 1.0, iv.Hi)
	assert.InDelta(t, math.Exp(-1.0/400), iv.Lo, 1e-9)

	_, err = BinomialInterval(3, 2, DefaultIntervalBracket, numeric.DefaultRootSettings())
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = BinomialInterval(1, 10, Interval{Lo: 0, Hi: 0.5}, numeric.DefaultRootSettings())
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestBinomialInterval_NonConvergenceSurfaces(t *testing.T) {
	settings := numeric.RootSettings{XTol: 1e-300, RTol: 0, MaxIter: 1}
	_, err := BinomialInterval(25, 1000, DefaultIntervalBracket, settings)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrRootNotConverged)
	assert.True(t, core.IsConvergenceError(err))
}
