package app

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"globalsig/adapters/rng"
	"globalsig/domain/core"
	"globalsig/domain/nulldist"
	"globalsig/domain/significance"
	"globalsig/domain/toys"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// bootstrapSetup is a fixed synthetic null/observed setup over three masses
func bootstrapSetup(t *testing.T) (BootstrapInput, float64) {
	t.Helper()
	masses := []int{1000, 1100, 1200}

	store := nulldist.NewStore()
	for m, sample := range nullSamples(11, 500, masses...) {
		require.NoError(t, store.Add(m, sample))
	}
	ds, err := toys.Normalize(randomScan(12, 1000, masses), toys.DefaultNormalizeOptions())
	require.NoError(t, err)

	in := BootstrapInput{
		Store:        store,
		Experiments:  ds.GoodExperiments(),
		ObservedQ0:   4,
		ObservedMass: 1000,
	}

	calc := significance.NewEmpirical(store, significance.TailSentinel, significance.DefaultSaturationSentinel)
	observed, err := calc.Significance(in.ObservedMass, in.ObservedQ0)
	require.NoError(t, err)
	maxSig, err := significance.MaxSignificances(in.Experiments, calc)
	require.NoError(t, err)
	point, err := significance.PointEstimate(maxSig, observed)
	require.NoError(t, err)
	return in, point.Significance
}

func newEngine(workers int) *BootstrapEngine {
	e := NewBootstrapEngine(rng.NewSeedSequence(), nil)
	e.Workers = workers
	return e
}

func TestBootstrapEngine_StandardErrorShrinks(t *testing.T) {
	in, point := bootstrapSetup(t)
	require.False(t, math.IsInf(point, 0))

	small, err := newEngine(4).Run(context.Background(), in, 10, 99)
	require.NoError(t, err)
	large, err := newEngine(4).Run(context.Background(), in, 1000, 99)
	require.NoError(t, err)

	require.Greater(t, small.StdDev, 0.0)
	require.Greater(t, large.StdDev, 0.0)
	assert.InDelta(t, large.StdDev/math.Sqrt(1000), large.StdErr, 1e-12)
	assert.InDelta(t, small.StdDev/math.Sqrt(10), small.StdErr, 1e-12)

	// SE scales as 1/sqrt(B): a factor of 10 between B=10 and B=1000
	ratio := small.StdErr / large.StdErr
	assert.Greater(t, ratio, 3.0)
	assert.Less(t, ratio, 30.0)

	// The bootstrap mean tracks the single-sample estimate
	assert.InDelta(t, point, large.Mean, math.Max(3*large.StdDev, 0.05))
}

func TestBootstrapEngine_Reproducible(t *testing.T) {
	in, _ := bootstrapSetup(t)

	a, err := newEngine(3).Run(context.Background(), in, 20, 2025)
	require.NoError(t, err)
	b, err := newEngine(3).Run(context.Background(), in, 20, 2025)
	require.NoError(t, err)
	assert.Equal(t, a.Values, b.Values)
	assert.Equal(t, a.Mean, b.Mean)

	c, err := newEngine(3).Run(context.Background(), in, 20, 2026)
	require.NoError(t, err)
	assert.NotEqual(t, a.Values, c.Values)
}

func TestBootstrapEngine_SplitsReplicates(t *testing.T) {
	in, _ := bootstrapSetup(t)

	res, err := newEngine(8).Run(context.Background(), in, 5, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Workers)
	assert.Len(t, res.Values, 5)

	res, err = newEngine(4).Run(context.Background(), in, 11, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Workers)
	assert.Len(t, res.Values, 11)
}

func TestBootstrapEngine_DoesNotMutateStore(t *testing.T) {
	in, _ := bootstrapSetup(t)
	dist, err := in.Store.Get(1000)
	require.NoError(t, err)
	before := dist.Values()

	_, err = newEngine(2).Run(context.Background(), in, 6, 3)
	require.NoError(t, err)
	assert.Equal(t, before, dist.Values())
}

func TestBootstrapEngine_Errors(t *testing.T) {
	in, _ := bootstrapSetup(t)

	_, err := newEngine(2).Run(context.Background(), in, 1, 0)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = newEngine(2).Run(context.Background(), BootstrapInput{Experiments: in.Experiments}, 10, 0)
	assert.ErrorIs(t, err, core.ErrMissingNullDistribution)

	_, err = newEngine(2).Run(context.Background(), BootstrapInput{Store: in.Store}, 10, 0)
	assert.ErrorIs(t, err, core.ErrNoExperiments)

	missing := in
	missing.ObservedMass = 5000
	_, err = newEngine(2).Run(context.Background(), missing, 10, 0)
	assert.ErrorIs(t, err, core.ErrMissingNullDistribution)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newEngine(2).Run(ctx, in, 10, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBootstrapEngine_DerivesWorkerStreamsFromNamedSeed(t *testing.T) {
	in, _ := bootstrapSetup(t)
	root := rand.New(rand.NewSource(77)).Int63()

	rngPort := new(MockRNG)
	rngPort.On("SeededStream", mock.Anything, "bootstrap", int64(7)).Return(rand.New(rand.NewSource(77)), nil)
	rngPort.On("Spawn", mock.Anything, root, 2).Return([]*rand.Rand{
		rand.New(rand.NewSource(1)), rand.New(rand.NewSource(2)),
	}, nil)

	e := NewBootstrapEngine(rngPort, nil)
	e.Workers = 2
	res, err := e.Run(context.Background(), in, 4, 7)
	require.NoError(t, err)
	assert.Len(t, res.Values, 4)
	assert.Equal(t, int64(7), res.Seed)
	rngPort.AssertExpectations(t)

	failing := new(MockRNG)
	failing.On("SeededStream", mock.Anything, "bootstrap", int64(7)).Return((*rand.Rand)(nil), errors.New("no entropy"))
	e = NewBootstrapEngine(failing, nil)
	_, err = e.Run(context.Background(), in, 4, 7)
	assert.ErrorContains(t, err, "no entropy")
}
