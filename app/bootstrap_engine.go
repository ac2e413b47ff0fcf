package app

import (
	"context"
	"fmt"
	"math/rand"

	"globalsig/domain/core"
	"globalsig/domain/nulldist"
	"globalsig/domain/significance"
	"globalsig/domain/toys"
	"globalsig/internal/logging"
	"globalsig/ports"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// DefaultBootstrapWorkers is the number of parallel resampling streams
const DefaultBootstrapWorkers = 8

// BootstrapEngine estimates the spread of the toy-based global significance
// that comes from the finite size of the null samples.
type BootstrapEngine struct {
	Workers    int
	TailPolicy significance.TailPolicy
	Sentinel   float64
	rngPort    ports.RNGPort
	logger     *zap.SugaredLogger
}

// BootstrapInput is the fixed part of every replicate
type BootstrapInput struct {
	Store        *nulldist.Store
	Experiments  []toys.Experiment
	ObservedQ0   float64
	ObservedMass int
}

// BootstrapResult summarizes the pooled replicate global significances
type BootstrapResult struct {
	Replicates  int       `json:"replicates"`
	Workers     int       `json:"workers"`
	Seed        int64     `json:"seed"`
	Mean        float64   `json:"mean"`
	StdDev      float64   `json:"std_dev"`
	StdErr      float64   `json:"std_err"`
	Saturations int       `json:"saturations"`
	Values      []float64 `json:"-"`
}

// NewBootstrapEngine creates an engine drawing its worker streams from rngPort
func NewBootstrapEngine(rngPort ports.RNGPort, logger *zap.SugaredLogger) *BootstrapEngine {
	return &BootstrapEngine{
		Workers:    DefaultBootstrapWorkers,
		TailPolicy: significance.TailSentinel,
		Sentinel:   significance.DefaultSaturationSentinel,
		rngPort:    rngPort,
		logger:     logging.OrNop(logger),
	}
}

// Run computes replicates bootstrap replicates split across the workers.
// Values are concatenated in worker order, so a fixed seed and worker count
// reproduce the pooled collection exactly.
func (e *BootstrapEngine) Run(ctx context.Context, in BootstrapInput, replicates int, seed int64) (*BootstrapResult, error) {
	if replicates < 2 {
		return nil, fmt.Errorf("%w: need at least 2 bootstrap replicates, got %d", core.ErrInvalidInput, replicates)
	}
	if in.Store == nil || in.Store.Len() == 0 {
		return nil, fmt.Errorf("%w: bootstrap needs a null distribution store", core.ErrMissingNullDistribution)
	}
	if len(in.Experiments) == 0 {
		return nil, core.ErrNoExperiments
	}

	workers := e.Workers
	if workers <= 0 {
		workers = DefaultBootstrapWorkers
	}
	if workers > replicates {
		workers = replicates
	}

	root, err := e.rngPort.SeededStream(ctx, "bootstrap", seed)
	if err != nil {
		return nil, fmt.Errorf("failed to seed bootstrap: %w", err)
	}
	streams, err := e.rngPort.Spawn(ctx, root.Int63(), workers)
	if err != nil {
		return nil, fmt.Errorf("failed to spawn random streams: %w", err)
	}

	e.logger.Infof("[Bootstrap] Starting %d replicates on %d workers (seed %d)", replicates, workers, seed)

	values := make([][]float64, workers)
	saturations := make([]int, workers)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		n := replicates / workers
		if w < replicates%workers {
			n++
		}
		g.Go(func() error {
			vals, sat, err := e.runWorker(gctx, in, streams[w], n)
			if err != nil {
				return fmt.Errorf("bootstrap worker %d: %w", w, err)
			}
			values[w] = vals
			saturations[w] = sat
			e.logger.Debugf("[Bootstrap] Worker %d finished %d replicates", w, n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &BootstrapResult{
		Replicates: replicates,
		Workers:    workers,
		Seed:       seed,
		Values:     make([]float64, 0, replicates),
	}
	for w := range values {
		res.Values = append(res.Values, values[w]...)
		res.Saturations += saturations[w]
	}
	res.Mean, res.StdDev = stat.MeanStdDev(res.Values, nil)
	res.StdErr = stat.StdErr(res.StdDev, float64(len(res.Values)))

	e.logger.Infof("[Bootstrap] Global significance mean %.4f, std %.4f, error on mean %.4f",
		res.Mean, res.StdDev, res.StdErr)
	if res.Saturations > 0 {
		e.logger.Warnf("[Bootstrap] %d local significances hit the empirical tail", res.Saturations)
	}
	return res, nil
}

// runWorker owns its random stream and every replicate store it draws
func (e *BootstrapEngine) runWorker(ctx context.Context, in BootstrapInput, rng *rand.Rand, n int) ([]float64, int, error) {
	out := make([]float64, 0, n)
	saturations := 0
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		replica := in.Store.Bootstrap(rng)
		calc := significance.NewEmpirical(replica, e.TailPolicy, e.Sentinel)

		observed, err := calc.Significance(in.ObservedMass, in.ObservedQ0)
		if err != nil {
			return nil, 0, err
		}
		maxSig, err := significance.MaxSignificances(in.Experiments, calc)
		if err != nil {
			return nil, 0, err
		}
		res, err := significance.PointEstimate(maxSig, observed)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, res.Significance)
		saturations += calc.TotalSaturations()
	}
	return out, saturations, nil
}
