package app

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"globalsig/domain/core"
	"globalsig/domain/nulldist"
	"globalsig/domain/significance"
	"globalsig/domain/toys"
	"globalsig/internal/config"
	"globalsig/internal/logging"
	"globalsig/ports"

	"go.uber.org/zap"
)

// AnalysisSettings holds every tunable of a global significance analysis
type AnalysisSettings struct {
	Method         significance.Method
	ObservedQ0     float64
	ObservedMass   int
	ExpectedMasses int
	Normalize      toys.NormalizeOptions
	TailPolicy     significance.TailPolicy
	Sentinel       float64
	Bracket        significance.Interval
	TrialMin       float64
	TrialMax       float64
	TrialStart     float64
	Bootstraps     int
	Workers        int
	Seed           int64
}

// SettingsFromConfig resolves a validated configuration into analysis settings
func SettingsFromConfig(cfg *config.Config) (AnalysisSettings, error) {
	method, err := significance.ParseMethod(cfg.Significance.Method)
	if err != nil {
		return AnalysisSettings{}, err
	}
	tail, err := significance.ParseTailPolicy(cfg.Significance.TailPolicy)
	if err != nil {
		return AnalysisSettings{}, err
	}
	policy, err := toys.ParseFailurePolicy(cfg.Scan.FailurePolicy)
	if err != nil {
		return AnalysisSettings{}, err
	}
	q0, ok := cfg.Observation.ObservedQ0()
	if !ok {
		return AnalysisSettings{}, fmt.Errorf("%w: an observed q0 or significance is required", core.ErrInvalidInput)
	}

	return AnalysisSettings{
		Method:         method,
		ObservedQ0:     q0,
		ObservedMass:   cfg.Observation.Mass,
		ExpectedMasses: cfg.Scan.ExpectedMasses,
		Normalize: toys.NormalizeOptions{
			NegativeTolerance: cfg.Scan.NegativeTolerance,
			FailurePolicy:     policy,
		},
		TailPolicy: tail,
		Sentinel:   cfg.Significance.SaturationSentinel,
		Bracket:    significance.Interval{Lo: cfg.Interval.Lo, Hi: cfg.Interval.Hi},
		TrialMin:   cfg.TrialFactor.Min,
		TrialMax:   cfg.TrialFactor.Max,
		TrialStart: cfg.TrialFactor.Start,
		Bootstraps: cfg.Bootstrap.Replicates,
		Workers:    cfg.Bootstrap.Workers,
		Seed:       cfg.Bootstrap.Seed,
	}, nil
}

// AnalysisService runs the full global significance analysis of one toy ensemble
type AnalysisService struct {
	rngPort ports.RNGPort
	logger  *zap.SugaredLogger
}

// NewAnalysisService creates an analysis service
func NewAnalysisService(rngPort ports.RNGPort, logger *zap.SugaredLogger) *AnalysisService {
	return &AnalysisService{rngPort: rngPort, logger: logging.OrNop(logger)}
}

// Run loads and normalizes the toys, computes local and global significances,
// fits the trial factor and optionally bootstraps the null samples. Null
// samples are required for the toys method and for the bootstrap.
func (s *AnalysisService) Run(ctx context.Context, toySource ports.ToySource, nullSource ports.NullSampleSource, settings AnalysisSettings) (*Report, error) {
	start := time.Now()
	if settings.ObservedQ0 < 0 || math.IsNaN(settings.ObservedQ0) {
		return nil, fmt.Errorf("%w: observed q0 %g", core.ErrInvalidInput, settings.ObservedQ0)
	}
	if settings.Bootstraps > 0 && settings.Method != significance.MethodToys {
		return nil, fmt.Errorf("%w: the bootstrap resamples null samples and needs method %q",
			core.ErrInvalidInput, significance.MethodToys)
	}

	raw, err := toySource.ReadToys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read toys: %w", err)
	}
	opts := settings.Normalize
	opts.Logger = s.logger
	dataset, err := toys.Normalize(raw, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize toys: %w", err)
	}
	good := dataset.GoodExperiments()
	if len(good) == 0 {
		return nil, core.ErrNoExperiments
	}

	report := &Report{
		RunID:        core.NewRunID(),
		Method:       settings.Method,
		Summary:      dataset.Summary(),
		ObservedMass: settings.ObservedMass,
		ObservedQ0:   settings.ObservedQ0,
	}

	var (
		calc      significance.LocalCalculator
		store     *nulldist.Store
		empirical *significance.Empirical
	)
	switch settings.Method {
	case significance.MethodToys:
		if nullSource == nil {
			return nil, fmt.Errorf("%w: method toys needs null samples", core.ErrMissingNullDistribution)
		}
		store, err = s.loadStore(ctx, nullSource, settings.ExpectedMasses, requiredMasses(dataset.Masses(), settings.ObservedMass))
		if err != nil {
			return nil, err
		}
		empirical = significance.NewEmpirical(store, settings.TailPolicy, settings.Sentinel)
		calc = empirical
	default:
		calc = significance.Asymptotic{}
	}

	// Observed local significance
	report.ObservedLocalPValue, err = calc.PValue(settings.ObservedMass, settings.ObservedQ0)
	if err != nil {
		return nil, fmt.Errorf("observed p-value: %w", err)
	}
	report.ObservedLocalSignificance, err = calc.Significance(settings.ObservedMass, settings.ObservedQ0)
	if err != nil {
		return nil, fmt.Errorf("observed significance: %w", err)
	}

	maxSig, err := significance.MaxSignificances(good, calc)
	if err != nil {
		return nil, fmt.Errorf("failed to compute local significances: %w", err)
	}
	report.MaxSignificances = maxSig
	if empirical != nil {
		report.Saturations = empirical.Saturations()
		for _, m := range empirical.SaturatedMasses() {
			s.logger.Warnf("[LocalSignificance] Mass %d: %d significances beyond the null sample, set by %s policy",
				m, report.Saturations[m], settings.TailPolicy)
		}
	}

	estimator := significance.NewGlobalEstimator()
	if settings.Bracket.Lo > 0 {
		estimator.Bracket = settings.Bracket
	}
	report.Global, err = estimator.Estimate(maxSig, report.ObservedLocalSignificance)
	if err != nil {
		return nil, fmt.Errorf("global significance: %w", err)
	}
	s.logger.Infof("[GlobalSignificance] %d of %d experiments exceed Z=%.3f: p=%.4g Z=%.3f",
		report.Global.NumExceeding, report.Global.NumExperiments, report.ObservedLocalSignificance,
		report.Global.PValue, report.Global.Significance)

	fitter := significance.NewTrialFactorFitter()
	if settings.TrialMax > 0 {
		fitter.Min, fitter.Max, fitter.Start = settings.TrialMin, settings.TrialMax, settings.TrialStart
	}
	fitter.Logger = s.logger
	report.TrialFactor, err = fitter.Fit(maxSig)
	if err != nil {
		return nil, fmt.Errorf("trial factor: %w", err)
	}
	report.TrialFactorGlobalSignificance, err = significance.TrialFactorGlobalSignificance(
		report.ObservedLocalPValue, report.TrialFactor.TrialFactor)
	if err != nil {
		return nil, fmt.Errorf("trial factor global significance: %w", err)
	}
	report.Histogram = NewMaxSignificanceHistogram(maxSig, report.TrialFactor.TrialFactor)

	if settings.Bootstraps > 0 {
		engine := NewBootstrapEngine(s.rngPort, s.logger)
		engine.Workers = settings.Workers
		engine.TailPolicy = settings.TailPolicy
		engine.Sentinel = settings.Sentinel
		report.Bootstrap, err = engine.Run(ctx, BootstrapInput{
			Store:        store,
			Experiments:  good,
			ObservedQ0:   settings.ObservedQ0,
			ObservedMass: settings.ObservedMass,
		}, settings.Bootstraps, settings.Seed)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
	}

	report.RuntimeMs = time.Since(start).Milliseconds()
	s.logger.Infof("[Analysis] Run %s finished in %dms", report.RunID, report.RuntimeMs)
	return report, nil
}

// loadStore builds the null store and checks it covers the scan
func (s *AnalysisService) loadStore(ctx context.Context, src ports.NullSampleSource, expected int, required []int) (*nulldist.Store, error) {
	samples, err := src.ReadNullSamples(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read null samples: %w", err)
	}
	store := nulldist.NewStore()
	for mass, sample := range samples {
		if err := store.Add(mass, sample); err != nil {
			return nil, fmt.Errorf("null sample for mass %d: %w", mass, err)
		}
	}
	if err := store.Validate(expected, required); err != nil {
		return nil, err
	}
	s.logger.Infof("[NullStore] %d null distributions loaded", store.Len())
	return store, nil
}

// requiredMasses is the scan masses plus the observed mass, ascending
func requiredMasses(masses []int, observed int) []int {
	out := append([]int(nil), masses...)
	i := sort.SearchInts(out, observed)
	if i == len(out) || out[i] != observed {
		out = append(out, 0)
		copy(out[i+1:], out[i:])
		out[i] = observed
	}
	return out
}

// BuildLocalNullSample turns a single-mass local toy table into the flat null sample for that mass
func (s *AnalysisService) BuildLocalNullSample(ctx context.Context, toySource ports.ToySource, negativeTolerance float64) ([]float64, toys.NullSampleSummary, error) {
	raw, err := toySource.ReadToys(ctx)
	if err != nil {
		return nil, toys.NullSampleSummary{}, fmt.Errorf("failed to read local toys: %w", err)
	}
	sample, summary, err := toys.BuildNullSample(raw, negativeTolerance)
	if err != nil {
		return nil, summary, err
	}
	s.logger.Infof("[LocalToys] %d fits, %d failed (%.1f %%), %d retained, %d negative q0 clamped",
		summary.TotalFits, summary.FailedFits, 100*summary.FailureRate, summary.Retained, summary.NegativeClamped)
	return sample, summary, nil
}

// AuditFits normalizes the toys and returns the dataset for failed-fit listings and diagnostics
func (s *AnalysisService) AuditFits(ctx context.Context, toySource ports.ToySource, opts toys.NormalizeOptions) (*toys.Dataset, []toys.FitDiagnostics, error) {
	raw, err := toySource.ReadToys(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read toys: %w", err)
	}
	opts.Logger = s.logger
	dataset, err := toys.Normalize(raw, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to normalize toys: %w", err)
	}
	diag, err := dataset.Diagnostics()
	if err != nil {
		return nil, nil, err
	}
	return dataset, diag, nil
}
