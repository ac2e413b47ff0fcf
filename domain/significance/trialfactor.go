package significance

import (
	"fmt"
	"math"

	"globalsig/domain/core"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat/distuv"
)

// Default bounds on the effective number of independent search regions
const (
	DefaultTrialFactorMin   = 10.0
	DefaultTrialFactorMax   = 21.0
	DefaultTrialFactorStart = 15.0
)

// TrialFactorDensity is the density of the maximum of n independent standard
// normal variables: n Φ(x)^(n-1) φ(x).
func TrialFactorDensity(x, n float64) float64 {
	return n * math.Pow(distuv.UnitNormal.CDF(x), n-1) * distuv.UnitNormal.Prob(x)
}

// TrialFactorGlobalSignificance converts a local p-value into a global
// significance for n independent trials: Φ⁻¹(1 - (1 - (1 - p)^n)).
func TrialFactorGlobalSignificance(localP, n float64) (float64, error) {
	if math.IsNaN(localP) || localP < 0 || localP > 1 {
		return math.NaN(), fmt.Errorf("%w: local p-value %g", core.ErrInvalidProbability, localP)
	}
	if !(n > 0) {
		return math.NaN(), fmt.Errorf("%w: trial factor %g", core.ErrInvalidInput, n)
	}
	globalP := -math.Expm1(n * math.Log1p(-localP))
	return ZFromPValue(globalP)
}

// TrialFactorFit is the outcome of a bounded trial-factor fit
type TrialFactorFit struct {
	TrialFactor float64 `json:"trial_factor"`
	NLL         float64 `json:"nll"`
	Status      string  `json:"status"`
	FuncEvals   int     `json:"func_evals"`
	AtBoundary  bool    `json:"at_boundary"`
}

// TrialFactorFitter fits the effective number of trials n of the density of
// the maximum of n standard normals to a sample of maximum significances.
// The parameter is constrained to [Min, Max] through a logistic transform so
// the unconstrained simplex search never leaves the bounds.
type TrialFactorFitter struct {
	Min    float64
	Max    float64
	Start  float64
	Logger *zap.SugaredLogger
}

// NewTrialFactorFitter creates a fitter with the default bounds
func NewTrialFactorFitter() *TrialFactorFitter {
	return &TrialFactorFitter{
		Min:   DefaultTrialFactorMin,
		Max:   DefaultTrialFactorMax,
		Start: DefaultTrialFactorStart,
	}
}

func (f *TrialFactorFitter) toBounded(u float64) float64 {
	return f.Min + (f.Max-f.Min)/(1+math.Exp(-u))
}

func (f *TrialFactorFitter) toFree(n float64) float64 {
	r := (n - f.Min) / (f.Max - f.Min)
	return math.Log(r / (1 - r))
}

// Fit maximizes the likelihood of maxSig under the trial-factor density.
// Non-convergence is returned as core.ErrFitNotConverged.
func (f *TrialFactorFitter) Fit(maxSig []float64) (*TrialFactorFit, error) {
	if len(maxSig) == 0 {
		return nil, core.ErrEmptySample
	}
	if !(f.Min > 0 && f.Min < f.Max) {
		return nil, fmt.Errorf("%w: trial factor bounds [%g, %g]", core.ErrInvalidInput, f.Min, f.Max)
	}
	start := f.Start
	if !(start > f.Min && start < f.Max) {
		start = 0.5 * (f.Min + f.Max)
	}
	log := f.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	// The log-likelihood only depends on the data through these sums:
	//  lnL(n) = N ln n + (n-1) Σ ln Φ(x) - Σ x²/2
	var sumLogCDF, sumHalfSq float64
	for _, x := range maxSig {
		lc := math.Log(distuv.UnitNormal.CDF(x))
		if math.IsNaN(lc) || math.IsInf(lc, 0) {
			return nil, fmt.Errorf("%w: maximum significance %g outside the support of the fit", core.ErrInvalidInput, x)
		}
		sumLogCDF += lc
		sumHalfSq += x * x / 2
	}
	num := float64(len(maxSig))
	nll := func(n float64) float64 {
		return -(num*math.Log(n) + (n-1)*sumLogCDF - sumHalfSq)
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return nll(f.toBounded(x[0]))
		},
	}
	settings := &optimize.Settings{
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-10,
			Iterations: 50,
		},
		MajorIterations: 2000,
	}

	result, err := optimize.Minimize(problem, []float64{f.toFree(start)}, settings, &optimize.NelderMead{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrFitNotConverged, err)
	}
	if result.Status.Early() {
		return nil, fmt.Errorf("%w: status %s", core.ErrFitNotConverged, result.Status)
	}

	n := f.toBounded(result.X[0])
	fit := &TrialFactorFit{
		TrialFactor: n,
		NLL:         result.F,
		Status:      result.Status.String(),
		FuncEvals:   result.FuncEvaluations,
		AtBoundary:  n-f.Min < 1e-6 || f.Max-n < 1e-6,
	}
	log.Infof("[TrialFactor] n = %.2f (status %s, %d evaluations)", n, fit.Status, fit.FuncEvals)
	if fit.AtBoundary {
		log.Warnf("[TrialFactor] fit converged at the boundary of [%g, %g]", f.Min, f.Max)
	}
	return fit, nil
}
