package significance

import (
	"errors"
	"fmt"
	"math"

	"globalsig/domain/core"
	"globalsig/domain/toys"
	"globalsig/internal/numeric"

	"gonum.org/v1/gonum/floats"
)

// DefaultIntervalBracket is the outer bracket for the p-value interval search
var DefaultIntervalBracket = Interval{Lo: 0.01, Hi: 0.1}

// Interval is a closed interval [Lo, Hi]
type Interval struct {
	Lo float64 `json:"lo"`
	Hi float64 `json:"hi"`
}

// contains reports whether x lies in the interval
func (i Interval) contains(x float64) bool {
	return i.Lo <= x && x <= i.Hi
}

// MaxSignificances reduces every experiment to its maximum local significance
// over the scanned masses.
func MaxSignificances(experiments []toys.Experiment, calc LocalCalculator) ([]float64, error) {
	maxSig := make([]float64, len(experiments))
	sigs := make([]float64, 0, 32)
	for i, exp := range experiments {
		if len(exp.Records) == 0 {
			return nil, fmt.Errorf("%w: experiment %d has no fits", core.ErrInvalidInput, exp.ToyIndex)
		}
		sigs = sigs[:0]
		for _, r := range exp.Records {
			z, err := calc.Significance(r.Mass, r.TestStatistic)
			if err != nil {
				return nil, fmt.Errorf("toy %d mass %d: %w", r.ToyIndex, r.Mass, err)
			}
			sigs = append(sigs, z)
		}
		maxSig[i] = floats.Max(sigs)
	}
	return maxSig, nil
}

// CountExceeding counts values strictly greater than threshold
func CountExceeding(values []float64, threshold float64) int {
	n := 0
	for _, v := range values {
		if v > threshold {
			n++
		}
	}
	return n
}

// GlobalResult is the toy-based global significance of an observed excess
type GlobalResult struct {
	ObservedSignificance float64  `json:"observed_significance"`
	NumExperiments       int      `json:"num_experiments"`
	NumExceeding         int      `json:"num_exceeding"`
	PValue               float64  `json:"global_p_value"`
	Significance         float64  `json:"global_significance"`
	PValueInterval       Interval `json:"global_p_value_interval"`
	SignificanceInterval Interval `json:"global_significance_interval"`
}

// PointEstimate computes the exceedance-rate global p-value and its
// significance without an interval.
func PointEstimate(maxSig []float64, observed float64) (*GlobalResult, error) {
	if len(maxSig) == 0 {
		return nil, core.ErrNoExperiments
	}
	k := CountExceeding(maxSig, observed)
	n := len(maxSig)
	p := float64(k) / float64(n)
	z, err := ZFromPValue(p)
	if err != nil {
		return nil, err
	}
	return &GlobalResult{
		ObservedSignificance: observed,
		NumExperiments:       n,
		NumExceeding:         k,
		PValue:               p,
		Significance:         z,
	}, nil
}

// GlobalEstimator computes global significances with a profile-likelihood
// interval on the exceedance rate.
type GlobalEstimator struct {
	Bracket Interval
	Root    numeric.RootSettings
}

// NewGlobalEstimator creates an estimator with the default bracket
func NewGlobalEstimator() *GlobalEstimator {
	return &GlobalEstimator{
		Bracket: DefaultIntervalBracket,
		Root:    numeric.DefaultRootSettings(),
	}
}

// Estimate compares the per-experiment maximum significances against the
// observed maximum and returns the global p-value and significance with
// their 68 % intervals.
func (g *GlobalEstimator) Estimate(maxSig []float64, observed float64) (*GlobalResult, error) {
	res, err := PointEstimate(maxSig, observed)
	if err != nil {
		return nil, err
	}

	pInt, err := BinomialInterval(res.NumExceeding, res.NumExperiments, g.Bracket, g.Root)
	if err != nil {
		return nil, err
	}
	res.PValueInterval = pInt

	// The low p-value bound is the high significance bound
	zHi, err := ZFromPValue(pInt.Lo)
	if err != nil {
		return nil, err
	}
	zLo, err := ZFromPValue(pInt.Hi)
	if err != nil {
		return nil, err
	}
	res.SignificanceInterval = Interval{Lo: zLo, Hi: zHi}
	return res, nil
}

// xlogy returns x*log(y) with the convention 0*log(0) = 0
func xlogy(x, y float64) float64 {
	if x == 0 {
		return 0
	}
	return x * math.Log(y)
}

func binomialLogLikelihood(p float64, k, n int) float64 {
	return xlogy(float64(k), p) + xlogy(float64(n-k), 1-p)
}

// smallest distance from 0 and 1 the bracket may be widened to
const bracketFloor = 1e-12

// BinomialInterval returns the profile-likelihood interval on a binomial rate
// where -2 ΔlnL = 1, i.e. the 68 % interval, for k successes out of n. Each
// side is found by Brent's method between the estimate k/n and the bracket
// end. A bracket end that does not enclose the crossing is widened toward 0
// or 1 in decades; a rate of exactly 0 or 1 pins that side of the interval.
func BinomialInterval(k, n int, bracket Interval, settings numeric.RootSettings) (Interval, error) {
	if n <= 0 || k < 0 || k > n {
		return Interval{}, fmt.Errorf("%w: k=%d n=%d", core.ErrInvalidInput, k, n)
	}
	if !(bracket.Lo > 0 && bracket.Hi < 1 && bracket.Lo < bracket.Hi) {
		return Interval{}, fmt.Errorf("%w: bracket [%g, %g] must lie inside (0, 1)", core.ErrInvalidInput, bracket.Lo, bracket.Hi)
	}

	pHat := float64(k) / float64(n)
	llMax := binomialLogLikelihood(pHat, k, n)
	f := func(p float64) float64 {
		return -2*(binomialLogLikelihood(p, k, n)-llMax) - 1
	}

	out := Interval{Lo: 0, Hi: 1}

	if k > 0 {
		a := bracket.Lo
		for a >= pHat || f(a) <= 0 {
			if a <= bracketFloor {
				return Interval{}, fmt.Errorf("%w: lower bound not bracketed for k=%d n=%d", core.ErrRootNotConverged, k, n)
			}
			a = math.Max(math.Min(a, pHat)/10, bracketFloor)
		}
		res, err := numeric.Brent(f, a, pHat, settings)
		if err != nil {
			return Interval{}, rootError("lower", err)
		}
		out.Lo = res.Root
	}

	if k < n {
		b := bracket.Hi
		for b <= pHat || f(b) <= 0 {
			if 1-b <= bracketFloor {
				return Interval{}, fmt.Errorf("%w: upper bound not bracketed for k=%d n=%d", core.ErrRootNotConverged, k, n)
			}
			b = math.Min(1-math.Min(1-b, 1-pHat)/10, 1-bracketFloor)
		}
		res, err := numeric.Brent(f, pHat, b, settings)
		if err != nil {
			return Interval{}, rootError("upper", err)
		}
		out.Hi = res.Root
	}

	return out, nil
}

func rootError(side string, err error) error {
	if errors.Is(err, core.ErrRootNotConverged) {
		return err
	}
	return fmt.Errorf("%w: %s bound: %v", core.ErrRootNotConverged, side, err)
}
