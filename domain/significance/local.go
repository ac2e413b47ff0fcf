// Package significance converts local test statistics into local and global
// significances and quantifies the look-elsewhere effect.
package significance

import (
	"fmt"
	"math"
	"sort"

	"globalsig/domain/core"
	"globalsig/domain/nulldist"

	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultSaturationSentinel replaces infinite significances from a saturated
// empirical tail. It sits above any plausible observed threshold.
const DefaultSaturationSentinel = 4.99

// Method selects how local significances are computed
type Method string

const (
	MethodAsymptotics Method = "asymptotics"
	MethodToys        Method = "toys"
)

// ParseMethod validates a method name
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodAsymptotics, "":
		return MethodAsymptotics, nil
	case MethodToys:
		return MethodToys, nil
	}
	return "", fmt.Errorf("%w: unknown method %q (want asymptotics|toys)", core.ErrInvalidInput, s)
}

// TailPolicy decides what replaces an infinite empirical significance
type TailPolicy string

const (
	// TailSentinel clamps to a fixed sentinel value
	TailSentinel TailPolicy = "sentinel"
	// TailSqrt falls back to the asymptotic sqrt(q0)
	TailSqrt TailPolicy = "sqrt"
)

// ParseTailPolicy validates a tail policy name
func ParseTailPolicy(s string) (TailPolicy, error) {
	switch TailPolicy(s) {
	case TailSentinel, "":
		return TailSentinel, nil
	case TailSqrt:
		return TailSqrt, nil
	}
	return "", fmt.Errorf("%w: unknown tail policy %q (want sentinel|sqrt)", core.ErrInvalidInput, s)
}

// ZFromPValue returns the one-sided significance Φ⁻¹(1 - p)
func ZFromPValue(p float64) (float64, error) {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return math.NaN(), fmt.Errorf("%w: %g", core.ErrInvalidProbability, p)
	}
	return distuv.UnitNormal.Quantile(1 - p), nil
}

// PValueFromZ returns the one-sided tail probability 1 - Φ(z)
func PValueFromZ(z float64) float64 {
	return distuv.UnitNormal.Survival(z)
}

// LocalCalculator maps a test statistic at a mass point to a local significance
type LocalCalculator interface {
	PValue(mass int, q0 float64) (float64, error)
	Significance(mass int, q0 float64) (float64, error)
}

// Asymptotic uses the half-chi-square asymptotics of the one-sided q0: Z = sqrt(q0)
type Asymptotic struct{}

func (Asymptotic) Significance(_ int, q0 float64) (float64, error) {
	if q0 < 0 || math.IsNaN(q0) {
		return math.NaN(), fmt.Errorf("%w: q0=%g", core.ErrNegativeTestStatistic, q0)
	}
	return math.Sqrt(q0), nil
}

func (a Asymptotic) PValue(mass int, q0 float64) (float64, error) {
	z, err := a.Significance(mass, q0)
	if err != nil {
		return math.NaN(), err
	}
	return PValueFromZ(z), nil
}

// Empirical looks q0 up in the empirical null distribution of its mass. It
// counts tail saturations per mass, so a single Empirical must not be shared
// between goroutines; build one per worker over the shared read-only store.
type Empirical struct {
	store     *nulldist.Store
	policy    TailPolicy
	sentinel  float64
	saturated map[int]int
}

// NewEmpirical creates an empirical calculator over store
func NewEmpirical(store *nulldist.Store, policy TailPolicy, sentinel float64) *Empirical {
	if policy == "" {
		policy = TailSentinel
	}
	return &Empirical{
		store:     store,
		policy:    policy,
		sentinel:  sentinel,
		saturated: make(map[int]int),
	}
}

// PValue returns the fraction of the null sample strictly above q0
func (e *Empirical) PValue(mass int, q0 float64) (float64, error) {
	return e.store.Survival(mass, q0)
}

// Significance returns Φ⁻¹(1 - p). A query above every null value has p = 0;
// the infinite result is replaced according to the tail policy and counted.
func (e *Empirical) Significance(mass int, q0 float64) (float64, error) {
	p, err := e.PValue(mass, q0)
	if err != nil {
		return math.NaN(), err
	}
	if p == 0 {
		e.saturated[mass]++
		if e.policy == TailSqrt {
			return Asymptotic{}.Significance(mass, q0)
		}
		return e.sentinel, nil
	}
	return ZFromPValue(p)
}

// Saturations returns how often the tail saturated, per mass
func (e *Empirical) Saturations() map[int]int {
	out := make(map[int]int, len(e.saturated))
	for m, n := range e.saturated {
		out[m] = n
	}
	return out
}

// TotalSaturations returns the number of saturated lookups over all masses
func (e *Empirical) TotalSaturations() int {
	total := 0
	for _, n := range e.saturated {
		total += n
	}
	return total
}

// SaturatedMasses lists masses with at least one saturation in ascending order
func (e *Empirical) SaturatedMasses() []int {
	masses := make([]int, 0, len(e.saturated))
	for m := range e.saturated {
		masses = append(masses, m)
	}
	sort.Ints(masses)
	return masses
}
