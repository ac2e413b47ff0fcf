// Package nulldist holds per-mass empirical distributions of the local test
// statistic under the background-only hypothesis.
package nulldist

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"globalsig/domain/core"
)

// Distribution is an immutable, sorted multiset of null test statistics
type Distribution struct {
	sorted []float64
}

// NewDistribution copies and sorts a non-empty sample
func NewDistribution(sample []float64) (*Distribution, error) {
	if len(sample) == 0 {
		return nil, core.ErrEmptySample
	}
	sorted := make([]float64, len(sample))
	copy(sorted, sample)
	for _, v := range sorted {
		if math.IsNaN(v) {
			return nil, fmt.Errorf("%w: NaN in null sample", core.ErrInvalidInput)
		}
	}
	sort.Float64s(sorted)
	return &Distribution{sorted: sorted}, nil
}

// Len returns the sample size
func (d *Distribution) Len() int {
	return len(d.sorted)
}

// Max returns the largest observed value
func (d *Distribution) Max() float64 {
	return d.sorted[len(d.sorted)-1]
}

// cdf is the right-continuous empirical CDF: the fraction of values <= x
func (d *Distribution) cdf(x float64) float64 {
	return float64(d.countAtMost(x)) / float64(len(d.sorted))
}

// Survival is 1 - cdf(x): the fraction of values strictly greater than x
func (d *Distribution) Survival(x float64) float64 {
	n := len(d.sorted)
	return float64(n-d.countAtMost(x)) / float64(n)
}

func (d *Distribution) countAtMost(x float64) int {
	return sort.Search(len(d.sorted), func(i int) bool { return d.sorted[i] > x })
}

// Values returns a copy of the sorted sample
func (d *Distribution) Values() []float64 {
	out := make([]float64, len(d.sorted))
	copy(out, d.sorted)
	return out
}

// Resample draws a same-size sample with replacement
func (d *Distribution) Resample(rng *rand.Rand) *Distribution {
	n := len(d.sorted)
	resampled := make([]float64, n)
	for i := range resampled {
		resampled[i] = d.sorted[rng.Intn(n)]
	}
	sort.Float64s(resampled)
	return &Distribution{sorted: resampled}
}

// Store maps mass hypotheses to their null distributions. A Store is not
// modified after it has been handed to concurrent readers.
type Store struct {
	dists map[int]*Distribution
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{dists: make(map[int]*Distribution)}
}

// Add ingests the null sample for one mass, replacing any previous sample
func (s *Store) Add(mass int, sample []float64) error {
	d, err := NewDistribution(sample)
	if err != nil {
		return fmt.Errorf("mass %d: %w", mass, err)
	}
	s.dists[mass] = d
	return nil
}

// Get returns the distribution for a mass
func (s *Store) Get(mass int) (*Distribution, error) {
	d, ok := s.dists[mass]
	if !ok {
		return nil, core.NewMissingNullError(mass)
	}
	return d, nil
}

// Survival returns the empirical tail probability of value at mass
func (s *Store) Survival(mass int, value float64) (float64, error) {
	d, err := s.Get(mass)
	if err != nil {
		return 0, err
	}
	return d.Survival(value), nil
}

// Masses returns the stored masses in ascending order
func (s *Store) Masses() []int {
	masses := make([]int, 0, len(s.dists))
	for m := range s.dists {
		masses = append(masses, m)
	}
	sort.Ints(masses)
	return masses
}

// Len returns the number of stored masses
func (s *Store) Len() int {
	return len(s.dists)
}

// Bootstrap returns a new store where every sample is resampled with
// replacement from itself. Masses are visited in ascending order so the
// replicate is reproducible for a given random stream.
func (s *Store) Bootstrap(rng *rand.Rand) *Store {
	out := &Store{dists: make(map[int]*Distribution, len(s.dists))}
	for _, m := range s.Masses() {
		out.dists[m] = s.dists[m].Resample(rng)
	}
	return out
}

// Validate checks the store holds exactly the expected number of masses and
// covers every mass in required.
func (s *Store) Validate(expectedCount int, required []int) error {
	if expectedCount > 0 && len(s.dists) != expectedCount {
		return fmt.Errorf("%w: got %d, expected %d", core.ErrNullCountMismatch, len(s.dists), expectedCount)
	}
	for _, m := range required {
		if _, ok := s.dists[m]; !ok {
			return core.NewMissingNullError(m)
		}
	}
	return nil
}
