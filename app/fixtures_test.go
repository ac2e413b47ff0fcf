package app

import (
	"context"
	"math/rand"

	"globalsig/domain/toys"

	"github.com/stretchr/testify/mock"
)

// Mock implementations for testing
type MockToySource struct {
	mock.Mock
}

func (m *MockToySource) ReadToys(ctx context.Context) ([]toys.ToyRecord, error) {
	args := m.Called(ctx)
	return args.Get(0).([]toys.ToyRecord), args.Error(1)
}

type MockNullSampleSource struct {
	mock.Mock
}

func (m *MockNullSampleSource) ReadNullSamples(ctx context.Context) (map[int][]float64, error) {
	args := m.Called(ctx)
	return args.Get(0).(map[int][]float64), args.Error(1)
}

type MockRNG struct {
	mock.Mock
}

func (m *MockRNG) SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error) {
	args := m.Called(ctx, name, seed)
	return args.Get(0).(*rand.Rand), args.Error(1)
}

func (m *MockRNG) Spawn(ctx context.Context, rootSeed int64, n int) ([]*rand.Rand, error) {
	args := m.Called(ctx, rootSeed, n)
	return args.Get(0).([]*rand.Rand), args.Error(1)
}

// scanRecords builds converged records with a positive fitted strength
// from per-experiment test statistics at the given masses.
func scanRecords(masses []int, q0 [][]float64) []toys.ToyRecord {
	var out []toys.ToyRecord
	for idx, row := range q0 {
		for j, m := range masses {
			out = append(out, toys.ToyRecord{
				ToyIndex:             idx,
				Mass:                 m,
				TestStatistic:        row[j],
				FittedSignalStrength: 1,
			})
		}
	}
	return out
}

// fiveByTwo is the 5 experiments x 2 masses scan with maxima [0, 2, 1.5, 3, 2] under sqrt
func fiveByTwo() []toys.ToyRecord {
	return scanRecords([]int{100, 200}, [][]float64{{0, 0}, {1, 4}, {0, 2.25}, {9, 0}, {4, 1}})
}

// halfChiSquare draws from the null distribution of the one-sided q0:
// 0 with probability 1/2, chi-square with one degree of freedom otherwise.
func halfChiSquare(rng *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		if rng.Float64() < 0.5 {
			continue
		}
		z := rng.NormFloat64()
		out[i] = z * z
	}
	return out
}

func nullSamples(seed int64, size int, masses ...int) map[int][]float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make(map[int][]float64, len(masses))
	for _, m := range masses {
		out[m] = halfChiSquare(rng, size)
	}
	return out
}

// randomScan simulates n background-only experiments over the masses
func randomScan(seed int64, n int, masses []int) []toys.ToyRecord {
	rng := rand.New(rand.NewSource(seed))
	q0 := make([][]float64, n)
	for i := range q0 {
		q0[i] = halfChiSquare(rng, len(masses))
	}
	return scanRecords(masses, q0)
}
