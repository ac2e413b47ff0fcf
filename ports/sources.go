package ports

import (
	"context"

	"globalsig/domain/toys"
)

// ToySource provides raw per-toy, per-mass fit records
type ToySource interface {
	ReadToys(ctx context.Context) ([]toys.ToyRecord, error)
}

// NullSampleSource provides the flat null-hypothesis q0 sample of every mass
type NullSampleSource interface {
	ReadNullSamples(ctx context.Context) (map[int][]float64, error)
}
