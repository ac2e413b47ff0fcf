package toys

import (
	"fmt"
	"math"

	"globalsig/domain/core"
)

// NullSampleSummary holds the audit counts of a null-sample build
type NullSampleSummary struct {
	TotalFits       int     `json:"total_fits"`
	FailedFits      int     `json:"failed_fits"`
	FailureRate     float64 `json:"failure_rate"`
	Retained        int     `json:"retained"`
	NegativeClamped int     `json:"negative_clamped"`
}

type seedIndex struct {
	seed, index int
}

// BuildNullSample turns a local-significance toy table for a single mass point
// into the flat q0 sample used by the null distribution store. Local toys are
// generated by independent jobs, so they are keyed by (seed, toy index).
func BuildNullSample(raw []ToyRecord, negativeTolerance float64) ([]float64, NullSampleSummary, error) {
	var summary NullSampleSummary
	if negativeTolerance > 0 {
		return nil, summary, fmt.Errorf("%w: negative tolerance must be <= 0, got %g", core.ErrInvalidInput, negativeTolerance)
	}

	seen := make(map[seedIndex]struct{}, len(raw))
	sample := make([]float64, 0, len(raw))
	for _, r := range raw {
		key := seedIndex{r.Seed, r.ToyIndex}
		if _, dup := seen[key]; dup {
			return nil, summary, fmt.Errorf("%w: seed=%d toy_index=%d", core.ErrDuplicateToy, r.Seed, r.ToyIndex)
		}
		seen[key] = struct{}{}

		summary.TotalFits++
		if r.FitFailed() {
			summary.FailedFits++
			continue
		}

		q0 := r.TestStatistic
		if r.FittedSignalStrength <= 0 {
			q0 = 0
		}
		switch {
		case math.IsNaN(q0):
			return nil, summary, fmt.Errorf("%w: q0 is NaN for seed=%d toy_index=%d", core.ErrInvalidInput, r.Seed, r.ToyIndex)
		case q0 < 0 && q0 > negativeTolerance:
			q0 = 0
			summary.NegativeClamped++
		case q0 < 0:
			return nil, summary, core.NewNegativeTestStatisticError(r.ToyIndex, r.Mass, q0)
		}
		sample = append(sample, q0)
	}

	summary.Retained = len(sample)
	if summary.TotalFits > 0 {
		summary.FailureRate = float64(summary.FailedFits) / float64(summary.TotalFits)
	}
	if len(sample) == 0 {
		return nil, summary, fmt.Errorf("%w: no successful fits in local toy table", core.ErrEmptySample)
	}
	return sample, summary, nil
}
