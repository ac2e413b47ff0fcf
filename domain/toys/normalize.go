package toys

import (
	"fmt"
	"math"
	"sort"

	"globalsig/domain/core"

	"go.uber.org/zap"
)

// NormalizeOptions controls the loader's cleaning rules
type NormalizeOptions struct {
	NegativeTolerance float64
	FailurePolicy     FailurePolicy
	Logger            *zap.SugaredLogger
}

// DefaultNormalizeOptions returns the standard cleaning rules
func DefaultNormalizeOptions() NormalizeOptions {
	return NormalizeOptions{
		NegativeTolerance: DefaultNegativeTolerance,
		FailurePolicy:     FailureDrop,
	}
}

// Dataset is a normalized toy table. It is immutable after Normalize returns.
type Dataset struct {
	records     []ToyRecord
	experiments []Experiment
	masses      []int
	summary     Summary
}

// Normalize validates raw fit records, flags failed fits, applies the one-sided
// boundary rule and groups the records into experiments.
func Normalize(raw []ToyRecord, opts NormalizeOptions) (*Dataset, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	policy, err := ParseFailurePolicy(string(opts.FailurePolicy))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
	}
	if opts.NegativeTolerance > 0 {
		return nil, fmt.Errorf("%w: negative tolerance must be <= 0, got %g", core.ErrInvalidInput, opts.NegativeTolerance)
	}

	seen := make(map[ToyKey]struct{}, len(raw))
	records := make([]ToyRecord, len(raw))
	var summary Summary

	for i, r := range raw {
		key := r.Key()
		if _, dup := seen[key]; dup {
			return nil, core.NewDuplicateToyError(key.ToyIndex, key.Mass)
		}
		seen[key] = struct{}{}

		r.Failed = r.FitFailed()
		if r.Failed {
			summary.FailedFits++
		}
		// q0 is one-sided: no evidence for signal in the disfavored direction
		if r.FittedSignalStrength <= 0 && r.TestStatistic != 0 {
			r.TestStatistic = 0
			summary.BoundaryZeroed++
		}
		if r.Failed && policy == FailureZero {
			r.TestStatistic = 0
		}
		records[i] = r
	}
	sortRecords(records)

	masses := make(map[int]struct{})
	for _, r := range records {
		masses[r.Mass] = struct{}{}
	}
	experiments := groupExperiments(records, policy, len(masses))

	// Clean test statistics of the records that will enter the significance calculation
	for ei := range experiments {
		exp := &experiments[ei]
		if exp.Incomplete {
			summary.IncompleteExperiments++
		}
		if !exp.Good {
			continue
		}
		summary.GoodExperiments++
		for ri := range exp.Records {
			rec := &exp.Records[ri]
			q0 := rec.TestStatistic
			if math.IsNaN(q0) {
				return nil, fmt.Errorf("%w: q0 is NaN for toy_index=%d mass=%d", core.ErrInvalidInput, rec.ToyIndex, rec.Mass)
			}
			if q0 < 0 && q0 > opts.NegativeTolerance {
				rec.TestStatistic = 0
				summary.NegativeClamped++
			} else if q0 < 0 {
				return nil, core.NewNegativeTestStatisticError(rec.ToyIndex, rec.Mass, q0)
			}
		}
	}

	// Keep the flat record view in sync with cleaned experiment records
	records = records[:0]
	for _, exp := range experiments {
		records = append(records, exp.Records...)
	}

	summary.TotalRecords = len(records)
	summary.TotalExperiments = len(experiments)
	if summary.TotalRecords > 0 {
		summary.FailureRate = float64(summary.FailedFits) / float64(summary.TotalRecords)
	}
	if summary.TotalExperiments > 0 {
		summary.GoodExperimentRate = float64(summary.GoodExperiments) / float64(summary.TotalExperiments)
	}

	ds := &Dataset{
		records:     records,
		experiments: experiments,
		masses:      sortedKeys(masses),
		summary:     summary,
	}

	log.Infof("[Loader] %d toys, %d fits, %d failed (%.1f %%), %d good toys (%.1f %%)",
		summary.TotalExperiments, summary.TotalRecords, summary.FailedFits, 100*summary.FailureRate,
		summary.GoodExperiments, 100*summary.GoodExperimentRate)
	if summary.IncompleteExperiments > 0 {
		log.Warnf("[Loader] %d toys miss fits at some of the %d masses and are excluded",
			summary.IncompleteExperiments, len(masses))
	}
	if summary.NegativeClamped > 0 {
		log.Warnf("[Loader] clamped %d slightly negative q0 values to 0", summary.NegativeClamped)
	}

	return ds, nil
}

// groupExperiments splits records sorted by toy index into experiments. An
// experiment without a fit at every one of numMasses masses is never good.
func groupExperiments(sorted []ToyRecord, policy FailurePolicy, numMasses int) []Experiment {
	var experiments []Experiment
	for start := 0; start < len(sorted); {
		end := start
		for end < len(sorted) && sorted[end].ToyIndex == sorted[start].ToyIndex {
			end++
		}
		recs := make([]ToyRecord, end-start)
		copy(recs, sorted[start:end])

		incomplete := len(recs) < numMasses
		good := !incomplete
		if good && policy == FailureDrop {
			for _, r := range recs {
				if r.Failed {
					good = false
					break
				}
			}
		}
		experiments = append(experiments, Experiment{
			ToyIndex:   sorted[start].ToyIndex,
			Records:    recs,
			Good:       good,
			Incomplete: incomplete,
		})
		start = end
	}
	return experiments
}

func sortedKeys(m map[int]struct{}) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// Summary returns the audit counts
func (d *Dataset) Summary() Summary {
	return d.summary
}

// Records returns all normalized records sorted by (toy index, mass)
func (d *Dataset) Records() []ToyRecord {
	out := make([]ToyRecord, len(d.records))
	copy(out, d.records)
	return out
}

// Masses returns the scanned mass hypotheses in ascending order
func (d *Dataset) Masses() []int {
	out := make([]int, len(d.masses))
	copy(out, d.masses)
	return out
}

// Experiments returns every experiment, good or not, sorted by toy index
func (d *Dataset) Experiments() []Experiment {
	return d.experiments
}

// GoodExperiments returns the experiments whose fits all succeeded
func (d *Dataset) GoodExperiments() []Experiment {
	good := make([]Experiment, 0, d.summary.GoodExperiments)
	for _, e := range d.experiments {
		if e.Good {
			good = append(good, e)
		}
	}
	return good
}

// FailedFits lists the (toy index, mass) pairs whose fits failed
func (d *Dataset) FailedFits() []ToyKey {
	var keys []ToyKey
	for _, r := range d.records {
		if r.Failed {
			keys = append(keys, r.Key())
		}
	}
	return keys
}
