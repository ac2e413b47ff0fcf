package toys

import (
	"math"

	"github.com/montanaflynn/stats"
)

// FitDiagnostics summarizes the fitted signal strength at one mass point.
// A significant mean bias or a fitted strength close to the allowed range
// hints at a badly behaved fit model.
type FitDiagnostics struct {
	Mass          int     `json:"mass"`
	NumFits       int     `json:"num_fits"`
	MuhatMin      float64 `json:"muhat_min"`
	MuhatMax      float64 `json:"muhat_max"`
	MuhatMean     float64 `json:"muhat_mean"`
	MuhatStd      float64 `json:"muhat_std"`
	MeanError     float64 `json:"muhat_mean_error"`
	BiasSig       float64 `json:"mu_bias_sig"`
	MuRange       float64 `json:"mu_range"`
	MaxOverRange  float64 `json:"max_muhat_over_range"`
	FailureRate   float64 `json:"failure_rate"`
	AbsMaxOverStd float64 `json:"muhat_abs_max_over_std"`
}

// Diagnostics computes per-mass fit diagnostics over the non-failed fits
func (d *Dataset) Diagnostics() ([]FitDiagnostics, error) {
	type acc struct {
		muhat   stats.Float64Data
		muRange float64
		total   int
		failed  int
	}
	byMass := make(map[int]*acc, len(d.masses))
	for _, m := range d.masses {
		byMass[m] = &acc{muRange: math.Inf(1)}
	}
	for _, r := range d.records {
		a := byMass[r.Mass]
		a.total++
		if r.Failed {
			a.failed++
			continue
		}
		a.muhat = append(a.muhat, r.FittedSignalStrength)
		if r.MuRange < a.muRange {
			a.muRange = r.MuRange
		}
	}

	out := make([]FitDiagnostics, 0, len(d.masses))
	for _, m := range d.masses {
		a := byMass[m]
		diag := FitDiagnostics{
			Mass:        m,
			NumFits:     len(a.muhat),
			FailureRate: float64(a.failed) / float64(a.total),
			MuhatStd:    math.NaN(),
			MeanError:   math.NaN(),
			BiasSig:     math.NaN(),
		}
		if len(a.muhat) == 0 {
			out = append(out, diag)
			continue
		}

		var err error
		if diag.MuhatMin, err = stats.Min(a.muhat); err != nil {
			return nil, err
		}
		if diag.MuhatMax, err = stats.Max(a.muhat); err != nil {
			return nil, err
		}
		if diag.MuhatMean, err = stats.Mean(a.muhat); err != nil {
			return nil, err
		}
		if len(a.muhat) > 1 {
			if diag.MuhatStd, err = stats.StandardDeviationSample(a.muhat); err != nil {
				return nil, err
			}
			diag.MeanError = diag.MuhatStd / math.Sqrt(float64(len(a.muhat)))
			diag.BiasSig = diag.MuhatMean / diag.MeanError
			diag.AbsMaxOverStd = math.Max(-diag.MuhatMin, diag.MuhatMax) / diag.MuhatStd
		}
		diag.MuRange = a.muRange
		diag.MaxOverRange = diag.MuhatMax / a.muRange
		out = append(out, diag)
	}
	return out, nil
}
