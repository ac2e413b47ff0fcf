package app

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"globalsig/domain/core"
	"globalsig/domain/significance"
	"globalsig/domain/toys"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Histogram range of the maximum local significance
const (
	HistogramMin  = 0.0
	HistogramMax  = 5.0
	HistogramBins = 100
)

// Report is the outcome of one global significance analysis
type Report struct {
	RunID                         core.RunID                   `json:"run_id"`
	Method                        significance.Method          `json:"method"`
	Summary                       toys.Summary                 `json:"summary"`
	ObservedMass                  int                          `json:"observed_mass"`
	ObservedQ0                    float64                      `json:"observed_q0"`
	ObservedLocalPValue           float64                      `json:"observed_local_p_value"`
	ObservedLocalSignificance     float64                      `json:"observed_local_significance"`
	Global                        *significance.GlobalResult   `json:"global"`
	TrialFactor                   *significance.TrialFactorFit `json:"trial_factor"`
	TrialFactorGlobalSignificance float64                      `json:"trial_factor_global_significance"`
	Saturations                   map[int]int                  `json:"saturations,omitempty"`
	Histogram                     *Histogram                   `json:"histogram,omitempty"`
	Bootstrap                     *BootstrapResult             `json:"bootstrap,omitempty"`
	RuntimeMs                     int64                        `json:"runtime_ms"`
	MaxSignificances              []float64                    `json:"-"`
}

// Histogram bins the per-experiment maximum significances and overlays the
// expectation from the fitted trial-factor density.
type Histogram struct {
	Edges     []float64 `json:"edges"`
	Counts    []float64 `json:"counts"`
	Expected  []float64 `json:"expected"`
	Underflow int       `json:"underflow"`
	Overflow  int       `json:"overflow"`
}

// NewMaxSignificanceHistogram bins maxSig over [HistogramMin, HistogramMax)
func NewMaxSignificanceHistogram(maxSig []float64, trialFactor float64) *Histogram {
	edges := floats.Span(make([]float64, HistogramBins+1), HistogramMin, HistogramMax)
	h := &Histogram{Edges: edges, Expected: make([]float64, HistogramBins)}

	inRange := make([]float64, 0, len(maxSig))
	for _, v := range maxSig {
		switch {
		case v < HistogramMin:
			h.Underflow++
		case v >= HistogramMax:
			h.Overflow++
		default:
			inRange = append(inRange, v)
		}
	}
	sort.Float64s(inRange)
	h.Counts = stat.Histogram(nil, edges, inRange, nil)

	width := (HistogramMax - HistogramMin) / HistogramBins
	norm := width * float64(len(maxSig))
	for i := range h.Expected {
		center := (edges[i] + edges[i+1]) / 2
		h.Expected[i] = norm * significance.TrialFactorDensity(center, trialFactor)
	}
	return h
}

// Float is a float64 that encodes non-finite values as JSON null
type Float float64

// MarshalJSON implements json.Marshaler
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

type intervalJSON struct {
	Lo Float `json:"lo"`
	Hi Float `json:"hi"`
}

type globalJSON struct {
	ObservedSignificance Float        `json:"observed_significance"`
	NumExperiments       int          `json:"num_experiments"`
	NumExceeding         int          `json:"num_exceeding"`
	PValue               Float        `json:"global_p_value"`
	Significance         Float        `json:"global_significance"`
	PValueInterval       intervalJSON `json:"global_p_value_interval"`
	SignificanceInterval intervalJSON `json:"global_significance_interval"`
}

type bootstrapJSON struct {
	Replicates  int   `json:"replicates"`
	Workers     int   `json:"workers"`
	Seed        int64 `json:"seed"`
	Mean        Float `json:"mean"`
	StdDev      Float `json:"std_dev"`
	StdErr      Float `json:"std_err"`
	Saturations int   `json:"saturations"`
}

// MarshalJSON writes the report with infinite significances as null
func (r *Report) MarshalJSON() ([]byte, error) {
	type alias Report
	out := struct {
		*alias
		ObservedQ0                    Float          `json:"observed_q0"`
		ObservedLocalPValue           Float          `json:"observed_local_p_value"`
		ObservedLocalSignificance     Float          `json:"observed_local_significance"`
		Global                        *globalJSON    `json:"global"`
		TrialFactorGlobalSignificance Float          `json:"trial_factor_global_significance"`
		Bootstrap                     *bootstrapJSON `json:"bootstrap,omitempty"`
	}{
		alias:                         (*alias)(r),
		ObservedQ0:                    Float(r.ObservedQ0),
		ObservedLocalPValue:           Float(r.ObservedLocalPValue),
		ObservedLocalSignificance:     Float(r.ObservedLocalSignificance),
		TrialFactorGlobalSignificance: Float(r.TrialFactorGlobalSignificance),
	}
	if g := r.Global; g != nil {
		out.Global = &globalJSON{
			ObservedSignificance: Float(g.ObservedSignificance),
			NumExperiments:       g.NumExperiments,
			NumExceeding:         g.NumExceeding,
			PValue:               Float(g.PValue),
			Significance:         Float(g.Significance),
			PValueInterval:       intervalJSON{Float(g.PValueInterval.Lo), Float(g.PValueInterval.Hi)},
			SignificanceInterval: intervalJSON{Float(g.SignificanceInterval.Lo), Float(g.SignificanceInterval.Hi)},
		}
	}
	if b := r.Bootstrap; b != nil {
		out.Bootstrap = &bootstrapJSON{
			Replicates:  b.Replicates,
			Workers:     b.Workers,
			Seed:        b.Seed,
			Mean:        Float(b.Mean),
			StdDev:      Float(b.StdDev),
			StdErr:      Float(b.StdErr),
			Saturations: b.Saturations,
		}
	}
	return json.Marshal(out)
}

// WriteText prints the human-readable summary of the report
func (r *Report) WriteText(w io.Writer) error {
	s := r.Summary
	lines := []string{
		fmt.Sprintf("Run: %s (method: %s)", r.RunID, r.Method),
		fmt.Sprintf("Total number of toys: %d", s.TotalExperiments),
		fmt.Sprintf("Failed fits: %d (%.1f %%)", s.FailedFits, 100*s.FailureRate),
		fmt.Sprintf("Good toys: %d (%.1f %%)", s.GoodExperiments, 100*s.GoodExperimentRate),
	}
	if s.IncompleteExperiments > 0 {
		lines = append(lines, fmt.Sprintf("Toys missing mass points: %d", s.IncompleteExperiments))
	}
	lines = append(lines,
		fmt.Sprintf("Observed q0 at mass %d: %.4f (local p-value %.4g, local significance %.3f)",
			r.ObservedMass, r.ObservedQ0, r.ObservedLocalPValue, r.ObservedLocalSignificance),
	)
	if g := r.Global; g != nil {
		lines = append(lines,
			fmt.Sprintf("Toys exceeding observed significance: %d of %d", g.NumExceeding, g.NumExperiments),
			fmt.Sprintf("Global p-value: %.4f %% [%.4f %%, %.4f %%]",
				100*g.PValue, 100*g.PValueInterval.Lo, 100*g.PValueInterval.Hi),
			fmt.Sprintf("Global significance: %.3f [%.3f, %.3f]",
				g.Significance, g.SignificanceInterval.Lo, g.SignificanceInterval.Hi),
		)
	}
	if tf := r.TrialFactor; tf != nil {
		boundary := ""
		if tf.AtBoundary {
			boundary = " (at bound)"
		}
		lines = append(lines,
			fmt.Sprintf("Trial factor: %.2f%s", tf.TrialFactor, boundary),
			fmt.Sprintf("Global significance (trial factor): %.3f", r.TrialFactorGlobalSignificance),
		)
	}
	if len(r.Saturations) > 0 {
		total := 0
		for _, n := range r.Saturations {
			total += n
		}
		lines = append(lines, fmt.Sprintf("Saturated local significances: %d in %d masses", total, len(r.Saturations)))
	}
	if b := r.Bootstrap; b != nil {
		lines = append(lines,
			fmt.Sprintf("Global significance (bootstrap mean of %d): %.3f", b.Replicates, b.Mean),
			fmt.Sprintf("Global significance error (bootstrap std): %.3f", b.StdDev),
			fmt.Sprintf("Error on mean global significance: %.3f", b.StdErr),
		)
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
