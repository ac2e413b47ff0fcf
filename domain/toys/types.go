package toys

import (
	"fmt"
	"sort"
)

// StatusConverged is the fit status code of a successful minimization
const StatusConverged = 0

// DefaultNegativeTolerance is the most negative test statistic still treated as numerical noise
const DefaultNegativeTolerance = -0.05

// ToyRecord is one fit outcome for one (experiment, mass hypothesis) pair
type ToyRecord struct {
	ToyIndex             int     `json:"toy_index" db:"toy_index"`
	Seed                 int     `json:"seed" db:"seed"`
	Mass                 int     `json:"mass" db:"mass"`
	TestStatistic        float64 `json:"q0" db:"q0"`
	FittedSignalStrength float64 `json:"muhat" db:"muhat"`
	MuRange              float64 `json:"mu_range" db:"mu_range"`
	UnconditionalStatus  int     `json:"uncond_status" db:"uncond_status"`
	ConditionalStatus    int     `json:"cond_status" db:"cond_status"`
	UnconditionalCovQual int     `json:"uncond_cov_qual" db:"uncond_covqual"`
	ConditionalCovQual   int     `json:"cond_cov_qual" db:"cond_covqual"`

	// Failed is derived from the status codes during normalization
	Failed bool `json:"failed_fit" db:"-"`
}

// FitFailed reports whether either minimization did not converge
func (r ToyRecord) FitFailed() bool {
	return r.UnconditionalStatus != StatusConverged || r.ConditionalStatus != StatusConverged
}

// Key returns the (toy index, mass) identity of the record
func (r ToyRecord) Key() ToyKey {
	return ToyKey{ToyIndex: r.ToyIndex, Mass: r.Mass}
}

// ToyKey identifies one fit within a global-significance toy table
type ToyKey struct {
	ToyIndex int `json:"toy_index"`
	Mass     int `json:"mass"`
}

func (k ToyKey) String() string {
	return fmt.Sprintf("%d,%d", k.ToyIndex, k.Mass)
}

// Experiment is the set of records sharing a toy index across all scanned masses
type Experiment struct {
	ToyIndex   int
	Records    []ToyRecord // sorted by mass
	Good       bool
	Incomplete bool // no record at some scanned mass
}

// FailurePolicy decides how failed fits enter the significance calculation
type FailurePolicy string

const (
	// FailureDrop excludes every experiment that contains a failed fit
	FailureDrop FailurePolicy = "drop"
	// FailureZero replaces the test statistic of failed fits with 0 and keeps all experiments
	FailureZero FailurePolicy = "zero"
)

// ParseFailurePolicy validates a policy name
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case FailureDrop, "":
		return FailureDrop, nil
	case FailureZero:
		return FailureZero, nil
	}
	return "", fmt.Errorf("unknown failure policy %q (want drop|zero)", s)
}

// Summary holds audit counts produced by normalization
type Summary struct {
	TotalRecords       int     `json:"total_records"`
	TotalExperiments   int     `json:"total_experiments"`
	FailedFits         int     `json:"failed_fits"`
	FailureRate        float64 `json:"failure_rate"`
	GoodExperiments    int     `json:"good_experiments"`
	GoodExperimentRate float64 `json:"good_experiment_rate"`
	NegativeClamped    int     `json:"negative_clamped"`
	BoundaryZeroed     int     `json:"boundary_zeroed"`

	// IncompleteExperiments counts experiments without a fit at every scanned mass
	IncompleteExperiments int `json:"incomplete_experiments"`
}

func sortRecords(records []ToyRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].ToyIndex != records[j].ToyIndex {
			return records[i].ToyIndex < records[j].ToyIndex
		}
		return records[i].Mass < records[j].Mass
	})
}
