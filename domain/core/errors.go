package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Data integrity errors
	ErrDuplicateToy            = errors.New("duplicate toy record")
	ErrNegativeTestStatistic   = errors.New("negative test statistic after clamping")
	ErrMissingNullDistribution = errors.New("missing null distribution")
	ErrNullCountMismatch       = errors.New("unexpected number of null distributions")
	ErrEmptySample             = errors.New("empty sample")

	// Input errors
	ErrNoExperiments      = errors.New("no good experiments")
	ErrInvalidProbability = errors.New("probability outside [0, 1]")
	ErrInvalidInput       = errors.New("invalid input")

	// Numerical non-convergence
	ErrRootNotConverged = errors.New("root search did not converge")
	ErrFitNotConverged  = errors.New("bounded fit did not converge")
)

// Error constructors with context
func NewDuplicateToyError(toyIndex, mass int) error {
	return fmt.Errorf("%w: toy_index=%d mass=%d", ErrDuplicateToy, toyIndex, mass)
}

func NewMissingNullError(mass int) error {
	return fmt.Errorf("%w for mass %d", ErrMissingNullDistribution, mass)
}

func NewNegativeTestStatisticError(toyIndex, mass int, q0 float64) error {
	return fmt.Errorf("%w: toy_index=%d mass=%d q0=%g", ErrNegativeTestStatistic, toyIndex, mass, q0)
}

// Error checking helpers
func IsDataIntegrityError(err error) bool {
	return errors.Is(err, ErrDuplicateToy) ||
		errors.Is(err, ErrNegativeTestStatistic) ||
		errors.Is(err, ErrMissingNullDistribution) ||
		errors.Is(err, ErrNullCountMismatch) ||
		errors.Is(err, ErrEmptySample)
}

func IsConvergenceError(err error) bool {
	return errors.Is(err, ErrRootNotConverged) ||
		errors.Is(err, ErrFitNotConverged)
}
