package sim

import "errors"

var (
	// ErrNotConverged indicates Newton iteration reached its limit.
	ErrNotConverged = errors.New("sim: newton iteration did not converge")

	// ErrSingular indicates an exactly singular Jacobian.
	ErrSingular = errors.New("sim: singular jacobian")

	// ErrInvalidState indicates NaN or Inf in the solution.
	ErrInvalidState = errors.New("sim: invalid state (NaN or Inf detected)")
)

// SimulationError wraps a step failure with where it happened.
type SimulationError struct {
	Step    int
	Time    float64
	State   State
	Wrapped error
}

func (e *SimulationError) Error() string {
	return e.Wrapped.Error()
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}
