package controller

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration indicates invalid sweep parameters. No solver call is made.
	ErrConfiguration = errors.New("invalid sweep configuration")

	// ErrSolverUnavailable indicates the solver could not execute a
	// configuration after all retries.
	ErrSolverUnavailable = errors.New("solver unavailable")

	// ErrNoProgress indicates an iteration did not move the minimum frequency forward.
	ErrNoProgress = errors.New("sweep made no progress")

	// ErrSolverTimeout indicates one iteration exceeded its time budget.
	ErrSolverTimeout = errors.New("solver iteration timed out")

	// ErrIterationLimit indicates the sweep hit its iteration cap before covering the range.
	ErrIterationLimit = errors.New("sweep iteration limit reached")
)

// SweepError is returned by Sweep on failure. It wraps one of the package
// errors (or a context error) and keeps the partial result.
type SweepError struct {
	// Iteration is the 1-based iteration that failed; zero when the sweep
	// failed before the first iteration.
	Iteration int

	// Setup is the configuration name of the failed iteration, if any.
	Setup string

	// Result is the partial result collected before the failure.
	Result *Result

	Err error
}

func (e *SweepError) Error() string {
	if e.Setup == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("iteration %d (%s): %v", e.Iteration, e.Setup, e.Err)
}

func (e *SweepError) Unwrap() error {
	return e.Err
}

// Partial extracts the partial result from err, if err came from Sweep.
func Partial(err error) (*Result, bool) {
	var se *SweepError
	if errors.As(err, &se) && se.Result != nil {
		return se.Result, true
	}
	return nil, false
}
