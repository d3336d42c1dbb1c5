package jobs

import (
	"errors"
	"fmt"
)

// Sentinel errors for job operations.
// These can be checked with errors.Is().
var (
	ErrJobNotFound   = errors.New("job not found")
	ErrJobNotPending = errors.New("job is not pending")
	ErrJobNotRunning = errors.New("job is not running")
	ErrJobTerminal   = errors.New("job already finished")
)

// jobNotFoundError returns a wrapped error for a missing job.
func jobNotFoundError(id string) error {
	return fmt.Errorf("%w: %s", ErrJobNotFound, id)
}

// jobStateError returns a wrapped error for a job in an unexpected state.
func jobStateError(sentinel error, id string, status Status) error {
	return fmt.Errorf("%w (status: %s): %s", sentinel, status, id)
}
