package quality

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors returned by the scorers.
// These can be checked with errors.Is().
var (
	// ErrInvalidInput is returned for zero-area pixel samples and
	// zero-dimension video metadata.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCancelled is returned when the caller's context ends mid-scan.
	// A cancelled call never yields a score.
	ErrCancelled = errors.New("analysis cancelled")
)

// invalidInputError returns a wrapped ErrInvalidInput with detail.
func invalidInputError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// cancelledError wraps both ErrCancelled and the context's own error so
// callers can match either.
func cancelledError(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
}
