package servicetask

import (
	"context"
	"errors"
)

var (
	// ErrInvalidArgument is returned by New when settings or work are missing.
	ErrInvalidArgument = errors.New("invalid argument")

	// errDelayInterrupted marks a wait that ended because of a wake request.
	// It never leaves the run loop.
	errDelayInterrupted = errors.New("delay interrupted")
)

// isCancellation reports whether an iteration ended because the run was
// cancelled rather than because the work failed.
func isCancellation(run context.Context, err error) bool {
	if run.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled)
}
