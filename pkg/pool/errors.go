package pool

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when a capacity token could not be obtained
	// within the acquire deadline. Retryable.
	ErrTimeout = errors.New("pool: acquire timed out")
	// ErrShuttingDown is returned for any operation attempted after Shutdown.
	ErrShuttingDown = errors.New("pool: shutting down")
	// ErrInvalidConfig is returned by New for conflicting or missing setup.
	ErrInvalidConfig = errors.New("pool: invalid configuration")
)

// CreateError wraps a factory failure. It propagates to whoever requested the
// creation; whether it is retryable depends on the wrapped cause.
type CreateError struct {
	Seq int64
	Err error
}

func (e *CreateError) Error() string {
	return fmt.Sprintf("pool: create object %d: %v", e.Seq, e.Err)
}

func (e *CreateError) Unwrap() error {
	return e.Err
}
