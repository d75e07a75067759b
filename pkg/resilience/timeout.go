package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout matches every *TimeoutError via errors.Is.
var ErrTimeout = errors.New("operation timed out")

// TimeoutError reports the limit an operation ran past.
type TimeoutError struct {
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation timed out after %s", e.Limit)
}

// Is makes errors.Is(err, ErrTimeout) and errors.Is(err, context.DeadlineExceeded) hold.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout || target == context.DeadlineExceeded
}

// WithTimeout runs fn under a deadline of timeout and stops waiting once it
// passes, even when fn ignores its context; fn's goroutine is then left to
// finish on its own. A non-positive timeout runs fn inline with ctx.
//
// Cancellation of ctx is returned as ctx.Err(), not as a timeout.
func WithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(runCtx) }()

	select {
	case err := <-done:
		if err != nil && ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return &TimeoutError{Limit: timeout}
		}
		return err
	case <-runCtx.Done():
		if err := ctx.Err(); err != nil {
			return err
		}
		return &TimeoutError{Limit: timeout}
	}
}
