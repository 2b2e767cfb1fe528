// Package retry runs an operation again after transient failures, waiting a
// quadratically growing delay between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy controls how often and how patiently an operation is retried.
type Policy struct {
	// Attempts is the total number of calls including the first one. Values
	// below one mean a single call.
	Attempts int
	// BaseDelay scales the wait: after attempt n the wait is BaseDelay * n².
	BaseDelay time.Duration
	// MaxDelay caps a single wait. Zero means no cap.
	MaxDelay time.Duration
	// Retryable reports whether err is worth another attempt. nil retries
	// everything not marked Permanent.
	Retryable func(err error) bool
	// OnRetry runs after a failed attempt, before the wait. attempt is 1-indexed.
	OnRetry func(attempt int, err error)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Value unwraps the marker before
// returning, so callers see the original error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Value calls fn until it succeeds, the attempts run out, or the error is not
// retryable. It returns the last error on failure. A context cancelled while
// waiting ends the loop with the context error.
func Value[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := max(p.Attempts, 1)

	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		if attempt >= attempts || (p.Retryable != nil && !p.Retryable(err)) {
			return zero, err
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}

		t := time.NewTimer(p.Backoff(attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return zero, fmt.Errorf("retry cancelled after attempt %d: %w", attempt, ctx.Err())
		}
	}
}

// Do is Value for operations without a result.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := Value(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Backoff returns the wait after the given failed attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	d := p.BaseDelay * time.Duration(attempt*attempt)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}
