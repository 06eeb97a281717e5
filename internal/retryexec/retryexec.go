// Package retryexec is the generic bounded-retry executor described in
// spec.md §4.6: exponential backoff with jitter, plus non-retryable
// error classification. It is used by the transport substrate, which the
// offline queue also sends through; the queue's own per-item attempts
// counter is kept separately and does not use this package.
//
// Directly grounded on retry.go's RetryManager.CalculateBackoff and
// ShouldRetry, generalized from a fixed QueuedEvent shape into a
// type-parameterized operation.
package retryexec

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config controls the backoff schedule (spec.md §6).
type Config struct {
	MaxRetries     int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64 // e.g. 0.1 for ±10%
}

// Result is the final outcome of a retried operation (spec.md §4.6).
type Result[T any] struct {
	Success      bool
	Value        T
	Err          error
	Attempts     int
	TotalElapsed time.Duration
}

// NonRetryableError marks an error as ineligible for retry regardless
// of attempts remaining — the non-retryable classification of spec.md
// §4.6 (status codes 400/401/403/404, or symbolic classes
// ValidationError/TypeError).
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string { return e.Err.Error() }
func (e *NonRetryableError) Unwrap() error { return e.Err }

// NonRetryable wraps err so Do stops retrying immediately.
func NonRetryable(err error) error {
	return &NonRetryableError{Err: err}
}

func isNonRetryable(err error) bool {
	var nr *NonRetryableError
	return errors.As(err, &nr)
}

// sleep is overridable in tests so backoff delays don't actually block.
var sleep = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// now is overridable in tests.
var now = time.Now

// Do runs op in a loop of at most cfg.MaxRetries+1 attempts. The delay
// before attempt i (0-indexed, i>=1) is
// min(InitialDelay * Multiplier^(i-1), MaxDelay) plus jitter uniformly
// in ±JitterFraction of that value, rounded to a non-negative integer
// (spec.md §4.6). op is considered failed only after all attempts are
// exhausted or a non-retryable error is returned.
func Do[T any](ctx context.Context, cfg Config, op func(ctx context.Context, attempt int) (T, error)) Result[T] {
	start := now()
	var zero T
	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= cfg.MaxRetries+1; attempt++ {
		if attempt > 1 {
			delay := backoff(cfg, attempt-1)
			if err := sleep(ctx, delay); err != nil {
				return Result[T]{Success: false, Value: zero, Err: err, Attempts: attempts, TotalElapsed: now().Sub(start)}
			}
		}

		attempts = attempt
		value, err := op(ctx, attempt)
		if err == nil {
			return Result[T]{Success: true, Value: value, Attempts: attempts, TotalElapsed: now().Sub(start)}
		}

		lastErr = err
		if isNonRetryable(err) {
			break
		}
	}

	return Result[T]{Success: false, Value: zero, Err: lastErr, Attempts: attempts, TotalElapsed: now().Sub(start)}
}

// backoff computes the delay before attempt i (1-indexed in the public
// contract's terms, i.e. the (i+1)-th call overall).
func backoff(cfg Config, i int) time.Duration {
	base := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(i-1))
	if cfg.MaxDelay > 0 && base > float64(cfg.MaxDelay) {
		base = float64(cfg.MaxDelay)
	}

	jitter := base * cfg.JitterFraction * (2*rand.Float64() - 1)
	d := base + jitter
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
