// Package retry implements exponential backoff with jitter for transient
// provider failures. Retries apply at single-call granularity: one failed
// provider round trip is retried, never a whole iteration or run.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Config controls one retry loop.
type Config struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// InitialDelay is the wait before the second attempt.
	InitialDelay time.Duration

	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration

	// Factor multiplies the delay after every failed attempt.
	Factor float64

	// Jitter, when true, randomizes each delay within ±25%.
	Jitter bool
}

// DefaultConfig matches typical provider guidance: three attempts starting
// at one second, doubling, capped at thirty seconds.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Factor:       2,
		Jitter:       true,
	}
}

// PermanentError wraps an error that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err carries the non-retryable marker.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Do runs op until it succeeds, returns a permanent error, exhausts
// MaxAttempts, or ctx is canceled. The last error is returned unwrapped from
// any permanent marker.
func Do(ctx context.Context, cfg Config, op func() error) error {
	_, err := DoWithValue(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

// DoWithValue is Do for operations that produce a value.
func DoWithValue[T any](ctx context.Context, cfg Config, op func() (T, error)) (T, error) {
	var zero T
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(Backoff(cfg, attempt-1)):
			}
		}

		v, err := op()
		if err == nil {
			return v, nil
		}

		var pe *PermanentError
		if errors.As(err, &pe) {
			return zero, pe.Err
		}
		lastErr = err
	}
	return zero, lastErr
}

// Backoff returns the delay after the given zero-based failed attempt.
func Backoff(cfg Config, attempt int) time.Duration {
	d := float64(cfg.InitialDelay)
	for i := 0; i < attempt; i++ {
		d *= cfg.Factor
	}
	if max := float64(cfg.MaxDelay); cfg.MaxDelay > 0 && d > max {
		d = max
	}
	if cfg.Jitter {
		// ±25% around the nominal delay.
		d = d * (0.75 + rand.Float64()*0.5)
	}
	return time.Duration(d)
}
