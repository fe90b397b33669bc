// Package retry runs calls with a bounded number of attempts, exponential
// backoff with jitter and an optional per-attempt timeout.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"time"
)

// Config configures retry behavior.
type Config struct {
	Attempts     int           // total attempts, including the first (default: 3)
	BaseDelay    time.Duration // base delay for exponential backoff (default: 1s)
	MaxDelay     time.Duration // cap on a single backoff (default: 30s)
	JitterFactor float64       // ±fraction of randomisation (default: 0.25)
	Timeout      time.Duration // per-attempt timeout, zero disables it
}

// Default returns sensible defaults.
func Default() Config {
	return Config{
		Attempts:     3,
		BaseDelay:    time.Second,
		MaxDelay:     30 * time.Second,
		JitterFactor: 0.25,
	}
}

// temporary is implemented by the pipeline error types.
type temporary interface {
	Temporary() bool
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so that no further attempts are made.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsTransient reports whether another attempt might succeed.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var perm *permanentError
	if errors.As(err, &perm) {
		return false
	}
	var tmp temporary
	if errors.As(err, &tmp) {
		return tmp.Temporary()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Do executes fn until it succeeds, returns a non-transient error, the
// attempts run out or ctx is done.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	_, err := DoValue(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue is Do for functions that return a result.
func DoValue[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, fmt.Errorf("%w (after %v)", lastErr, err)
			}
			return zero, err
		}
		result, err := runAttempt(ctx, cfg.Timeout, fn)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !IsTransient(err) || attempt == attempts-1 {
			break
		}
		select {
		case <-time.After(backoff(attempt, cfg)):
		case <-ctx.Done():
			return zero, lastErr
		}
	}
	return zero, lastErr
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}

// backoff calculates exponential backoff with jitter: base * 2^attempt,
// capped at MaxDelay.
func backoff(attempt int, cfg Config) time.Duration {
	base := cfg.BaseDelay
	if base <= 0 {
		return 0
	}
	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	delay := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if delay > maxDelay {
		delay = maxDelay
	}
	if cfg.JitterFactor > 0 {
		jitter := float64(delay) * cfg.JitterFactor
		delay = time.Duration(float64(delay) + (rand.Float64()*2-1)*jitter)
		if delay < 0 {
			delay = 0
		}
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return delay
}
