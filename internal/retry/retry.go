// Package retry implements the exponential-backoff-with-jitter retry
// policy described in spec.md §4.2.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/haasonsaas/claudekit/internal/apierror"
)

// Config configures retry behavior. JitterFactor and the delay formula
// follow spec.md §3: delay(n) = min(initial * factor^n, max) * (1 + U(-jitter, +jitter)).
type Config struct {
	// MaxAttempts is the maximum number of attempts (including the first). Default 3.
	MaxAttempts int
	// InitialDelay is the delay after the first failure. Default 100ms.
	InitialDelay time.Duration
	// MaxDelay is the maximum delay between attempts, before jitter. Default 10s.
	MaxDelay time.Duration
	// Factor is the multiplier for exponential backoff. Default 2.0.
	Factor float64
	// JitterFactor is clamped to [0, 1] and drives a fresh uniform sample
	// per call: delay * (1 + U(-JitterFactor, +JitterFactor)).
	JitterFactor float64
}

// DefaultConfig returns the retry.Do default: 3 attempts, 100ms initial
// delay, 10s cap, factor 2.0, full jitter.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Factor:       2.0,
		JitterFactor: 1.0,
	}
}

func (c *Config) sanitize() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay < 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.Factor <= 0 {
		c.Factor = 2.0
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = 0
	}
	if c.JitterFactor > 1 {
		c.JitterFactor = 1
	}
}

// NextDelay returns the delay that would be used before attempt n
// (0-indexed), honoring the boundary property from spec.md §8:
// 0 <= NextDelay(n) <= MaxDelay * (1 + JitterFactor).
func (c Config) NextDelay(n int) time.Duration {
	c.sanitize()
	base := float64(c.InitialDelay) * math.Pow(c.Factor, float64(n))
	if base > float64(c.MaxDelay) {
		base = float64(c.MaxDelay)
	}
	jitter := 1 + (rand.Float64()*2-1)*c.JitterFactor // #nosec G404 -- jitter does not require cryptographic randomness
	if jitter < 0 {
		jitter = 0
	}
	return time.Duration(base * jitter)
}

// Result contains the outcome of a retry operation.
type Result struct {
	Attempts int
	Err      error
	Duration time.Duration
}

// retryAfterHint is implemented by *apierror.Error's rate-limit snapshot
// to let a server-suggested retry-after override the computed delay for
// that one step, per spec.md §4.2.
func retryAfterHint(err error) (time.Duration, bool) {
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) && apiErr.RateLimit != nil && apiErr.RateLimit.RetryAfter > 0 {
		return apiErr.RateLimit.RetryAfter, true
	}
	return 0, false
}

// isRetryable decides whether err should be retried: a *PermanentError
// always stops; an *apierror.Error defers to IsRetryable(); anything else
// is treated as retryable (matching the donor's IsRetryable default).
func isRetryable(err error) bool {
	if IsPermanent(err) {
		return false
	}
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}
	return true
}

// Do executes op, retrying on retryable errors per Config. attempt 0 runs
// op; on error, if the error is not retryable or attempt >= max, Do
// returns it; otherwise it sleeps NextDelay(attempt) (or the error's
// retry-after hint, if any) and retries.
func Do(ctx context.Context, config Config, op func() error) Result {
	start := time.Now()
	config.sanitize()
	result := Result{}

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result.Attempts = attempt

		if err := ctx.Err(); err != nil {
			result.Err = err
			result.Duration = time.Since(start)
			return result
		}

		err := op()
		if err == nil {
			result.Err = nil
			result.Duration = time.Since(start)
			return result
		}
		result.Err = err

		if !isRetryable(err) || attempt >= config.MaxAttempts {
			result.Duration = time.Since(start)
			return result
		}

		sleep := config.NextDelay(attempt - 1)
		if hint, ok := retryAfterHint(err); ok {
			sleep = hint
		}

		select {
		case <-ctx.Done():
			result.Err = ctx.Err()
			result.Duration = time.Since(start)
			return result
		case <-time.After(sleep):
		}
	}

	result.Duration = time.Since(start)
	return result
}

// DoWithValue executes an operation that returns a value, with the same
// retry semantics as Do.
func DoWithValue[T any](ctx context.Context, config Config, op func() (T, error)) (T, Result) {
	var value T
	result := Do(ctx, config, func() error {
		var err error
		value, err = op()
		return err
	})
	return value, result
}

// PermanentError marks an error as one that should never be retried,
// regardless of what isRetryable would otherwise conclude.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so IsPermanent reports true for it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err (or something it wraps) is a PermanentError.
func IsPermanent(err error) bool {
	var permanent *PermanentError
	return errors.As(err, &permanent)
}

// Linear returns a Config with no growth and no jitter: every attempt
// waits exactly delay.
func Linear(maxAttempts int, delay time.Duration) Config {
	return Config{MaxAttempts: maxAttempts, InitialDelay: delay, MaxDelay: delay, Factor: 1.0}
}

// Exponential returns a Config with factor 2.0 and full jitter.
func Exponential(maxAttempts int, initial, max time.Duration) Config {
	return Config{MaxAttempts: maxAttempts, InitialDelay: initial, MaxDelay: max, Factor: 2.0, JitterFactor: 1.0}
}
