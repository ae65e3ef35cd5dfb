// Package resilience provides retry, backoff and circuit breaking for outbound calls.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc backed by a timer.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryConfig controls retries with exponential backoff and jitter.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first. Default: 3.
	MaxAttempts int

	// BaseDelay is the delay unit. Attempt n waits BaseDelay * 2^n. Default: 1s.
	BaseDelay time.Duration

	// MaxDelay caps a single wait. Default: 30s.
	MaxDelay time.Duration

	// MaxJitter is the upper bound of the random delay added to each wait. Default: 1s.
	MaxJitter time.Duration

	// ShouldRetry decides whether err is worth another attempt. Default: IsTransient.
	ShouldRetry func(err error) bool

	// OnRetry is called before each wait with the upcoming attempt number.
	OnRetry func(attempt int, err error)

	// Sleep replaces the real wait in tests.
	Sleep SleepFunc
}

// DefaultRetryConfig returns the policy used for third-party page fetches:
// three attempts, 2^attempt seconds plus up to one second of jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		MaxJitter:   time.Second,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.MaxJitter < 0 {
		c.MaxJitter = 0
	}
	if c.ShouldRetry == nil {
		c.ShouldRetry = IsTransient
	}
	if c.Sleep == nil {
		c.Sleep = Sleep
	}
	return c
}

// Backoff returns the wait before retry number attempt (zero based):
// base * 2^attempt capped at max, plus a random jitter in [0, jitter).
func Backoff(attempt int, base, max, jitter time.Duration) time.Duration {
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if max > 0 && d > max {
		d = max
	}
	if jitter > 0 {
		d += time.Duration(rand.Int64N(int64(jitter)))
	}
	return d
}

// Do runs fn until it succeeds, returns a non-retryable error, or attempts run out.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for functions that return a value.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	var zero T
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !cfg.ShouldRetry(err) || attempt == cfg.MaxAttempts-1 {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err)
		}
		if serr := cfg.Sleep(ctx, Backoff(attempt+1, cfg.BaseDelay, cfg.MaxDelay, cfg.MaxJitter)); serr != nil {
			break
		}
	}
	return zero, lastErr
}

// RetryLogger returns an OnRetry callback that logs each retry.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("resilience: retrying",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
