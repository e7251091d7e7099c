package resilience

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryConfig tunes [Retry]. The zero value retries once after BaseDelay's
// default with fault-agnostic retryability (every error retries).
type RetryConfig struct {
	// MaxRetries is the number of additional attempts after the first failure.
	// Default: 1.
	MaxRetries int

	// BaseDelay is the wait before the first retry; each subsequent retry
	// doubles it. Default: 250ms.
	BaseDelay time.Duration

	// MaxDelay caps the per-retry wait. Default: 5s.
	MaxDelay time.Duration

	// JitterFactor spreads the delay by ±(delay * JitterFactor) so retries
	// from concurrent pipelines do not land on the backend at once.
	// Default: 0.2.
	JitterFactor float64

	// IsRetryable decides whether a failure is worth another attempt.
	// Nil retries every error.
	IsRetryable func(error) bool
}

// withDefaults returns cfg with zero fields replaced by package defaults.
func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 1
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 250 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.JitterFactor <= 0 {
		c.JitterFactor = 0.2
	}
	return c
}

// Retry runs fn up to 1+MaxRetries times, backing off exponentially between
// attempts. It returns fn's first successful result, or the last error once
// the attempt budget is spent, the error is not retryable, or ctx is done.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func(context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	var (
		zero    T
		lastErr error
	)
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(cfg, attempt)
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return zero, ctx.Err()
			case <-t.C:
			}
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}
		if cfg.IsRetryable != nil && !cfg.IsRetryable(err) {
			return zero, lastErr
		}
	}
	return zero, lastErr
}

// backoffDelay computes the jittered exponential delay before attempt
// (1-based).
func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	delay := cfg.BaseDelay << (attempt - 1)
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	jitter := time.Duration(float64(delay) * cfg.JitterFactor)
	if jitter > 0 {
		delay += time.Duration(rand.Int64N(int64(2*jitter+1))) - jitter
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}
