// Package retry provides exponential backoff for outbound control plane calls.
//
// Calls are retried while the supplied predicate reports the failure as
// transient. Backoff doubles on each attempt, is capped by MaxBackoff and can
// be spread with jitter. Context cancellation ends the loop immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// Config defines the retry behavior.
type Config struct {
	// MaxAttempts is the total number of calls, including the first one.
	MaxAttempts int

	// InitialBackoff is the wait before the second attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps a single wait. Zero means no cap.
	MaxBackoff time.Duration

	// Jitter adds up to this fraction of the backoff at random (0.0 to 1.0).
	Jitter float64
}

// DefaultConfig is tuned for control plane requests issued from a polling loop:
// a handful of quick attempts, since the next poll retries anyway.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Jitter:         0.2,
	}
}

// ShouldRetryFunc reports whether an error is transient.
// A nil ShouldRetryFunc retries every error.
type ShouldRetryFunc func(error) bool

// ErrExhausted is wrapped into the error returned once all attempts failed.
var ErrExhausted = errors.New("retries exhausted")

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// run out, or ctx is done.
func Do(ctx context.Context, cfg Config, fn func(context.Context) error, shouldRetry ShouldRetryFunc) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(cfg.Backoff(attempt - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if shouldRetry != nil && !shouldRetry(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, lastErr)
}

// Backoff returns the wait before retry number n (1-based).
func (c Config) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}

	backoff := c.InitialBackoff
	for i := 1; i < n; i++ {
		backoff *= 2
		if c.MaxBackoff > 0 && backoff >= c.MaxBackoff {
			backoff = c.MaxBackoff
			break
		}
	}
	if c.MaxBackoff > 0 && backoff > c.MaxBackoff {
		backoff = c.MaxBackoff
	}

	if c.Jitter > 0 {
		backoff += time.Duration(rand.Float64() * c.Jitter * float64(backoff))
	}
	return backoff
}
