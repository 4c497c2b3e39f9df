package resilience

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryConfig configures Retry. It is meant for startup probes such as
// connecting to a store, never for the render path.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	// Default: 5
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	// Default: 200ms
	InitialDelay time.Duration

	// MaxDelay caps the delay between attempts.
	// Default: 5s
	MaxDelay time.Duration

	// OnRetry is called before each retry attempt.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Retry runs op with exponential backoff and jitter until it succeeds,
// attempts run out, or ctx ends.
func Retry(ctx context.Context, config RetryConfig, op func(context.Context) error) error {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 200 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 5 * time.Second
	}

	delay := config.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if lastErr = op(ctx); lastErr == nil {
			return nil
		}
		if attempt == config.MaxAttempts {
			break
		}

		wait := delay
		if wait > 0 {
			// #nosec G404 -- jitter is non-cryptographic timing variance.
			wait += time.Duration(rand.Int64N(int64(wait/4) + 1))
		}
		if config.OnRetry != nil {
			config.OnRetry(attempt, lastErr, wait)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		delay *= 2
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, lastErr)
}
