package storage

import (
	"context"
	"time"

	"github.com/nounverb/nounverb/pkg/verrors"
)

// RetryConfig configures the exponential backoff applied around any Backend
// call that fails with StorageTransient.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig matches §4.7's stated defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
	}
}

// WithRetry runs fn, retrying with exponential backoff while it returns a
// StorageTransientError. A StoragePermanentError, or any other error, is
// returned immediately without retrying. Honors ctx cancellation between
// attempts.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	delay := cfg.InitialDelay
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !verrors.IsTransient(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return lastErr
}
