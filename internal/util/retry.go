package util

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/spachava753/peerlab/internal/models"
)

// Retry runs op until it succeeds, fails with a non-retryable error, or the
// attempt budget in cfg is spent. Only errors for which models.Retryable
// reports true are retried. The last error is returned unwrapped.
func Retry(ctx context.Context, cfg models.RetryConfig, name string, op func() error) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	if cfg.InitialDelayMs > 0 {
		b.InitialInterval = time.Duration(cfg.InitialDelayMs) * time.Millisecond
	}
	if cfg.MaxDelayMs > 0 {
		b.MaxInterval = time.Duration(cfg.MaxDelayMs) * time.Millisecond
	}
	if cfg.Multiplier >= 1 {
		b.Multiplier = cfg.Multiplier
	}
	b.MaxElapsedTime = 0

	attempt := 0
	wrapped := func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if !models.Retryable(err) {
			return backoff.Permanent(err)
		}
		slog.Debug("retryable failure", "op", name, "attempt", attempt, "max_attempts", attempts, "error", err)
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
	err := backoff.Retry(wrapped, policy)
	if err != nil && ctx.Err() != nil && models.Retryable(err) {
		return ctx.Err()
	}
	return err
}
