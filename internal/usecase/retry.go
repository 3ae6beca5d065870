package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// retryConfig bounds retryWithBackoff.
type retryConfig struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// fetchRetry is the read policy for tier and status queries: one retry.
var fetchRetry = retryConfig{
	maxAttempts: 2,
	baseDelay:   200 * time.Millisecond,
	maxDelay:    time.Second,
}

// retryWithBackoff calls fn until it succeeds or attempts run out, doubling
// the delay between tries.
func retryWithBackoff[T any](ctx context.Context, cfg retryConfig, log *zerolog.Logger, operation string, fn func(context.Context) (T, error)) (T, error) {
	var (
		result  T
		lastErr error
	)
	for attempt := 1; attempt <= cfg.maxAttempts; attempt++ {
		result, lastErr = fn(ctx)
		if lastErr == nil {
			return result, nil
		}
		log.Warn().Err(lastErr).Str("operation", operation).
			Int("attempt", attempt).Int("max_attempts", cfg.maxAttempts).Msg("attempt failed")

		if attempt < cfg.maxAttempts {
			delay := time.Duration(float64(cfg.baseDelay) * math.Pow(2, float64(attempt-1)))
			if delay > cfg.maxDelay {
				delay = cfg.maxDelay
			}
			select {
			case <-ctx.Done():
				return result, fmt.Errorf("%s cancelled: %w", operation, ctx.Err())
			case <-time.After(delay):
			}
		}
	}
	return result, fmt.Errorf("%s failed after %d attempts: %w", operation, cfg.maxAttempts, lastErr)
}
