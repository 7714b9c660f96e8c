package utils

import (
	"context"
	"fmt"
	"time"

	"cars-scraper/internal/types"
)

// Backoff returns the wait before retry number attempt (0-based): unit * 2^attempt.
// With a one second unit that is 1s, 2s, 4s...
func Backoff(unit time.Duration, attempt int) time.Duration {
	return unit * time.Duration(1<<uint(attempt))
}

// Retry runs fn once plus up to maxRetries more times. It stops on the first
// success, on an error types.IsRetryable rejects, or when ctx ends. Between
// attempts it waits Backoff(unit, attempt).
func Retry(ctx context.Context, maxRetries int, unit time.Duration, logger types.Logger, fn func(attempt int) error) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if !types.IsRetryable(lastErr) {
			return lastErr
		}

		if attempt < maxRetries {
			wait := Backoff(unit, attempt)
			logger.Warnf("Attempt %d/%d failed: %v, retrying in %v", attempt+1, maxRetries+1, lastErr, wait)
			if err := Sleep(ctx, wait); err != nil {
				return fmt.Errorf("retry aborted after %d attempts: %w", attempt+1, lastErr)
			}
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", maxRetries+1, lastErr)
}
