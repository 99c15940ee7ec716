package devicetest

import (
	"context"
	"fmt"
	"time"
)

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep waits for d, returning early with the context error on cancellation.
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

// Retry calls fn up to attempts times with a fixed interval between failed
// attempts. It returns nil on the first success, or the last error wrapped
// with ErrRetriesExceeded.
func Retry(ctx context.Context, attempts int, interval time.Duration, sleep SleepFunc, fn func(attempt int) error) error {
	if attempts < 1 {
		attempts = 1
	}

	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if lastErr = fn(attempt); lastErr == nil {
			return nil
		}

		if attempt == attempts {
			break
		}

		if err := sleep(ctx, interval); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExceeded, attempts, lastErr)
}
