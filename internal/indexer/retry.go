package indexer

import (
	"context"
	"time"
)

// pause blocks for d or until ctx is done.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// withRetry runs fn up to maxAttempts times, pausing delay between attempts.
// retryable decides whether an error earns another attempt; nil retries every error.
func withRetry(ctx context.Context, maxAttempts int, delay time.Duration, retryable func(error) bool, fn func(ctx context.Context, attempt int) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 0; ; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt+1 >= maxAttempts {
			return err
		}
		if err := pause(ctx, delay); err != nil {
			return err
		}
	}
}
