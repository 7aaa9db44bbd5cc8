package util

import (
	"context"
	"fmt"
	"time"
)

// baseRetryDelay is the wait after the first failed attempt; every
// subsequent wait doubles it.
const baseRetryDelay = time.Second

// RetryWithBackoff runs op until it succeeds or the attempt budget is
// used up. op receives the attempt number starting at 1. The context
// cancels the waits between attempts, not a running op; an op that
// should be cancellable must watch the context itself.
func RetryWithBackoff(ctx context.Context, attempts int, op func(attempt int) error) error {
	if attempts < 1 {
		attempts = 1
	}

	delay := baseRetryDelay
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(attempt); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, err)
}
