package graph

import (
	"context"
	"time"
)

// Defaults applied when neither the node nor the orchestrator sets a value.
const (
	DefaultRetryLimit  = 3
	DefaultNodeTimeout = 300 * time.Second
	DefaultBackoffBase = time.Second
	DefaultBackoffMax  = 5 * time.Minute
	DefaultMaxSteps    = 100
)

// computeBackoff returns the delay before retry number attempt (zero based):
// base, 2*base, 4*base and so on, capped at maxDelay when maxDelay > 0.
func computeBackoff(attempt int, base, maxDelay time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	delay := base * time.Duration(1<<attempt)
	if maxDelay > 0 && (delay < base || delay > maxDelay) {
		delay = maxDelay
	}
	return delay
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
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
