package async

import (
	"context"
	"math/rand"
	"time"
)

// Sleep blocks for d or until the context is done, whichever comes first.
// Returns the context error on cancellation, nil after a full sleep.
// Non-positive durations return immediately.
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

// Wait sleeps for d and then blocks while gate is paused. It is the delay
// primitive the periodic workers build their loops on: cancellation wins
// over both the timer and the pause, and a pause taking effect mid-sleep
// still blocks the caller before the next iteration starts.
// A nil gate degrades to a plain Sleep.
func Wait(ctx context.Context, gate *Gate, d time.Duration) error {
	if err := Sleep(ctx, d); err != nil {
		return err
	}
	if gate == nil {
		return nil
	}
	return gate.AwaitRunning(ctx)
}

// Jitter returns d scaled by a random factor in [1-fraction, 1+fraction].
// Fractions outside (0, 1] return d unchanged.
func Jitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 || fraction > 1 {
		return d
	}
	factor := 1 + (rand.Float64()*2-1)*fraction
	return time.Duration(float64(d) * factor)
}
