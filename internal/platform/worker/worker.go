// Package worker provides context-aware timing helpers for background
// loops: sleeps that end early on cancellation instead of overrunning
// shutdown.
package worker

import (
	"context"
	"fmt"
	"time"
)

// Wait blocks until the duration elapses or the context is canceled.
// Returns a wrapped context error on cancellation.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("wait interrupted: %w", ctx.Err())
	case <-time.After(d):
		return nil
	}
}

// WaitUntil blocks until the given time or the context is canceled.
func WaitUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return nil
	}

	return Wait(ctx, d)
}
