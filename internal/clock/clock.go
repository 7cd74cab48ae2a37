// Package clock abstracts wall time so throttling and scheduling logic can be
// tested without real sleeps.
package clock

import (
	"context"
	"time"
)

// Clock provides the current time and interruptible sleeps.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration)
}

// System is the real implementation backed by the time package.
type System struct{}

// Now returns the current wall-clock time.
func (System) Now() time.Time { return time.Now() }

// Sleep blocks for d or until the context finishes, whichever comes first.
func (System) Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
