package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/pineapple-index/subindex/internal/clock"
	"github.com/pineapple-index/subindex/internal/metrics"
)

// Local is a process-local Budget. It runs the same algorithm as the shared
// implementation against in-process state, and doubles as the fallback when
// the shared store is unreachable.
type Local struct {
	cfg   Config
	clock clock.Clock

	mu          sync.Mutex
	lastCall    time.Time
	count       int
	windowStart time.Time
}

// NewLocal builds a Local budget.
func NewLocal(cfg Config, clk clock.Clock) *Local {
	if clk == nil {
		clk = clock.System{}
	}
	return &Local{cfg: cfg, clock: clk}
}

// Acquire blocks until both constraints allow one call.
func (l *Local) Acquire(ctx context.Context) (time.Duration, error) {
	var slept time.Duration

	l.mu.Lock()
	now := l.clock.Now()
	l.expireLocked(now)

	if !l.lastCall.IsZero() {
		if elapsed := now.Sub(l.lastCall); elapsed < l.cfg.MinDelay {
			wait := l.cfg.MinDelay - elapsed
			l.mu.Unlock()
			l.clock.Sleep(ctx, wait)
			slept += wait
			if err := ctx.Err(); err != nil {
				return slept, err
			}
			l.mu.Lock()
			now = l.clock.Now()
			l.expireLocked(now)
		}
	}

	if l.count >= l.cfg.MaxCallsPerMinute {
		// At the cap: wait out a full minimum delay and reset the counter
		// rather than computing the exact window remainder.
		l.count = 0
		l.windowStart = time.Time{}
		l.mu.Unlock()
		l.clock.Sleep(ctx, l.cfg.MinDelay)
		slept += l.cfg.MinDelay
		if err := ctx.Err(); err != nil {
			return slept, err
		}
		l.mu.Lock()
	}
	l.mu.Unlock()

	metrics.ObserveRateLimitSleep(slept)
	return slept, nil
}

// Record notes a completed call.
func (l *Local) Record(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	l.expireLocked(now)
	l.lastCall = now
	if l.windowStart.IsZero() {
		l.windowStart = now
	}
	l.count++
	return nil
}

// Stats reports local state.
func (l *Local) Stats(_ context.Context) (Stats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expireLocked(l.clock.Now())
	return Stats{
		LastCall:          l.lastCall,
		CallsThisMinute:   l.count,
		MaxCallsPerMinute: l.cfg.MaxCallsPerMinute,
		MinDelay:          l.cfg.MinDelay,
	}, nil
}

// expireLocked resets the rolling counter once its window has passed,
// mirroring the key expiry the shared store applies.
func (l *Local) expireLocked(now time.Time) {
	if !l.windowStart.IsZero() && now.Sub(l.windowStart) >= Window {
		l.count = 0
		l.windowStart = time.Time{}
	}
}
