package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances instantly on Sleep so pacing logic runs without wall
// time.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.slept = append(c.slept, d)
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) totalSlept() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sum time.Duration
	for _, d := range c.slept {
		sum += d
	}
	return sum
}

var testCfg = Config{
	MinDelay:          6500 * time.Millisecond,
	MaxCallsPerMinute: 8,
}

func TestLocal_FirstCallImmediate(t *testing.T) {
	clk := newFakeClock()
	l := NewLocal(testCfg, clk)

	slept, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.Zero(t, slept)
}

func TestLocal_MinDelayEnforced(t *testing.T) {
	clk := newFakeClock()
	l := NewLocal(testCfg, clk)
	ctx := context.Background()

	_, err := l.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, l.Record(ctx))

	// 2s after the last call the budget owes 4.5s more.
	clk.Advance(2 * time.Second)
	slept, err := l.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4500*time.Millisecond, slept)
}

func TestLocal_NoSleepAfterFullDelay(t *testing.T) {
	clk := newFakeClock()
	l := NewLocal(testCfg, clk)
	ctx := context.Background()

	require.NoError(t, l.Record(ctx))
	clk.Advance(testCfg.MinDelay)

	slept, err := l.Acquire(ctx)
	require.NoError(t, err)
	assert.Zero(t, slept)
}

func TestLocal_PerMinuteCap(t *testing.T) {
	clk := newFakeClock()
	l := NewLocal(testCfg, clk)
	ctx := context.Background()

	for i := 0; i < testCfg.MaxCallsPerMinute; i++ {
		require.NoError(t, l.Record(ctx))
	}

	clk.Advance(testCfg.MinDelay)
	slept, err := l.Acquire(ctx)
	require.NoError(t, err)
	// At the cap the budget waits a full extra minimum delay.
	assert.Equal(t, testCfg.MinDelay, slept)

	stats, err := l.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.CallsThisMinute)
}

func TestLocal_WindowExpiry(t *testing.T) {
	clk := newFakeClock()
	l := NewLocal(testCfg, clk)
	ctx := context.Background()

	for i := 0; i < testCfg.MaxCallsPerMinute; i++ {
		require.NoError(t, l.Record(ctx))
	}
	clk.Advance(Window)

	slept, err := l.Acquire(ctx)
	require.NoError(t, err)
	assert.Zero(t, slept)
}

func TestLocal_MinDelayHoldsAcrossCalls(t *testing.T) {
	clk := newFakeClock()
	l := NewLocal(testCfg, clk)
	ctx := context.Background()

	// A run of acquire/record pairs never lets two calls land closer than
	// the minimum delay.
	var last time.Time
	for i := 0; i < 5; i++ {
		_, err := l.Acquire(ctx)
		require.NoError(t, err)
		now := clk.Now()
		if !last.IsZero() {
			assert.GreaterOrEqual(t, now.Sub(last), testCfg.MinDelay)
		}
		last = now
		require.NoError(t, l.Record(ctx))
	}
	assert.GreaterOrEqual(t, clk.totalSlept(), 4*testCfg.MinDelay)
}
