// Package ratelimit enforces the shared upstream call budget across every
// process that talks to the remote API.
//
// Two constraints are enforced together: a minimum delay between any two
// calls, and a maximum number of calls in any trailing 60-second window.
// The authoritative state lives in a shared key-value store so independent
// processes observe each other's calls; a process-local limiter with the
// same algorithm covers shared-store outages.
package ratelimit

import (
	"context"
	"time"
)

// Window is the rolling period the per-minute cap applies to.
const Window = time.Minute

// Stats is a snapshot of the budget for the operational surface.
type Stats struct {
	LastCall          time.Time     `json:"last_call"`
	CallsThisMinute   int           `json:"calls_this_minute"`
	MaxCallsPerMinute int           `json:"max_calls_per_minute"`
	MinDelay          time.Duration `json:"min_delay"`
}

// Budget is consulted before and updated after every upstream call.
type Budget interface {
	// Acquire blocks until one call is safe to make and returns the time
	// spent sleeping. It fails only when the context finishes first.
	Acquire(ctx context.Context) (time.Duration, error)

	// Record notes that one call just completed, success or failure.
	// It must be called exactly once per call made after Acquire.
	Record(ctx context.Context) error

	// Stats reports the budget's current view of shared state.
	Stats(ctx context.Context) (Stats, error)
}

// Config holds the two budget constraints.
type Config struct {
	MinDelay          time.Duration
	MaxCallsPerMinute int
}
