// Package memory provides an in-process Queue for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"time"
)

// Queue is a bounded in-memory FIFO with context-aware operations.
type Queue struct {
	ch chan string
}

// NewQueue constructs a queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Queue{ch: make(chan string, capacity)}
}

// Push appends a name or returns when the context ends.
func (q *Queue) Push(ctx context.Context, name string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("queue push canceled: %w", ctx.Err())
	case q.ch <- name:
		return nil
	}
}

// BlockPop removes the head, blocking up to timeout.
func (q *Queue) BlockPop(ctx context.Context, timeout time.Duration) (string, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", false, fmt.Errorf("queue pop canceled: %w", ctx.Err())
	case <-timer.C:
		return "", false, nil
	case name := <-q.ch:
		return name, true, nil
	}
}

// Len reports the current depth.
func (q *Queue) Len(_ context.Context) (int64, error) {
	return int64(len(q.ch)), nil
}
