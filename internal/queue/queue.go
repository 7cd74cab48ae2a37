// Package queue defines the metadata refresh work queue: a named FIFO of
// entity names shared between the trigger surface and the refresh worker.
package queue

import (
	"context"
	"time"
)

// Queue is a FIFO of entity names. Failed items are pushed back onto the
// tail by the consumer, so delivery is at-least-once; the database's
// uniqueness constraints absorb the duplicates.
type Queue interface {
	// Push appends a name to the tail.
	Push(ctx context.Context, name string) error

	// BlockPop removes the head, blocking up to timeout. The second result
	// is false when the wait timed out with nothing available.
	BlockPop(ctx context.Context, timeout time.Duration) (string, bool, error)

	// Len reports the current queue depth, best effort.
	Len(ctx context.Context) (int64, error)
}
