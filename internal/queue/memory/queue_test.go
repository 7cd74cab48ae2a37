package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pineapple-index/subindex/internal/queue/memory"
)

func TestQueue_FIFO(t *testing.T) {
	q := memory.NewQueue(8)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, "first"))
	require.NoError(t, q.Push(ctx, "second"))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	name, ok, err := q.BlockPop(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "first", name)

	name, ok, err = q.BlockPop(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", name)
}

func TestQueue_PopTimesOutEmpty(t *testing.T) {
	q := memory.NewQueue(1)

	start := time.Now()
	_, ok, err := q.BlockPop(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestQueue_PopCanceled(t *testing.T) {
	q := memory.NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok, err := q.BlockPop(ctx, time.Minute)
	require.Error(t, err)
	assert.False(t, ok)
}
