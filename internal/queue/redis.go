package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultName is the queue key shared by every process.
const DefaultName = "metadata_refresh_queue"

// lister is the slice of the Redis command surface the queue needs.
type lister interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
}

// Redis is the shared Queue implementation over a Redis list.
type Redis struct {
	client lister
	key    string
}

// NewRedis builds a Redis queue on the given list key.
func NewRedis(client lister, key string) *Redis {
	if key == "" {
		key = DefaultName
	}
	return &Redis{client: client, key: key}
}

// Push appends a name to the tail of the list.
func (q *Redis) Push(ctx context.Context, name string) error {
	if err := q.client.RPush(ctx, q.key, name).Err(); err != nil {
		return fmt.Errorf("queue push %q: %w", name, err)
	}
	return nil
}

// BlockPop removes the head, blocking up to timeout.
func (q *Redis) BlockPop(ctx context.Context, timeout time.Duration) (string, bool, error) {
	res, err := q.client.BLPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("queue pop: %w", err)
	}
	// BLPOP returns [key, value].
	if len(res) < 2 {
		return "", false, nil
	}
	return res[1], true, nil
}

// Len reports the list length.
func (q *Redis) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("queue len: %w", err)
	}
	return n, nil
}
