package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pineapple-index/subindex/internal/clock"
	"github.com/pineapple-index/subindex/internal/metrics"
)

// Shared-state keys. Every process coordinating on one budget must agree
// on these.
const (
	KeyLastCall  = "subindex:api:last_call_timestamp"
	KeyCallCount = "subindex:api:call_count_1min"
)

// kv is the slice of the Redis command surface the shared budget needs.
// *redis.Client satisfies it; tests substitute a fake.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Shared is the cross-process Budget backed by a shared key-value store.
// Store errors never fail Acquire: the process degrades to the local
// fallback limiter, preferring under-throttling safety over availability.
type Shared struct {
	kv     kv
	local  *Local
	cfg    Config
	clock  clock.Clock
	logger *zap.Logger
}

// NewShared builds a Shared budget over the given store client.
func NewShared(client kv, cfg Config, clk clock.Clock, logger *zap.Logger) *Shared {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Shared{
		kv:     client,
		local:  NewLocal(cfg, clk),
		cfg:    cfg,
		clock:  clk,
		logger: logger,
	}
}

// Acquire blocks until the shared state says one call is safe.
func (s *Shared) Acquire(ctx context.Context) (time.Duration, error) {
	var slept time.Duration

	last, err := s.lastCall(ctx)
	if err != nil {
		return s.fallback(ctx, err)
	}
	now := s.clock.Now()
	if !last.IsZero() {
		if elapsed := now.Sub(last); elapsed < s.cfg.MinDelay {
			wait := s.cfg.MinDelay - elapsed
			s.logger.Debug("rate budget sleeping for min delay", zap.Duration("wait", wait))
			s.clock.Sleep(ctx, wait)
			slept += wait
			if err := ctx.Err(); err != nil {
				return slept, err
			}
		}
	}

	count, err := s.callCount(ctx)
	if err != nil {
		d, ferr := s.fallback(ctx, err)
		return slept + d, ferr
	}
	if count >= s.cfg.MaxCallsPerMinute {
		// At the cap: wait a full minimum delay and clear the counter
		// defensively instead of computing the exact window remainder.
		s.logger.Warn("shared call budget at per-minute cap",
			zap.Int("count", count),
			zap.Int("max", s.cfg.MaxCallsPerMinute))
		s.clock.Sleep(ctx, s.cfg.MinDelay)
		slept += s.cfg.MinDelay
		if err := ctx.Err(); err != nil {
			return slept, err
		}
		if err := s.kv.Del(ctx, KeyCallCount).Err(); err != nil {
			s.logger.Warn("reset shared call counter failed", zap.Error(err))
		}
	}

	metrics.ObserveRateLimitSleep(slept)
	return slept, nil
}

// Record publishes the completed call to the shared state. The local
// fallback is kept in step so its view stays warm for outages.
func (s *Shared) Record(ctx context.Context) error {
	_ = s.local.Record(ctx)

	now := s.clock.Now()
	ts := strconv.FormatFloat(float64(now.UnixMilli())/1000.0, 'f', 3, 64)
	if err := s.kv.Set(ctx, KeyLastCall, ts, 0).Err(); err != nil {
		s.logger.Warn("record last-call timestamp failed", zap.Error(err))
		return err
	}
	if err := s.kv.Incr(ctx, KeyCallCount).Err(); err != nil {
		s.logger.Warn("increment shared call counter failed", zap.Error(err))
		return err
	}
	if err := s.kv.Expire(ctx, KeyCallCount, Window).Err(); err != nil {
		s.logger.Warn("set counter expiry failed", zap.Error(err))
		return err
	}
	return nil
}

// Stats reads the shared state, falling back to local state on error.
func (s *Shared) Stats(ctx context.Context) (Stats, error) {
	last, err := s.lastCall(ctx)
	if err != nil {
		return s.local.Stats(ctx)
	}
	count, err := s.callCount(ctx)
	if err != nil {
		return s.local.Stats(ctx)
	}
	return Stats{
		LastCall:          last,
		CallsThisMinute:   count,
		MaxCallsPerMinute: s.cfg.MaxCallsPerMinute,
		MinDelay:          s.cfg.MinDelay,
	}, nil
}

func (s *Shared) lastCall(ctx context.Context) (time.Time, error) {
	val, err := s.kv.Get(ctx, KeyLastCall).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	secs, err := strconv.ParseFloat(val, 64)
	if err != nil {
		// Garbage in the key reads as "no prior call".
		return time.Time{}, nil
	}
	return time.UnixMilli(int64(secs * 1000)), nil
}

func (s *Shared) callCount(ctx context.Context) (int, error) {
	val, err := s.kv.Get(ctx, KeyCallCount).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// fallback applies local pacing when the shared store is unreachable.
func (s *Shared) fallback(ctx context.Context, cause error) (time.Duration, error) {
	s.logger.Warn("shared rate budget unavailable, using local pacing", zap.Error(cause))
	return s.local.Acquire(ctx)
}
