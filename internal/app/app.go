// Package app initializes and holds the long-lived services every
// subcommand shares: logger, store, coordination client, rate budget, and
// the upstream API client.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pineapple-index/subindex/internal/clock"
	"github.com/pineapple-index/subindex/internal/config"
	"github.com/pineapple-index/subindex/internal/logging"
	"github.com/pineapple-index/subindex/internal/metrics"
	"github.com/pineapple-index/subindex/internal/queue"
	"github.com/pineapple-index/subindex/internal/queue/memory"
	"github.com/pineapple-index/subindex/internal/ratelimit"
	"github.com/pineapple-index/subindex/internal/reddit"
	"github.com/pineapple-index/subindex/internal/store"
	"github.com/pineapple-index/subindex/internal/store/postgres"
)

// App is the dependency container built once at startup and handed to the
// subcommands.
type App struct {
	Logger *zap.Logger
	Config config.Config
	Store  store.Store
	Budget ratelimit.Budget
	Queue  queue.Queue
	Reddit *reddit.Client
	Clock  clock.Clock

	redis *redis.Client
}

// New builds the container. It fails fast on anything unreachable except
// Redis: a missing coordination store degrades to process-local rate
// limiting and an in-memory queue rather than refusing to run.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	metrics.Init()

	st, err := postgres.Connect(ctx, postgres.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		ConnectAttempts: cfg.DB.ConnectAttempts,
		ConnectBackoff:  cfg.DB.ConnectBackoff,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := st.EnsureSchema(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	clk := clock.System{}
	budgetCfg := ratelimit.Config{
		MinDelay:          cfg.RateLimit.MinDelay,
		MaxCallsPerMinute: cfg.RateLimit.MaxCallsPerMinute,
	}

	var (
		rdb    *redis.Client
		budget ratelimit.Budget
		q      queue.Queue
	)
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			Password: cfg.Redis.Password,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, using local rate limiting and in-memory queue",
				zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			_ = rdb.Close()
			rdb = nil
		}
	}
	if rdb != nil {
		budget = ratelimit.NewShared(rdb, budgetCfg, clk, logger)
		q = queue.NewRedis(rdb, cfg.Redis.Queue)
		logger.Info("coordinating through redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		budget = ratelimit.NewLocal(budgetCfg, clk)
		q = memory.NewQueue(1024)
		logger.Info("running without redis coordination")
	}

	rc := reddit.New(reddit.Config{
		BaseURL:           cfg.Reddit.BaseURL,
		UserAgent:         cfg.Reddit.UserAgent,
		Timeout:           cfg.Reddit.Timeout,
		MaxRetries:        cfg.Reddit.MaxRetries,
		DefaultRetryAfter: cfg.Reddit.DefaultRetryAfter,
		MinDelay:          cfg.RateLimit.MinDelay,
	}, budget, clk, logger)

	return &App{
		Logger: logger,
		Config: cfg,
		Store:  st,
		Budget: budget,
		Queue:  q,
		Reddit: rc,
		Clock:  clk,
		redis:  rdb,
	}, nil
}

// Close releases every held resource. Safe to call once after the command
// finishes.
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.Warn("close redis failed", zap.Error(err))
		}
	}
	if a.Store != nil {
		a.Store.Close()
	}
	_ = a.Logger.Sync()
}
