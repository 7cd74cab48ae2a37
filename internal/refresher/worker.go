package refresher

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pineapple-index/subindex/internal/clock"
	"github.com/pineapple-index/subindex/internal/logging"
	"github.com/pineapple-index/subindex/internal/metrics"
	"github.com/pineapple-index/subindex/internal/queue"
)

// Worker consumes entity names from the shared work queue and refreshes
// them. Failed names are pushed back onto the tail for another try.
type Worker struct {
	queue      queue.Queue
	fetcher    *Fetcher
	clock      clock.Clock
	logger     *zap.Logger
	popTimeout time.Duration
}

// NewWorker builds a queue-consuming Worker.
func NewWorker(q queue.Queue, fetcher *Fetcher, popTimeout time.Duration, clk clock.Clock, logger *zap.Logger) *Worker {
	if popTimeout <= 0 {
		popTimeout = 10 * time.Second
	}
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logging.WithPhase(logger, "worker")
	return &Worker{queue: q, fetcher: fetcher, clock: clk, logger: logger, popTimeout: popTimeout}
}

// Run blocks, consuming the queue until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("metadata worker started")
	for {
		if ctx.Err() != nil {
			w.logger.Info("metadata worker stopping")
			return
		}
		name, ok, err := w.queue.BlockPop(ctx, w.popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue pop failed", zap.Error(err))
			w.clock.Sleep(ctx, 5*time.Second)
			continue
		}
		if n, lerr := w.queue.Len(ctx); lerr == nil {
			metrics.SetRefreshQueueDepth(n)
		}
		if !ok {
			continue
		}

		w.logger.Info("processing metadata refresh", zap.String("subreddit", name))
		if err := w.fetcher.Refresh(ctx, name); err != nil {
			w.logger.Error("refresh failed, re-queueing",
				zap.String("subreddit", name),
				zap.Error(err))
			if perr := w.queue.Push(ctx, name); perr != nil {
				w.logger.Error("re-queue failed",
					zap.String("subreddit", name),
					zap.Error(perr))
			}
		}
	}
}
