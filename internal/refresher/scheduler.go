package refresher

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pineapple-index/subindex/internal/clock"
	"github.com/pineapple-index/subindex/internal/logging"
	"github.com/pineapple-index/subindex/internal/store"
)

// tierOrder is the fixed priority order candidates are drawn in.
var tierOrder = []store.Tier{
	store.TierNeverChecked,
	store.TierIncomplete,
	store.TierStale,
	store.TierAbsentRecheck,
}

// SchedulerConfig bounds one refresh pass.
type SchedulerConfig struct {
	Budget        time.Duration
	Staleness     time.Duration
	AbsentRecheck time.Duration
}

// Scheduler repeatedly picks the single highest-priority entity to refresh
// until the time budget elapses or no candidate remains. Tiers are
// re-queried from scratch every iteration so newly arrived higher-priority
// work is picked up immediately.
type Scheduler struct {
	store   store.SubredditStore
	fetcher *Fetcher
	clock   clock.Clock
	logger  *zap.Logger
	cfg     SchedulerConfig
}

// NewScheduler builds a Scheduler.
func NewScheduler(st store.SubredditStore, fetcher *Fetcher, cfg SchedulerConfig, clk clock.Clock, logger *zap.Logger) *Scheduler {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logging.WithPhase(logger, "refresh")
	return &Scheduler{store: st, fetcher: fetcher, clock: clk, logger: logger, cfg: cfg}
}

// RunPass refreshes entities one at a time within the configured budget.
// It returns how many refreshes were attempted.
func (s *Scheduler) RunPass(ctx context.Context) (int, error) {
	deadline := budgetFor(s.clock, s.cfg.Budget)
	attempted := 0

	for s.clock.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return attempted, err
		}
		sub, tier, err := s.next(ctx)
		if err != nil {
			return attempted, err
		}
		if sub == nil {
			s.logger.Debug("no refresh candidates remain", zap.Int("attempted", attempted))
			return attempted, nil
		}
		s.logger.Debug("refreshing candidate",
			zap.String("subreddit", sub.Name),
			zap.Int("tier", int(tier)))
		if err := s.fetcher.Refresh(ctx, sub.Name); err != nil {
			// One bad entity must not end the pass; its last_checked was
			// stamped inside Refresh wherever possible.
			s.logger.Warn("refresh failed, continuing",
				zap.String("subreddit", sub.Name),
				zap.Error(err))
		}
		attempted++
	}
	s.logger.Info("refresh budget exhausted", zap.Int("attempted", attempted))
	return attempted, nil
}

// next returns the single best candidate across the four tiers.
func (s *Scheduler) next(ctx context.Context) (*store.Subreddit, store.Tier, error) {
	q := store.TierQuery{
		Now:           s.clock.Now(),
		Staleness:     s.cfg.Staleness,
		AbsentRecheck: s.cfg.AbsentRecheck,
	}
	for _, tier := range tierOrder {
		sub, err := s.store.TierCandidate(ctx, tier, q)
		if err != nil {
			return nil, 0, err
		}
		if sub != nil {
			return sub, tier, nil
		}
	}
	return nil, 0, nil
}
