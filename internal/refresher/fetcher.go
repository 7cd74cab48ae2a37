// Package refresher keeps community metadata fresh: a fetcher that applies
// one profile-fetch outcome to the store, a tiered scheduler that picks what
// to refresh next, a bounded pool for discovery-triggered refreshes, and a
// queue consumer for externally triggered ones.
package refresher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pineapple-index/subindex/internal/clock"
	"github.com/pineapple-index/subindex/internal/metrics"
	"github.com/pineapple-index/subindex/internal/reddit"
	"github.com/pineapple-index/subindex/internal/store"
)

// maxRetryPriority caps the throttle counter so it stays a tie-break, not
// an unbounded score.
const maxRetryPriority = 10

// AboutAPI is the one upstream call the fetcher needs.
type AboutAPI interface {
	About(ctx context.Context, name string) reddit.AboutResult
}

// Fetcher fetches one entity's profile and records the result.
type Fetcher struct {
	store  store.SubredditStore
	api    AboutAPI
	clock  clock.Clock
	logger *zap.Logger
}

// NewFetcher builds a Fetcher.
func NewFetcher(st store.SubredditStore, api AboutAPI, clk clock.Clock, logger *zap.Logger) *Fetcher {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{store: st, api: api, clock: clk, logger: logger}
}

// Refresh fetches name's profile and commits the mapped state. Whatever
// the outcome, last_checked is stamped and the record committed so a
// failing entity cannot camp in the never-checked tier forever.
func (f *Fetcher) Refresh(ctx context.Context, name string) error {
	sub, _, err := f.store.GetOrCreateSubreddit(ctx, name)
	if err != nil {
		return fmt.Errorf("refresh %q: %w", name, err)
	}

	res := f.api.About(ctx, sub.Name)
	f.apply(sub, res)
	metrics.IncRefresh(res.Status.String())

	now := f.clock.Now()
	sub.LastChecked = &now
	if err := f.store.UpdateSubredditMeta(ctx, sub); err != nil {
		return fmt.Errorf("refresh %q: %w", name, err)
	}
	return nil
}

// apply maps one classified outcome onto the entity's stored state.
func (f *Fetcher) apply(sub *store.Subreddit, res reddit.AboutResult) {
	log := f.logger.With(zap.String("subreddit", sub.Name))

	switch res.Status {
	case reddit.StatusSuccess:
		f.applyProfile(sub, res)
		log.Info("profile refreshed",
			zap.Bool("banned", sub.Banned),
			zap.Intp("subscribers", sub.Subscribers))

	case reddit.StatusForbidden:
		sub.Banned = true
		sub.Found = boolPtr(true)
		log.Info("community forbidden, marked banned")

	case reddit.StatusNotFound, reddit.StatusRedirected:
		sub.Found = boolPtr(false)
		sub.Banned = false
		log.Info("community absent at source")

	case reddit.StatusRateLimited:
		retryAt := f.clock.Now().Add(res.RetryAfter)
		sub.NextRetryAt = &retryAt
		if sub.RetryPriority < maxRetryPriority {
			sub.RetryPriority++
		}
		log.Warn("rate limited, retry scheduled",
			zap.Duration("retry_after", res.RetryAfter),
			zap.Int("retry_priority", sub.RetryPriority))

	default:
		log.Warn("profile fetch failed, state unchanged",
			zap.String("outcome", res.Status.String()),
			zap.Int("http_status", res.HTTPStatus),
			zap.Error(res.Err))
	}
}

func (f *Fetcher) applyProfile(sub *store.Subreddit, res reddit.AboutResult) {
	data := res.Data
	if data == nil {
		data = &reddit.AboutData{}
	}

	sub.Found = boolPtr(true)

	// Text fields the incomplete-profile tier keys on are set to empty
	// string when the remote omits them, so the entity cannot re-qualify
	// for that tier forever.
	sub.Title = stringOrEmpty(data.Title)
	sub.Description = stringOrEmpty(data.PublicDescription)
	if data.DisplayName != "" {
		sub.DisplayName = &data.DisplayName
	}
	if data.Subscribers != nil {
		sub.Subscribers = data.Subscribers
	}
	if active := data.ActiveUsers(); active != nil {
		sub.ActiveUsers = active
	}
	if data.Over18 != nil {
		sub.Over18 = data.Over18
	}
	if data.SubredditType != "" {
		sub.Type = &data.SubredditType
	}

	// A stated ban reason or a restricted/private variant both mean the
	// community is not publicly usable.
	if res.Reason != "" {
		sub.Banned = true
	}
	switch data.SubredditType {
	case "private", "restricted":
		sub.Banned = true
	}

	// Success clears any pending throttle schedule.
	sub.NextRetryAt = nil
	sub.RetryPriority = 0
}

func boolPtr(b bool) *bool { return &b }

func stringOrEmpty(s *string) *string {
	if s != nil {
		return s
	}
	empty := ""
	return &empty
}

// budgetFor is a tiny helper shared by the scheduler and queue worker: the
// wall-clock deadline for one refresh pass.
func budgetFor(clk clock.Clock, budget time.Duration) time.Time {
	return clk.Now().Add(budget)
}
