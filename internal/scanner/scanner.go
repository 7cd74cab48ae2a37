// Package scanner implements the incremental crawl loop: it pages each
// configured source's recent-items feed, diffs comment trees against the
// store, extracts mentions, and hands newly touched entities to the
// metadata refresher.
package scanner

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/pineapple-index/subindex/internal/clock"
	"github.com/pineapple-index/subindex/internal/logging"
	"github.com/pineapple-index/subindex/internal/mentions"
	"github.com/pineapple-index/subindex/internal/metrics"
	"github.com/pineapple-index/subindex/internal/reddit"
	"github.com/pineapple-index/subindex/internal/store"
)

// Feed is the upstream surface the scanner reads.
type Feed interface {
	RecentPosts(ctx context.Context, source, after string) (reddit.Listing, reddit.Outcome)
	Comments(ctx context.Context, postID string) ([]reddit.CommentItem, reddit.Outcome)
}

// MetadataRefresher receives the entities a pass discovered or re-touched.
type MetadataRefresher interface {
	RefreshBatch(ctx context.Context, names []string)
}

// Store is the slice of the persistence contract the scanner uses.
type Store interface {
	store.SubredditStore
	store.PostStore
	store.CommentStore
	store.MentionStore
	store.AnalyticsStore
	store.ConfigStore
}

// Config controls item lifecycle decisions and pacing.
type Config struct {
	// Sources is the static fallback used when no scan configuration rows
	// exist.
	Sources []string
	// InitialScanHorizon skips never-stored items older than this.
	// Zero means no limit.
	InitialScanHorizon time.Duration
	// RescanHorizon stops rescanning stored items older than this.
	// Zero means no limit.
	RescanHorizon time.Duration
	// RecheckWindow skips stored items scanned more recently than this.
	// Zero disables the window.
	RecheckWindow time.Duration
	// CycleSleep separates full passes.
	CycleSleep time.Duration
	// IgnoreSubreddits and IgnoreUsers seed the extractor's ignore-lists;
	// database ignore rows are merged in each pass.
	IgnoreSubreddits []string
	IgnoreUsers      []string
}

// Scanner drives one source set to quiescence per pass.
type Scanner struct {
	store     Store
	feed      Feed
	refresher MetadataRefresher
	clock     clock.Clock
	logger    *zap.Logger
	cfg       Config
}

// New builds a Scanner.
func New(st Store, feed Feed, refresher MetadataRefresher, cfg Config, clk clock.Clock, logger *zap.Logger) *Scanner {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{
		store:     st,
		feed:      feed,
		refresher: refresher,
		clock:     clk,
		logger:    logger,
		cfg:       cfg,
	}
}

// passState accumulates what one pass discovered.
type passState struct {
	extractor   *mentions.Extractor
	touched     map[string]struct{}
	newMentions int
}

func (p *passState) touch(entity string) {
	p.touched[entity] = struct{}{}
}

func (p *passState) touchedNames() []string {
	names := make([]string, 0, len(p.touched))
	for name := range p.touched {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunPass crawls every active source once, then feeds touched entities to
// the refresher. Per-operation failures are logged and skipped; only a
// canceled context ends the pass early.
func (s *Scanner) RunPass(ctx context.Context) error {
	started := s.clock.Now()
	log := logging.WithPhase(s.logger, "scan")

	state := &passState{
		extractor: s.buildExtractor(ctx),
		touched:   make(map[string]struct{}),
	}

	sources := s.loadSources(ctx, log)
	log.Info("scan pass starting", zap.Int("sources", len(sources)))

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.scanSource(ctx, src, state, log)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	// Discovery-triggered refresh happens before the scheduler phase so
	// fresh entities get metadata without waiting for a tier to reach them.
	if names := state.touchedNames(); len(names) > 0 {
		log.Info("refreshing touched entities", zap.Int("count", len(names)))
		s.refresher.RefreshBatch(ctx, names)
	}

	duration := s.clock.Now().Sub(started)
	if err := s.store.RecordScan(ctx, started, duration, state.newMentions); err != nil {
		log.Warn("record scan metadata failed", zap.Error(err))
	}
	if err := s.store.ReconcileAnalytics(ctx); err != nil {
		log.Warn("reconcile analytics failed", zap.Error(err))
	}
	metrics.IncScanCycle()
	log.Info("scan pass complete",
		zap.Duration("duration", duration),
		zap.Int("new_mentions", state.newMentions),
		zap.Int("touched", len(state.touched)))
	return nil
}

// loadSources prefers configured sources, ordered by ascending priority,
// and falls back to the static list when none are configured.
func (s *Scanner) loadSources(ctx context.Context, log *zap.Logger) []store.ScanSource {
	sources, err := s.store.ActiveScanSources(ctx)
	if err != nil {
		log.Warn("load scan configuration failed, using fallback list", zap.Error(err))
		sources = nil
	}
	if len(sources) == 0 {
		for _, name := range s.cfg.Sources {
			sources = append(sources, store.ScanSource{Name: name, Priority: 3})
		}
	}
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Priority < sources[j].Priority
	})
	return sources
}

// buildExtractor merges static and database ignore-lists into a fresh
// extractor for this pass.
func (s *Scanner) buildExtractor(ctx context.Context) *mentions.Extractor {
	ignoreSubs := append([]string(nil), s.cfg.IgnoreSubreddits...)
	ignoreUsers := append([]string(nil), s.cfg.IgnoreUsers...)
	if dbSubs, err := s.store.IgnoredSubreddits(ctx); err == nil {
		ignoreSubs = append(ignoreSubs, dbSubs...)
	} else {
		s.logger.Warn("load ignored subreddits failed", zap.Error(err))
	}
	if dbUsers, err := s.store.IgnoredUsers(ctx); err == nil {
		ignoreUsers = append(ignoreUsers, dbUsers...)
	} else {
		s.logger.Warn("load ignored users failed", zap.Error(err))
	}
	return mentions.NewExtractor(ignoreSubs, ignoreUsers)
}

// scanSource pages one source's feed newest-first until the feed ends, the
// cursor stalls, or the context finishes.
func (s *Scanner) scanSource(ctx context.Context, src store.ScanSource, state *passState, log *zap.Logger) {
	log = log.With(zap.String("source", src.Name))
	after := ""
	seenCursors := make(map[string]struct{})

	for {
		if ctx.Err() != nil {
			return
		}
		listing, outcome := s.feed.RecentPosts(ctx, src.Name, after)
		if !outcome.OK() {
			log.Warn("feed page fetch failed",
				zap.String("outcome", outcome.Status.String()),
				zap.Int("http_status", outcome.HTTPStatus),
				zap.Error(outcome.Err))
			return
		}
		if len(listing.Items) == 0 {
			return
		}

		for _, item := range listing.Items {
			if ctx.Err() != nil {
				return
			}
			if !src.AllowsAuthor(item.Author) {
				continue
			}
			if src.NSFWOnly && !item.Over18 {
				continue
			}
			s.processItem(ctx, item, state, log)
		}

		if listing.After == "" {
			return
		}
		if _, stalled := seenCursors[listing.After]; stalled {
			log.Warn("feed cursor stalled, stopping pagination", zap.String("after", listing.After))
			return
		}
		seenCursors[listing.After] = struct{}{}
		after = listing.After
	}
}
