package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pineapple-index/subindex/internal/refresher"
	"github.com/pineapple-index/subindex/internal/scanner"
)

// newScanCmd builds the 'scan' subcommand: the long-running crawl loop
// with an interleaved tier-based refresh phase.
func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Runs the crawl loop over the configured sources",
		Long: `Continuously pages each configured source's recent items, extracts
community and user mentions from comments, and refreshes metadata for the
entities each pass touches. Between passes a tier-based scheduler spends a
bounded time budget on the most urgent stale entities.`,
		RunE: runScanCommand,
	}
}

func runScanCommand(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := a.Config

	fetcher := refresher.NewFetcher(a.Store, a.Reddit, a.Clock, a.Logger)
	pool := refresher.NewPool(fetcher, cfg.Refresh.Concurrency, a.Logger)
	scheduler := refresher.NewScheduler(a.Store, fetcher, refresher.SchedulerConfig{
		Budget:        cfg.Refresh.Budget,
		Staleness:     cfg.Refresh.Staleness,
		AbsentRecheck: cfg.Refresh.AbsentRecheck,
	}, a.Clock, a.Logger)

	sc := scanner.New(a.Store, a.Reddit, pool, scanner.Config{
		Sources:            cfg.Scan.Sources,
		InitialScanHorizon: cfg.Scan.InitialScanHorizon,
		RescanHorizon:      cfg.Scan.RescanHorizon,
		RecheckWindow:      cfg.Scan.RecheckWindow,
		CycleSleep:         cfg.Scan.CycleSleep,
		IgnoreSubreddits:   cfg.Scan.IgnoreSubreddits,
		IgnoreUsers:        cfg.Scan.IgnoreUsers,
	}, a.Clock, a.Logger)

	ctx := cmd.Context()
	a.Logger.Info("scan loop starting")
	for {
		if err := sc.RunPass(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			return fmt.Errorf("scan pass: %w", err)
		}
		if attempted, err := scheduler.RunPass(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			a.Logger.Warn("refresh phase failed", zap.Error(err))
		} else if attempted > 0 {
			a.Logger.Info("refresh phase complete", zap.Int("attempted", attempted))
		}
		a.Clock.Sleep(ctx, cfg.Scan.CycleSleep)
		if ctx.Err() != nil {
			break
		}
	}
	a.Logger.Info("scan loop stopped")
	return nil
}
