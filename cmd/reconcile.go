package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newReconcileCmd builds the 'reconcile' subcommand: a one-shot pass that
// replaces the opportunistic analytics counters with true table counts.
func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Recomputes analytics counters from table counts",
		RunE:  runReconcileCommand,
	}
}

func runReconcileCommand(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	if err := a.Store.ReconcileAnalytics(cmd.Context()); err != nil {
		return fmt.Errorf("reconcile analytics: %w", err)
	}
	analytics, err := a.Store.GetAnalytics(cmd.Context())
	if err != nil {
		return fmt.Errorf("load analytics: %w", err)
	}
	a.Logger.Info("analytics reconciled",
		zap.Int64("subreddits", analytics.TotalSubreddits),
		zap.Int64("posts", analytics.TotalPosts),
		zap.Int64("comments", analytics.TotalComments),
		zap.Int64("mentions", analytics.TotalMentions))
	return nil
}
