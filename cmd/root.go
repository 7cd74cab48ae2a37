// Package cmd defines the CLI commands for the subindex executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pineapple-index/subindex/internal/app"
	"github.com/pineapple-index/subindex/internal/config"
)

var cfgFile string

// appKeyType keys the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory, a variable so tests can substitute a
// mock container.
var newApp = func(ctx context.Context, cfg config.Config) (*app.App, error) {
	return app.New(ctx, cfg)
}

// newRootCmd builds the root command. Services come up in
// PersistentPreRunE, after flags and config are resolved, and are torn
// down in PersistentPostRun.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subindex",
		Short: "Discovers and tracks community mentions across comment threads.",
		Long: `subindex crawls configured sources for comments that reference other
communities or users, records each mention once, and keeps lightweight
metadata about every referenced entity fresh under a strict shared
rate budget.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("initialize services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a, ok := cmd.Context().Value(appKey).(*app.App); ok && a != nil {
				a.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: environment only)")

	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newRefreshWorkerCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newReconcileCmd())

	return cmd
}

// resolveApp retrieves the injected container.
func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return a, nil
}

// Execute runs the CLI. SIGINT and SIGTERM cancel the command context so
// long-running loops drain and exit cleanly.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
