package cmd

import (
	"github.com/spf13/cobra"

	"github.com/pineapple-index/subindex/internal/refresher"
)

// newRefreshWorkerCmd builds the 'refresh-worker' subcommand: a queue
// consumer that refreshes entities pushed by the HTTP trigger surface.
func newRefreshWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-worker",
		Short: "Consumes the metadata refresh queue",
		Long: `Blocks on the shared refresh queue and fetches metadata for every
entity name it receives. Failed refreshes are pushed back onto the queue
tail for a later attempt.`,
		RunE: runRefreshWorkerCommand,
	}
}

func runRefreshWorkerCommand(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	fetcher := refresher.NewFetcher(a.Store, a.Reddit, a.Clock, a.Logger)
	worker := refresher.NewWorker(a.Queue, fetcher, a.Config.Refresh.PopTimeout, a.Clock, a.Logger)

	a.Logger.Info("refresh worker starting")
	worker.Run(cmd.Context())
	a.Logger.Info("refresh worker stopped")
	return nil
}
