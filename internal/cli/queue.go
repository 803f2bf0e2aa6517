package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/liverelay/liverelay/internal/logging"
	"github.com/liverelay/liverelay/internal/outbox"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage the durable outbox",
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show outbox contents by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openQueue()
		if err != nil {
			return err
		}
		stats := store.Stats()

		fmt.Printf("outbox: %s\n", cfg.ResolvedQueuePath())
		fmt.Printf("  total:   %d\n", stats.Total)
		fmt.Printf("  pending: %s\n", color.YellowString("%d", stats.Pending))
		fmt.Printf("  sent:    %s\n", color.GreenString("%d", stats.Sent))
		fmt.Printf("  failed:  %s\n", color.RedString("%d", stats.Failed))
		return nil
	},
}

var queueCompactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Remove delivered items from the outbox file",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openQueue()
		if err != nil {
			return err
		}
		before := store.Stats()
		if err := store.Compact(); err != nil {
			return err
		}
		fmt.Printf("removed %d sent items\n", before.Sent)
		return nil
	},
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Return failed items to pending with a fresh attempt budget",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openQueue()
		if err != nil {
			return err
		}
		reset, err := store.ResetFailed()
		if err != nil {
			return err
		}
		fmt.Printf("reset %d failed items to pending\n", reset)
		return nil
	},
}

func openQueue() (*outbox.FileStore, error) {
	return outbox.NewFileStore(cfg.ResolvedQueuePath(), logging.Get())
}

func init() {
	queueCmd.AddCommand(queueStatsCmd, queueCompactCmd, queueRetryCmd)
	rootCmd.AddCommand(queueCmd)
}
