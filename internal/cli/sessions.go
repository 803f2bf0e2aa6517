package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/liverelay/liverelay/internal/logging"
	"github.com/liverelay/liverelay/internal/statestore"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions [day]",
	Short: "List stored session parts, for one day or every partition on disk",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := statestore.New(cfg.DataDir, statestore.Options{
			BusyTimeout: cfg.BusyTimeout,
			MaxRetries:  cfg.LockRetryLimit,
			RetryBase:   cfg.LockRetryBase,
		}, logging.Get())
		if err != nil {
			return err
		}
		defer store.Close()

		var days []string
		if len(args) == 1 {
			if _, err := time.Parse("2006-01-02", args[0]); err != nil {
				return fmt.Errorf("day must be YYYY-MM-DD, got %q", args[0])
			}
			days = args
		} else {
			if days, err = store.Days(); err != nil {
				return err
			}
		}
		if len(days) == 0 {
			fmt.Println("no partitions on disk")
			return nil
		}

		for _, day := range days {
			sessions, err := store.SessionsSummary(cmd.Context(), day)
			if err != nil {
				return err
			}
			fmt.Printf("%s (%d sessions)\n", color.CyanString("%s", day), len(sessions))
			for _, s := range sessions {
				state := "closed"
				if s.IsActive {
					state = color.GreenString("active")
				}
				end := "-"
				if s.EndTime != nil {
					end = s.EndTime.Format(time.RFC3339)
				}
				fmt.Printf("  %s part %d  %s  %s .. %s  %d events\n",
					s.StreamerUsername, s.PartNumber, state,
					s.StartTime.Format(time.RFC3339), end, s.TotalEvents)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}
