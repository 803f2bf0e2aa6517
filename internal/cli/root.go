// Package cli implements the liverelay command tree.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/liverelay/liverelay/internal/config"
	"github.com/liverelay/liverelay/internal/logging"
)

var (
	cfg config.Config

	flagStreamer  string
	flagAPIURL    string
	flagFeedURL   string
	flagDataDir   string
	flagLogLevel  string
	flagLogFormat string
)

var rootCmd = &cobra.Command{
	Use:   "liverelay",
	Short: "Relay live-stream events to a backend with durable delivery",
	Long: `liverelay follows one live broadcast, stores every event in per-day
SQLite partitions, and forwards them to a remote backend. Calls that fail
are staged in a durable outbox and retried until they succeed or exhaust
their attempts.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Default()
		config.FromEnv(&cfg)

		if flagStreamer != "" {
			cfg.StreamerUsername = flagStreamer
		}
		if flagAPIURL != "" {
			cfg.APIBaseURL = flagAPIURL
		}
		if flagFeedURL != "" {
			cfg.SourceFeedURL = flagFeedURL
		}
		if flagDataDir != "" {
			cfg.DataDir = flagDataDir
		}
		if flagLogLevel != "" {
			cfg.LogLevel = flagLogLevel
		}
		if flagLogFormat != "" {
			cfg.LogFormat = flagLogFormat
		}

		logging.Init(os.Stdout, logging.ParseLevel(cfg.LogLevel), logging.Format(cfg.LogFormat))
	},
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagStreamer, "streamer", "s", "", "live account username to follow")
	rootCmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "backend base URL")
	rootCmd.PersistentFlags().StringVar(&flagFeedURL, "feed-url", "", "source feed websocket URL")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "directory for partitions and the outbox")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "json or console")
}
