package cli

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/liverelay/liverelay/internal/backend"
	apperrors "github.com/liverelay/liverelay/internal/errors"
	"github.com/liverelay/liverelay/internal/ingest"
	"github.com/liverelay/liverelay/internal/logging"
	"github.com/liverelay/liverelay/internal/outbox"
	"github.com/liverelay/liverelay/internal/publish"
	"github.com/liverelay/liverelay/internal/session"
	"github.com/liverelay/liverelay/internal/source"
	"github.com/liverelay/liverelay/internal/statestore"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Follow the configured streamer and relay events until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		return runRelay()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRelay() error {
	logger := logging.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := statestore.New(cfg.DataDir, statestore.Options{
		BusyTimeout: cfg.BusyTimeout,
		MaxRetries:  cfg.LockRetryLimit,
		RetryBase:   cfg.LockRetryBase,
	}, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	resolver := session.NewResolver(store, session.Config{
		CutoverHour:        cfg.CutoverHour,
		UTCOffsetHours:     cfg.UTCOffsetHours,
		ContinuationWindow: cfg.ContinuationWindow,
		MaxDaysBack:        cfg.MaxDaysBack,
	}, nil, logger)

	client := backend.New(cfg.APIBaseURL, cfg.LightCallTimeout, cfg.CreateCallTimeout, logger)

	queue, err := outbox.NewFileStore(cfg.ResolvedQueuePath(), logger)
	if err != nil {
		return err
	}
	dispatcher := outbox.NewDispatcher(queue, client.Deliveries(), cfg.MaxAttempts, cfg.DrainInterval, logger)
	go dispatcher.Run(ctx)

	var publisher ingest.Publisher
	if cfg.DashboardAddr != "" {
		hub := publish.NewHub()
		publisher = hub

		mux := http.NewServeMux()
		mux.HandleFunc("/ws", hub.Handler())
		server := &http.Server{Addr: cfg.DashboardAddr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("dashboard server stopped", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
		logger.Info("dashboard listening", map[string]any{"addr": cfg.DashboardAddr})
	}

	pipeline := ingest.NewPipeline(cfg.StreamerUsername, resolver, store, client,
		dispatcher, publisher, cfg.ViewerHistoryInterval, logger)

	feed := source.NewFeed(cfg.SourceFeedURL)
	logger.Info("relay starting", map[string]any{
		"streamer": cfg.StreamerUsername, "feed": cfg.SourceFeedURL, "api": cfg.APIBaseURL,
	})

	// supervision loop: reconnect until the context ends, waiting longer
	// when the streamer simply is not live
	for {
		err := feed.Run(ctx, func(ctx context.Context, n ingest.Notification) {
			pipeline.Handle(ctx, n)
		})
		if ctx.Err() != nil {
			logger.Info("relay stopped")
			return nil
		}

		delay := cfg.ReconnectDelayShort
		if apperrors.Is(err, apperrors.ErrSourceNotLive) {
			delay = cfg.ReconnectDelayLong
		}
		logger.Warn("feed disconnected, reconnecting", map[string]any{
			"delay": delay.String(), "error": err.Error(),
		})

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			logger.Info("relay stopped")
			return nil
		}
	}
}
