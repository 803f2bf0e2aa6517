// Package config provides runtime configuration for liverelay.
package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// Config holds every tunable of the relay. Zero values are filled in by
// Default; LIVERELAY_* environment variables overlay on top via FromEnv.
type Config struct {
	// Identity and endpoints
	StreamerUsername string // live account the relay follows
	APIBaseURL       string // remote backend base URL, e.g. http://localhost:3000/api
	SourceFeedURL    string // websocket feed of the live-event connector
	DashboardAddr    string // local websocket broadcast address, empty disables

	// Storage
	DataDir   string // day-partition files live here
	QueuePath string // outbox file, defaults to DataDir/outbox.json

	// Outbox dispatcher
	DrainInterval     time.Duration // how often the dispatcher drains
	MaxAttempts       int           // delivery attempts before an item fails
	LightCallTimeout  time.Duration // event submission, patches, history
	CreateCallTimeout time.Duration // registration and stream creation

	// Session continuity
	ContinuationWindow time.Duration // max gap for resuming a session as part N+1
	CutoverHour        int           // broadcast day boundary, local hour
	UTCOffsetHours     int           // fixed local offset for the broadcast day
	MaxDaysBack        int           // prior day-partitions searched for continuation

	// State store lock retries
	LockRetryLimit int
	LockRetryBase  time.Duration
	BusyTimeout    time.Duration

	// Ingestion
	ViewerHistoryInterval time.Duration // min gap between viewer-history samples

	// Source supervision
	ReconnectDelayShort time.Duration // after transient connector errors
	ReconnectDelayLong  time.Duration // while the streamer is not live

	// Logging
	LogLevel  string // debug, info, warn, error
	LogFormat string // json or console
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		APIBaseURL:            "http://localhost:3000/api",
		SourceFeedURL:         "ws://localhost:8765/feed",
		DataDir:               "data",
		DrainInterval:         10 * time.Second,
		MaxAttempts:           3,
		LightCallTimeout:      5 * time.Second,
		CreateCallTimeout:     10 * time.Second,
		ContinuationWindow:    2 * time.Hour,
		CutoverHour:           17,
		UTCOffsetHours:        -3,
		MaxDaysBack:           2,
		LockRetryLimit:        5,
		LockRetryBase:         100 * time.Millisecond,
		BusyTimeout:           10 * time.Second,
		ViewerHistoryInterval: 10 * time.Second,
		ReconnectDelayShort:   10 * time.Second,
		ReconnectDelayLong:    15 * time.Second,
		LogLevel:              "info",
		LogFormat:             "json",
	}
}

// ResolvedQueuePath returns the outbox file path, defaulting under DataDir.
func (c Config) ResolvedQueuePath() string {
	if c.QueuePath != "" {
		return c.QueuePath
	}
	return filepath.Join(c.DataDir, "outbox.json")
}

// Validate checks the fields the relay cannot run without.
func (c Config) Validate() error {
	if c.StreamerUsername == "" {
		return fmt.Errorf("streamer username is required")
	}
	if c.APIBaseURL == "" {
		return fmt.Errorf("API base URL is required")
	}
	if c.CutoverHour < 0 || c.CutoverHour > 23 {
		return fmt.Errorf("cutover hour must be within [0,23], got %d", c.CutoverHour)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	return nil
}
