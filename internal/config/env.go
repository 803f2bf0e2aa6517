package config

import (
	"os"
	"strconv"
	"time"
)

// FromEnv overlays LIVERELAY_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("LIVERELAY_STREAMER_USERNAME"); v != "" {
		cfg.StreamerUsername = v
	}
	if v := os.Getenv("LIVERELAY_API_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("LIVERELAY_SOURCE_FEED_URL"); v != "" {
		cfg.SourceFeedURL = v
	}
	if v := os.Getenv("LIVERELAY_DASHBOARD_ADDR"); v != "" {
		cfg.DashboardAddr = v
	}
	if v := os.Getenv("LIVERELAY_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("LIVERELAY_QUEUE_PATH"); v != "" {
		cfg.QueuePath = v
	}
	if v := os.Getenv("LIVERELAY_DRAIN_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.DrainInterval = d
		}
	}
	if v := os.Getenv("LIVERELAY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxAttempts = n
		}
	}
	if v := os.Getenv("LIVERELAY_LIGHT_CALL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LightCallTimeout = d
		}
	}
	if v := os.Getenv("LIVERELAY_CREATE_CALL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CreateCallTimeout = d
		}
	}
	if v := os.Getenv("LIVERELAY_CONTINUATION_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ContinuationWindow = d
		}
	}
	if v := os.Getenv("LIVERELAY_CUTOVER_HOUR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CutoverHour = n
		}
	}
	if v := os.Getenv("LIVERELAY_UTC_OFFSET_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.UTCOffsetHours = n
		}
	}
	if v := os.Getenv("LIVERELAY_MAX_DAYS_BACK"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxDaysBack = n
		}
	}
	if v := os.Getenv("LIVERELAY_LOCK_RETRY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LockRetryLimit = n
		}
	}
	if v := os.Getenv("LIVERELAY_LOCK_RETRY_BASE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LockRetryBase = d
		}
	}
	if v := os.Getenv("LIVERELAY_BUSY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.BusyTimeout = d
		}
	}
	if v := os.Getenv("LIVERELAY_VIEWER_HISTORY_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ViewerHistoryInterval = d
		}
	}
	if v := os.Getenv("LIVERELAY_RECONNECT_DELAY_SHORT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ReconnectDelayShort = d
		}
	}
	if v := os.Getenv("LIVERELAY_RECONNECT_DELAY_LONG"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ReconnectDelayLong = d
		}
	}
	if v := os.Getenv("LIVERELAY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LIVERELAY_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
}
