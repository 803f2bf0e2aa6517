package config

import (
	"path/filepath"
	"testing"
	"time"
)

// TestDefaultValidates verifies the defaults only miss the streamer name.
func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation to fail without a streamer username")
	}

	cfg.StreamerUsername = "user1"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected defaults plus streamer to validate, got %v", err)
	}
}

// TestValidateRejectsBadValues verifies range checks.
func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty api url", func(c *Config) { c.APIBaseURL = "" }},
		{"cutover hour too high", func(c *Config) { c.CutoverHour = 24 }},
		{"negative cutover hour", func(c *Config) { c.CutoverHour = -1 }},
		{"zero max attempts", func(c *Config) { c.MaxAttempts = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.StreamerUsername = "user1"
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

// TestFromEnvOverlay verifies environment variables override defaults and
// malformed values are ignored.
func TestFromEnvOverlay(t *testing.T) {
	t.Setenv("LIVERELAY_STREAMER_USERNAME", "envuser")
	t.Setenv("LIVERELAY_DRAIN_INTERVAL", "30s")
	t.Setenv("LIVERELAY_CUTOVER_HOUR", "5")
	t.Setenv("LIVERELAY_MAX_ATTEMPTS", "not-a-number")

	cfg := Default()
	FromEnv(&cfg)

	if cfg.StreamerUsername != "envuser" {
		t.Errorf("Expected envuser, got %s", cfg.StreamerUsername)
	}
	if cfg.DrainInterval != 30*time.Second {
		t.Errorf("Expected 30s drain interval, got %s", cfg.DrainInterval)
	}
	if cfg.CutoverHour != 5 {
		t.Errorf("Expected cutover hour 5, got %d", cfg.CutoverHour)
	}
	if cfg.MaxAttempts != Default().MaxAttempts {
		t.Errorf("Malformed env value changed MaxAttempts to %d", cfg.MaxAttempts)
	}
}

// TestResolvedQueuePath verifies the outbox file defaults under the data dir.
func TestResolvedQueuePath(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/var/lib/liverelay"
	if got := cfg.ResolvedQueuePath(); got != filepath.Join("/var/lib/liverelay", "outbox.json") {
		t.Errorf("Unexpected default queue path: %s", got)
	}

	cfg.QueuePath = "/tmp/q.json"
	if got := cfg.ResolvedQueuePath(); got != "/tmp/q.json" {
		t.Errorf("Explicit queue path ignored: %s", got)
	}
}
