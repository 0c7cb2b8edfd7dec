package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 15*time.Minute, cfg.TickInterval())
	require.Equal(t, 14*time.Minute, cfg.TickExpiry())
	require.Equal(t, time.Minute, cfg.Cooldown())
	require.Equal(t, 8, cfg.Scheduler.MaxConcurrentFetches)
	require.Equal(t, 3, cfg.Fetch.MaxAttempts)
	require.Equal(t, 15*time.Second, cfg.PollInterval())
	require.Equal(t, 5*time.Minute, cfg.PollBudget())
	require.Equal(t, "memory", cfg.Archive.Provider)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "feedd.yaml")
	body := []byte(`
scheduler:
  interval_seconds: 600
  expiry_seconds: 540
  max_concurrent_fetches: 2
fetch:
  max_attempts: 5
verify:
  endpoint: "https://verify.example.com"
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 10*time.Minute, cfg.TickInterval())
	require.Equal(t, 2, cfg.Scheduler.MaxConcurrentFetches)
	require.Equal(t, 5, cfg.Fetch.MaxAttempts)
	require.Equal(t, "https://verify.example.com", cfg.Verify.Endpoint)
	// untouched defaults survive
	require.Equal(t, 60, cfg.Scheduler.CooldownSeconds)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"expiry longer than interval", func(c *Config) { c.Scheduler.ExpirySeconds = c.Scheduler.IntervalSeconds + 1 }},
		{"zero concurrency", func(c *Config) { c.Scheduler.MaxConcurrentFetches = 0 }},
		{"zero fetch attempts", func(c *Config) { c.Fetch.MaxAttempts = 0 }},
		{"poll budget below interval", func(c *Config) { c.Verify.PollBudgetSeconds = 1 }},
		{"gcs without bucket", func(c *Config) { c.Archive.Provider = "gcs" }},
		{"unknown archive provider", func(c *Config) { c.Archive.Provider = "s3" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
