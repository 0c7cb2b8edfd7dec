// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Verify    VerifyConfig    `mapstructure:"verify"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Sources   []SourceSeed    `mapstructure:"sources"`
}

// SourceSeed declares a source for the in-memory registry. Ignored when the
// database is configured; Postgres source rows are managed externally.
type SourceSeed struct {
	ID  string `mapstructure:"id"`
	URL string `mapstructure:"url"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// SchedulerConfig governs the periodic fan-out tick.
type SchedulerConfig struct {
	IntervalSeconds      int `mapstructure:"interval_seconds"`
	ExpirySeconds        int `mapstructure:"expiry_seconds"`
	MaxConcurrentFetches int `mapstructure:"max_concurrent_fetches"`
	CooldownSeconds      int `mapstructure:"cooldown_seconds"`
	QueueDepth           int `mapstructure:"queue_depth"`
}

// FetchConfig governs per-source fetch behavior.
type FetchConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	TaskTimeoutSec int    `mapstructure:"task_timeout_seconds"`
	MaxAttempts    int    `mapstructure:"max_attempts"`
	UserAgent      string `mapstructure:"user_agent"`
}

// VerifyConfig governs the verification orchestrator.
type VerifyConfig struct {
	Endpoint            string `mapstructure:"endpoint"`
	Mode                string `mapstructure:"mode"`
	PollIntervalSeconds int    `mapstructure:"poll_interval_seconds"`
	PollBudgetSeconds   int    `mapstructure:"poll_budget_seconds"`
	MaxRetries          int    `mapstructure:"max_retries"`
	Workers             int    `mapstructure:"workers"`
	QueueDepth          int    `mapstructure:"queue_depth"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
	MaxConnLifeMins int    `mapstructure:"max_conn_life_minutes"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID    string `mapstructure:"project_id"`
	ItemTopic    string `mapstructure:"item_topic"`
	VerdictTopic string `mapstructure:"verdict_topic"`
}

// ArchiveConfig sets the raw-payload archive backend.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FEEDD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("scheduler.interval_seconds", 900)
	v.SetDefault("scheduler.expiry_seconds", 840)
	v.SetDefault("scheduler.max_concurrent_fetches", 8)
	v.SetDefault("scheduler.cooldown_seconds", 60)
	v.SetDefault("scheduler.queue_depth", 256)
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.task_timeout_seconds", 120)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.user_agent", "feedd/0.1 (+https://github.com/truthscan/feedd)")
	v.SetDefault("verify.mode", "standard")
	v.SetDefault("verify.poll_interval_seconds", 15)
	v.SetDefault("verify.poll_budget_seconds", 300)
	v.SetDefault("verify.max_retries", 3)
	v.SetDefault("verify.workers", 4)
	v.SetDefault("verify.queue_depth", 256)
	v.SetDefault("archive.provider", "memory")
	v.SetDefault("archive.prefix", "feeds")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scheduler.IntervalSeconds <= 0 {
		return fmt.Errorf("scheduler.interval_seconds must be > 0")
	}
	if c.Scheduler.ExpirySeconds <= 0 || c.Scheduler.ExpirySeconds >= c.Scheduler.IntervalSeconds {
		return fmt.Errorf("scheduler.expiry_seconds must be > 0 and shorter than the interval")
	}
	if c.Scheduler.MaxConcurrentFetches <= 0 {
		return fmt.Errorf("scheduler.max_concurrent_fetches must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.MaxAttempts <= 0 {
		return fmt.Errorf("fetch.max_attempts must be > 0")
	}
	if c.Verify.PollIntervalSeconds <= 0 {
		return fmt.Errorf("verify.poll_interval_seconds must be > 0")
	}
	if c.Verify.PollBudgetSeconds <= c.Verify.PollIntervalSeconds {
		return fmt.Errorf("verify.poll_budget_seconds must exceed the poll interval")
	}
	switch c.Archive.Provider {
	case "memory", "gcs", "none":
	default:
		return fmt.Errorf("archive.provider must be one of memory, gcs, none")
	}
	if c.Archive.Provider == "gcs" && c.Archive.GCSBucket == "" {
		return fmt.Errorf("archive.gcs_bucket must be set when archive.provider is gcs")
	}
	return nil
}

// TickInterval returns the scheduler period.
func (c Config) TickInterval() time.Duration {
	return time.Duration(c.Scheduler.IntervalSeconds) * time.Second
}

// TickExpiry returns the per-tick hard deadline.
func (c Config) TickExpiry() time.Duration {
	return time.Duration(c.Scheduler.ExpirySeconds) * time.Second
}

// Cooldown returns the delay before the deferred batch is dispatched.
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.Scheduler.CooldownSeconds) * time.Second
}

// FetchTimeout returns the per-request HTTP timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// TaskTimeout returns the hard wall-clock ceiling for one fetch invocation.
func (c Config) TaskTimeout() time.Duration {
	return time.Duration(c.Fetch.TaskTimeoutSec) * time.Second
}

// PollInterval returns the sleep between verification status polls.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Verify.PollIntervalSeconds) * time.Second
}

// PollBudget returns the wall-clock budget for one verification job.
func (c Config) PollBudget() time.Duration {
	return time.Duration(c.Verify.PollBudgetSeconds) * time.Second
}
