// Package config holds the pipeline's configuration surface: defaults,
// validation, and (for embeddings outside a RoadRunner container) a
// standalone YAML loader with hot-reload.
package config

import "time"

const PluginName = "errwebhook"

// Config is the full pipeline-relevant configuration surface (spec.md
// §6). mapstructure tags let it load through RoadRunner's
// Configurer.UnmarshalKey the way the teacher's Config does; yaml tags
// let the standalone Loader read the same struct from a plain file.
type Config struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	WebhookURL  string `mapstructure:"webhook_url" yaml:"webhook_url"`
	ProjectName string `mapstructure:"project_name" yaml:"project_name"`
	Environment string `mapstructure:"environment" yaml:"environment"`
	Debug       bool   `mapstructure:"debug" yaml:"debug"`

	MaxBreadcrumbs int           `mapstructure:"max_breadcrumbs" yaml:"max_breadcrumbs"`
	MaxPayloadSize int           `mapstructure:"max_payload_size" yaml:"max_payload_size"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RequireHTTPS   *bool         `mapstructure:"require_https" yaml:"require_https"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	Retry     RetryConfig     `mapstructure:"retry" yaml:"retry"`
	Offline   OfflineConfig   `mapstructure:"offline" yaml:"offline"`
	Quota     QuotaConfig     `mapstructure:"quota" yaml:"quota"`
	Compress  CompressConfig `mapstructure:"compression" yaml:"compression"`
	Batch     BatchConfig     `mapstructure:"batch" yaml:"batch"`
	Breaker   BreakerConfig   `mapstructure:"circuit_breaker" yaml:"circuit_breaker"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// RateLimitConfig controls the local pre-flight rate limiter (spec.md §4.2).
type RateLimitConfig struct {
	MaxRequestsPerMinute int           `mapstructure:"max_requests_per_minute" yaml:"max_requests_per_minute"`
	DuplicateErrorWindow time.Duration `mapstructure:"duplicate_error_window" yaml:"duplicate_error_window"`
}

// RetryConfig controls the bounded-exponential-backoff executor (spec.md §4.6).
type RetryConfig struct {
	MaxRetries        int           `mapstructure:"max_retries" yaml:"max_retries"`
	InitialDelay      time.Duration `mapstructure:"initial_delay" yaml:"initial_delay"`
	MaxDelay          time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	Multiplier        float64       `mapstructure:"multiplier" yaml:"multiplier"`
	JitterFraction    float64       `mapstructure:"jitter_fraction" yaml:"jitter_fraction"`
	DeadLetterQueue   bool          `mapstructure:"dead_letter_queue" yaml:"dead_letter_queue"`
}

// OfflineConfig controls the durable offline queue (spec.md §4.9).
type OfflineConfig struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	MaxQueueSize int          `mapstructure:"max_queue_size" yaml:"max_queue_size"`
	MaxAge      time.Duration `mapstructure:"max_age" yaml:"max_age"`
	StoreKey    string        `mapstructure:"store_key" yaml:"store_key"`
}

// QuotaConfig controls the daily/monthly/burst quota accountant (spec.md §4.3).
type QuotaConfig struct {
	DailyLimit    int           `mapstructure:"daily_limit" yaml:"daily_limit"`
	MonthlyLimit  int           `mapstructure:"monthly_limit" yaml:"monthly_limit"`
	BurstLimit    int           `mapstructure:"burst_limit" yaml:"burst_limit"`
	BurstWindow   time.Duration `mapstructure:"burst_window" yaml:"burst_window"`
	StoreKey      string        `mapstructure:"store_key" yaml:"store_key"`
}

// CompressConfig controls the gzip-or-passthrough stage (spec.md §4.8).
type CompressConfig struct {
	Enabled   bool `mapstructure:"enabled" yaml:"enabled"`
	Threshold int  `mapstructure:"threshold" yaml:"threshold"`
}

// BatchConfig controls the batch aggregator (spec.md §4.7).
type BatchConfig struct {
	Enabled            bool          `mapstructure:"enabled" yaml:"enabled"`
	MaxSize            int           `mapstructure:"max_size" yaml:"max_size"`
	MaxWaitTime        time.Duration `mapstructure:"max_wait_time" yaml:"max_wait_time"`
	MaxBatchPayloadSize int          `mapstructure:"max_batch_payload_size" yaml:"max_batch_payload_size"`
}

// BreakerConfig controls the circuit breaker around the transport (spec.md §4.5).
//
// FailureThreshold is a fraction in [0,1], not the teacher's tenths
// integer — see DESIGN.md's Open Question decisions.
type BreakerConfig struct {
	FailureThreshold float64       `mapstructure:"failure_threshold" yaml:"failure_threshold"`
	MinimumRequests  int           `mapstructure:"minimum_requests" yaml:"minimum_requests"`
	MonitoringPeriod time.Duration `mapstructure:"monitoring_period" yaml:"monitoring_period"`
	ResetTimeout     time.Duration `mapstructure:"reset_timeout" yaml:"reset_timeout"`
}

// StoreConfig selects and configures the durable key-value backend
// shared by the offline queue and the quota ledger.
type StoreConfig struct {
	// Backend is one of "memory", "badger", "redis", "postgres".
	Backend string `mapstructure:"backend" yaml:"backend"`

	BadgerPath string `mapstructure:"badger_path" yaml:"badger_path"`

	RedisAddr     string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" yaml:"redis_db"`

	PostgresDSN   string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
	PostgresTable string `mapstructure:"postgres_table" yaml:"postgres_table"`
}

// LoggingConfig controls plugin-level log verbosity.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// InitDefaults fills in zero-valued fields with the defaults from
// spec.md §6, the same way the teacher's Config.InitDefaults does —
// each field checked and set independently, no all-or-nothing reset.
func (cfg *Config) InitDefaults() {
	if cfg.MaxBreadcrumbs == 0 {
		cfg.MaxBreadcrumbs = 50
	}
	if cfg.MaxPayloadSize == 0 {
		cfg.MaxPayloadSize = 1 << 20 // 1 MiB
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RequireHTTPS == nil {
		v := cfg.Environment == "production"
		cfg.RequireHTTPS = &v
	}

	if cfg.RateLimit.MaxRequestsPerMinute == 0 {
		cfg.RateLimit.MaxRequestsPerMinute = 10
	}
	if cfg.RateLimit.DuplicateErrorWindow == 0 {
		cfg.RateLimit.DuplicateErrorWindow = 5 * time.Second
	}

	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 3
	}
	if cfg.Retry.InitialDelay == 0 {
		cfg.Retry.InitialDelay = 1 * time.Second
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = 30 * time.Second
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry.Multiplier = 2.0
	}
	if cfg.Retry.JitterFraction == 0 {
		cfg.Retry.JitterFraction = 0.1
	}

	// Offline support defaults to enabled unless explicitly disabled by
	// an operator who set Enabled=false after InitDefaults ran once
	// already; a freshly zero-valued struct should come up enabled.
	if !cfg.Offline.Enabled && cfg.Offline.MaxQueueSize == 0 && cfg.Offline.MaxAge == 0 {
		cfg.Offline.Enabled = true
	}
	if cfg.Offline.MaxQueueSize == 0 {
		cfg.Offline.MaxQueueSize = 50
	}
	if cfg.Offline.MaxAge == 0 {
		cfg.Offline.MaxAge = 24 * time.Hour
	}
	if cfg.Offline.StoreKey == "" {
		cfg.Offline.StoreKey = "errwebhook:offline_queue"
	}

	if cfg.Quota.DailyLimit == 0 {
		cfg.Quota.DailyLimit = 1000
	}
	if cfg.Quota.MonthlyLimit == 0 {
		cfg.Quota.MonthlyLimit = 10000
	}
	if cfg.Quota.BurstLimit == 0 {
		cfg.Quota.BurstLimit = 50
	}
	if cfg.Quota.BurstWindow == 0 {
		cfg.Quota.BurstWindow = 60 * time.Second
	}
	if cfg.Quota.StoreKey == "" {
		cfg.Quota.StoreKey = "errwebhook:quota_ledger"
	}

	if !cfg.Compress.Enabled && cfg.Compress.Threshold == 0 {
		cfg.Compress.Enabled = true
	}
	if cfg.Compress.Threshold == 0 {
		cfg.Compress.Threshold = 1024
	}

	if !cfg.Batch.Enabled && cfg.Batch.MaxSize == 0 && cfg.Batch.MaxWaitTime == 0 {
		cfg.Batch.Enabled = true
	}
	if cfg.Batch.MaxSize == 0 {
		cfg.Batch.MaxSize = 5
	}
	if cfg.Batch.MaxWaitTime == 0 {
		cfg.Batch.MaxWaitTime = 5 * time.Second
	}
	if cfg.Batch.MaxBatchPayloadSize == 0 {
		cfg.Batch.MaxBatchPayloadSize = 100 * 1024
	}

	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = 0.5
	}
	if cfg.Breaker.MinimumRequests == 0 {
		cfg.Breaker.MinimumRequests = 5
	}
	if cfg.Breaker.MonitoringPeriod == 0 {
		cfg.Breaker.MonitoringPeriod = 60 * time.Second
	}
	if cfg.Breaker.ResetTimeout == 0 {
		cfg.Breaker.ResetTimeout = 30 * time.Second
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate checks the configuration for internal consistency, mirroring
// the teacher's clamp-to-sane-default style rather than hard failure
// wherever a clamp is unambiguous; it only returns an error for
// conditions that can't be silently corrected.
func (cfg *Config) Validate() error {
	if cfg.WebhookURL == "" {
		return nil // webhook can be empty to run in dry-run/offline-only mode
	}
	if cfg.ProjectName == "" {
		return errMissingProjectName
	}

	if cfg.MaxPayloadSize <= 0 {
		cfg.MaxPayloadSize = 1 << 20
	}
	if cfg.RateLimit.MaxRequestsPerMinute <= 0 {
		cfg.RateLimit.MaxRequestsPerMinute = 10
	}
	if cfg.Retry.MaxRetries < 0 {
		cfg.Retry.MaxRetries = 0
	}
	if cfg.Offline.MaxQueueSize <= 0 {
		cfg.Offline.MaxQueueSize = 50
	}
	if cfg.Breaker.FailureThreshold < 0 || cfg.Breaker.FailureThreshold > 1 {
		cfg.Breaker.FailureThreshold = 0.5
	}

	switch cfg.Store.Backend {
	case "memory", "badger", "redis", "postgres":
	default:
		return errUnknownStoreBackend
	}

	return nil
}
