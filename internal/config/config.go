package config

import (
	"time"
)

// Config represents the complete application configuration, merged from
// defaults, an optional YAML file and POLYWATCH_* environment variables.
type Config struct {
	Workers   int             `mapstructure:"workers"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Rate      RateConfig      `mapstructure:"rate"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Perf      PerfConfig      `mapstructure:"perf"`
	Endpoints EndpointsConfig `mapstructure:"endpoints"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level controls the minimum log level.
	// Valid values: debug, info, warn, error
	Level string `mapstructure:"level"`

	// Format selects the output encoding.
	// Valid values: console, json
	Format string `mapstructure:"format"`
}

// RateConfig contains the quota gate configuration shared by every bucket.
type RateConfig struct {
	// SafetyFraction scales published quotas down so a full-speed crawl
	// stays under the provider's enforcement threshold.
	SafetyFraction float64 `mapstructure:"safety_fraction"`

	// Quotas maps bucket names to their published per-10s request quota.
	Quotas map[string]int `mapstructure:"quotas"`

	// Windows maps bucket names to explicit multi-window limits. A bucket
	// listed here ignores its Quotas entry.
	Windows map[string][]WindowConfig `mapstructure:"windows"`

	// AcquireTimeout bounds how long a caller waits for a token.
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`

	// HeartbeatInterval paces the periodic bucket state log line.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// WindowConfig is one window of a multi-window limit.
type WindowConfig struct {
	Capacity int           `mapstructure:"capacity"`
	Period   time.Duration `mapstructure:"period"`
}

// HTTPConfig contains session and deadline configuration.
type HTTPConfig struct {
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`

	// TotalTimeout is the hard wall-clock ceiling on one call. It is
	// clamped to at least ReadTimeout at load time.
	TotalTimeout      time.Duration `mapstructure:"total_timeout"`
	ForceTotalTimeout bool          `mapstructure:"force_total_timeout"`

	// SessionMaxUses recycles a pooled session after this many completed
	// calls. Zero disables recycling.
	SessionMaxUses int    `mapstructure:"session_max_uses"`
	UserAgent      string `mapstructure:"user_agent"`

	Retry RetryConfig `mapstructure:"retry"`
}

// RetryConfig contains the transport-level retry budgets.
type RetryConfig struct {
	Total         int     `mapstructure:"total"`
	Connect       int     `mapstructure:"connect"`
	Read          int     `mapstructure:"read"`
	BackoffFactor float64 `mapstructure:"backoff_factor"`
	OnStatus      bool    `mapstructure:"on_status"`

	// StatusCodes is the retryable status set when OnStatus is true.
	// 429 is stripped at the transport; the rate limiter owns that path.
	StatusCodes []int `mapstructure:"status_codes"`
}

// PerfConfig contains latency tracking and report card configuration.
type PerfConfig struct {
	EmitEvery      int           `mapstructure:"emit_every"`
	WindowSize     int           `mapstructure:"window_size"`
	ReportInterval time.Duration `mapstructure:"report_interval"`
	SampleLog      string        `mapstructure:"sample_log"`
	ReportLog      string        `mapstructure:"report_log"`
}

// EndpointsConfig contains the upstream API base URLs.
type EndpointsConfig struct {
	GammaBase string `mapstructure:"gamma_base"`
	ClobBase  string `mapstructure:"clob_base"`
	DataBase  string `mapstructure:"data_base"`
	APIKey    string `mapstructure:"api_key"`
}
