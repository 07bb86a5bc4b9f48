// Package config provides centralized configuration management for PolyWatch.
// Defaults, an optional YAML file and POLYWATCH_* environment variables are
// merged through viper and decoded into the typed Config struct.
package config

import (
	"fmt"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix is the environment variable prefix for overrides, e.g.
// POLYWATCH_RATE_SAFETY_FRACTION maps to rate.safety_fraction.
const EnvPrefix = "POLYWATCH"

var (
	appConfig *Config
	configMu  sync.RWMutex
)

// SetDefaults registers every configuration default on the given viper
// instance. Callers apply file and environment layers on top.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("workers", 4)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("rate.safety_fraction", 0.8)
	v.SetDefault("rate.quotas", map[string]int{})
	v.SetDefault("rate.acquire_timeout", "60s")
	v.SetDefault("rate.heartbeat_interval", "30s")

	v.SetDefault("http.connect_timeout", "10s")
	v.SetDefault("http.read_timeout", "45s")
	v.SetDefault("http.total_timeout", "90s")
	v.SetDefault("http.force_total_timeout", true)
	v.SetDefault("http.session_max_uses", 1000)
	v.SetDefault("http.user_agent", "polywatch/1.0")
	v.SetDefault("http.retry.total", 3)
	v.SetDefault("http.retry.connect", 2)
	v.SetDefault("http.retry.read", 2)
	v.SetDefault("http.retry.backoff_factor", 0.5)
	v.SetDefault("http.retry.on_status", true)
	v.SetDefault("http.retry.status_codes", []int{408, 500, 502, 503, 504})

	v.SetDefault("perf.emit_every", 800)
	v.SetDefault("perf.window_size", 200)
	v.SetDefault("perf.report_interval", "10m")
	v.SetDefault("perf.sample_log", "logs/report_card.jsonl")
	v.SetDefault("perf.report_log", "logs/report_card.log")

	v.SetDefault("endpoints.gamma_base", "https://gamma-api.polymarket.com")
	v.SetDefault("endpoints.clob_base", "https://clob.polymarket.com")
	v.SetDefault("endpoints.data_base", "https://data-api.polymarket.com")
	v.SetDefault("endpoints.api_key", "")
}

// Load decodes the merged viper state into a typed Config and stores it for
// GetConfig. It is safe to call multiple times, e.g. for config reload.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	setConfig(cfg)
	return cfg, nil
}

// validate normalizes cross-field constraints instead of failing where a
// sane clamp exists.
func validate(cfg *Config) error {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Rate.SafetyFraction <= 0 || cfg.Rate.SafetyFraction > 1 {
		return fmt.Errorf("rate.safety_fraction must be in (0, 1], got %v", cfg.Rate.SafetyFraction)
	}
	for bucket, windows := range cfg.Rate.Windows {
		for _, w := range windows {
			if w.Capacity < 1 || w.Period <= 0 {
				return fmt.Errorf("rate.windows.%s: capacity and period must be positive", bucket)
			}
		}
	}
	// A total ceiling below the per-read timeout would fire before a single
	// healthy read could finish.
	if cfg.HTTP.TotalTimeout > 0 && cfg.HTTP.TotalTimeout < cfg.HTTP.ReadTimeout {
		cfg.HTTP.TotalTimeout = cfg.HTTP.ReadTimeout
	}
	return nil
}

// GetConfig returns the current application configuration (thread-safe).
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}
