package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoad(t *testing.T) {
	t.Run("LoadDefaults", func(t *testing.T) {
		cfg, err := Load(newTestViper(t))
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, 4, cfg.Workers)
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "console", cfg.Logging.Format)

		assert.Equal(t, 0.8, cfg.Rate.SafetyFraction)
		assert.Equal(t, 60*time.Second, cfg.Rate.AcquireTimeout)
		assert.Equal(t, 30*time.Second, cfg.Rate.HeartbeatInterval)

		assert.Equal(t, 10*time.Second, cfg.HTTP.ConnectTimeout)
		assert.Equal(t, 45*time.Second, cfg.HTTP.ReadTimeout)
		assert.Equal(t, 90*time.Second, cfg.HTTP.TotalTimeout)
		assert.True(t, cfg.HTTP.ForceTotalTimeout)
		assert.Equal(t, 1000, cfg.HTTP.SessionMaxUses)
		assert.Equal(t, 3, cfg.HTTP.Retry.Total)
		assert.Equal(t, 2, cfg.HTTP.Retry.Connect)
		assert.Equal(t, 2, cfg.HTTP.Retry.Read)
		assert.True(t, cfg.HTTP.Retry.OnStatus)
		assert.Equal(t, []int{408, 500, 502, 503, 504}, cfg.HTTP.Retry.StatusCodes)

		assert.Equal(t, 800, cfg.Perf.EmitEvery)
		assert.Equal(t, 200, cfg.Perf.WindowSize)
		assert.Equal(t, 10*time.Minute, cfg.Perf.ReportInterval)

		assert.Equal(t, "https://gamma-api.polymarket.com", cfg.Endpoints.GammaBase)
		assert.Equal(t, "https://clob.polymarket.com", cfg.Endpoints.ClobBase)
		assert.Equal(t, "https://data-api.polymarket.com", cfg.Endpoints.DataBase)
	})

	t.Run("Overrides", func(t *testing.T) {
		v := newTestViper(t)
		v.Set("workers", 12)
		v.Set("logging.level", "debug")
		v.Set("rate.quotas", map[string]int{"gamma_markets": 125})
		v.Set("rate.acquire_timeout", "90s")

		cfg, err := Load(v)
		require.NoError(t, err)

		assert.Equal(t, 12, cfg.Workers)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, 125, cfg.Rate.Quotas["gamma_markets"])
		assert.Equal(t, 90*time.Second, cfg.Rate.AcquireTimeout)
	})

	t.Run("RetryStatusCodesOverride", func(t *testing.T) {
		v := newTestViper(t)
		v.Set("http.retry.status_codes", []int{500, 503})

		cfg, err := Load(v)
		require.NoError(t, err)
		assert.Equal(t, []int{500, 503}, cfg.HTTP.Retry.StatusCodes)
	})

	t.Run("DurationParsing", func(t *testing.T) {
		v := newTestViper(t)
		v.Set("http.read_timeout", "45s")
		v.Set("perf.report_interval", "5m")

		cfg, err := Load(v)
		require.NoError(t, err)

		assert.Equal(t, 45*time.Second, cfg.HTTP.ReadTimeout)
		assert.Equal(t, 5*time.Minute, cfg.Perf.ReportInterval)
	})

	t.Run("WindowsDecode", func(t *testing.T) {
		v := newTestViper(t)
		v.Set("rate.windows", map[string]any{
			"clob_book": []map[string]any{
				{"capacity": 100, "period": "10s"},
				{"capacity": 1000, "period": "10m"},
			},
		})

		cfg, err := Load(v)
		require.NoError(t, err)

		windows := cfg.Rate.Windows["clob_book"]
		require.Len(t, windows, 2)
		assert.Equal(t, 100, windows[0].Capacity)
		assert.Equal(t, 10*time.Second, windows[0].Period)
		assert.Equal(t, 10*time.Minute, windows[1].Period)
	})

	t.Run("TotalTimeoutClampedToReadTimeout", func(t *testing.T) {
		v := newTestViper(t)
		v.Set("http.read_timeout", "45s")
		v.Set("http.total_timeout", "20s")

		cfg, err := Load(v)
		require.NoError(t, err)
		assert.Equal(t, 45*time.Second, cfg.HTTP.TotalTimeout)
	})

	t.Run("RejectsBadSafetyFraction", func(t *testing.T) {
		v := newTestViper(t)
		v.Set("rate.safety_fraction", 1.5)

		_, err := Load(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "safety_fraction")
	})

	t.Run("RejectsBadWindow", func(t *testing.T) {
		v := newTestViper(t)
		v.Set("rate.windows", map[string]any{
			"clob_book": []map[string]any{{"capacity": 0, "period": "10s"}},
		})

		_, err := Load(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "clob_book")
	})

	t.Run("ClampsWorkers", func(t *testing.T) {
		v := newTestViper(t)
		v.Set("workers", 0)

		cfg, err := Load(v)
		require.NoError(t, err)
		assert.Equal(t, 1, cfg.Workers)
	})
}

func TestGetConfig(t *testing.T) {
	cfg, err := Load(newTestViper(t))
	require.NoError(t, err)

	retrieved := GetConfig()
	require.NotNil(t, retrieved)
	assert.Equal(t, cfg.Workers, retrieved.Workers)

	v := newTestViper(t)
	v.Set("workers", cfg.Workers+3)
	cfg2, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, cfg2.Workers, GetConfig().Workers)
}
