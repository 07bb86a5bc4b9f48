package cmd

import (
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/polywatch/polywatch/internal/clients"
	"github.com/polywatch/polywatch/internal/config"
	"github.com/polywatch/polywatch/internal/httpx"
	"github.com/polywatch/polywatch/internal/observability"
	"github.com/polywatch/polywatch/internal/perf"
	"github.com/polywatch/polywatch/internal/ratelimit"
)

// app wires the config, quota registry, throttled HTTP client and the API
// clients together for one command invocation.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *ratelimit.Registry
	client   *httpx.Client
	tracker  *perf.Tracker
	reporter *perf.Reporter

	gamma *clients.GammaClient
	clob  *clients.ClobClient
	data  *clients.DataClient
}

// buildApp loads the merged configuration and constructs the full stack.
func buildApp() (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	if err := observability.InitCrawlLogger(level, cfg.Logging.Format); err != nil {
		return nil, err
	}
	logger := observability.CrawlLogger

	registry := ratelimit.NewRegistry(ratelimit.Config{
		SafetyFraction:    cfg.Rate.SafetyFraction,
		Quotas:            quotas(cfg),
		Windows:           windows(cfg),
		HeartbeatInterval: cfg.Rate.HeartbeatInterval,
	}, logger.Named("ratelimit"))

	tracker := perf.NewTracker(perf.TrackerConfig{
		EmitEvery:  cfg.Perf.EmitEvery,
		WindowSize: cfg.Perf.WindowSize,
		SamplePath: cfg.Perf.SampleLog,
		Logger:     logger.Named("perf"),
	})
	reporter := perf.NewReporter(tracker, perf.ReporterConfig{
		Interval:   cfg.Perf.ReportInterval,
		ReportPath: cfg.Perf.ReportLog,
		Logger:     logger.Named("perf"),
	})

	pool := httpx.NewSessionPool(httpx.SessionConfig{
		Workers:        cfg.Workers,
		MaxUses:        cfg.HTTP.SessionMaxUses,
		ConnectTimeout: cfg.HTTP.ConnectTimeout,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		UserAgent:      cfg.HTTP.UserAgent,
		Retry: httpx.RetryConfig{
			Total:         cfg.HTTP.Retry.Total,
			Connect:       cfg.HTTP.Retry.Connect,
			Read:          cfg.HTTP.Retry.Read,
			BackoffFactor: cfg.HTTP.Retry.BackoffFactor,
			OnStatus:      cfg.HTTP.Retry.OnStatus,
			StatusCodes:   cfg.HTTP.Retry.StatusCodes,
		},
	}, logger.Named("httpx"))

	client := &httpx.Client{
		Limiter: registry,
		Pool:    pool,
		Guard: &httpx.DeadlineGuard{
			Total: cfg.HTTP.TotalTimeout,
			Force: cfg.HTTP.ForceTotalTimeout,
		},
		Perf:              tracker,
		Reporter:          reporter,
		AcquireTimeout:    cfg.Rate.AcquireTimeout,
		HeartbeatInterval: cfg.Rate.HeartbeatInterval,
		UserAgent:         cfg.HTTP.UserAgent,
		Logger:            logger.Named("httpx"),
	}
	if cfg.Endpoints.APIKey != "" {
		client.Headers = map[string]string{"X-API-Key": cfg.Endpoints.APIKey}
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		client:   client,
		tracker:  tracker,
		reporter: reporter,
		gamma:    clients.NewGammaClient(cfg.Endpoints.GammaBase, client, logger.Named("gamma")),
		clob:     clients.NewClobClient(cfg.Endpoints.ClobBase, client, logger.Named("clob")),
		data:     clients.NewDataClient(cfg.Endpoints.DataBase, client, logger.Named("data")),
	}, nil
}

// close flushes perf state at the end of a command.
func (a *app) close() {
	a.registry.StopHeartbeat()
	a.tracker.Flush()
	observability.Sync()
}

func quotas(cfg *config.Config) map[string]int {
	if len(cfg.Rate.Quotas) == 0 {
		return nil // registry falls back to the published defaults
	}
	merged := make(map[string]int, len(ratelimit.DefaultQuotas)+len(cfg.Rate.Quotas))
	for name, quota := range ratelimit.DefaultQuotas {
		merged[name] = quota
	}
	for name, quota := range cfg.Rate.Quotas {
		merged[name] = quota
	}
	return merged
}

func windows(cfg *config.Config) map[string][]ratelimit.WindowSpec {
	if len(cfg.Rate.Windows) == 0 {
		return nil
	}
	out := make(map[string][]ratelimit.WindowSpec, len(cfg.Rate.Windows))
	for name, specs := range cfg.Rate.Windows {
		converted := make([]ratelimit.WindowSpec, len(specs))
		for i, spec := range specs {
			converted[i] = ratelimit.WindowSpec{Capacity: spec.Capacity, Period: spec.Period}
		}
		out[name] = converted
	}
	return out
}
