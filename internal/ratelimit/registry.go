package ratelimit

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config describes the quota universe a Registry serves.
type Config struct {
	// SafetyFraction scales every published upstream quota down, leaving
	// headroom below the advertised limit. Values outside (0, 1] are treated
	// as 1 (no scaling).
	SafetyFraction float64

	// Quotas maps bucket name to the published per-10s request quota.
	Quotas map[string]int

	// Windows maps bucket name to a multi-window spec. A bucket named here
	// is built as a MultiWindowBucket; its window capacities are scaled by
	// SafetyFraction as well.
	Windows map[string][]WindowSpec

	// HeartbeatInterval is the period of the observability heartbeat.
	// Zero disables it.
	HeartbeatInterval time.Duration
}

// DefaultQuotas carries the published per-10s request quotas for the
// upstream endpoints, before safety scaling.
var DefaultQuotas = map[string]int{
	"clob_book":             50,
	"clob_prices_history":   40,
	"gamma_markets":         125,
	"data_activity":         40,
	"data_holders":          40,
	"data_closed_positions": 40,
	"data_positions":        40,
}

// Registry is the process-wide mapping from bucket name to limiter. Buckets
// are constructed lazily on first reference and live until process exit.
type Registry struct {
	mu      sync.Mutex
	buckets map[string]Limiter
	cfg     Config
	logger  *zap.Logger

	hbOnce  sync.Once
	hbStop  chan struct{}
	clock   func() time.Time
	granted atomic.Int64
	events  atomic.Int64
}

// NewRegistry returns an empty registry over the given quota config.
func NewRegistry(cfg Config, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Quotas == nil {
		cfg.Quotas = DefaultQuotas
	}
	return &Registry{
		buckets: make(map[string]Limiter),
		cfg:     cfg,
		logger:  logger,
		hbStop:  make(chan struct{}),
		clock:   time.Now,
	}
}

// Acquire delegates to the named bucket, creating it on first use. An
// exceeded wait bound surfaces as an AcquireTimeoutError carrying the bucket
// name.
func (r *Registry) Acquire(ctx context.Context, name string, maxWait time.Duration) error {
	if err := r.bucket(name).Acquire(ctx, maxWait); err != nil {
		var timeout *AcquireTimeoutError
		if errors.As(err, &timeout) {
			timeout.Bucket = name
		}
		return err
	}
	r.granted.Add(1)
	return nil
}

// Record429 feeds a throttling signal back into the named bucket and counts
// the event.
func (r *Registry) Record429(name string, retryAfter time.Duration) {
	r.events.Add(1)
	r.bucket(name).Record429(retryAfter)
}

// RecordSuccess feeds a success signal back into the named bucket.
func (r *Registry) RecordSuccess(name string) {
	r.bucket(name).RecordSuccess()
}

// ThrottleEvents returns the number of 429s observed since startup.
func (r *Registry) ThrottleEvents() int64 {
	return r.events.Load()
}

// Snapshots returns a point-in-time view of every instantiated bucket,
// sorted by name.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	names := make([]string, 0, len(r.buckets))
	limiters := make([]Limiter, 0, len(r.buckets))
	for name, limiter := range r.buckets {
		names = append(names, name)
		limiters = append(limiters, limiter)
	}
	r.mu.Unlock()

	snaps := make([]Snapshot, len(names))
	for i := range names {
		snaps[i] = limiters[i].Snapshot()
		snaps[i].Name = names[i]
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Name < snaps[j].Name })
	return snaps
}

// Warm instantiates every configured bucket up front, so snapshots and the
// heartbeat see the full universe before traffic arrives.
func (r *Registry) Warm() {
	for name := range r.cfg.Quotas {
		r.bucket(name)
	}
	for name := range r.cfg.Windows {
		r.bucket(name)
	}
}

func (r *Registry) bucket(name string) Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.buckets[name]; ok {
		return b
	}
	b := r.build(name)
	r.buckets[name] = b
	return b
}

func (r *Registry) build(name string) Limiter {
	if specs, ok := r.cfg.Windows[name]; ok && len(specs) > 0 {
		scaled := make([]WindowSpec, len(specs))
		for i, spec := range specs {
			scaled[i] = WindowSpec{
				Capacity: r.scale(spec.Capacity),
				Period:   spec.Period,
			}
		}
		r.logger.Debug("built multi-window bucket",
			zap.String("bucket", name),
			zap.Int("windows", len(scaled)))
		return NewMultiWindowBucket(scaled)
	}

	quota, ok := r.cfg.Quotas[name]
	if !ok {
		quota = 10
	}
	capacity := r.scale(quota)
	r.logger.Debug("built bucket",
		zap.String("bucket", name),
		zap.Int("capacity", capacity))
	return NewBucket(capacity, float64(capacity)/10.0)
}

func (r *Registry) scale(quota int) int {
	fraction := r.cfg.SafetyFraction
	if fraction <= 0 || fraction > 1 {
		fraction = 1
	}
	scaled := int(math.Floor(float64(quota) * fraction))
	if scaled < 1 {
		scaled = 1
	}
	return scaled
}
