package perf

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"
)

const defaultReportInterval = 10 * time.Minute

// Reporter counts attempted calls and appends a one-line endpoint timing
// report to its sink once per interval. The interval check is cheap enough
// to sit on the hot path; the report itself runs under a lock at most once
// per window.
type Reporter struct {
	mu      sync.Mutex
	calls   atomic.Int64
	last    atomic.Int64
	tracker *Tracker
	out     io.Writer
	logger  *zap.Logger

	interval time.Duration
	clock    func() time.Time
}

// ReporterConfig carries the knobs for NewReporter. An empty ReportPath
// disables the sink; the interval defaults to ten minutes.
type ReporterConfig struct {
	Interval   time.Duration
	ReportPath string
	Logger     *zap.Logger
}

func NewReporter(tracker *Tracker, cfg ReporterConfig) *Reporter {
	r := &Reporter{
		tracker:  tracker,
		logger:   cfg.Logger,
		interval: cfg.Interval,
		clock:    time.Now,
	}
	if r.interval <= 0 {
		r.interval = defaultReportInterval
	}
	if cfg.ReportPath != "" {
		r.out = &lumberjack.Logger{
			Filename:   cfg.ReportPath,
			MaxSize:    10,
			MaxBackups: 3,
			Compress:   true,
		}
	}
	r.last.Store(r.clock().UnixNano())
	return r
}

// Bump records one attempted call and emits a report if the interval has
// elapsed since the last one.
func (r *Reporter) Bump(label string) {
	n := r.calls.Add(1)
	r.log().Debug("api call", zap.Int64("n", n), zap.String("label", label))

	now := r.clock()
	if now.UnixNano()-r.last.Load() < int64(r.interval) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	// Re-check under the lock so concurrent bumps emit a single report.
	if now.UnixNano()-r.last.Load() < int64(r.interval) {
		return
	}
	r.writeReport(now)
	r.last.Store(now.UnixNano())
}

// Calls returns the number of bumped calls so far.
func (r *Reporter) Calls() int64 {
	return r.calls.Load()
}

// Report forces an immediate report regardless of the interval.
func (r *Reporter) Report() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock()
	r.writeReport(now)
	r.last.Store(now.UnixNano())
}

func (r *Reporter) writeReport(now time.Time) {
	if r.tracker == nil {
		return
	}
	line := formatReport(r.tracker.Snapshot())
	r.log().Info("endpoint timing", zap.String("report", line))
	if r.out == nil {
		return
	}
	stamp := now.UTC().Format("2006-01-02 15:04:05 UTC")
	if _, err := fmt.Fprintf(r.out, "%s %s\n", stamp, line); err != nil {
		r.log().Warn("report card write failed", zap.Error(err))
	}
}

func (r *Reporter) log() *zap.Logger {
	if r.logger != nil {
		return r.logger
	}
	return zap.NewNop()
}

// formatReport renders the per-endpoint summaries as a single line, sorted
// by endpoint name so consecutive reports diff cleanly.
func formatReport(snaps map[string]EndpointSnapshot) string {
	endpoints := make([]string, 0, len(snaps))
	for ep := range snaps {
		endpoints = append(endpoints, ep)
	}
	sort.Strings(endpoints)

	parts := make([]string, 0, len(endpoints)+1)
	parts = append(parts, "=== Endpoint timing ===")
	for _, ep := range endpoints {
		s := snaps[ep]
		if s.Count > 0 && s.Max > 0 {
			parts = append(parts, fmt.Sprintf("%s n=%d avg=%.2fs p50=%.2fs p90=%.2fs max=%.2fs",
				ep, s.Count, s.Mean, s.P50, s.P90, s.Max))
		} else {
			parts = append(parts, fmt.Sprintf("%s n=%d avg=%.2fs", ep, s.Count, s.Mean))
		}
	}
	return strings.Join(parts, " ")
}
