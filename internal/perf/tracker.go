package perf

import (
	"encoding/json"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultEmitEvery  = 800
	defaultWindowSize = 200
)

// Sample is one completed call, serialized as a jsonl row. Latency is in
// seconds so the rows stay greppable alongside the report card.
type Sample struct {
	Timestamp float64 `json:"t"`
	Endpoint  string  `json:"endpoint"`
	Latency   float64 `json:"latency"`
	Status    int     `json:"status"`
}

// EndpointSnapshot summarizes one endpoint's latency distribution. Count and
// Mean cover the endpoint's lifetime; the percentiles and Max come from the
// most recent window so a slow hour does not haunt the report forever.
type EndpointSnapshot struct {
	Count   int64   `json:"count"`
	Mean    float64 `json:"avg"`
	P50     float64 `json:"p50"`
	P90     float64 `json:"p90"`
	P95     float64 `json:"p95"`
	Max     float64 `json:"max"`
	ErrRate float64 `json:"err_rate"`
}

type endpointStats struct {
	count  int64
	sum    float64
	window *deque.Deque[Sample]
}

// Tracker collects per-endpoint latency samples, keeps a bounded rolling
// window per endpoint and appends every sample to a jsonl sink in batches.
type Tracker struct {
	mu     sync.Mutex
	buf    []Sample
	stats  map[string]*endpointStats
	out    io.Writer
	logger *zap.Logger

	emitEvery  int
	windowSize int
	clock      func() time.Time
}

// TrackerConfig carries the knobs for NewTracker. Zero values fall back to
// the defaults; an empty SamplePath disables the jsonl sink.
type TrackerConfig struct {
	EmitEvery  int
	WindowSize int
	SamplePath string
	Logger     *zap.Logger
}

func NewTracker(cfg TrackerConfig) *Tracker {
	t := &Tracker{
		stats:      make(map[string]*endpointStats),
		logger:     cfg.Logger,
		emitEvery:  cfg.EmitEvery,
		windowSize: cfg.WindowSize,
		clock:      time.Now,
	}
	if t.emitEvery <= 0 {
		t.emitEvery = defaultEmitEvery
	}
	if t.windowSize <= 0 {
		t.windowSize = defaultWindowSize
	}
	if cfg.SamplePath != "" {
		t.out = &lumberjack.Logger{
			Filename:   cfg.SamplePath,
			MaxSize:    50,
			MaxBackups: 3,
			Compress:   true,
		}
	}
	return t
}

// Record folds one call into the endpoint's stats and buffers the sample for
// the next flush. A status of 0 marks a transport-level failure.
func (t *Tracker) Record(endpoint string, latency time.Duration, status int) {
	seconds := latency.Seconds()

	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.stats[endpoint]
	if s == nil {
		s = &endpointStats{window: deque.New[Sample]()}
		t.stats[endpoint] = s
	}
	s.count++
	s.sum += seconds
	s.window.PushBack(Sample{Endpoint: endpoint, Latency: seconds, Status: status})
	for s.window.Len() > t.windowSize {
		s.window.PopFront()
	}

	t.buf = append(t.buf, Sample{
		Timestamp: float64(t.clock().UnixNano()) / float64(time.Second),
		Endpoint:  endpoint,
		Latency:   seconds,
		Status:    status,
	})
	if len(t.buf) >= t.emitEvery {
		t.flushLocked()
	}
}

// Snapshot returns the current per-endpoint summaries.
func (t *Tracker) Snapshot() map[string]EndpointSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]EndpointSnapshot, len(t.stats))
	for ep, s := range t.stats {
		n := s.window.Len()
		latencies := make([]float64, 0, n)
		var failures int
		for i := 0; i < n; i++ {
			sample := s.window.At(i)
			latencies = append(latencies, sample.Latency)
			if isFailure(sample.Status) {
				failures++
			}
		}
		sort.Float64s(latencies)

		snap := EndpointSnapshot{Count: s.count}
		if s.count > 0 {
			snap.Mean = s.sum / float64(s.count)
		}
		if n > 0 {
			snap.P50 = percentile(latencies, 0.50)
			snap.P90 = percentile(latencies, 0.90)
			snap.P95 = percentile(latencies, 0.95)
			snap.Max = latencies[n-1]
			snap.ErrRate = float64(failures) / float64(n)
		}
		out[ep] = snap
	}
	return out
}

// Flush writes buffered samples to the jsonl sink. Sink failures are logged
// and the batch is dropped; perf accounting must never fail a crawl.
func (t *Tracker) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flushLocked()
}

func (t *Tracker) flushLocked() {
	if len(t.buf) == 0 {
		return
	}
	if t.out == nil {
		t.buf = t.buf[:0]
		return
	}
	for _, row := range t.buf {
		line, err := json.Marshal(row)
		if err != nil {
			continue
		}
		if _, err := t.out.Write(append(line, '\n')); err != nil {
			t.log().Warn("perf sample flush failed", zap.Error(err))
			break
		}
	}
	t.buf = t.buf[:0]
}

func (t *Tracker) log() *zap.Logger {
	if t.logger != nil {
		return t.logger
	}
	return zap.NewNop()
}

// percentile picks the nearest-rank value from an ascending slice.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(q*float64(len(sorted))) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

// isFailure counts throttles, server errors and transport failures against
// the error rate. Client errors below 429 are the caller's problem.
func isFailure(status int) bool {
	return status == 0 || status == 429 || (status >= 500 && status < 600)
}
