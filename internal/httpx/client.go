package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Limiter is the quota gate consulted before every outbound call. It is
// implemented by ratelimit.Registry.
type Limiter interface {
	Acquire(ctx context.Context, bucket string, maxWait time.Duration) error
	Record429(bucket string, retryAfter time.Duration)
	RecordSuccess(bucket string)
	StartHeartbeat(interval time.Duration)
}

// Recorder receives one latency/status sample per completed call. It is
// implemented by perf.Tracker.
type Recorder interface {
	Record(endpoint string, latency time.Duration, status int)
}

// CallCounter observes every attempted call; it drives the periodic
// per-endpoint report. Implemented by perf.Reporter.
type CallCounter interface {
	Bump(label string)
}

// Client orchestrates one throttled GET: quota acquisition, session
// checkout, deadline-guarded transport call, feedback classification and
// perf recording. It never reads or decodes response bodies; interpretation
// belongs to the domain clients.
type Client struct {
	Limiter  Limiter
	Pool     *SessionPool
	Guard    *DeadlineGuard
	Perf     Recorder
	Reporter CallCounter

	// AcquireTimeout bounds the quota wait so a depleted bucket fails fast
	// instead of stalling the caller indefinitely.
	AcquireTimeout time.Duration

	// HeartbeatInterval is handed to the limiter's idempotent heartbeat
	// starter on every call.
	HeartbeatInterval time.Duration

	UserAgent string

	// Headers are applied to every outbound request, e.g. an API key.
	Headers map[string]string

	Logger *zap.Logger

	clock func() time.Time
}

// Get issues a rate-limited GET against the named bucket and returns the raw
// response. A 429 feeds backoff into the bucket (honoring a Retry-After
// hint), a 2xx/3xx feeds recovery, other statuses pass through unclassified.
// The caller owns the response body.
func (c *Client) Get(ctx context.Context, rawURL string, params url.Values, bucket string) (*http.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if c.Limiter != nil {
		c.Limiter.StartHeartbeat(c.HeartbeatInterval)
		if err := c.Limiter.Acquire(ctx, bucket, c.AcquireTimeout); err != nil {
			return nil, err
		}
	}

	target := rawURL
	if len(params) > 0 {
		target = rawURL + "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	for name, value := range c.Headers {
		req.Header.Set(name, value)
	}
	requestID := uuid.New().String()
	req.Header.Set("X-Request-ID", requestID)

	if c.Reporter != nil {
		c.Reporter.Bump(bucket)
	}

	session := c.Pool.Acquire()
	start := c.now()
	resp, err := c.Guard.Do(ctx, session, req)
	latency := c.now().Sub(start)

	if err != nil {
		var total *TotalTimeoutError
		if errors.As(err, &total) {
			// The session may be pinned to a stalled connection; never
			// hand it to the next caller.
			c.Pool.Discard(session)
		} else {
			c.Pool.Release(session)
		}
		c.record(bucket, latency, 0)
		c.log().Warn("throttled get failed",
			zap.String("bucket", bucket),
			zap.String("url", rawURL),
			zap.String("request_id", requestID),
			zap.Duration("latency", latency),
			zap.Error(err))
		return nil, err
	}

	session.MarkUse()
	c.Pool.Release(session)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if c.Limiter != nil {
			c.Limiter.Record429(bucket, retryAfter(resp))
		}
	case resp.StatusCode >= 200 && resp.StatusCode < 400:
		if c.Limiter != nil {
			c.Limiter.RecordSuccess(bucket)
		}
	}

	c.record(bucket, latency, resp.StatusCode)
	c.log().Debug("throttled get",
		zap.String("bucket", bucket),
		zap.String("url", rawURL),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", latency))
	return resp, nil
}

// ResetSessions force-drops every idle session; callers use it after an
// acquire timeout to avoid retrying on possibly stalled connections.
func (c *Client) ResetSessions() {
	if c.Pool != nil {
		c.Pool.Reset()
	}
}

func (c *Client) record(bucket string, latency time.Duration, status int) {
	if c.Perf != nil {
		c.Perf.Record(bucket, latency, status)
	}
}

func (c *Client) log() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}

func (c *Client) now() time.Time {
	if c.clock != nil {
		return c.clock()
	}
	return time.Now()
}
