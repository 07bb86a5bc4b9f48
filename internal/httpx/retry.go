package httpx

import (
	"context"
	"errors"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"
)

// RetryConfig bounds transport-level retries. Retries cover connect and read
// failures plus an explicit status-code set; 429 is always excluded, since
// the rate limiter owns that decision.
type RetryConfig struct {
	// Total caps retries across all causes.
	Total int

	// Connect and Read cap retries per failure class.
	Connect int
	Read    int

	// BackoffFactor, in seconds, spaces retries as factor * 2^(n-1).
	BackoffFactor float64

	// OnStatus enables retrying the statuses in StatusCodes.
	OnStatus bool

	// StatusCodes is the retryable status set when OnStatus is true.
	StatusCodes []int
}

// DefaultRetryStatusCodes mirrors the transient server-error statuses worth
// one more attempt. 429 is deliberately absent.
var DefaultRetryStatusCodes = []int{408, 500, 502, 503, 504}

// retryTransport is a RoundTripper applying RetryConfig around a base
// transport. It only ever retries bodyless GET requests.
type retryTransport struct {
	base     http.RoundTripper
	cfg      RetryConfig
	statuses map[int]struct{}
	sleep    func(ctx context.Context, d time.Duration) error
}

func newRetryTransport(base http.RoundTripper, cfg RetryConfig) *retryTransport {
	t := &retryTransport{
		base:     base,
		cfg:      cfg,
		statuses: make(map[int]struct{}),
		sleep:    sleepContext,
	}
	if cfg.OnStatus {
		codes := cfg.StatusCodes
		if len(codes) == 0 {
			codes = DefaultRetryStatusCodes
		}
		for _, code := range codes {
			if code == http.StatusTooManyRequests {
				continue
			}
			t.statuses[code] = struct{}{}
		}
	}
	return t
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet || req.Body != nil {
		return t.base.RoundTrip(req)
	}

	total := t.cfg.Total
	connect := t.cfg.Connect
	read := t.cfg.Read

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if err := t.sleep(req.Context(), t.backoff(attempt)); err != nil {
				return nil, err
			}
		}

		resp, err := t.base.RoundTrip(req)
		if err != nil {
			if req.Context().Err() != nil {
				return nil, err
			}
			if isConnectError(err) {
				connect--
			} else {
				read--
			}
			total--
			if total < 0 || connect < 0 || read < 0 {
				return nil, err
			}
			continue
		}

		if _, retryable := t.statuses[resp.StatusCode]; !retryable {
			return resp, nil
		}
		total--
		if total < 0 {
			return resp, nil
		}
		wait := retryAfter(resp)
		drain(resp)
		if wait > 0 {
			if err := t.sleep(req.Context(), wait); err != nil {
				return nil, err
			}
		}
	}
}

func (t *retryTransport) backoff(attempt int) time.Duration {
	if t.cfg.BackoffFactor <= 0 {
		return 0
	}
	seconds := t.cfg.BackoffFactor * math.Pow(2, float64(attempt-1))
	return time.Duration(seconds * float64(time.Second))
}

// isConnectError reports whether the failure happened before the connection
// was established.
func isConnectError(err error) bool {
	var op *net.OpError
	if errors.As(err, &op) {
		return op.Op == "dial"
	}
	return false
}

// retryAfter reads a Retry-After hint off a retryable response. Both the
// delta-seconds and HTTP-date forms are honored.
func retryAfter(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	if seconds, err := strconv.ParseFloat(raw, 64); err == nil && seconds > 0 {
		return time.Duration(seconds * float64(time.Second))
	}
	if at, err := http.ParseTime(raw); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
	}
	return 0
}

func drain(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
