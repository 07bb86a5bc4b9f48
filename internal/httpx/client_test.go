package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/polywatch/polywatch/internal/ratelimit"
)

type fakeLimiter struct {
	mu         sync.Mutex
	acquired   []string
	acquireErr error
	successes  []string
	throttles  []time.Duration
	heartbeats int
}

func (f *fakeLimiter) Acquire(ctx context.Context, bucket string, maxWait time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acquireErr != nil {
		err := f.acquireErr
		f.acquireErr = nil
		return err
	}
	f.acquired = append(f.acquired, bucket)
	return nil
}

func (f *fakeLimiter) Record429(bucket string, retryAfter time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.throttles = append(f.throttles, retryAfter)
}

func (f *fakeLimiter) RecordSuccess(bucket string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successes = append(f.successes, bucket)
}

func (f *fakeLimiter) StartHeartbeat(time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats++
}

type fakeRecorder struct {
	mu      sync.Mutex
	samples []struct {
		endpoint string
		status   int
	}
}

func (f *fakeRecorder) Record(endpoint string, latency time.Duration, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, struct {
		endpoint string
		status   int
	}{endpoint, status})
}

func newTestClient(limiter *fakeLimiter, recorder *fakeRecorder, cfg SessionConfig) *Client {
	c := &Client{
		Limiter:        limiter,
		Pool:           NewSessionPool(cfg, nil),
		Guard:          &DeadlineGuard{Total: 2 * time.Second, Force: true},
		AcquireTimeout: time.Second,
	}
	if recorder != nil {
		c.Perf = recorder
	}
	return c
}

func TestClientGetSuccessFlow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Accept"))
		require.NotEmpty(t, r.Header.Get("X-Request-ID"))
		require.Equal(t, "42", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	limiter := &fakeLimiter{}
	recorder := &fakeRecorder{}
	c := newTestClient(limiter, recorder, SessionConfig{Workers: 1})

	params := map[string][]string{"limit": {"42"}}
	resp, err := c.Get(context.Background(), server.URL, params, "gamma_markets")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, []string{"gamma_markets"}, limiter.acquired)
	require.Equal(t, []string{"gamma_markets"}, limiter.successes)
	require.Empty(t, limiter.throttles)
	require.Equal(t, 1, limiter.heartbeats)
	require.Len(t, recorder.samples, 1)
	require.Equal(t, http.StatusOK, recorder.samples[0].status)
}

func TestClientGetFeedsBackoffOn429(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	limiter := &fakeLimiter{}
	c := newTestClient(limiter, nil, SessionConfig{Workers: 1})

	resp, err := c.Get(context.Background(), server.URL, nil, "data_activity")
	require.NoError(t, err, "a 429 is a response, not an error, at this layer")
	defer resp.Body.Close()

	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, []time.Duration{7 * time.Second}, limiter.throttles)
	require.Empty(t, limiter.successes)
}

func TestClientGetSurfacesAcquireTimeout(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer server.Close()

	limiter := &fakeLimiter{acquireErr: &ratelimit.AcquireTimeoutError{Bucket: "clob_book", Wait: time.Second}}
	c := newTestClient(limiter, nil, SessionConfig{Workers: 1})

	_, err := c.Get(context.Background(), server.URL, nil, "clob_book")
	var timeout *ratelimit.AcquireTimeoutError
	require.ErrorAs(t, err, &timeout)
	require.Zero(t, hits, "no request may be issued without a token")
}

func TestClientGetDiscardsSessionOnTotalTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fast" {
			return
		}
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	limiter := &fakeLimiter{}
	recorder := &fakeRecorder{}
	c := newTestClient(limiter, recorder, SessionConfig{Workers: 1})
	c.Guard = &DeadlineGuard{Total: 40 * time.Millisecond, Force: true}

	_, err := c.Get(context.Background(), server.URL, nil, "gamma_markets")
	var timeout *TotalTimeoutError
	require.ErrorAs(t, err, &timeout)
	require.Equal(t, uint64(1), c.Pool.Generation())

	// The next call must run on a freshly built session.
	c.Guard = &DeadlineGuard{Total: 2 * time.Second, Force: true}
	resp, err := c.Get(context.Background(), server.URL+"/fast", nil, "gamma_markets")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, uint64(2), c.Pool.Generation())
}

func TestClientGetRecyclesSessionAtMaxUses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	limiter := &fakeLimiter{}
	c := newTestClient(limiter, nil, SessionConfig{Workers: 1, MaxUses: 2})

	for i := 0; i < 2; i++ {
		resp, err := c.Get(context.Background(), server.URL, nil, "gamma_markets")
		require.NoError(t, err)
		resp.Body.Close()
	}

	// Two completed calls hit the threshold; the pool replaced the session.
	require.Equal(t, uint64(2), c.Pool.Generation())
}
