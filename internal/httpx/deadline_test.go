package httpx

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newGetRequest(t *testing.T, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	return req
}

func TestDeadlineGuardReleasesCallerOnOverrun(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	pool := NewSessionPool(SessionConfig{Workers: 1}, nil)
	guard := &DeadlineGuard{Total: 50 * time.Millisecond, Force: true}

	start := time.Now()
	_, err := guard.Do(context.Background(), pool.Acquire(), newGetRequest(t, server.URL))
	elapsed := time.Since(start)

	var timeout *TotalTimeoutError
	require.ErrorAs(t, err, &timeout)
	require.Equal(t, 50*time.Millisecond, timeout.Limit)
	require.Less(t, elapsed, 500*time.Millisecond, "caller must be released at the ceiling, not the call's duration")
}

func TestDeadlineGuardReturnsResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	pool := NewSessionPool(SessionConfig{Workers: 1}, nil)
	guard := &DeadlineGuard{Total: 2 * time.Second, Force: true}

	resp, err := guard.Do(context.Background(), pool.Acquire(), newGetRequest(t, server.URL))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.JSONEq(t, `{"ok":true}`, string(body))
}

func TestDeadlineGuardInlineWhenDisabled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	pool := NewSessionPool(SessionConfig{Workers: 1}, nil)
	guard := &DeadlineGuard{Force: false}

	resp, err := guard.Do(context.Background(), pool.Acquire(), newGetRequest(t, server.URL))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestDeadlineGuardWrapsTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	pool := NewSessionPool(SessionConfig{Workers: 1}, nil)
	guard := &DeadlineGuard{Total: time.Second, Force: true}

	_, err := guard.Do(context.Background(), pool.Acquire(), newGetRequest(t, url))
	var transport *TransportError
	require.ErrorAs(t, err, &transport)
	require.Contains(t, transport.URL, "http://")
}

func TestDeadlineGuardHonorsCallerContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	pool := NewSessionPool(SessionConfig{Workers: 1}, nil)
	guard := &DeadlineGuard{Total: 5 * time.Second, Force: true}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := guard.Do(ctx, pool.Acquire(), newGetRequest(t, server.URL))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
