package httpx

import (
	"context"
	"io"
	"net/http"
	"time"
)

// DeadlineGuard enforces a hard wall-clock ceiling on one logical request.
// Transport-level connect/read timeouts cannot bound the total time of a
// call when internal retries issue multiple attempts; the guard can.
type DeadlineGuard struct {
	// Total is the wall-clock ceiling. Total should be at least the
	// transport's read timeout.
	Total time.Duration

	// Force enables the ceiling. When false the call runs inline, bounded
	// only by the transport's own timeouts.
	Force bool
}

type callResult struct {
	resp *http.Response
	err  error
}

// Do issues the request through the session, releasing the caller after at
// most Total. On overrun the in-flight call is cancelled best-effort and a
// TotalTimeoutError is returned; the caller should discard the session. A
// transport failure is wrapped as a TransportError.
func (g *DeadlineGuard) Do(ctx context.Context, s *Session, req *http.Request) (*http.Response, error) {
	if g == nil || !g.Force || g.Total <= 0 {
		resp, err := s.Do(req.WithContext(ctx))
		if err != nil {
			return nil, &TransportError{URL: req.URL.String(), Err: err}
		}
		return resp, nil
	}

	callCtx, cancel := context.WithCancel(ctx)
	done := make(chan callResult, 1)
	go func() {
		resp, err := s.Do(req.WithContext(callCtx))
		done <- callResult{resp: resp, err: err}
	}()

	timer := time.NewTimer(g.Total)
	defer timer.Stop()

	select {
	case result := <-done:
		if result.err != nil {
			cancel()
			return nil, &TransportError{URL: req.URL.String(), Err: result.err}
		}
		// The context has to survive until the caller finishes the body.
		result.resp.Body = &cancelOnClose{ReadCloser: result.resp.Body, cancel: cancel}
		return result.resp, nil
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	case <-timer.C:
		cancel()
		return nil, &TotalTimeoutError{URL: req.URL.String(), Limit: g.Total}
	}
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
