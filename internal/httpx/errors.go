package httpx

import (
	"fmt"
	"time"
)

// TotalTimeoutError reports that the hard wall-clock ceiling on a logical
// request elapsed before the transport produced an outcome. The in-flight
// call is abandoned best-effort and the session that carried it is discarded;
// callers should retry on a fresh session.
type TotalTimeoutError struct {
	URL   string
	Limit time.Duration
}

func (e *TotalTimeoutError) Error() string {
	return fmt.Sprintf("total timeout exceeded (%s) for %s", e.Limit, e.URL)
}

// TransportError reports a network-level failure surfaced after the bounded
// transport-level retries were exhausted.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request failed for %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
