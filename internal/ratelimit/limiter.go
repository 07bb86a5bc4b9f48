package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Limiter is the contract shared by single- and multi-window buckets.
type Limiter interface {
	// Acquire blocks until a token is granted or the wait bound is exceeded.
	Acquire(ctx context.Context, maxWait time.Duration) error

	// Record429 applies a throttling penalty, optionally sized by a
	// Retry-After hint.
	Record429(retryAfter time.Duration)

	// RecordSuccess decays the throttling penalty.
	RecordSuccess()

	// Snapshot reports current token levels for observability.
	Snapshot() Snapshot
}

// Snapshot is a point-in-time view of one bucket, used by the heartbeat and
// the buckets command. Tokens and Capacity describe the first (burst) window
// of a multi-window bucket.
type Snapshot struct {
	Name     string
	Tokens   float64
	Capacity float64
	Backoff  time.Duration
	Windows  int
}

// AcquireTimeoutError reports that a quota wait bound was exceeded before a
// token became available. No token has been consumed.
type AcquireTimeoutError struct {
	Bucket string
	Wait   time.Duration
}

func (e *AcquireTimeoutError) Error() string {
	if e.Bucket != "" {
		return fmt.Sprintf("rate limit acquire timed out after %s for bucket %q", e.Wait, e.Bucket)
	}
	return fmt.Sprintf("rate limit acquire timed out after %s", e.Wait)
}
