package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

const (
	// maxBackoffMultiplier caps the escalation applied by repeated 429s.
	maxBackoffMultiplier = 8.0

	// backoffBase is the penalty applied per 429 when the server sends no
	// Retry-After hint; it is scaled by the current multiplier.
	backoffBase = 5 * time.Second

	// backoffDecay is applied to the multiplier on every success.
	backoffDecay = 0.9

	// minSleep bounds the busy-wait loop so contended buckets do not spin.
	minSleep = 10 * time.Millisecond
)

// Bucket is a single-window token bucket with adaptive backoff. Capacity
// bounds the burst size, the refill rate bounds sustained throughput, and a
// throttling signal from the upstream pushes the whole bucket into a backoff
// window that successes slowly decay.
type Bucket struct {
	mu           sync.Mutex
	capacity     float64
	tokens       float64
	refillPerSec float64
	last         time.Time
	backoffUntil time.Time
	backoffMult  float64

	clock func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewBucket returns a bucket holding capacity tokens, refilled at
// refillPerSec tokens per second. A non-positive rate defaults to the
// 10-second window behavior (capacity/10 per second).
func NewBucket(capacity int, refillPerSec float64) *Bucket {
	if capacity < 1 {
		capacity = 1
	}
	if refillPerSec <= 0 {
		refillPerSec = float64(capacity) / 10.0
	}
	b := &Bucket{
		capacity:     float64(capacity),
		tokens:       float64(capacity),
		refillPerSec: refillPerSec,
		backoffMult:  1,
		clock:        time.Now,
		sleep:        sleepContext,
	}
	b.last = b.clock()
	return b
}

// Acquire blocks until one token is available and any active backoff window
// has elapsed. A positive maxWait bounds the total time spent waiting; when
// it is exceeded an AcquireTimeoutError is returned and no token is consumed.
// Waiters sleep for computed durations and re-check on wake, so fairness
// among concurrent acquirers is best-effort.
func (b *Bucket) Acquire(ctx context.Context, maxWait time.Duration) error {
	start := b.clock()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if maxWait > 0 && b.clock().Sub(start) >= maxWait {
			return &AcquireTimeoutError{Wait: maxWait}
		}

		b.mu.Lock()
		now := b.clock()
		var wait time.Duration
		if now.Before(b.backoffUntil) {
			wait = b.backoffUntil.Sub(now)
		} else {
			if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
				b.tokens = math.Min(b.capacity, b.tokens+elapsed*b.refillPerSec)
			}
			b.last = now
			if b.tokens >= 1 {
				b.tokens--
				b.mu.Unlock()
				return nil
			}
			wait = time.Duration((1 - b.tokens) / b.refillPerSec * float64(time.Second))
		}
		b.mu.Unlock()

		if wait < minSleep {
			wait = minSleep
		}
		if maxWait > 0 {
			remaining := maxWait - b.clock().Sub(start)
			if remaining <= 0 {
				return &AcquireTimeoutError{Wait: maxWait}
			}
			if wait > remaining {
				wait = remaining
			}
		}
		if err := b.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Record429 escalates the backoff multiplier and extends the backoff window.
// The window never moves backwards: a shorter Retry-After hint cannot shorten
// a penalty that is already in force.
func (b *Bucket) Record429(retryAfter time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.backoffMult = math.Min(maxBackoffMultiplier, b.backoffMult*2)
	duration := retryAfter
	if duration <= 0 {
		duration = time.Duration(float64(backoffBase) * b.backoffMult)
	}
	if until := b.clock().Add(duration); until.After(b.backoffUntil) {
		b.backoffUntil = until
	}
}

// RecordSuccess decays the backoff multiplier. An already-set backoff window
// is left untouched.
func (b *Bucket) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.backoffMult = math.Max(1, b.backoffMult*backoffDecay)
}

// Snapshot reports the current token level, capacity and remaining backoff.
func (b *Bucket) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	backoff := b.backoffUntil.Sub(b.clock())
	if backoff < 0 {
		backoff = 0
	}
	return Snapshot{
		Tokens:   b.tokens,
		Capacity: b.capacity,
		Backoff:  backoff,
		Windows:  1,
	}
}

// sleepContext sleeps for d unless ctx is cancelled first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
