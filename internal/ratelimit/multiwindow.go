package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// WindowSpec configures one window of a multi-window bucket.
type WindowSpec struct {
	Capacity int
	Period   time.Duration
}

type window struct {
	capacity float64
	tokens   float64
	period   time.Duration
	last     time.Time
}

// MultiWindowBucket grants a token only when every configured window has one
// available; a grant consumes one token from each window atomically, or none.
// Typical use pairs a short burst window with a longer sustained window.
//
// Every window preloads the shortest window's capacity, so the first calls
// can burst even against the longer windows. Tokens preloaded above a
// window's own capacity are consumed but never refilled back.
type MultiWindowBucket struct {
	mu           sync.Mutex
	windows      []window
	backoffUntil time.Time
	backoffMult  float64

	clock func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewMultiWindowBucket builds a bucket from the given window specs. Windows
// with a non-positive capacity or period are normalized to 1 token / 1s.
func NewMultiWindowBucket(specs []WindowSpec) *MultiWindowBucket {
	b := &MultiWindowBucket{
		backoffMult: 1,
		clock:       time.Now,
		sleep:       sleepContext,
	}
	now := b.clock()

	burst := 1
	shortest := time.Duration(math.MaxInt64)
	for _, spec := range specs {
		if spec.Capacity < 1 || spec.Period <= 0 {
			continue
		}
		if spec.Period < shortest {
			shortest = spec.Period
			burst = spec.Capacity
		}
	}

	for _, spec := range specs {
		capacity := spec.Capacity
		if capacity < 1 {
			capacity = 1
		}
		period := spec.Period
		if period <= 0 {
			period = time.Second
		}
		b.windows = append(b.windows, window{
			capacity: float64(capacity),
			tokens:   float64(burst),
			period:   period,
			last:     now,
		})
	}
	if len(b.windows) == 0 {
		b.windows = []window{{capacity: 1, tokens: 1, period: time.Second, last: now}}
	}
	return b
}

// Acquire blocks until every window can yield a token, the backoff window has
// elapsed and the wait bound has not been exceeded. When any window lacks a
// token nothing is consumed and the caller sleeps for the most-constrained
// window's deficit.
func (b *MultiWindowBucket) Acquire(ctx context.Context, maxWait time.Duration) error {
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
			granted := true
			for i := range b.windows {
				w := &b.windows[i]
				dt := now.Sub(w.last).Seconds()
				// Burst-preloaded tokens above the window's own capacity are
				// kept as-is: consumable, never refilled back.
				if w.tokens <= w.capacity && dt > 0 {
					w.tokens = math.Min(w.capacity, w.tokens+w.capacity*dt/w.period.Seconds())
				}
				w.last = now
				if w.tokens < 1 {
					granted = false
					rate := w.capacity / w.period.Seconds()
					need := time.Duration((1 - w.tokens) / rate * float64(time.Second))
					if wait == 0 || need < wait {
						wait = need
					}
				}
			}
			if granted {
				for i := range b.windows {
					b.windows[i].tokens--
				}
				b.mu.Unlock()
				return nil
			}
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

// Record429 escalates the shared backoff state exactly like Bucket.Record429.
func (b *MultiWindowBucket) Record429(retryAfter time.Duration) {
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

// RecordSuccess decays the shared backoff multiplier.
func (b *MultiWindowBucket) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.backoffMult = math.Max(1, b.backoffMult*backoffDecay)
}

// Snapshot reports the burst window's token level plus the window count.
func (b *MultiWindowBucket) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	backoff := b.backoffUntil.Sub(b.clock())
	if backoff < 0 {
		backoff = 0
	}
	return Snapshot{
		Tokens:   b.windows[0].tokens,
		Capacity: b.windows[0].capacity,
		Backoff:  backoff,
		Windows:  len(b.windows),
	}
}
