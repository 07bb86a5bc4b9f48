package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestMultiWindow(specs []WindowSpec) (*MultiWindowBucket, *fakeClock) {
	clock := newFakeClock()
	b := NewMultiWindowBucket(specs)
	b.clock = clock.Now
	b.sleep = clock.Sleep
	now := clock.Now()
	for i := range b.windows {
		b.windows[i].last = now
	}
	return b, clock
}

func TestMultiWindowBurstPreload(t *testing.T) {
	// Every window starts at the shortest window's capacity, even the
	// 60s window whose own refill history would only justify 10.
	b, _ := newTestMultiWindow([]WindowSpec{
		{Capacity: 5, Period: 10 * time.Second},
		{Capacity: 10, Period: 60 * time.Second},
	})

	require.Equal(t, 5.0, b.windows[0].tokens)
	require.Equal(t, 5.0, b.windows[1].tokens)

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Acquire(context.Background(), 0))
	}

	err := b.Acquire(context.Background(), 100*time.Millisecond)
	var timeout *AcquireTimeoutError
	require.ErrorAs(t, err, &timeout)
}

func TestMultiWindowGrantIsAtomic(t *testing.T) {
	b, clock := newTestMultiWindow([]WindowSpec{
		{Capacity: 5, Period: 10 * time.Second},
		{Capacity: 2, Period: 60 * time.Second},
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Acquire(context.Background(), 0))
	}

	// The burst window recovers fully after 10s; the minute window has only
	// a third of a token. The failed acquire must not consume from either.
	clock.Advance(10 * time.Second)
	err := b.Acquire(context.Background(), 50*time.Millisecond)
	var timeout *AcquireTimeoutError
	require.ErrorAs(t, err, &timeout)

	require.GreaterOrEqual(t, b.windows[0].tokens, 5.0)
	require.Less(t, b.windows[1].tokens, 1.0)
}

func TestMultiWindowSustainedRateBoundedByLongWindow(t *testing.T) {
	b, clock := newTestMultiWindow([]WindowSpec{
		{Capacity: 5, Period: 10 * time.Second},
		{Capacity: 10, Period: 60 * time.Second},
	})

	// Drain the burst preload.
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Acquire(context.Background(), 0))
	}

	attempt := func() bool {
		err := b.Acquire(context.Background(), time.Millisecond)
		if err == nil {
			return true
		}
		var timeout *AcquireTimeoutError
		require.ErrorAs(t, err, &timeout)
		return false
	}

	// First minute flushes any fractional carry, second minute measures the
	// sustained rate: the 60s window must gate it at ~10 grants.
	for i := 0; i < 60; i++ {
		clock.Advance(time.Second)
		attempt()
	}
	grants := 0
	for i := 0; i < 60; i++ {
		clock.Advance(time.Second)
		if attempt() {
			grants++
		}
	}

	require.GreaterOrEqual(t, grants, 9)
	require.LessOrEqual(t, grants, 11, "sustained acquisition must never exceed the minute quota")
}

func TestMultiWindowNoRefillAboveOwnCapacity(t *testing.T) {
	b, clock := newTestMultiWindow([]WindowSpec{
		{Capacity: 5, Period: 10 * time.Second},
		{Capacity: 2, Period: 60 * time.Second},
	})

	// The minute window starts above its own capacity (burst preload).
	require.Equal(t, 5.0, b.windows[1].tokens)

	// Consume it down below its own capacity.
	for i := 0; i < 4; i++ {
		require.NoError(t, b.Acquire(context.Background(), 0))
	}
	require.Equal(t, 1.0, b.windows[1].tokens)

	// An hour later the refill has capped at the window's own limit, not the
	// preloaded level.
	clock.Advance(time.Hour)
	require.NoError(t, b.Acquire(context.Background(), 0))
	require.LessOrEqual(t, b.windows[1].tokens, 2.0)
}

func TestMultiWindowSharedBackoff(t *testing.T) {
	b, clock := newTestMultiWindow([]WindowSpec{
		{Capacity: 5, Period: 10 * time.Second},
		{Capacity: 10, Period: 60 * time.Second},
	})

	b.Record429(4 * time.Second)
	start := clock.Now()
	require.NoError(t, b.Acquire(context.Background(), 0))
	require.GreaterOrEqual(t, clock.Now().Sub(start), 4*time.Second)

	require.Equal(t, 2.0, b.backoffMult)
	b.RecordSuccess()
	require.InDelta(t, 1.8, b.backoffMult, 1e-9)
}
