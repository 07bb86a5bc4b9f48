package httpx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSessionPoolReusesReleasedSession(t *testing.T) {
	p := NewSessionPool(SessionConfig{Workers: 2}, nil)

	s := p.Acquire()
	require.Equal(t, uint64(1), s.Generation)
	require.NotEmpty(t, s.ID)

	p.Release(s)
	again := p.Acquire()
	require.Same(t, s, again)
	require.Equal(t, uint64(1), p.Generation())
}

func TestSessionPoolRecyclesAfterMaxUses(t *testing.T) {
	p := NewSessionPool(SessionConfig{Workers: 1, MaxUses: 2}, nil)

	s := p.Acquire()
	s.MarkUse()
	p.Release(s)
	require.Same(t, s, p.Acquire())

	s.MarkUse()
	p.Release(s)

	replacement := p.Acquire()
	require.NotEqual(t, s.ID, replacement.ID)
	require.Equal(t, uint64(2), replacement.Generation)
	require.Zero(t, replacement.Uses())
}

func TestSessionPoolDiscardForcesRebuild(t *testing.T) {
	p := NewSessionPool(SessionConfig{Workers: 1}, nil)

	s := p.Acquire()
	p.Discard(s)

	replacement := p.Acquire()
	require.NotEqual(t, s.ID, replacement.ID)
	require.Equal(t, uint64(2), replacement.Generation)
}

func TestSessionPoolResetDropsIdleSessions(t *testing.T) {
	p := NewSessionPool(SessionConfig{Workers: 2}, nil)

	a := p.Acquire()
	b := p.Acquire()
	p.Release(a)
	p.Release(b)

	p.Reset()
	fresh := p.Acquire()
	require.NotEqual(t, a.ID, fresh.ID)
	require.NotEqual(t, b.ID, fresh.ID)
}
