package httpx

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionConfig sizes and tunes the sessions a pool hands out.
type SessionConfig struct {
	// Workers is the expected worker concurrency; connection pools are sized
	// from it.
	Workers int

	// MaxUses recycles a session after that many completed calls, replacing
	// possibly stale or poisoned connections. Zero disables recycling.
	MaxUses int

	// ConnectTimeout bounds dial and TLS handshake; ReadTimeout bounds the
	// wait for response headers.
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	// UserAgent is sent on every request issued through a session.
	UserAgent string

	Retry RetryConfig
}

// Session is an exclusively-owned pooled-connection handle. It is never
// shared between concurrent callers; the pool hands it out and takes it back
// around each request.
type Session struct {
	ID         string
	Generation uint64

	client *http.Client
	uses   int
}

// Do issues the request on this session's transport.
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	return s.client.Do(req)
}

// Uses returns the number of completed calls carried by this session.
func (s *Session) Uses() int { return s.uses }

// MarkUse counts one completed call.
func (s *Session) MarkUse() { s.uses++ }

func (s *Session) closeIdle() {
	s.client.CloseIdleConnections()
}

// SessionPool manages exclusive session handles for a worker pool. Acquire
// returns an idle session or builds a fresh one; Release returns it,
// recycling first once the use threshold is reached; Discard drops a session
// whose connection state is no longer trusted.
type SessionPool struct {
	mu     sync.Mutex
	idle   []*Session
	gen    uint64
	cfg    SessionConfig
	logger *zap.Logger
}

// NewSessionPool returns a pool building sessions from cfg.
func NewSessionPool(cfg SessionConfig, logger *zap.Logger) *SessionPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &SessionPool{cfg: cfg, logger: logger}
}

// Acquire returns a session for exclusive use by the caller.
func (p *SessionPool) Acquire() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.idle); n > 0 {
		s := p.idle[n-1]
		p.idle = p.idle[:n-1]
		return s
	}
	return p.buildLocked()
}

// Release returns a session to the pool. A session that reached its use
// threshold is closed and replaced by a fresh one.
func (p *SessionPool) Release(s *Session) {
	if s == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cfg.MaxUses > 0 && s.uses >= p.cfg.MaxUses {
		s.closeIdle()
		p.logger.Info("recycled session",
			zap.String("session", s.ID),
			zap.Int("uses", s.uses))
		p.idle = append(p.idle, p.buildLocked())
		return
	}
	p.idle = append(p.idle, s)
}

// Discard drops a session without returning it, closing whatever idle
// connections it still holds. The next Acquire builds a replacement.
func (p *SessionPool) Discard(s *Session) {
	if s == nil {
		return
	}
	s.closeIdle()
	p.logger.Warn("discarded session",
		zap.String("session", s.ID),
		zap.Int("uses", s.uses))
}

// Reset force-drops every idle session; subsequent Acquires rebuild.
func (p *SessionPool) Reset() {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()
	for _, s := range idle {
		s.closeIdle()
	}
}

// Generation returns the number of sessions built so far.
func (p *SessionPool) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen
}

func (p *SessionPool) buildLocked() *Session {
	p.gen++
	poolSize := p.cfg.Workers * 2
	if poolSize < 10 {
		poolSize = 10
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   p.cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   p.cfg.ConnectTimeout,
		ResponseHeaderTimeout: p.cfg.ReadTimeout,
		MaxIdleConns:          poolSize,
		MaxIdleConnsPerHost:   poolSize,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &Session{
		ID:         uuid.New().String(),
		Generation: p.gen,
		client: &http.Client{
			Transport: newRetryTransport(transport, p.cfg.Retry),
		},
	}
}
