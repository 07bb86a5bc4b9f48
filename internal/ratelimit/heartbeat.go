package ratelimit

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// StartHeartbeat launches the periodic bucket-level report. It starts at
// most one goroutine per registry regardless of how often it is called; a
// non-positive interval falls back to the configured one, and the heartbeat
// is skipped entirely when both are zero. The report is observability only
// and has no effect on limiter behavior.
func (r *Registry) StartHeartbeat(interval time.Duration) {
	r.hbOnce.Do(func() {
		if interval <= 0 {
			interval = r.cfg.HeartbeatInterval
		}
		if interval <= 0 {
			return
		}
		go r.heartbeat(interval)
	})
}

// StopHeartbeat terminates the heartbeat goroutine, if one is running.
func (r *Registry) StopHeartbeat() {
	select {
	case <-r.hbStop:
	default:
		close(r.hbStop)
	}
}

func (r *Registry) heartbeat(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.hbStop:
			return
		case <-ticker.C:
			r.logHeartbeat()
		}
	}
}

func (r *Registry) logHeartbeat() {
	snaps := r.Snapshots()
	parts := make([]string, 0, len(snaps))
	for _, snap := range snaps {
		part := fmt.Sprintf("%s:%d/%d", snap.Name, int(snap.Tokens), int(snap.Capacity))
		if snap.Backoff > 0 {
			part += " b"
		}
		parts = append(parts, part)
	}
	r.logger.Info("rate limit heartbeat",
		zap.String("buckets", strings.Join(parts, ", ")),
		zap.Int64("granted", r.granted.Load()),
		zap.Int64("throttled", r.events.Load()))
}
