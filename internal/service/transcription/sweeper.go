package transcription

import (
	"context"
	"time"
)

// Sweep evicts every session idle longer than the configured timeout and
// returns how many were removed. Staleness is re-checked per session at
// removal time so activity recorded mid-scan keeps a session alive.
func (r *Registry) Sweep() int {
	r.lastSweep.Store(r.now().UnixNano())

	r.mu.RLock()
	candidates := make([]*Session, 0)
	for _, session := range r.sessions {
		if session.idleLongerThan(r.now(), r.timeout) {
			candidates = append(candidates, session)
		}
	}
	r.mu.RUnlock()

	if r.afterScan != nil {
		r.afterScan()
	}

	removed := 0
	for _, candidate := range candidates {
		r.mu.Lock()
		current, ok := r.sessions[candidate.id]
		if !ok || current != candidate || !current.idleLongerThan(r.now(), r.timeout) {
			r.mu.Unlock()
			continue
		}
		delete(r.sessions, candidate.id)
		r.mu.Unlock()

		r.disconnect(candidate, "idle")
		removed++
	}

	if removed > 0 {
		r.logger.Info("swept idle sessions", "removed", removed, "remaining", r.Len())
	}
	return removed
}

// MaybeSweep runs Sweep unless one ran within the minimum interval. It is
// cheap enough to call on every request.
func (r *Registry) MaybeSweep() int {
	now := r.now().UnixNano()
	last := r.lastSweep.Load()
	if r.sweepMinInterval > 0 && now-last < int64(r.sweepMinInterval) {
		return 0
	}
	if !r.lastSweep.CompareAndSwap(last, now) {
		// another request is already sweeping
		return 0
	}
	return r.Sweep()
}

// Run sweeps on a fixed interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = r.timeout / 2
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
