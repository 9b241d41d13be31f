package registry

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/sessioncore/core/logger"
)

// Sweep evicts every client whose last activity is more than timeout ago and
// raises a high load warning when the remaining count exceeds the load warning
// ratio. A non-positive timeout uses the configured idle timeout.
// Returns the number of evicted clients.
func (r *Registry) Sweep(ctx context.Context, timeout time.Duration) int {
	if timeout <= 0 {
		timeout = r.idleTimeout
	}
	now := r.clock.Now()

	type victim struct {
		id      string
		session any
		idle    time.Duration
	}

	r.mu.Lock()
	var victims []victim
	for id, e := range r.conns {
		if idle := now.Sub(e.lastActivity); idle > timeout {
			victims = append(victims, victim{id: id, session: e.session, idle: idle})
			r.removeLocked(id, e)
		}
	}
	count := len(r.conns)
	r.mu.Unlock()

	for _, v := range victims {
		r.evicted.Add(1)
		r.closeSession(ctx, v.id, v.session)
		r.logger.InfoContext(ctx, "idle client evicted",
			logger.ClientID(v.id),
			slog.Duration("idle", v.idle))
		r.notify(ctx, LifecycleEvicted, v.id, count)
	}

	if r.highLoad(count) {
		r.logger.WarnContext(ctx, "high connection load detected",
			logger.Count("active", count),
			logger.Count("max", r.maxConnections))
		r.notify(ctx, LifecycleHighLoad, "", count)
	}

	return len(victims)
}

// CleanupInactive runs Sweep with timeout every cleanup interval until ctx is
// cancelled. It is meant to run under the supervisor.
func (r *Registry) CleanupInactive(ctx context.Context, timeout time.Duration) error {
	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	r.logger.InfoContext(ctx, "idle connection cleanup started",
		slog.Duration("interval", r.cleanupInterval),
		slog.Duration("timeout", timeout))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Sweep(ctx, timeout)
		}
	}
}
