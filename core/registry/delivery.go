package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrymomot/sessioncore/core/logger"
)

type (
	// Sender is implemented by sessions that can receive messages.
	Sender interface {
		Send(ctx context.Context, msg any) error
	}

	// Pinger is implemented by sessions that support liveness probes.
	Pinger interface {
		Ping(ctx context.Context) error
	}

	// Closer is implemented by sessions that hold resources released on disconnect.
	Closer interface {
		Close() error
	}
)

// SendTo delivers msg to a single client. A failing send disconnects the client
// unless it has since reconnected with another session.
func (r *Registry) SendTo(ctx context.Context, clientID string, msg any) error {
	r.mu.RLock()
	e, ok := r.conns[clientID]
	var session any
	if ok {
		session = e.session
	}
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrClientNotFound, clientID)
	}

	s, ok := session.(Sender)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotSender, clientID)
	}

	if err := s.Send(ctx, msg); err != nil {
		r.sendFailed.Add(1)
		r.logger.WarnContext(ctx, "failed to send message, disconnecting client",
			logger.ClientID(clientID),
			logger.Error(err))
		r.DisconnectSession(ctx, clientID, session)
		return fmt.Errorf("%w: %s: %w", ErrSendFailed, clientID, err)
	}

	return nil
}

// Broadcast sends msg to every member of group, or to every client when group is
// empty. Returns the number of successful deliveries.
func (r *Registry) Broadcast(ctx context.Context, group string, msg any) int {
	var targets []string
	if group == "" {
		targets = r.Clients()
	} else {
		targets = r.Members(group)
	}

	delivered := 0
	for _, id := range targets {
		if err := r.SendTo(ctx, id, msg); err == nil {
			delivered++
		}
	}

	r.logger.DebugContext(ctx, "broadcast delivered",
		logger.GroupName(group),
		logger.Count("targets", len(targets)),
		logger.Count("delivered", delivered))
	return delivered
}

// Heartbeat pings every session implementing Pinger once and disconnects those
// that fail. Returns the number of clients disconnected.
func (r *Registry) Heartbeat(ctx context.Context) int {
	type probe struct {
		id      string
		session any
		pinger  Pinger
	}

	r.mu.RLock()
	probes := make([]probe, 0, len(r.conns))
	for id, e := range r.conns {
		if p, ok := e.session.(Pinger); ok {
			probes = append(probes, probe{id: id, session: e.session, pinger: p})
		}
	}
	r.mu.RUnlock()

	failed := 0
	for _, p := range probes {
		if ctx.Err() != nil {
			break
		}
		if err := p.pinger.Ping(ctx); err != nil {
			failed++
			r.pingFailed.Add(1)
			r.logger.WarnContext(ctx, "heartbeat failed, disconnecting client",
				logger.ClientID(p.id),
				logger.Error(err))
			r.DisconnectSession(ctx, p.id, p.session)
		}
	}
	return failed
}

// HeartbeatLoop runs Heartbeat every heartbeat interval until ctx is cancelled.
// It is meant to run under the supervisor.
func (r *Registry) HeartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Heartbeat(ctx)
		}
	}
}
