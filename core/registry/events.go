package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrymomot/sessioncore/core/broker"
	"github.com/dmitrymomot/sessioncore/core/logger"
)

// Well-known queues the registry works with.
const (
	// ConnectionEventsQueue carries cleanup and disconnect requests to the registry.
	ConnectionEventsQueue = "connection_events"
	// SessionEventsQueue carries broadcast and direct message requests.
	SessionEventsQueue = "session_events"
	// LifecycleQueue receives notifications about connection changes.
	LifecycleQueue = "connection_lifecycle"
)

// Event types.
const (
	EventCleanup    = "cleanup"
	EventDisconnect = "disconnect"
	EventBroadcast  = "broadcast"
	EventDirect     = "direct"

	LifecycleConnected    = "connected"
	LifecycleDisconnected = "disconnected"
	LifecycleEvicted      = "evicted"
	LifecycleHighLoad     = "high_load"
)

// ConnectionEvent is consumed from ConnectionEventsQueue.
type ConnectionEvent struct {
	Type     string        `json:"type"`
	ClientID string        `json:"client_id,omitempty"`
	Timeout  time.Duration `json:"timeout,omitempty"` // Cleanup only; 0 uses IdleTimeout
}

// SessionEvent is consumed from SessionEventsQueue.
type SessionEvent struct {
	Type     string `json:"type"`
	ClientID string `json:"client_id,omitempty"` // Direct only
	Group    string `json:"group,omitempty"`     // Broadcast only; empty targets everyone
	Message  any    `json:"message"`
}

// LifecycleEvent is published to LifecycleQueue.
type LifecycleEvent struct {
	Type     string    `json:"type"`
	ClientID string    `json:"client_id,omitempty"`
	Count    int       `json:"count"`
	Max      int       `json:"max"`
	At       time.Time `json:"at"`
}

// Subscribe registers the registry's handlers on ConnectionEventsQueue and SessionEventsQueue.
func (r *Registry) Subscribe() {
	r.bus.Subscribe(ConnectionEventsQueue, broker.Typed(r.handleConnectionEvent))
	r.bus.Subscribe(SessionEventsQueue, broker.Typed(r.handleSessionEvent))
}

func (r *Registry) handleConnectionEvent(ctx context.Context, ev ConnectionEvent) error {
	switch ev.Type {
	case EventCleanup:
		r.Sweep(ctx, ev.Timeout)
		return nil
	case EventDisconnect:
		if ev.ClientID == "" {
			return broker.Permanent(fmt.Errorf("%w: disconnect without client_id", ErrInvalidEvent))
		}
		r.Disconnect(ctx, ev.ClientID)
		return nil
	default:
		return broker.Permanent(fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type))
	}
}

func (r *Registry) handleSessionEvent(ctx context.Context, ev SessionEvent) error {
	switch ev.Type {
	case EventBroadcast:
		r.Broadcast(ctx, ev.Group, ev.Message)
		return nil
	case EventDirect:
		if ev.ClientID == "" {
			return broker.Permanent(fmt.Errorf("%w: direct message without client_id", ErrInvalidEvent))
		}
		// A failed send has already disconnected the client, redelivery cannot help
		if err := r.SendTo(ctx, ev.ClientID, ev.Message); err != nil {
			return broker.Permanent(err)
		}
		return nil
	default:
		return broker.Permanent(fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type))
	}
}

// RequestDisconnect asks the registry, through the broker, to disconnect a client.
func (r *Registry) RequestDisconnect(ctx context.Context, clientID string) bool {
	return r.bus.Publish(ctx, ConnectionEventsQueue, ConnectionEvent{Type: EventDisconnect, ClientID: clientID})
}

// RequestCleanup asks the registry, through the broker, to run one eviction pass.
// A zero timeout uses the configured idle timeout.
func (r *Registry) RequestCleanup(ctx context.Context, timeout time.Duration) bool {
	return r.bus.Publish(ctx, ConnectionEventsQueue, ConnectionEvent{Type: EventCleanup, Timeout: timeout})
}

// RequestBroadcast queues a message for every member of group.
func (r *Registry) RequestBroadcast(ctx context.Context, group string, msg any) bool {
	return r.bus.Publish(ctx, SessionEventsQueue, SessionEvent{Type: EventBroadcast, Group: group, Message: msg})
}

// RequestSend queues a message for a single client.
func (r *Registry) RequestSend(ctx context.Context, clientID string, msg any) bool {
	return r.bus.Publish(ctx, SessionEventsQueue, SessionEvent{Type: EventDirect, ClientID: clientID, Message: msg})
}

func (r *Registry) notify(ctx context.Context, kind, clientID string, count int) {
	if !r.lifecycle {
		return
	}
	ev := LifecycleEvent{
		Type:     kind,
		ClientID: clientID,
		Count:    count,
		Max:      r.maxConnections,
		At:       r.clock.Now(),
	}
	if !r.bus.Publish(ctx, LifecycleQueue, ev) {
		r.logger.WarnContext(ctx, "failed to publish lifecycle event",
			logger.Event(kind),
			logger.ClientID(clientID))
	}
}
