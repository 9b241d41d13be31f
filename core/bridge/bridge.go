package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dmitrymomot/sessioncore/core/broker"
	"github.com/dmitrymomot/sessioncore/core/logger"
)

// Transport moves encoded messages between processes.
type Transport interface {
	Publish(ctx context.Context, channel string, data []byte) error
	// Receive blocks, calling fn for every message on channels, until ctx is cancelled.
	Receive(ctx context.Context, channels []string, fn func(channel string, data []byte)) error
	Ping(ctx context.Context) error
}

// Bus is the subset of the broker the bridge uses.
type Bus interface {
	Publish(ctx context.Context, queue string, payload any) bool
	Subscribe(queue string, handler broker.Handler)
}

// Remote wraps a payload that arrived from another process. Relay handlers
// unwrap it before calling the local handler and never send it back out.
type Remote struct {
	Origin  string
	Payload any
}

type envelope struct {
	Origin  string          `json:"origin"`
	Queue   string          `json:"queue"`
	Payload json.RawMessage `json:"payload"`
}

type route struct {
	queue  string
	decode func([]byte) (any, error)
}

// Stats reports relay counters.
type Stats struct {
	Forwarded     int64
	ForwardFailed int64
	Received      int64
	Ignored       int64
	DecodeFailed  int64
	IsRunning     bool
}

// Bridge relays selected broker queues between processes sharing a Transport.
type Bridge struct {
	transport Transport
	bus       Bus
	origin    string
	prefix    string
	logger    *slog.Logger

	mu      sync.RWMutex
	routes  map[string]route // keyed by channel
	running bool

	forwarded     atomic.Int64
	forwardFailed atomic.Int64
	received      atomic.Int64
	ignored       atomic.Int64
	decodeFailed  atomic.Int64
}

// New creates a bridge. Queues are relayed only after Route registers them.
func New(t Transport, bus Bus, opts ...Option) *Bridge {
	b := &Bridge{
		transport: t,
		bus:       bus,
		origin:    newOrigin(),
		prefix:    "sessioncore:",
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		routes:    make(map[string]route),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

func newOrigin() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.New().String()
}

// Origin returns the identifier stamped on every forwarded message.
func (b *Bridge) Origin() string {
	return b.origin
}

// Route subscribes a relay handler for queue on the bus. Local messages are
// passed to local and then forwarded to other processes, unless local asked
// for a retry; the retried delivery forwards instead. Messages from other
// processes are decoded as T, published to queue wrapped in Remote and passed
// to local only.
//
// Example:
//
//	bridge.Route[ratelimiter.SyncEvent](relay, ratelimiter.SyncQueue, broker.Typed(limiter.HandleSync))
func Route[T any](b *Bridge, queue string, local broker.Handler) {
	b.mu.Lock()
	b.routes[b.prefix+queue] = route{
		queue: queue,
		decode: func(data []byte) (any, error) {
			var v T
			err := json.Unmarshal(data, &v)
			return v, err
		},
	}
	b.mu.Unlock()

	b.bus.Subscribe(queue, broker.HandlerFunc(func(ctx context.Context, payload any) broker.Result {
		if r, ok := payload.(Remote); ok {
			return local.Handle(ctx, r.Payload)
		}

		res := local.Handle(ctx, payload)
		if res.Outcome != broker.OutcomeRetry {
			b.forward(ctx, queue, payload)
		}
		return res
	}))
}

// Channels returns the relayed channel names, sorted.
func (b *Bridge) Channels() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	channels := make([]string, 0, len(b.routes))
	for ch := range b.routes {
		channels = append(channels, ch)
	}
	slices.Sort(channels)
	return channels
}

func (b *Bridge) forward(ctx context.Context, queue string, payload any) {
	raw, err := json.Marshal(payload)
	if err == nil {
		raw, err = json.Marshal(envelope{Origin: b.origin, Queue: queue, Payload: raw})
	}
	if err == nil {
		err = b.transport.Publish(ctx, b.prefix+queue, raw)
	}
	if err != nil {
		b.forwardFailed.Add(1)
		b.logger.WarnContext(ctx, "relay forward failed",
			logger.Queue(queue),
			logger.Error(err))
		return
	}
	b.forwarded.Add(1)
}

// Start receives messages from other processes until ctx is cancelled.
// Blocking; returns ctx.Err() on cancellation.
func (b *Bridge) Start(ctx context.Context) error {
	channels := b.Channels()
	if len(channels) == 0 {
		return ErrNoRoutes
	}

	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return ErrAlreadyStarted
	}
	b.running = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	b.logger.InfoContext(ctx, "relay started",
		slog.String("origin", b.origin),
		slog.Any("channels", channels))

	err := b.transport.Receive(ctx, channels, func(channel string, data []byte) {
		b.receive(ctx, channel, data)
	})

	b.logger.InfoContext(context.WithoutCancel(ctx), "relay stopped", logger.Error(err))
	return err
}

func (b *Bridge) receive(ctx context.Context, channel string, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		b.decodeFailed.Add(1)
		b.logger.WarnContext(ctx, "relay message malformed",
			slog.String("channel", channel),
			logger.Error(err))
		return
	}

	if env.Origin == b.origin {
		b.ignored.Add(1)
		return
	}

	b.mu.RLock()
	r, ok := b.routes[channel]
	b.mu.RUnlock()
	if !ok {
		b.ignored.Add(1)
		return
	}

	payload, err := r.decode(env.Payload)
	if err != nil {
		b.decodeFailed.Add(1)
		b.logger.WarnContext(ctx, "relay payload malformed",
			logger.Queue(r.queue),
			logger.Error(err))
		return
	}

	b.received.Add(1)
	if !b.bus.Publish(ctx, r.queue, Remote{Origin: env.Origin, Payload: payload}) {
		b.logger.WarnContext(ctx, "relayed message not accepted", logger.Queue(r.queue))
	}
}

// Stats returns relay counters.
func (b *Bridge) Stats() Stats {
	b.mu.RLock()
	running := b.running
	b.mu.RUnlock()

	return Stats{
		Forwarded:     b.forwarded.Load(),
		ForwardFailed: b.forwardFailed.Load(),
		Received:      b.received.Load(),
		Ignored:       b.ignored.Load(),
		DecodeFailed:  b.decodeFailed.Load(),
		IsRunning:     running,
	}
}

// Healthcheck fails when the receive loop is not running or the transport is unreachable.
func (b *Bridge) Healthcheck(ctx context.Context) error {
	b.mu.RLock()
	running := b.running
	b.mu.RUnlock()

	if !running {
		return errors.Join(ErrHealthcheckFailed, ErrNotRunning)
	}
	if err := b.transport.Ping(ctx); err != nil {
		return errors.Join(ErrHealthcheckFailed, err)
	}
	return nil
}
