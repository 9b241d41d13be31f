package ratelimiter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/sessioncore/core/broker"
	"github.com/dmitrymomot/sessioncore/core/logger"
	"github.com/dmitrymomot/sessioncore/pkg/clock"
)

// SyncQueue is the well-known queue limiter replicas exchange state on.
const SyncQueue = "rate_limits"

// Bus is the subset of the broker the limiter needs.
type Bus interface {
	Publish(ctx context.Context, queue string, payload any) bool
	Subscribe(queue string, handler broker.Handler)
}

// State is a point-in-time copy of a key's window.
type State struct {
	Key       string        `json:"key"`
	Capacity  int           `json:"capacity"`
	Window    time.Duration `json:"window"`
	Remaining int           `json:"remaining"`
	ResetAt   time.Time     `json:"reset_at"`
}

// RetryAfter returns how long until the window resets, relative to now.
func (s State) RetryAfter(now time.Time) time.Duration {
	if d := s.ResetAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// SyncEvent carries a key's state after a local decrement.
type SyncEvent struct {
	Key       string    `json:"key"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
	Origin    string    `json:"origin"`
}

type window struct {
	remaining  int
	resetAt    time.Time
	lastAccess time.Time // Used by cleanup to identify stale keys
}

// Limiter is a fixed-window rate limiter keyed by arbitrary strings.
//
// Every window holds Capacity requests and restarts Window after the first
// request that finds it expired. Two bursts of Capacity can therefore land
// back to back around a window edge.
type Limiter struct {
	mu     sync.RWMutex
	states map[string]*window

	bus             Bus
	capacity        int
	window          time.Duration
	cleanupInterval time.Duration
	staleAfter      time.Duration
	shutdownTimeout time.Duration
	origin          string
	logger          *slog.Logger
	clock           clock.Clock

	// Cleanup loop state
	cancel context.CancelFunc
	wg     sync.WaitGroup

	allowed       atomic.Int64
	rejected      atomic.Int64
	keysCreated   atomic.Int64
	keysRemoved   atomic.Int64
	syncPublished atomic.Int64
	syncFailed    atomic.Int64
	syncApplied   atomic.Int64
	syncIgnored   atomic.Int64
}

// Stats provides observability metrics for monitoring and debugging.
type Stats struct {
	Allowed       int64
	Rejected      int64
	KeysCreated   int64
	KeysRemoved   int64 // Stale keys removed by cleanup
	ActiveKeys    int
	SyncPublished int64
	SyncFailed    int64 // Sync events the broker refused
	SyncApplied   int64 // Foreign sync events applied
	SyncIgnored   int64 // Own or outdated sync events
	IsRunning     bool  // Whether the cleanup loop is running
}

// New creates a limiter publishing its state changes to bus.
// Call Subscribe to receive other replicas' changes and Start to sweep stale keys.
func New(bus Bus, cfg Config, opts ...Option) (*Limiter, error) {
	if bus == nil {
		return nil, ErrBusNil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &Limiter{
		states:          make(map[string]*window),
		bus:             bus,
		capacity:        cfg.Capacity,
		window:          cfg.Window,
		cleanupInterval: cfg.CleanupInterval,
		staleAfter:      cfg.StaleAfter,
		shutdownTimeout: 30 * time.Second,
		origin:          uuid.NewString(),
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock:           clock.Real{},
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.staleAfter <= 0 {
		l.staleAfter = l.window
	}

	return l, nil
}

// Origin returns the identifier this replica stamps on sync events.
func (l *Limiter) Origin() string {
	return l.origin
}

// Check consumes one request for key. It returns nil when the request is allowed
// and a copy of the exhausted state when it is not.
func (l *Limiter) Check(ctx context.Context, key string) *State {
	now := l.clock.Now()

	l.mu.Lock()
	w := l.windowLocked(key, now)
	w.lastAccess = now

	if w.remaining <= 0 {
		st := l.stateOf(key, w)
		l.mu.Unlock()

		l.rejected.Add(1)
		l.logger.WarnContext(ctx, "rate limit exceeded",
			logger.RateLimitKey(key),
			slog.Time("reset_at", st.ResetAt))
		return &st
	}

	w.remaining--
	ev := SyncEvent{Key: key, Remaining: w.remaining, ResetAt: w.resetAt, Origin: l.origin}
	l.mu.Unlock()

	l.allowed.Add(1)
	l.publish(ctx, ev)
	return nil
}

// Allow is Check reduced to a boolean.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	return l.Check(ctx, key) == nil
}

// Enforce is Check as an error: it wraps ErrRateLimitExceeded when the request is rejected.
func (l *Limiter) Enforce(ctx context.Context, key string) error {
	st := l.Check(ctx, key)
	if st == nil {
		return nil
	}
	return fmt.Errorf("%w: key %q, retry after %s", ErrRateLimitExceeded, key, st.RetryAfter(l.clock.Now()))
}

// windowLocked returns the key's window, creating or restarting it as needed.
// Caller must hold the write lock.
func (l *Limiter) windowLocked(key string, now time.Time) *window {
	w, ok := l.states[key]
	if !ok {
		w = &window{remaining: l.capacity, resetAt: now.Add(l.window), lastAccess: now}
		l.states[key] = w
		l.keysCreated.Add(1)
		return w
	}

	if now.After(w.resetAt) {
		// The new window starts now, not at the old boundary
		w.remaining = l.capacity
		w.resetAt = now.Add(l.window)
	}
	return w
}

func (l *Limiter) stateOf(key string, w *window) State {
	return State{
		Key:       key,
		Capacity:  l.capacity,
		Window:    l.window,
		Remaining: w.remaining,
		ResetAt:   w.resetAt,
	}
}

func (l *Limiter) publish(ctx context.Context, ev SyncEvent) {
	if !l.bus.Publish(ctx, SyncQueue, ev) {
		l.syncFailed.Add(1)
		l.logger.WarnContext(ctx, "failed to publish rate limit sync event",
			logger.RateLimitKey(ev.Key),
			logger.Queue(SyncQueue))
		return
	}
	l.syncPublished.Add(1)
}

// Status returns the key's current state without consuming a request.
// The second return value is false for keys the limiter has never seen.
func (l *Limiter) Status(key string) (State, bool) {
	now := l.clock.Now()

	l.mu.RLock()
	defer l.mu.RUnlock()

	w, ok := l.states[key]
	if !ok {
		return State{Key: key, Capacity: l.capacity, Window: l.window, Remaining: l.capacity}, false
	}

	st := l.stateOf(key, w)
	if now.After(w.resetAt) {
		st.Remaining = l.capacity
		st.ResetAt = now.Add(l.window)
	}
	return st, true
}

// Reset forgets the key so its next request starts a fresh window.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.states, key)
}

// Subscribe registers the sync handler on SyncQueue.
func (l *Limiter) Subscribe() {
	l.bus.Subscribe(SyncQueue, broker.Typed(l.HandleSync))
}

// HandleSync applies another replica's state change.
//
// Events from this replica are ignored. An event for an older window than the
// local one is ignored; for the same window the lower remaining count wins; a
// newer window replaces local state. Remaining is clamped to [0, Capacity].
func (l *Limiter) HandleSync(ctx context.Context, ev SyncEvent) error {
	if ev.Origin == l.origin {
		l.syncIgnored.Add(1)
		return nil
	}

	remaining := min(max(ev.Remaining, 0), l.capacity)
	now := l.clock.Now()

	l.mu.Lock()
	w, ok := l.states[ev.Key]
	switch {
	case !ok:
		l.states[ev.Key] = &window{remaining: remaining, resetAt: ev.ResetAt, lastAccess: now}
		l.keysCreated.Add(1)
	case ev.ResetAt.Before(w.resetAt):
		l.mu.Unlock()
		l.syncIgnored.Add(1)
		return nil
	case ev.ResetAt.Equal(w.resetAt):
		w.remaining = min(w.remaining, remaining)
	default:
		w.remaining = remaining
		w.resetAt = ev.ResetAt
	}
	l.mu.Unlock()

	l.syncApplied.Add(1)
	l.logger.DebugContext(ctx, "rate limit state synced",
		logger.RateLimitKey(ev.Key),
		slog.String("origin", ev.Origin),
		slog.Int("remaining", remaining))
	return nil
}

// Stats returns current limiter statistics.
// This method is thread-safe and can be called at any time.
func (l *Limiter) Stats() Stats {
	l.mu.RLock()
	isRunning := l.cancel != nil
	activeKeys := len(l.states)
	l.mu.RUnlock()

	return Stats{
		Allowed:       l.allowed.Load(),
		Rejected:      l.rejected.Load(),
		KeysCreated:   l.keysCreated.Load(),
		KeysRemoved:   l.keysRemoved.Load(),
		ActiveKeys:    activeKeys,
		SyncPublished: l.syncPublished.Load(),
		SyncFailed:    l.syncFailed.Load(),
		SyncApplied:   l.syncApplied.Load(),
		SyncIgnored:   l.syncIgnored.Load(),
		IsRunning:     isRunning,
	}
}
