package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/sessioncore/core/broker"
	"github.com/dmitrymomot/sessioncore/core/health"
	"github.com/dmitrymomot/sessioncore/core/logger"
	"github.com/dmitrymomot/sessioncore/pkg/clock"
)

// Bus is the subset of the broker the registry needs.
type Bus interface {
	Publish(ctx context.Context, queue string, payload any) bool
	Subscribe(queue string, handler broker.Handler)
}

// Connection is a read-only copy of a registered client.
type Connection struct {
	ID            string    `json:"id"`
	Session       any       `json:"-"`
	EstablishedAt time.Time `json:"established_at"`
	LastActivity  time.Time `json:"last_activity"`
	Groups        []string  `json:"groups,omitempty"`
}

type entry struct {
	session       any
	establishedAt time.Time
	lastActivity  time.Time
	groups        map[string]struct{}
}

// Registry tracks live client connections, gates admission on capacity and
// host resources, and evicts idle clients.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*entry
	groups map[string]map[string]struct{}

	bus       Bus
	metrics   health.Provider
	clock     clock.Clock
	logger    *slog.Logger
	lifecycle bool

	maxConnections    int
	cpuThreshold      float64
	memoryThreshold   float64
	idleTimeout       time.Duration
	cleanupInterval   time.Duration
	loadWarnRatio     float64
	heartbeatInterval time.Duration

	accepted          atomic.Int64
	rejectedCapacity  atomic.Int64
	rejectedResources atomic.Int64
	disconnected      atomic.Int64
	evicted           atomic.Int64
	sendFailed        atomic.Int64
	pingFailed        atomic.Int64
}

// Stats provides observability metrics for monitoring and debugging.
type Stats struct {
	Active            int
	Max               int
	Accepted          int64
	RejectedCapacity  int64
	RejectedResources int64 // Includes rejections caused by unreadable metrics
	Disconnected      int64
	Evicted           int64
	SendFailed        int64
	PingFailed        int64
	Groups            int
}

// New creates a registry coordinating through bus. Call Subscribe to consume
// connection and session events.
func New(bus Bus, cfg Config, opts ...Option) *Registry {
	def := DefaultConfig()
	r := &Registry{
		conns:             make(map[string]*entry),
		groups:            make(map[string]map[string]struct{}),
		bus:               bus,
		metrics:           health.NewSystem(),
		clock:             clock.Real{},
		logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxConnections:    positiveOr(cfg.MaxConnections, def.MaxConnections),
		cpuThreshold:      positiveOr(cfg.CPUThreshold, def.CPUThreshold),
		memoryThreshold:   positiveOr(cfg.MemoryThreshold, def.MemoryThreshold),
		idleTimeout:       positiveOr(cfg.IdleTimeout, def.IdleTimeout),
		cleanupInterval:   positiveOr(cfg.CleanupInterval, def.CleanupInterval),
		loadWarnRatio:     positiveOr(cfg.LoadWarnRatio, def.LoadWarnRatio),
		heartbeatInterval: positiveOr(cfg.HeartbeatInterval, def.HeartbeatInterval),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

func positiveOr[T int | float64 | time.Duration](v, fallback T) T {
	if v > 0 {
		return v
	}
	return fallback
}

// Connect admits a client. It reads fresh resource metrics and refuses the client
// when CPU or memory usage is above its threshold, when the metrics cannot be read,
// or when MaxConnections clients are already registered. Connecting an id that is
// already registered replaces its session.
func (r *Registry) Connect(ctx context.Context, clientID string, session any) bool {
	if clientID == "" {
		r.logger.WarnContext(ctx, "connection rejected: empty client id")
		return false
	}

	m, err := r.metrics.Metrics(ctx)
	if err != nil {
		r.rejectedResources.Add(1)
		r.logger.WarnContext(ctx, "connection rejected: resource metrics unavailable",
			logger.ClientID(clientID),
			logger.Error(err))
		return false
	}

	if m.CPUPercent > r.cpuThreshold || m.MemoryPercent > r.memoryThreshold {
		r.rejectedResources.Add(1)
		r.logger.WarnContext(ctx, "connection rejected: resource usage too high",
			logger.ClientID(clientID),
			logger.Percent("cpu_percent", m.CPUPercent),
			logger.Percent("memory_percent", m.MemoryPercent))
		return false
	}

	now := r.clock.Now()

	r.mu.Lock()
	if e, ok := r.conns[clientID]; ok {
		old := e.session
		e.session = session
		e.lastActivity = now
		r.mu.Unlock()

		if !sameSession(old, session) {
			r.closeSession(ctx, clientID, old)
		}
		r.logger.InfoContext(ctx, "connection session replaced", logger.ClientID(clientID))
		return true
	}

	if len(r.conns) >= r.maxConnections {
		count := len(r.conns)
		r.mu.Unlock()

		r.rejectedCapacity.Add(1)
		r.logger.WarnContext(ctx, "connection rejected: max connections reached",
			logger.ClientID(clientID),
			logger.Count("active", count),
			logger.Count("max", r.maxConnections))
		return false
	}

	r.conns[clientID] = &entry{
		session:       session,
		establishedAt: now,
		lastActivity:  now,
		groups:        make(map[string]struct{}),
	}
	count := len(r.conns)
	r.mu.Unlock()

	r.accepted.Add(1)
	r.logger.InfoContext(ctx, "client connected",
		logger.ClientID(clientID),
		logger.Count("active", count))
	r.notify(ctx, LifecycleConnected, clientID, count)
	return true
}

// Disconnect removes a client and closes its session if it implements Closer.
// Unknown ids are ignored.
func (r *Registry) Disconnect(ctx context.Context, clientID string) {
	session, count, ok := r.remove(clientID, nil)
	if !ok {
		return
	}
	r.finishDisconnect(ctx, clientID, session, count)
}

// DisconnectSession removes the client only while session is still the one
// registered for it, so a transport tearing down a replaced session does not
// drop its successor. Reports whether the client was removed.
func (r *Registry) DisconnectSession(ctx context.Context, clientID string, session any) bool {
	current, count, ok := r.remove(clientID, func(s any) bool { return sameSession(s, session) })
	if !ok {
		return false
	}
	r.finishDisconnect(ctx, clientID, current, count)
	return true
}

func (r *Registry) finishDisconnect(ctx context.Context, clientID string, session any, count int) {
	r.disconnected.Add(1)
	r.closeSession(ctx, clientID, session)
	r.logger.InfoContext(ctx, "client disconnected",
		logger.ClientID(clientID),
		logger.Count("active", count))
	r.notify(ctx, LifecycleDisconnected, clientID, count)
}

// remove deletes the client and its group memberships. A non-nil match must
// accept the registered session.
func (r *Registry) remove(clientID string, match func(any) bool) (session any, count int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[clientID]
	if !ok || (match != nil && !match(e.session)) {
		return nil, len(r.conns), false
	}
	r.removeLocked(clientID, e)
	return e.session, len(r.conns), true
}

func (r *Registry) removeLocked(clientID string, e *entry) {
	for g := range e.groups {
		r.leaveLocked(clientID, g)
	}
	delete(r.conns, clientID)
}

// sameSession compares sessions by identity. Values of uncomparable types never
// match, including comparable structs whose interface fields hold uncomparable values.
func sameSession(a, b any) (same bool) {
	ta := reflect.TypeOf(a)
	if ta == nil || ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

func (r *Registry) closeSession(ctx context.Context, clientID string, session any) {
	c, ok := session.(Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		r.logger.DebugContext(ctx, "session close failed",
			logger.ClientID(clientID),
			logger.Error(err))
	}
}

// UpdateActivity marks the client as active now. Unknown ids are ignored.
func (r *Registry) UpdateActivity(clientID string) {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.conns[clientID]; ok {
		e.lastActivity = now
	}
}

// Get returns a copy of the client's connection record.
func (r *Registry) Get(clientID string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[clientID]
	if !ok {
		return Connection{}, false
	}
	return toConnection(clientID, e), true
}

func toConnection(id string, e *entry) Connection {
	groups := make([]string, 0, len(e.groups))
	for g := range e.groups {
		groups = append(groups, g)
	}
	slices.Sort(groups)

	return Connection{
		ID:            id,
		Session:       e.session,
		EstablishedAt: e.establishedAt,
		LastActivity:  e.lastActivity,
		Groups:        groups,
	}
}

// Count returns the number of registered clients.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Clients returns registered client ids in lexical order.
func (r *Registry) Clients() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// Health returns a fresh snapshot of resource usage and the connection count.
func (r *Registry) Health(ctx context.Context) (health.Snapshot, error) {
	m, err := r.metrics.Metrics(ctx)
	if err != nil {
		return health.Snapshot{ConnectionCount: r.Count()}, err
	}
	return health.Snapshot{
		CPUPercent:      m.CPUPercent,
		MemoryPercent:   m.MemoryPercent,
		ConnectionCount: r.Count(),
	}, nil
}

// Stats returns current registry statistics.
// This method is thread-safe and can be called at any time.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	active := len(r.conns)
	groups := len(r.groups)
	r.mu.RUnlock()

	return Stats{
		Active:            active,
		Max:               r.maxConnections,
		Accepted:          r.accepted.Load(),
		RejectedCapacity:  r.rejectedCapacity.Load(),
		RejectedResources: r.rejectedResources.Load(),
		Disconnected:      r.disconnected.Load(),
		Evicted:           r.evicted.Load(),
		SendFailed:        r.sendFailed.Load(),
		PingFailed:        r.pingFailed.Load(),
		Groups:            groups,
	}
}

// Healthcheck reports whether the registry can admit clients: resource metrics must
// be readable and the active count must be within the load warning ratio.
func (r *Registry) Healthcheck(ctx context.Context) error {
	snap, err := r.Health(ctx)
	if err != nil {
		return errors.Join(ErrHealthcheckFailed, err)
	}
	if r.highLoad(snap.ConnectionCount) {
		return errors.Join(ErrHealthcheckFailed, ErrOverloaded,
			fmt.Errorf("%d/%d connections", snap.ConnectionCount, r.maxConnections))
	}
	return nil
}

func (r *Registry) highLoad(count int) bool {
	return float64(count) > r.loadWarnRatio*float64(r.maxConnections)
}
