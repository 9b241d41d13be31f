package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/sessioncore/core/bridge"
	"github.com/dmitrymomot/sessioncore/core/broker"
	"github.com/dmitrymomot/sessioncore/core/config"
	"github.com/dmitrymomot/sessioncore/core/health"
	"github.com/dmitrymomot/sessioncore/core/logger"
	"github.com/dmitrymomot/sessioncore/core/registry"
	"github.com/dmitrymomot/sessioncore/core/reporter"
	"github.com/dmitrymomot/sessioncore/core/server"
	"github.com/dmitrymomot/sessioncore/core/supervisor"
	"github.com/dmitrymomot/sessioncore/integration/redis"
	"github.com/dmitrymomot/sessioncore/pkg/clock"
	"github.com/dmitrymomot/sessioncore/pkg/ratelimiter"
)

// Names of the supervised background tasks.
const (
	TaskDispatch         = "broker.dispatch"
	TaskRegistryCleanup  = "registry.cleanup"
	TaskHeartbeat        = "registry.heartbeat"
	TaskRateLimitCleanup = "ratelimit.cleanup"
	TaskServer           = "server.listen"
	TaskRelay            = "bridge.relay"
)

// App owns one instance of every component and runs their loops under the supervisor.
type App struct {
	config   Config
	logger   *slog.Logger
	metrics  health.Provider
	reporter reporter.Reporter
	clock    clock.Clock

	broker     *broker.Broker
	limiter    *ratelimiter.Limiter
	registry   *registry.Registry
	supervisor *supervisor.Supervisor
	server     *server.Server
	transport  bridge.Transport
	relay      *bridge.Bridge
	closers    []func() error

	mu      sync.Mutex
	started bool
	tasks   []string
}

// NewFromEnv loads Config from the environment and builds the App.
func NewFromEnv(opts ...Option) (*App, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return nil, err
	}
	return New(cfg, opts...)
}

// New builds every component from cfg. The broker is shared as the bus for
// the limiter, the registry, the supervisor and the default reporter.
func New(cfg Config, opts ...Option) (*App, error) {
	a := &App{
		config:  cfg,
		logger:  logger.Discard(),
		metrics: health.NewSystem(),
		clock:   clock.Real{},
	}

	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}

	// The broker reports through a.report so the default reporter can publish
	// back into the broker it is created from.
	a.broker = broker.NewFromConfig(cfg.Broker,
		broker.WithLogger(a.logger.With(logger.Component("broker"))),
		broker.WithReporter(reporter.Func(a.report)),
		broker.WithClock(a.clock),
	)

	if a.reporter == nil {
		a.reporter = reporter.NewBroker(a.broker,
			reporter.WithFallbackLogger(a.logger),
			reporter.WithNow(a.clock.Now),
		)
	}

	limiter, err := ratelimiter.New(a.broker, cfg.RateLimit,
		ratelimiter.WithLogger(a.logger.With(logger.Component("ratelimiter"))),
		ratelimiter.WithClock(a.clock),
	)
	if err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	a.limiter = limiter

	a.registry = registry.New(a.broker, cfg.Registry,
		registry.WithLogger(a.logger.With(logger.Component("registry"))),
		registry.WithMetricsProvider(a.metrics),
		registry.WithClock(a.clock),
		registry.WithLifecycleEvents(),
	)

	a.supervisor = supervisor.NewFromConfig(cfg.Supervisor,
		supervisor.WithLogger(a.logger.With(logger.Component("supervisor"))),
		supervisor.WithClock(a.clock),
	)

	if a.transport == nil && cfg.Redis.ConnectionURL != "" {
		client, err := redis.Connect(context.Background(), cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.transport = redis.NewTransport(client)
		a.closers = append(a.closers, client.Close)
	}
	if a.transport != nil {
		a.relay = bridge.New(a.transport, a.broker,
			bridge.WithLogger(a.logger.With(logger.Component("bridge"))),
			bridge.WithChannelPrefix(cfg.Redis.ChannelPrefix),
			bridge.WithOrigin(a.limiter.Origin()),
		)
	}

	if cfg.Server.Addr != "" {
		srv, err := server.NewFromConfig(cfg.Server,
			server.WithLogger(a.logger.With(logger.Component("server"))),
			server.WithOnShutdown(a.disconnectAll),
		)
		if err != nil {
			return nil, fmt.Errorf("server: %w", err)
		}
		a.server = srv
	}

	return a, nil
}

func (a *App) report(ctx context.Context, err error, fields map[string]any) {
	a.reporter.Report(ctx, err, fields)
}

// Broker returns the shared message broker.
func (a *App) Broker() *broker.Broker { return a.broker }

// Limiter returns the rate limiter.
func (a *App) Limiter() *ratelimiter.Limiter { return a.limiter }

// Registry returns the connection registry.
func (a *App) Registry() *registry.Registry { return a.registry }

// Supervisor returns the task supervisor.
func (a *App) Supervisor() *supervisor.Supervisor { return a.supervisor }

// Server returns the websocket listener, or nil when no address is configured.
func (a *App) Server() *server.Server { return a.server }

// Relay returns the cross-process relay, or nil when no transport is configured.
func (a *App) Relay() *bridge.Bridge { return a.relay }

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger { return a.logger }

// Config returns the configuration the App was built from.
func (a *App) Config() Config { return a.config }

// Start subscribes every component on the broker and launches the background
// loops under the supervisor. It does not block.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return ErrAlreadyStarted
	}
	a.started = true

	if a.relay != nil {
		bridge.Route[ratelimiter.SyncEvent](a.relay, ratelimiter.SyncQueue, broker.Typed(a.limiter.HandleSync))
	} else {
		a.limiter.Subscribe()
	}
	a.registry.Subscribe()
	a.supervisor.Subscribe(a.broker)
	a.broker.Subscribe(reporter.ErrorEventsQueue, broker.Typed(a.handleErrorEvent))
	a.broker.Subscribe(registry.LifecycleQueue, broker.Typed(a.handleLifecycleEvent))

	a.tasks = a.tasks[:0]
	a.launch(ctx, TaskDispatch, a.broker.Start)
	a.launch(ctx, TaskRegistryCleanup, func(ctx context.Context) error {
		return a.registry.CleanupInactive(ctx, a.config.Registry.IdleTimeout)
	})
	a.launch(ctx, TaskHeartbeat, a.registry.HeartbeatLoop)
	if a.config.RateLimit.CleanupInterval > 0 {
		a.launch(ctx, TaskRateLimitCleanup, a.limiter.Start)
	}
	if a.relay != nil {
		a.launch(ctx, TaskRelay, a.relay.Start)
	}
	if a.server != nil {
		a.launch(ctx, TaskServer, func(ctx context.Context) error {
			return a.server.Start(ctx, a.Handler())
		})
	}

	a.logger.InfoContext(ctx, "coordinator started",
		slog.String("app", a.config.AppName),
		slog.String("env", a.config.Env),
		slog.Any("tasks", a.tasks))

	return nil
}

func (a *App) launch(ctx context.Context, name string, job supervisor.Job) {
	if a.supervisor.StartContext(ctx, name, job) {
		a.tasks = append(a.tasks, name)
	}
}

// Stop stops every supervised task and disconnects remaining clients.
func (a *App) Stop() error {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return ErrNotStarted
	}
	a.started = false
	a.mu.Unlock()

	err := a.supervisor.StopAll()
	a.disconnectAll()

	if err != nil {
		a.logger.Error("coordinator stopped with errors", logger.Error(err))
		return err
	}
	a.logger.Info("coordinator stopped")
	return nil
}

// Run provides errgroup compatibility: it starts the App, waits for ctx to be
// cancelled and stops it.
//
// Example:
//
//	eg, ctx := errgroup.WithContext(ctx)
//	eg.Go(app.Run(ctx))
func (a *App) Run(ctx context.Context) func() error {
	return func() error {
		if err := a.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return a.Stop()
	}
}

// Healthcheck passes when every component is healthy and every started task
// is still running.
func (a *App) Healthcheck(ctx context.Context) error {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return errors.Join(health.ErrNotReady, ErrNotStarted)
	}
	tasks := append([]string(nil), a.tasks...)
	a.mu.Unlock()

	checks := []func(context.Context) error{
		a.supervisor.Healthcheck(tasks...),
		a.broker.Healthcheck,
		a.registry.Healthcheck,
	}
	if a.config.RateLimit.CleanupInterval > 0 {
		checks = append(checks, a.limiter.Healthcheck)
	}
	if a.relay != nil {
		checks = append(checks, a.relay.Healthcheck)
	}

	return health.Readiness(a.logger, checks...)(ctx)
}

// Close releases external connections. Call it after Stop.
func (a *App) Close() error {
	var errs []error
	for _, fn := range a.closers {
		errs = append(errs, fn())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) disconnectAll() {
	ctx := context.Background()
	for _, id := range a.registry.Clients() {
		a.registry.Disconnect(ctx, id)
	}
}

func (a *App) handleErrorEvent(ctx context.Context, ev reporter.ErrorEvent) error {
	attrs := make([]slog.Attr, 0, len(ev.Context))
	for k, v := range ev.Context {
		attrs = append(attrs, slog.Any(k, v))
	}
	a.logger.WarnContext(ctx, "error event",
		slog.String("error", ev.Error),
		slog.Time("reported_at", ev.Timestamp),
		logger.Group("context", attrs...))
	return nil
}

func (a *App) handleLifecycleEvent(ctx context.Context, ev registry.LifecycleEvent) error {
	level := slog.LevelDebug
	if ev.Type == registry.LifecycleHighLoad {
		level = slog.LevelWarn
	}
	a.logger.Log(ctx, level, "connection lifecycle",
		logger.Type(ev.Type),
		logger.ClientID(ev.ClientID),
		logger.Count("connections", ev.Count),
		logger.Count("max_connections", ev.Max))
	return nil
}
