package coordinator_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessioncore/app/coordinator"
	"github.com/dmitrymomot/sessioncore/core/broker"
	"github.com/dmitrymomot/sessioncore/core/health"
	"github.com/dmitrymomot/sessioncore/core/logger"
	"github.com/dmitrymomot/sessioncore/core/reporter"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig() coordinator.Config {
	cfg := coordinator.DefaultConfig()
	cfg.Broker.PollInterval = 5 * time.Millisecond
	cfg.Broker.MaxRetries = 0
	cfg.Registry.CleanupInterval = 20 * time.Millisecond
	cfg.Registry.HeartbeatInterval = 20 * time.Millisecond
	cfg.RateLimit.CleanupInterval = 20 * time.Millisecond
	cfg.Supervisor.ShutdownTimeout = 2 * time.Second
	return cfg
}

func newApp(t *testing.T, cfg coordinator.Config, opts ...coordinator.Option) *coordinator.App {
	t.Helper()

	opts = append([]coordinator.Option{
		coordinator.WithMetricsProvider(health.Static{CPUPercent: 10, MemoryPercent: 10}),
	}, opts...)

	app, err := coordinator.New(cfg, opts...)
	require.NoError(t, err)
	return app
}

func startApp(t *testing.T, app *coordinator.App) {
	t.Helper()

	require.NoError(t, app.Start(context.Background()))
	t.Cleanup(func() { _ = app.Stop() })

	require.Eventually(t, func() bool {
		return app.Healthcheck(context.Background()) == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("rejects nil dependencies", func(t *testing.T) {
		_, err := coordinator.New(testConfig(), coordinator.WithLogger(nil))
		assert.ErrorIs(t, err, coordinator.ErrNilDependency)

		_, err = coordinator.New(testConfig(), coordinator.WithReporter(nil))
		assert.ErrorIs(t, err, coordinator.ErrNilDependency)
	})

	t.Run("rejects invalid rate limit config", func(t *testing.T) {
		cfg := testConfig()
		cfg.RateLimit.Capacity = 0

		_, err := coordinator.New(cfg)
		assert.Error(t, err)
	})

	t.Run("no listener without address", func(t *testing.T) {
		app := newApp(t, testConfig())
		assert.Nil(t, app.Server())
		assert.NotNil(t, app.Broker())
		assert.NotNil(t, app.Limiter())
		assert.NotNil(t, app.Registry())
		assert.NotNil(t, app.Supervisor())
	})
}

func TestLifecycle(t *testing.T) {
	t.Parallel()

	t.Run("start launches supervised tasks", func(t *testing.T) {
		t.Parallel()

		app := newApp(t, testConfig())
		startApp(t, app)

		sup := app.Supervisor()
		for _, name := range []string{
			coordinator.TaskDispatch,
			coordinator.TaskRegistryCleanup,
			coordinator.TaskHeartbeat,
			coordinator.TaskRateLimitCleanup,
		} {
			assert.True(t, sup.Running(name), name)
		}
		assert.False(t, sup.Running(coordinator.TaskServer))

		assert.ErrorIs(t, app.Start(context.Background()), coordinator.ErrAlreadyStarted)
	})

	t.Run("rate limit cleanup is optional", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig()
		cfg.RateLimit.CleanupInterval = 0

		app := newApp(t, cfg)
		startApp(t, app)

		assert.False(t, app.Supervisor().Running(coordinator.TaskRateLimitCleanup))
	})

	t.Run("stop ends every task", func(t *testing.T) {
		t.Parallel()

		app := newApp(t, testConfig())
		require.NoError(t, app.Start(context.Background()))

		require.NoError(t, app.Stop())
		assert.Empty(t, app.Supervisor().Names())
		assert.ErrorIs(t, app.Stop(), coordinator.ErrNotStarted)
		assert.ErrorIs(t, app.Healthcheck(context.Background()), coordinator.ErrNotStarted)
	})

	t.Run("run stops on cancellation", func(t *testing.T) {
		t.Parallel()

		app := newApp(t, testConfig())
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- app.Run(ctx)() }()

		require.Eventually(t, func() bool {
			return app.Supervisor().Running(coordinator.TaskDispatch)
		}, time.Second, 5*time.Millisecond)

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Fatal("run did not return")
		}
		assert.Empty(t, app.Supervisor().Names())
	})

	t.Run("healthcheck fails when admission metrics are unavailable", func(t *testing.T) {
		t.Parallel()

		failing := health.ProviderFunc(func(context.Context) (health.Metrics, error) {
			return health.Metrics{}, errors.New("sensor offline")
		})
		app := newApp(t, testConfig(), coordinator.WithMetricsProvider(failing))
		require.NoError(t, app.Start(context.Background()))
		t.Cleanup(func() { _ = app.Stop() })

		err := app.Healthcheck(context.Background())
		assert.ErrorIs(t, err, health.ErrNotReady)
	})
}

func TestErrorEvents(t *testing.T) {
	t.Parallel()

	t.Run("dropped messages are logged from error_events", func(t *testing.T) {
		t.Parallel()

		out := &syncBuffer{}
		log := logger.New(logger.WithOutput(out), logger.WithLevelString("debug"))

		app := newApp(t, testConfig(), coordinator.WithLogger(log))
		startApp(t, app)

		b := app.Broker()
		b.Subscribe("jobs", broker.Func(func(context.Context, any) error {
			return errors.New("boom")
		}))
		require.True(t, b.Publish(context.Background(), "jobs", "payload"))

		require.Eventually(t, func() bool {
			return strings.Contains(out.String(), "error event")
		}, 2*time.Second, 10*time.Millisecond)
		assert.Contains(t, out.String(), "boom")
	})

	t.Run("custom reporter replaces the broker reporter", func(t *testing.T) {
		t.Parallel()

		var (
			mu       sync.Mutex
			reported []error
		)
		rep := reporter.Func(func(_ context.Context, err error, _ map[string]any) {
			mu.Lock()
			defer mu.Unlock()
			reported = append(reported, err)
		})

		app := newApp(t, testConfig(), coordinator.WithReporter(rep))
		startApp(t, app)

		b := app.Broker()
		b.Subscribe("jobs", broker.Func(func(context.Context, any) error {
			return broker.Permanent(errors.New("bad input"))
		}))
		require.True(t, b.Publish(context.Background(), "jobs", 1))

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(reported) == 1
		}, 2*time.Second, 10*time.Millisecond)
		assert.Zero(t, b.Len(reporter.ErrorEventsQueue))
	})
}

func TestWebsocket(t *testing.T) {
	t.Parallel()

	const loopback = "127.0.0.1:0"

	cfg := testConfig()
	cfg.Server.Addr = loopback
	cfg.RateLimit.Capacity = 2
	cfg.RateLimit.Window = time.Minute

	app := newApp(t, cfg)

	inbound := make(chan coordinator.InboundMessage, 8)
	app.HandleInbound(broker.Typed(func(_ context.Context, m coordinator.InboundMessage) error {
		inbound <- m
		return nil
	}))

	startApp(t, app)
	require.Eventually(t, func() bool {
		return app.Server().Addr() != loopback
	}, time.Second, 5*time.Millisecond)

	url := "ws://" + app.Server().Addr() + "/ws?client_id=alice"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer conn.Close()

	require.Eventually(t, func() bool {
		_, ok := app.Registry().Get("alice")
		return ok
	}, time.Second, 5*time.Millisecond)

	for _, msg := range []string{"one", "two", "three"} {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
	}

	for _, want := range []string{"one", "two"} {
		select {
		case m := <-inbound:
			assert.Equal(t, "alice", m.ClientID)
			assert.Equal(t, want, string(m.Data))
		case <-time.After(2 * time.Second):
			t.Fatalf("inbound %q not delivered", want)
		}
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var notice coordinator.RateLimitedNotice
	require.NoError(t, conn.ReadJSON(&notice))
	assert.Equal(t, "rate_limited", notice.Type)
	assert.Greater(t, notice.RetryAfter, 0.0)

	select {
	case m := <-inbound:
		t.Fatalf("unexpected inbound frame %q", m.Data)
	case <-time.After(50 * time.Millisecond):
	}

	t.Run("healthz reports ready", func(t *testing.T) {
		resp, err := http.Get("http://" + app.Server().Addr() + "/healthz")
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})
}
