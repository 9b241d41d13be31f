package registry_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessioncore/core/broker"
	"github.com/dmitrymomot/sessioncore/core/health"
	"github.com/dmitrymomot/sessioncore/core/registry"
	"github.com/dmitrymomot/sessioncore/core/reporter"
	"github.com/dmitrymomot/sessioncore/pkg/clock"
)

func TestBrokerEvents(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var reported []error
	rep := reporter.Func(func(_ context.Context, err error, _ map[string]any) {
		mu.Lock()
		defer mu.Unlock()
		reported = append(reported, err)
	})

	b := broker.New(broker.WithPollInterval(5*time.Millisecond), broker.WithReporter(rep))
	clk := clock.NewMock(epoch)
	reg := registry.New(b, registry.DefaultConfig(),
		registry.WithMetricsProvider(health.Static{}),
		registry.WithClock(clk))
	reg.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	ctx = context.Background()
	s := &fakeSession{}
	require.True(t, reg.Connect(ctx, "a", s))
	require.True(t, reg.Connect(ctx, "b", nil))
	reg.JoinGroup(ctx, "a", "room")

	t.Run("direct and broadcast", func(t *testing.T) {
		require.True(t, reg.RequestSend(ctx, "a", "direct"))
		require.True(t, reg.RequestBroadcast(ctx, "room", "group"))

		require.Eventually(t, func() bool { return len(s.messages()) == 2 }, time.Second, time.Millisecond)
		assert.Equal(t, []any{"direct", "group"}, s.messages())
	})

	t.Run("disconnect", func(t *testing.T) {
		require.True(t, reg.RequestDisconnect(ctx, "b"))
		require.Eventually(t, func() bool { return reg.Count() == 1 }, time.Second, time.Millisecond)
	})

	t.Run("cleanup runs a single sweep", func(t *testing.T) {
		clk.Advance(10 * time.Minute)
		require.True(t, reg.RequestCleanup(ctx, 5*time.Minute))
		require.Eventually(t, func() bool { return reg.Count() == 0 }, time.Second, time.Millisecond)
		assert.True(t, s.isClosed())
	})

	t.Run("unknown event is rejected", func(t *testing.T) {
		require.True(t, b.Publish(ctx, registry.ConnectionEventsQueue, registry.ConnectionEvent{Type: "reboot"}))
		require.True(t, b.Publish(ctx, registry.SessionEventsQueue, registry.SessionEvent{Type: registry.EventDirect}))

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(reported) == 2
		}, time.Second, time.Millisecond)

		mu.Lock()
		defer mu.Unlock()
		// Queues are served round robin, so the order between them is not fixed
		joined := errors.Join(reported...)
		assert.ErrorIs(t, joined, registry.ErrUnknownEvent)
		assert.ErrorIs(t, joined, registry.ErrInvalidEvent)
	})
}
