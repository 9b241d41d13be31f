package broker_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessioncore/core/broker"
	"github.com/dmitrymomot/sessioncore/core/reporter"
)

// recorder is a concurrency-safe sink for handler calls and reports.
type recorder struct {
	mu      sync.Mutex
	items   []any
	reports []error
	fields  []map[string]any
}

func (r *recorder) add(v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, v)
}

func (r *recorder) snapshot() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.items...)
}

func (r *recorder) Report(_ context.Context, err error, fields map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, err)
	r.fields = append(r.fields, fields)
}

func (r *recorder) reportCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

// startBroker runs the dispatch loop until the test finishes.
func startBroker(t *testing.T, b *broker.Broker) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- b.Start(ctx) }()

	require.Eventually(t, func() bool { return b.Stats().IsRunning }, time.Second, time.Millisecond)

	t.Cleanup(func() {
		cancel()
		select {
		case <-errCh:
		case <-time.After(2 * time.Second):
			t.Error("broker did not stop")
		}
	})
}

func newTestBroker(rep reporter.Reporter, opts ...broker.Option) *broker.Broker {
	return broker.New(append([]broker.Option{
		broker.WithPollInterval(5 * time.Millisecond),
		broker.WithReporter(rep),
	}, opts...)...)
}

func TestPublish(t *testing.T) {
	t.Parallel()

	t.Run("accumulates without handler", func(t *testing.T) {
		t.Parallel()
		b := newTestBroker(reporter.Nop())

		for _, p := range []string{"a", "b", "c"} {
			require.True(t, b.Publish(context.Background(), "audio", p))
		}

		pending := b.Pending("audio")
		require.Len(t, pending, 3)
		assert.Equal(t, "a", pending[0].Payload)
		assert.Equal(t, "c", pending[2].Payload)
		assert.Equal(t, []string{"audio"}, b.Queues())
	})

	t.Run("assigns queue prefixed ids", func(t *testing.T) {
		t.Parallel()
		b := newTestBroker(reporter.Nop(), broker.WithMaxRetries(5))

		require.True(t, b.Publish(context.Background(), "audio", 1))
		require.True(t, b.Publish(context.Background(), "audio", 2))

		pending := b.Pending("audio")
		require.Len(t, pending, 2)
		assert.True(t, strings.HasPrefix(pending[0].ID, "audio_"))
		assert.NotEqual(t, pending[0].ID, pending[1].ID)
		assert.Equal(t, 0, pending[0].RetryCount)
		assert.Equal(t, 5, pending[0].MaxRetries)
		assert.Equal(t, "audio", pending[0].Queue)
		assert.False(t, pending[0].EnqueuedAt.IsZero())
	})

	t.Run("bounded queue refuses when full", func(t *testing.T) {
		t.Parallel()
		b := newTestBroker(reporter.Nop())
		b.CreateQueue("bounded", 2)

		assert.True(t, b.Publish(context.Background(), "bounded", 1))
		assert.True(t, b.Publish(context.Background(), "bounded", 2))
		assert.False(t, b.Publish(context.Background(), "bounded", 3))
		assert.Equal(t, 2, b.Len("bounded"))
		assert.Equal(t, int64(1), b.Stats().PublishFailed)
	})

	t.Run("default capacity applies to implicit queues", func(t *testing.T) {
		t.Parallel()
		b := newTestBroker(reporter.Nop(), broker.WithDefaultCapacity(1))

		assert.True(t, b.Publish(context.Background(), "q", 1))
		assert.False(t, b.Publish(context.Background(), "q", 2))
	})

	t.Run("empty queue name is refused", func(t *testing.T) {
		t.Parallel()
		b := newTestBroker(reporter.Nop())

		assert.False(t, b.Publish(context.Background(), "", "x"))
		assert.Empty(t, b.Queues())
	})
}

func TestCreateQueue(t *testing.T) {
	t.Parallel()
	b := newTestBroker(reporter.Nop())

	b.CreateQueue("first", 1)
	b.CreateQueue("second", -5)
	b.CreateQueue("first", 10) // existing queue keeps its capacity

	assert.Equal(t, []string{"first", "second"}, b.Queues())
	assert.True(t, b.Publish(context.Background(), "first", 1))
	assert.False(t, b.Publish(context.Background(), "first", 2))

	for i := range 5 {
		assert.True(t, b.Publish(context.Background(), "second", i))
	}
}

func TestDispatch(t *testing.T) {
	t.Parallel()

	t.Run("delivers accumulated messages in order once subscribed", func(t *testing.T) {
		t.Parallel()
		rec := &recorder{}
		b := newTestBroker(rec)

		for i := range 5 {
			require.True(t, b.Publish(context.Background(), "q", i))
		}
		startBroker(t, b)

		b.Subscribe("q", broker.Func(func(_ context.Context, p any) error {
			rec.add(p)
			return nil
		}))

		require.Eventually(t, func() bool { return len(rec.snapshot()) == 5 }, time.Second, time.Millisecond)
		assert.Equal(t, []any{0, 1, 2, 3, 4}, rec.snapshot())
		assert.Equal(t, 0, b.Len("q"))
		assert.Equal(t, int64(5), b.Stats().Acked)
	})

	t.Run("round robin across queues", func(t *testing.T) {
		t.Parallel()
		rec := &recorder{}
		b := newTestBroker(rec)
		record := broker.Func(func(_ context.Context, p any) error {
			rec.add(p)
			return nil
		})

		for _, p := range []string{"a1", "a2", "a3"} {
			b.Publish(context.Background(), "a", p)
		}
		b.Publish(context.Background(), "b", "b1")
		b.Subscribe("a", record)
		b.Subscribe("b", record)

		startBroker(t, b)

		require.Eventually(t, func() bool { return len(rec.snapshot()) == 4 }, time.Second, time.Millisecond)
		assert.Equal(t, []any{"a1", "b1", "a2", "a3"}, rec.snapshot())
	})

	t.Run("retried message goes behind later messages", func(t *testing.T) {
		t.Parallel()
		rec := &recorder{}
		b := newTestBroker(rec, broker.WithMaxRetries(3))

		failures := map[string]int{"a": 2}
		var mu sync.Mutex
		b.Subscribe("q", broker.Func(func(_ context.Context, p any) error {
			mu.Lock()
			defer mu.Unlock()
			name := p.(string)
			if failures[name] > 0 {
				failures[name]--
				return errors.New("transient")
			}
			rec.add(name)
			return nil
		}))
		for _, p := range []string{"a", "b", "c"} {
			b.Publish(context.Background(), "q", p)
		}

		startBroker(t, b)

		require.Eventually(t, func() bool { return len(rec.snapshot()) == 3 }, time.Second, time.Millisecond)
		assert.Equal(t, []any{"b", "c", "a"}, rec.snapshot())
		assert.Zero(t, rec.reportCount())
		assert.Equal(t, int64(2), b.Stats().Retried)
	})

	t.Run("exhausted retries report exactly once", func(t *testing.T) {
		t.Parallel()
		rec := &recorder{}
		b := newTestBroker(rec, broker.WithMaxRetries(2))
		boom := errors.New("boom")

		b.Subscribe("q", broker.Func(func(_ context.Context, p any) error {
			rec.add(p)
			return boom
		}))
		b.Publish(context.Background(), "q", "doomed")

		startBroker(t, b)

		require.Eventually(t, func() bool { return rec.reportCount() == 1 }, time.Second, time.Millisecond)
		// Give the loop a few more passes to prove nothing is redelivered
		time.Sleep(30 * time.Millisecond)

		assert.Len(t, rec.snapshot(), 3)
		assert.Equal(t, 1, rec.reportCount())
		rec.mu.Lock()
		assert.ErrorIs(t, rec.reports[0], boom)
		assert.Equal(t, "q", rec.fields[0]["queue"])
		assert.Equal(t, 2, rec.fields[0]["retry_count"])
		rec.mu.Unlock()
		assert.Equal(t, 0, b.Len("q"))
		assert.Equal(t, int64(1), b.Stats().Dropped)
	})

	t.Run("reject drops without retry", func(t *testing.T) {
		t.Parallel()
		rec := &recorder{}
		b := newTestBroker(rec, broker.WithMaxRetries(3))

		b.Subscribe("q", broker.Typed(func(_ context.Context, n int) error {
			rec.add(n)
			return nil
		}))
		b.Publish(context.Background(), "q", "not an int")
		b.Publish(context.Background(), "q", 7)

		startBroker(t, b)

		require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 && rec.reportCount() == 1 }, time.Second, time.Millisecond)
		assert.Equal(t, []any{7}, rec.snapshot())
		rec.mu.Lock()
		assert.ErrorIs(t, rec.reports[0], broker.ErrPayloadType)
		rec.mu.Unlock()
		assert.Equal(t, int64(1), b.Stats().Rejected)
		assert.Zero(t, b.Stats().Retried)
	})

	t.Run("panic is recovered and retried", func(t *testing.T) {
		t.Parallel()
		rec := &recorder{}
		b := newTestBroker(rec, broker.WithMaxRetries(1))

		var mu sync.Mutex
		calls := 0
		b.Subscribe("q", broker.HandlerFunc(func(_ context.Context, p any) broker.Result {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			if n == 1 {
				panic("kaboom")
			}
			rec.add(p)
			return broker.Ack()
		}))
		b.Publish(context.Background(), "q", "x")

		startBroker(t, b)

		require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, time.Millisecond)
		assert.Zero(t, rec.reportCount())
		assert.True(t, b.Stats().IsRunning)
	})

	t.Run("handler timeout counts as failure", func(t *testing.T) {
		t.Parallel()
		rec := &recorder{}
		b := newTestBroker(rec,
			broker.WithMaxRetries(0),
			broker.WithHandlerTimeout(10*time.Millisecond))

		b.Subscribe("q", broker.Func(func(ctx context.Context, _ any) error {
			<-ctx.Done()
			return ctx.Err()
		}))
		b.Publish(context.Background(), "q", "slow")

		startBroker(t, b)

		require.Eventually(t, func() bool { return rec.reportCount() == 1 }, time.Second, time.Millisecond)
		rec.mu.Lock()
		assert.ErrorIs(t, rec.reports[0], context.DeadlineExceeded)
		rec.mu.Unlock()
	})

	t.Run("ack after deadline counts as failure", func(t *testing.T) {
		t.Parallel()
		rec := &recorder{}
		b := newTestBroker(rec,
			broker.WithMaxRetries(0),
			broker.WithHandlerTimeout(5*time.Millisecond))

		b.Subscribe("q", broker.Func(func(context.Context, any) error {
			time.Sleep(30 * time.Millisecond)
			return nil
		}))
		b.Publish(context.Background(), "q", "late")

		startBroker(t, b)

		require.Eventually(t, func() bool { return rec.reportCount() == 1 }, time.Second, time.Millisecond)
		rec.mu.Lock()
		assert.ErrorIs(t, rec.reports[0], broker.ErrHandlerInterrupted)
		assert.ErrorIs(t, rec.reports[0], context.DeadlineExceeded)
		rec.mu.Unlock()
		assert.Zero(t, b.Stats().Acked)
	})

	t.Run("full bounded queue drops retried message", func(t *testing.T) {
		t.Parallel()
		rec := &recorder{}
		b := newTestBroker(rec, broker.WithMaxRetries(3))
		b.CreateQueue("q", 1)

		var once sync.Once
		b.Subscribe("q", broker.Func(func(ctx context.Context, p any) error {
			if p == "first" {
				// Refill the only slot before asking for a retry
				once.Do(func() { b.Publish(ctx, "q", "second") })
				return errors.New("transient")
			}
			rec.add(p)
			return nil
		}))
		b.Publish(context.Background(), "q", "first")

		startBroker(t, b)

		require.Eventually(t, func() bool { return rec.reportCount() == 1 && len(rec.snapshot()) == 1 }, time.Second, time.Millisecond)
		rec.mu.Lock()
		assert.ErrorIs(t, rec.reports[0], broker.ErrQueueFull)
		rec.mu.Unlock()
		assert.Equal(t, []any{"second"}, rec.snapshot())
	})

	t.Run("last subscription wins", func(t *testing.T) {
		t.Parallel()
		rec := &recorder{}
		b := newTestBroker(rec)

		b.Subscribe("q", broker.Func(func(context.Context, any) error {
			rec.add("old")
			return nil
		}))
		b.Subscribe("q", broker.Func(func(context.Context, any) error {
			rec.add("new")
			return nil
		}))
		b.Publish(context.Background(), "q", 1)

		startBroker(t, b)

		require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, time.Millisecond)
		assert.Equal(t, []any{"new"}, rec.snapshot())
	})

	t.Run("unsubscribe stops delivery", func(t *testing.T) {
		t.Parallel()
		b := newTestBroker(reporter.Nop())
		b.Subscribe("q", broker.Func(func(context.Context, any) error { return nil }))
		require.True(t, b.HasHandler("q"))

		b.Unsubscribe("q")
		assert.False(t, b.HasHandler("q"))

		startBroker(t, b)
		b.Publish(context.Background(), "q", 1)
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, 1, b.Len("q"))
	})
}

func TestLifecycle(t *testing.T) {
	t.Parallel()

	t.Run("second start is refused", func(t *testing.T) {
		t.Parallel()
		b := newTestBroker(reporter.Nop())
		startBroker(t, b)

		err := b.Start(context.Background())
		assert.ErrorIs(t, err, broker.ErrBrokerAlreadyStarted)
	})

	t.Run("stop without start", func(t *testing.T) {
		t.Parallel()
		b := newTestBroker(reporter.Nop())
		assert.ErrorIs(t, b.Stop(), broker.ErrBrokerNotStarted)
	})

	t.Run("stop ends the loop and allows restart", func(t *testing.T) {
		t.Parallel()
		b := newTestBroker(reporter.Nop())

		errCh := make(chan error, 1)
		go func() { errCh <- b.Start(context.Background()) }()
		require.Eventually(t, func() bool { return b.Stats().IsRunning }, time.Second, time.Millisecond)

		require.NoError(t, b.Stop())
		assert.ErrorIs(t, <-errCh, context.Canceled)
		assert.False(t, b.Stats().IsRunning)

		startBroker(t, b)
		assert.True(t, b.Stats().IsRunning)
	})

	t.Run("run returns nil on cancel", func(t *testing.T) {
		t.Parallel()
		b := newTestBroker(reporter.Nop())
		ctx, cancel := context.WithCancel(context.Background())

		errCh := make(chan error, 1)
		go func() { errCh <- b.Run(ctx)() }()
		require.Eventually(t, func() bool { return b.Stats().IsRunning }, time.Second, time.Millisecond)

		cancel()
		assert.NoError(t, <-errCh)
	})

	t.Run("stop during handler requeues the message", func(t *testing.T) {
		t.Parallel()
		b := newTestBroker(reporter.Nop())
		entered := make(chan struct{})
		var once sync.Once

		b.Subscribe("q", broker.Func(func(ctx context.Context, _ any) error {
			once.Do(func() { close(entered) })
			<-ctx.Done()
			return nil
		}))
		b.Publish(context.Background(), "q", "in-flight")

		errCh := make(chan error, 1)
		go func() { errCh <- b.Start(context.Background()) }()
		<-entered

		require.NoError(t, b.Stop())
		assert.ErrorIs(t, <-errCh, context.Canceled)

		pending := b.Pending("q")
		require.Len(t, pending, 1)
		assert.Equal(t, "in-flight", pending[0].Payload)
		assert.Equal(t, 1, pending[0].RetryCount)
		assert.Zero(t, b.Stats().Acked)
	})

	t.Run("stop times out on stuck handler", func(t *testing.T) {
		t.Parallel()
		b := newTestBroker(reporter.Nop(), broker.WithShutdownTimeout(20*time.Millisecond))
		release := make(chan struct{})
		entered := make(chan struct{})

		b.Subscribe("q", broker.Func(func(context.Context, any) error {
			close(entered)
			<-release
			return nil
		}))
		b.Publish(context.Background(), "q", 1)

		errCh := make(chan error, 1)
		go func() { errCh <- b.Start(context.Background()) }()
		<-entered

		assert.ErrorIs(t, b.Stop(), broker.ErrShutdownTimeout)
		close(release)
		assert.ErrorIs(t, <-errCh, context.Canceled)
	})
}

func TestHealthcheck(t *testing.T) {
	t.Parallel()
	b := newTestBroker(reporter.Nop())

	err := b.Healthcheck(context.Background())
	require.ErrorIs(t, err, broker.ErrHealthcheckFailed)
	assert.ErrorIs(t, err, broker.ErrBrokerNotRunning)

	startBroker(t, b)
	require.Eventually(t, func() bool { return b.Healthcheck(context.Background()) == nil }, time.Second, time.Millisecond)
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()
	cfg := broker.DefaultConfig()
	cfg.DefaultCapacity = 1
	cfg.MaxRetries = 0

	b := broker.NewFromConfig(cfg)

	assert.True(t, b.Publish(context.Background(), "q", 1))
	assert.False(t, b.Publish(context.Background(), "q", 2))
	assert.Equal(t, 0, b.Pending("q")[0].MaxRetries)
}
