package async_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessioncore/pkg/async"
)

func TestExec(t *testing.T) {
	t.Parallel()

	t.Run("returns function error", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")

		f := async.Exec(context.Background(), "client-1", func(ctx context.Context, id string) error {
			assert.Equal(t, "client-1", id)
			return boom
		})

		assert.ErrorIs(t, f.Await(), boom)
		assert.True(t, f.IsComplete())
	})

	t.Run("cancelled context skips function", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var ran atomic.Bool
		f := async.Exec(ctx, 0, func(context.Context, int) error {
			ran.Store(true)
			return nil
		})

		assert.ErrorIs(t, f.Await(), context.Canceled)
		assert.False(t, ran.Load())
	})

	t.Run("recovers panic", func(t *testing.T) {
		t.Parallel()

		f := async.Go(context.Background(), func(context.Context) error {
			panic("handler exploded")
		})

		err := f.Await()
		require.ErrorIs(t, err, async.ErrPanic)
		assert.Contains(t, err.Error(), "handler exploded")
	})

	t.Run("observes cancellation while running", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		started := make(chan struct{})

		f := async.Go(ctx, func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		})

		<-started
		assert.False(t, f.IsComplete())
		cancel()

		select {
		case <-f.Done():
		case <-time.After(time.Second):
			t.Fatal("future did not complete after cancel")
		}
		assert.ErrorIs(t, f.Await(), context.Canceled)
	})
}

func TestAwaitWithTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	f := async.Go(context.Background(), func(context.Context) error {
		<-release
		return nil
	})

	assert.ErrorIs(t, f.AwaitWithTimeout(20*time.Millisecond), async.ErrTimeout)

	close(release)
	assert.NoError(t, f.AwaitWithTimeout(time.Second))
}

func TestAwaitContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)
	f := async.Go(context.Background(), func(context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.AwaitContext(ctx), context.DeadlineExceeded)
}

func TestExecAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	second := errors.New("second")
	third := errors.New("third")

	sleep := func(ms int, err error) *async.ExecFuture {
		return async.Exec(ctx, ms, func(_ context.Context, ms int) error {
			time.Sleep(time.Duration(ms) * time.Millisecond)
			return err
		})
	}

	start := time.Now()
	err := async.ExecAll(sleep(30, nil), sleep(10, second), sleep(5, third))

	assert.ErrorIs(t, err, second)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.NoError(t, async.ExecAll())
}

func TestExecAny(t *testing.T) {
	t.Parallel()

	_, err := async.ExecAny()
	require.ErrorIs(t, err, async.ErrNoFutures)

	ctx := context.Background()
	fast := errors.New("fast")
	slow := async.Exec(ctx, 200, func(_ context.Context, ms int) error {
		time.Sleep(time.Duration(ms) * time.Millisecond)
		return nil
	})
	quick := async.Exec(ctx, 10, func(_ context.Context, ms int) error {
		time.Sleep(time.Duration(ms) * time.Millisecond)
		return fast
	})

	index, err := async.ExecAny(slow, quick)
	assert.Equal(t, 1, index)
	assert.ErrorIs(t, err, fast)
}
