package async

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ExecFuture represents the result of an asynchronous computation that only returns an error.
type ExecFuture struct {
	err  error
	once sync.Once
	done chan struct{}
}

// Await waits for the asynchronous function to complete and returns its error.
func (f *ExecFuture) Await() error {
	<-f.done
	return f.err
}

// AwaitWithTimeout waits for the asynchronous function to complete with a timeout.
// Returns ErrTimeout if the function is still running when the timeout elapses.
func (f *ExecFuture) AwaitWithTimeout(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-f.done:
		return f.err
	case <-timer.C:
		return ErrTimeout
	}
}

// AwaitContext waits for completion or until ctx is done, whichever comes first.
func (f *ExecFuture) AwaitContext(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed when the function has returned.
func (f *ExecFuture) Done() <-chan struct{} {
	return f.done
}

// IsComplete checks if the asynchronous function is complete without blocking.
func (f *ExecFuture) IsComplete() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (f *ExecFuture) complete(err error) {
	f.once.Do(func() {
		f.err = err
	})
}

// Exec executes a function asynchronously that only returns an error.
// The function accepts a context.Context and a parameter of any type T.
// A panic inside fn is recovered and reported as an error wrapping ErrPanic.
func Exec[T any](ctx context.Context, param T, fn func(context.Context, T) error) *ExecFuture {
	f := &ExecFuture{done: make(chan struct{})}

	go func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.complete(fmt.Errorf("%w: %v", ErrPanic, r))
			}
		}()

		// Early exit prevents running work for an already cancelled caller
		select {
		case <-ctx.Done():
			f.complete(ctx.Err())
			return
		default:
		}

		f.complete(fn(ctx, param))
	}()

	return f
}

// Go is Exec for functions without a parameter.
func Go(ctx context.Context, fn func(context.Context) error) *ExecFuture {
	return Exec(ctx, struct{}{}, func(ctx context.Context, _ struct{}) error {
		return fn(ctx)
	})
}

// ExecAll waits for all futures to complete and returns the first error in argument order.
func ExecAll(futures ...*ExecFuture) error {
	var first error
	for _, future := range futures {
		if err := future.Await(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ExecAny waits for any of the futures to complete and returns the index of the completed future
// and any error it might have returned.
func ExecAny(futures ...*ExecFuture) (int, error) {
	if len(futures) == 0 {
		return -1, ErrNoFutures
	}

	type result struct {
		index int
		err   error
	}
	done := make(chan result, len(futures))

	for i, future := range futures {
		go func(index int, f *ExecFuture) {
			done <- result{index: index, err: f.Await()}
		}(i, future)
	}

	res := <-done
	return res.index, res.err
}
