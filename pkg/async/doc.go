// Package async runs functions in their own goroutine and returns a future
// that can be awaited, polled or raced.
//
// The supervisor builds on it: every supervised task is an ExecFuture, so
// stopping a task is cancel plus AwaitWithTimeout.
//
// # Usage
//
//	future := async.Go(ctx, func(ctx context.Context) error {
//		return cleanup(ctx)
//	})
//
//	// Poll without blocking
//	if future.IsComplete() { ... }
//
//	// Wait with a bound
//	if err := future.AwaitWithTimeout(5 * time.Second); errors.Is(err, async.ErrTimeout) {
//		log.Println("still running")
//	}
//
// Exec passes a typed parameter through instead of capturing it:
//
//	future := async.Exec(ctx, clientID, evict)
//
// # Errors
//
//   - ErrTimeout: AwaitWithTimeout exceeded its duration
//   - ErrNoFutures: ExecAny called with no futures
//   - ErrPanic: the function panicked; the panic value is in the message
//
// A function whose context is already cancelled is not run; its future
// completes with the context error.
package async
