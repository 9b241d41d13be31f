// Package broker provides an in-process, multi-queue publish/subscribe bus.
//
// Queues are named FIFOs with an optional capacity bound. Each queue has at most
// one handler; registering again replaces it. A single dispatch loop walks the
// queues in creation order and hands at most one message per queue to its handler
// on each pass, so a busy queue cannot starve the others.
//
// # Delivery
//
// Handlers return a Result:
//
//   - Ack: the message is discarded.
//   - Retry: the message goes back to the tail of its queue until it has been
//     retried MaxRetries times, then it is dropped and reported.
//   - Reject: the message is dropped and reported without retries.
//
// Panics, handler timeouts and cancellation mid-handler count as Retry.
// Func and Typed adapt plain error-returning functions; wrap an error with
// Permanent to reject instead of retry.
//
// # Usage
//
//	b := broker.NewFromConfig(cfg,
//		broker.WithLogger(log),
//		broker.WithReporter(reporter.NewLog(log)),
//	)
//
//	b.Subscribe("audio_chunks", broker.Typed(func(ctx context.Context, c Chunk) error {
//		return pipeline.Feed(ctx, c)
//	}))
//
//	g, ctx := errgroup.WithContext(ctx)
//	g.Go(b.Run(ctx))
//
//	if !b.Publish(ctx, "audio_chunks", chunk) {
//		// queue full: shed load
//	}
//
// Publish never blocks. It wakes the loop so delivery does not wait for the
// next poll tick.
package broker
