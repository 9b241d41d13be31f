// Package ratelimiter provides fixed-window rate limiting whose state is shared
// between replicas through the broker.
//
// # Fixed Window
//
// Each key gets Capacity requests per Window. The window starts lazily with the
// first request for a key and restarts with the first request that arrives after
// ResetAt, so ResetAt is always now + Window at the moment of restart, never the
// old boundary plus Window. A client can therefore send Capacity requests at the
// end of one window and Capacity more at the start of the next. This burst of up
// to twice the capacity is accepted in exchange for O(1) state per key.
//
// # Replication
//
// Every allowed request publishes a SyncEvent to the "rate_limits" queue.
// Replicas that called Subscribe apply foreign events:
//
//   - events stamped with the replica's own origin are ignored;
//   - an event for an older window is ignored;
//   - for the same window the lower remaining count wins;
//   - a newer window replaces the local one.
//
// The result is eventually consistent. State lives in memory only and is lost on restart.
//
// # Usage
//
//	limiter, err := ratelimiter.New(b, ratelimiter.DefaultConfig(),
//		ratelimiter.WithLogger(log),
//	)
//	if err != nil {
//		return err
//	}
//	limiter.Subscribe()
//
//	if st := limiter.Check(ctx, "client:"+id); st != nil {
//		log.Warn("throttled", "retry_after", st.RetryAfter(time.Now()))
//		return
//	}
//
// Enforce returns the same verdict as an error wrapping ErrRateLimitExceeded.
//
// # Cleanup
//
// Keys whose window expired and which were not used for StaleAfter are removed by
// the cleanup loop. Run it under an errgroup or the supervisor:
//
//	g.Go(limiter.Run(ctx))
//
// Cleanup can also be called directly for a single sweep.
package ratelimiter
