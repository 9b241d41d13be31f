// Package coordinator assembles the broker, rate limiter, connection registry
// and task supervisor into one process.
//
// The broker is the only bus: the limiter, the registry, the supervisor and
// the default error reporter all publish and subscribe through it. Start
// subscribes every component and launches the background loops as named
// supervised tasks:
//
//   - broker.dispatch: the broker delivery loop
//   - registry.cleanup: idle connection eviction
//   - registry.heartbeat: session pings
//   - ratelimit.cleanup: stale key sweep, when RATE_LIMIT_CLEANUP_INTERVAL > 0
//   - server.listen: the websocket listener, when WS_ADDR is set
//   - bridge.relay: rate limiter sync with other replicas, when REDIS_URL is set
//
// Errors reported by any component arrive on the error_events queue and are
// logged by the coordinator, as are connection lifecycle notifications.
//
// Usage:
//
//	app, err := coordinator.NewFromEnv(coordinator.WithLogger(log))
//	if err != nil {
//		return err
//	}
//	app.HandleInbound(broker.Typed(func(ctx context.Context, m coordinator.InboundMessage) error {
//		return process(ctx, m)
//	}))
//
//	eg, ctx := errgroup.WithContext(ctx)
//	eg.Go(app.Run(ctx))
//	return eg.Wait()
//
// Inbound websocket frames are counted against the sender's rate limit. A
// frame over the limit is answered with a RateLimitedNotice and dropped.
package coordinator
