// Package bridge relays broker queues between processes.
//
// Each process runs its own broker. Route wraps the local handler of a queue so
// that every locally published message is also forwarded over a Transport,
// while messages arriving from other processes are delivered locally only.
// Forwarded messages carry the sender's origin, and a bridge ignores its own
// echoes. Rate limiter replicas use this to exchange window state:
//
//	relay := bridge.New(redis.NewTransport(client), b, bridge.WithLogger(log))
//	bridge.Route[ratelimiter.SyncEvent](relay, ratelimiter.SyncQueue,
//		broker.Typed(limiter.HandleSync))
//
//	go relay.Start(ctx)
//
// Payloads are encoded as JSON; the type parameter of Route decides how the
// receiving side decodes them. Remote payloads are wrapped in Remote while they
// travel through the local broker and unwrapped before the local handler runs.
package bridge
