// Package registry tracks live client connections for realtime sessions.
//
// Admission is gated twice: by a hard MaxConnections ceiling and by live host
// metrics from a health.Provider. A client is refused when CPU or memory usage is
// above its threshold at the moment it connects, and also when the metrics cannot
// be read at all.
//
// Idle clients are evicted by Sweep, which CleanupInactive runs periodically. After
// every sweep the registry warns when the active count exceeds LoadWarnRatio of the
// ceiling.
//
// Sessions are opaque. When a session implements Sender the registry can deliver
// messages to it (SendTo, Broadcast to a group); when it implements Pinger the
// heartbeat probes it; when it implements Closer it is closed on disconnect.
// A failed send or ping disconnects the client.
//
// Decoupled callers use the broker instead of a direct reference:
//
//	reg.Subscribe()
//	reg.RequestDisconnect(ctx, "client-7")
//	reg.RequestBroadcast(ctx, "room:42", frame)
//
// With WithLifecycleEvents the registry publishes connected, disconnected,
// evicted and high_load notifications to the connection_lifecycle queue.
package registry
