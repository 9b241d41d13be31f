// Package wsession plugs gorilla/websocket connections into the connection registry.
//
// Session implements the registry's Sender, Pinger and Closer contracts, so
// registered websocket clients can receive direct messages and broadcasts, are
// probed by the heartbeat and are closed on eviction.
//
// Handler performs the upgrade and owns the read loop:
//
//	mux.Handle("/ws", wsession.Handler(reg,
//		wsession.WithAllowAnyOrigin(),
//		wsession.WithMessageHandler(func(ctx context.Context, id string, _ int, data []byte) {
//			b.Publish(ctx, "audio_chunks", Chunk{ClientID: id, Data: data})
//		}),
//	))
package wsession
