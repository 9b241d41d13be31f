// Package server runs the HTTP listener that accepts websocket upgrades.
//
// It wraps http.Server with a context-driven lifecycle: Start blocks until the
// context is cancelled and then shuts down gracefully. Because upgraded
// connections are hijacked and invisible to http.Server, callers register an
// OnShutdown hook that closes live sessions.
//
//	srv, err := server.NewFromConfig(cfg.Server,
//		server.WithLogger(log),
//		server.WithOnShutdown(closeAllSessions),
//	)
//	if err != nil {
//		return err
//	}
//	return srv.Start(ctx, mux)
//
// An empty address disables the listener; NewFromConfig returns
// ErrMissingAddress in that case.
package server
