package ratelimiter

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/sessioncore/pkg/clock"
)

// Option configures a Limiter.
type Option func(*Limiter)

// WithLogger sets the logger for internal operations.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock sets the time source for window resets and staleness.
func WithClock(c clock.Clock) Option {
	return func(l *Limiter) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithShutdownTimeout sets the graceful shutdown timeout of the cleanup loop.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(l *Limiter) {
		if timeout > 0 {
			l.shutdownTimeout = timeout
		}
	}
}

// WithOrigin sets the replica identifier stamped on published sync events.
// Defaults to a random UUID.
func WithOrigin(origin string) Option {
	return func(l *Limiter) {
		if origin != "" {
			l.origin = origin
		}
	}
}
