package supervisor

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/sessioncore/pkg/clock"
)

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger. Defaults to a discard logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithShutdownTimeout bounds how long Stop waits for a task to acknowledge cancellation.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// WithClock sets the clock used for run timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Supervisor) {
		if c != nil {
			s.clock = c
		}
	}
}
