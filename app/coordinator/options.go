package coordinator

import (
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/sessioncore/core/bridge"
	"github.com/dmitrymomot/sessioncore/core/health"
	"github.com/dmitrymomot/sessioncore/core/reporter"
	"github.com/dmitrymomot/sessioncore/pkg/clock"
)

// Option configures the App. Options return an error on invalid input.
type Option func(*App) error

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) error {
		if logger == nil {
			return fmt.Errorf("%w: logger", ErrNilDependency)
		}
		a.logger = logger
		return nil
	}
}

// WithMetricsProvider sets the resource metrics source used for admission control.
// Defaults to health.System.
func WithMetricsProvider(p health.Provider) Option {
	return func(a *App) error {
		if p == nil {
			return fmt.Errorf("%w: metrics provider", ErrNilDependency)
		}
		a.metrics = p
		return nil
	}
}

// WithReporter replaces the default error reporter, which publishes to the
// error_events queue.
func WithReporter(r reporter.Reporter) Option {
	return func(a *App) error {
		if r == nil {
			return fmt.Errorf("%w: reporter", ErrNilDependency)
		}
		a.reporter = r
		return nil
	}
}

// WithClock sets the time source for every component.
func WithClock(c clock.Clock) Option {
	return func(a *App) error {
		if c == nil {
			return fmt.Errorf("%w: clock", ErrNilDependency)
		}
		a.clock = c
		return nil
	}
}

// WithTransport relays rate limiter state to other replicas over t instead of
// the Redis transport built from REDIS_URL.
func WithTransport(t bridge.Transport) Option {
	return func(a *App) error {
		if t == nil {
			return fmt.Errorf("%w: transport", ErrNilDependency)
		}
		a.transport = t
		return nil
	}
}
