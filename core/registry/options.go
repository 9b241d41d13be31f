package registry

import (
	"log/slog"

	"github.com/dmitrymomot/sessioncore/core/health"
	"github.com/dmitrymomot/sessioncore/pkg/clock"
)

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger. Defaults to a discard logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetricsProvider sets the source of resource readings used for admission.
// Defaults to health.System.
func WithMetricsProvider(p health.Provider) Option {
	return func(r *Registry) {
		if p != nil {
			r.metrics = p
		}
	}
}

// WithClock sets the clock used for activity timestamps and idle eviction.
func WithClock(c clock.Clock) Option {
	return func(r *Registry) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithLifecycleEvents enables publishing LifecycleEvent values to LifecycleQueue.
// Something must consume that queue, otherwise it grows without bound.
func WithLifecycleEvents() Option {
	return func(r *Registry) {
		r.lifecycle = true
	}
}
