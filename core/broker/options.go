package broker

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/sessioncore/core/reporter"
	"github.com/dmitrymomot/sessioncore/pkg/clock"
)

// Option configures a Broker.
type Option func(*Broker)

// WithLogger sets the logger. Defaults to a discard logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithReporter sets the collaborator notified when a message is dropped.
func WithReporter(r reporter.Reporter) Option {
	return func(b *Broker) {
		if r != nil {
			b.reporter = r
		}
	}
}

// WithClock sets the clock used for message timestamps and pass bookkeeping.
func WithClock(c clock.Clock) Option {
	return func(b *Broker) {
		if c != nil {
			b.clock = c
		}
	}
}

// WithDefaultCapacity sets the capacity of queues created implicitly by Publish.
func WithDefaultCapacity(n int) Option {
	return func(b *Broker) {
		if n >= 0 {
			b.defaultCapacity = n
		}
	}
}

// WithPollInterval sets how often the dispatch loop runs a pass without being woken.
func WithPollInterval(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.pollInterval = d
		}
	}
}

// WithMaxRetries sets how many redeliveries a failing message gets before it is dropped.
// Zero is valid and disables redelivery.
func WithMaxRetries(n int) Option {
	return func(b *Broker) {
		if n >= 0 {
			b.maxRetries = n
		}
	}
}

// WithShutdownTimeout bounds how long Stop waits for the in-flight handler.
func WithShutdownTimeout(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.shutdownTimeout = d
		}
	}
}

// WithHandlerTimeout bounds each handler invocation. An expired deadline counts as a failed delivery.
func WithHandlerTimeout(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.handlerTimeout = d
		}
	}
}

// WithStaleThreshold sets how long the loop may go without completing a pass
// before Healthcheck reports it as stalled.
func WithStaleThreshold(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.staleThreshold = d
		}
	}
}
