package reporter

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/sessioncore/core/logger"
)

// ErrorEventsQueue is the queue the broker reporter publishes to.
const ErrorEventsQueue = "error_events"

// Reporter receives errors the core could not handle locally.
// Implementations must not block for long and must not panic.
type Reporter interface {
	Report(ctx context.Context, err error, fields map[string]any)
}

// Func adapts a plain function to Reporter.
type Func func(ctx context.Context, err error, fields map[string]any)

// Report calls f.
func (f Func) Report(ctx context.Context, err error, fields map[string]any) {
	f(ctx, err, fields)
}

type nop struct{}

func (nop) Report(context.Context, error, map[string]any) {}

// Nop returns a Reporter that discards everything.
func Nop() Reporter {
	return nop{}
}

// Log writes reports as error-level records.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a log reporter. A nil logger falls back to slog.Default().
func NewLog(log *slog.Logger) *Log {
	if log == nil {
		log = slog.Default()
	}
	return &Log{logger: log}
}

// Report logs err with fields flattened into a "context" group.
func (r *Log) Report(ctx context.Context, err error, fields map[string]any) {
	attrs := make([]slog.Attr, 0, len(fields))
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	r.logger.LogAttrs(ctx, slog.LevelError, "error reported",
		logger.Error(err),
		logger.Group("context", attrs...))
}

// Publisher is the subset of the broker used by Broker reporters.
type Publisher interface {
	Publish(ctx context.Context, queue string, payload any) bool
}

// ErrorEvent is the payload published to ErrorEventsQueue.
type ErrorEvent struct {
	Error     string         `json:"error"`
	Context   map[string]any `json:"context,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Broker publishes reports to ErrorEventsQueue so any subscriber can forward
// them (metrics, alerting). Reports about the error queue itself go to the
// fallback logger to avoid a feedback loop.
type Broker struct {
	bus      Publisher
	fallback *slog.Logger
	now      func() time.Time
}

// BrokerOption configures a Broker reporter.
type BrokerOption func(*Broker)

// WithFallbackLogger sets the logger used when publishing is not possible.
func WithFallbackLogger(log *slog.Logger) BrokerOption {
	return func(b *Broker) {
		if log != nil {
			b.fallback = log
		}
	}
}

// WithNow overrides the timestamp source.
func WithNow(now func() time.Time) BrokerOption {
	return func(b *Broker) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBroker creates a reporter publishing to bus.
func NewBroker(bus Publisher, opts ...BrokerOption) *Broker {
	b := &Broker{
		bus:      bus,
		fallback: logger.Discard(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Report publishes an ErrorEvent. Publish failures are logged, never returned.
func (b *Broker) Report(ctx context.Context, err error, fields map[string]any) {
	if q, ok := fields["queue"].(string); ok && q == ErrorEventsQueue {
		b.fallback.ErrorContext(ctx, "error while handling error event",
			logger.Error(err), logger.Queue(q))
		return
	}

	evt := ErrorEvent{
		Context:   fields,
		Timestamp: b.now(),
	}
	if err != nil {
		evt.Error = err.Error()
	}

	if !b.bus.Publish(ctx, ErrorEventsQueue, evt) {
		b.fallback.ErrorContext(ctx, "failed to publish error event",
			logger.Error(err), logger.Queue(ErrorEventsQueue))
	}
}

type multi []Reporter

func (m multi) Report(ctx context.Context, err error, fields map[string]any) {
	for _, r := range m {
		r.Report(ctx, err, fields)
	}
}

// Multi fans a report out to every non-nil reporter in order.
func Multi(reporters ...Reporter) Reporter {
	out := make(multi, 0, len(reporters))
	for _, r := range reporters {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}
