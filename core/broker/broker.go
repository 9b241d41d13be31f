package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/sessioncore/core/logger"
	"github.com/dmitrymomot/sessioncore/core/reporter"
	"github.com/dmitrymomot/sessioncore/pkg/clock"
)

// Broker is an in-process multi-queue publish/subscribe bus with a single dispatch loop.
type Broker struct {
	mu       sync.RWMutex
	queues   map[string]*queue
	order    []string
	handlers map[string]Handler

	defaultCapacity int
	maxRetries      int
	pollInterval    time.Duration
	shutdownTimeout time.Duration
	handlerTimeout  time.Duration
	staleThreshold  time.Duration

	logger   *slog.Logger
	reporter reporter.Reporter
	clock    clock.Clock

	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}

	published     atomic.Int64
	publishFailed atomic.Int64
	delivered     atomic.Int64
	acked         atomic.Int64
	retried       atomic.Int64
	rejected      atomic.Int64
	dropped       atomic.Int64
	inFlight      atomic.Int32
	lastPassAt    atomic.Int64
}

// Stats provides observability metrics for monitoring and debugging.
type Stats struct {
	Published     int64 // Messages accepted by Publish
	PublishFailed int64 // Publish calls refused (full queue or empty name)
	Delivered     int64 // Handler invocations
	Acked         int64
	Retried       int64 // Messages re-enqueued after a failure
	Rejected      int64 // Messages rejected as permanent failures
	Dropped       int64 // Messages dropped and reported, including rejected ones
	InFlight      int32
	Queues        int
	Pending       int // Messages waiting across all queues
	IsRunning     bool
	LastPassAt    time.Time
}

// New creates a broker. No goroutine is started until Start is called.
func New(opts ...Option) *Broker {
	cfg := DefaultConfig()
	b := &Broker{
		queues:          make(map[string]*queue),
		handlers:        make(map[string]Handler),
		defaultCapacity: cfg.DefaultCapacity,
		maxRetries:      cfg.MaxRetries,
		pollInterval:    cfg.PollInterval,
		shutdownTimeout: cfg.ShutdownTimeout,
		staleThreshold:  cfg.StaleThreshold,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		reporter:        reporter.Nop(),
		clock:           clock.Real{},
		wake:            make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// NewFromConfig creates a broker from configuration. Additional options override config values.
func NewFromConfig(cfg Config, opts ...Option) *Broker {
	allOpts := append([]Option{
		WithDefaultCapacity(cfg.DefaultCapacity),
		WithPollInterval(cfg.PollInterval),
		WithMaxRetries(cfg.MaxRetries),
		WithShutdownTimeout(cfg.ShutdownTimeout),
		WithHandlerTimeout(cfg.HandlerTimeout),
		WithStaleThreshold(cfg.StaleThreshold),
	}, opts...)

	return New(allOpts...)
}

// CreateQueue creates a queue with the given capacity if it does not exist yet.
// Capacity 0 (or negative) means unbounded. Creating an existing queue is a no-op.
func (b *Broker) CreateQueue(name string, capacity int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ensureQueueLocked(name, capacity)
}

func (b *Broker) ensureQueueLocked(name string, capacity int) *queue {
	if q, ok := b.queues[name]; ok {
		return q
	}
	q := newQueue(name, capacity)
	b.queues[name] = q
	b.order = append(b.order, name)
	return q
}

// Publish enqueues payload on the named queue, creating the queue with the default
// capacity if needed. It never blocks and returns false when the queue is full or the
// name is empty.
func (b *Broker) Publish(ctx context.Context, queueName string, payload any) bool {
	if queueName == "" {
		b.publishFailed.Add(1)
		b.logger.WarnContext(ctx, "publish refused: empty queue name")
		return false
	}

	msg := newMessage(queueName, payload, b.maxRetries, b.clock.Now())

	b.mu.Lock()
	ok := b.ensureQueueLocked(queueName, b.defaultCapacity).push(msg)
	b.mu.Unlock()

	if !ok {
		b.publishFailed.Add(1)
		b.logger.WarnContext(ctx, "publish refused: queue is full",
			logger.Queue(queueName),
			logger.MessageID(msg.ID))
		return false
	}

	b.published.Add(1)
	b.logger.DebugContext(ctx, "message published",
		logger.Queue(queueName),
		logger.MessageID(msg.ID))
	b.notify()
	return true
}

// Subscribe registers handler for the queue, replacing any previous one.
// A nil handler is ignored.
func (b *Broker) Subscribe(queueName string, handler Handler) {
	if handler == nil {
		return
	}

	b.mu.Lock()
	_, replaced := b.handlers[queueName]
	b.handlers[queueName] = handler
	b.mu.Unlock()

	b.logger.Debug("handler subscribed",
		logger.Queue(queueName),
		slog.Bool("replaced", replaced))
	b.notify()
}

// Unsubscribe removes the queue handler. Messages keep accumulating until a new one is registered.
func (b *Broker) Unsubscribe(queueName string) {
	b.mu.Lock()
	delete(b.handlers, queueName)
	b.mu.Unlock()
}

// notify wakes the dispatch loop without blocking.
func (b *Broker) notify() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Start runs the dispatch loop. This is a blocking operation that runs until the
// context is cancelled or Stop is called. Use Run() for errgroup pattern or call
// this in a goroutine.
func (b *Broker) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.cancel != nil {
		b.mu.Unlock()
		return ErrBrokerAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	b.cancel = cancel
	b.done = done
	b.mu.Unlock()

	defer func() {
		cancel()
		b.mu.Lock()
		b.cancel = nil
		b.done = nil
		b.mu.Unlock()
		close(done)
	}()

	b.logger.InfoContext(ctx, "broker started",
		slog.Duration("poll_interval", b.pollInterval),
		slog.Int("max_retries", b.maxRetries))

	b.lastPassAt.Store(b.clock.Now().UnixNano())

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		// Keep passing while there is work, then suspend until the next tick or wake-up
		for ctx.Err() == nil && b.dispatchPass(ctx) > 0 {
		}

		select {
		case <-ctx.Done():
			b.logger.Info("broker stopping")
			return ctx.Err()
		case <-ticker.C:
		case <-b.wake:
		}
	}
}

// Stop cancels the dispatch loop and waits for the in-flight handler to return,
// bounded by the shutdown timeout.
func (b *Broker) Stop() error {
	b.mu.Lock()
	if b.cancel == nil {
		b.mu.Unlock()
		return ErrBrokerNotStarted
	}
	cancel, done := b.cancel, b.done
	b.mu.Unlock()

	cancel()

	timer := time.NewTimer(b.shutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
		b.logger.Info("broker stopped cleanly")
		return nil
	case <-timer.C:
		b.logger.Warn("broker shutdown timeout exceeded - in-flight handler abandoned",
			slog.Duration("timeout", b.shutdownTimeout))
		return fmt.Errorf("%w after %s", ErrShutdownTimeout, b.shutdownTimeout)
	}
}

// Run provides errgroup compatibility for coordinated lifecycle management.
// Returns a function that starts the broker, monitors context cancellation,
// and performs graceful shutdown when the context is cancelled.
func (b *Broker) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- b.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = b.Stop()
			<-errCh
			return nil
		case err := <-errCh:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

// dispatchPass walks queues in creation order and delivers at most one message
// from each queue that has a handler. Returns the number of deliveries.
func (b *Broker) dispatchPass(ctx context.Context) int {
	b.mu.RLock()
	names := slices.Clone(b.order)
	b.mu.RUnlock()

	delivered := 0
	for _, name := range names {
		if ctx.Err() != nil {
			break
		}

		msg, handler := b.next(name)
		if msg == nil {
			continue
		}

		delivered++
		b.deliver(ctx, handler, msg)
	}

	b.lastPassAt.Store(b.clock.Now().UnixNano())
	return delivered
}

// next dequeues the head of the named queue if a handler is registered for it.
func (b *Broker) next(name string) (*Message, Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	handler, ok := b.handlers[name]
	if !ok {
		return nil, nil
	}
	q, ok := b.queues[name]
	if !ok {
		return nil, nil
	}
	msg := q.pop()
	if msg == nil {
		return nil, nil
	}
	return msg, handler
}

func (b *Broker) deliver(ctx context.Context, handler Handler, msg *Message) {
	b.inFlight.Add(1)
	defer b.inFlight.Add(-1)
	b.delivered.Add(1)

	start := time.Now()
	res := b.invoke(ctx, handler, msg)

	switch res.Outcome {
	case OutcomeAck:
		b.acked.Add(1)
		b.logger.DebugContext(ctx, "message acknowledged",
			logger.Queue(msg.Queue),
			logger.MessageID(msg.ID),
			logger.Elapsed(start))
	case OutcomeReject:
		b.rejected.Add(1)
		b.drop(ctx, msg, res.Err, "rejected")
	default:
		b.requeue(ctx, msg, res.Err)
	}
}

// invoke runs the handler with panic recovery and the optional per-message timeout.
func (b *Broker) invoke(ctx context.Context, handler Handler, msg *Message) (res Result) {
	if b.handlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.handlerTimeout)
		defer cancel()
	}

	// A panicking handler is a transient failure, the loop keeps running
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorContext(ctx, "handler panicked",
				logger.Queue(msg.Queue),
				logger.MessageID(msg.ID),
				slog.Any("panic", r))
			res = Retry(fmt.Errorf("%w: %v", ErrHandlerPanic, r))
		}
	}()

	res = handler.Handle(ctx, msg.Payload)
	if res.Outcome == OutcomeAck {
		// An ack that arrives after the deadline or a stop is not trusted
		if err := ctx.Err(); err != nil {
			return Retry(fmt.Errorf("%w: %w", ErrHandlerInterrupted, err))
		}
	}
	if res.Outcome == OutcomeRetry && res.Err == nil {
		res.Err = ErrRetryRequested
	}
	return res
}

// requeue puts a failed message back at the tail, or drops it once retries are exhausted.
func (b *Broker) requeue(ctx context.Context, msg *Message, cause error) {
	if msg.RetryCount >= msg.MaxRetries {
		b.drop(ctx, msg, cause, "max retries exceeded")
		return
	}

	msg.RetryCount++

	b.mu.Lock()
	ok := b.ensureQueueLocked(msg.Queue, b.defaultCapacity).push(msg)
	b.mu.Unlock()

	if !ok {
		b.drop(ctx, msg, errors.Join(cause, ErrQueueFull), "queue full on retry")
		return
	}

	b.retried.Add(1)
	b.logger.WarnContext(ctx, "message delivery failed, requeued",
		logger.Queue(msg.Queue),
		logger.MessageID(msg.ID),
		logger.RetryCount(msg.RetryCount),
		slog.Int("max_retries", msg.MaxRetries),
		logger.Error(cause))
}

// drop discards msg and reports it exactly once.
func (b *Broker) drop(ctx context.Context, msg *Message, cause error, reason string) {
	b.dropped.Add(1)

	b.logger.ErrorContext(ctx, "message dropped",
		logger.Queue(msg.Queue),
		logger.MessageID(msg.ID),
		logger.RetryCount(msg.RetryCount),
		slog.String("reason", reason),
		logger.Error(cause))

	b.reporter.Report(ctx, cause, map[string]any{
		"queue":       msg.Queue,
		"message_id":  msg.ID,
		"retry_count": msg.RetryCount,
		"max_retries": msg.MaxRetries,
		"reason":      reason,
	})
}

// Len returns the number of pending messages in the queue, 0 if it does not exist.
func (b *Broker) Len(queueName string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if q, ok := b.queues[queueName]; ok {
		return q.len()
	}
	return 0
}

// Pending returns a copy of the messages waiting in the queue, head first.
func (b *Broker) Pending(queueName string) []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if q, ok := b.queues[queueName]; ok {
		return q.snapshot()
	}
	return nil
}

// Queues returns queue names in creation order.
func (b *Broker) Queues() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.order)
}

// HasHandler reports whether a handler is registered for the queue.
func (b *Broker) HasHandler(queueName string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.handlers[queueName]
	return ok
}

// Stats returns current broker statistics.
// This method is thread-safe and can be called at any time.
func (b *Broker) Stats() Stats {
	b.mu.RLock()
	isRunning := b.cancel != nil
	queues := len(b.queues)
	pending := 0
	for _, q := range b.queues {
		pending += q.len()
	}
	b.mu.RUnlock()

	var lastPass time.Time
	if ns := b.lastPassAt.Load(); ns > 0 {
		lastPass = time.Unix(0, ns)
	}

	return Stats{
		Published:     b.published.Load(),
		PublishFailed: b.publishFailed.Load(),
		Delivered:     b.delivered.Load(),
		Acked:         b.acked.Load(),
		Retried:       b.retried.Load(),
		Rejected:      b.rejected.Load(),
		Dropped:       b.dropped.Load(),
		InFlight:      b.inFlight.Load(),
		Queues:        queues,
		Pending:       pending,
		IsRunning:     isRunning,
		LastPassAt:    lastPass,
	}
}

// Healthcheck validates that the dispatch loop is running and completing passes.
//
// Use with the readiness combinator:
//
//	ready := health.Readiness(log, b.Healthcheck)
//
// The returned error can be checked using errors.Is:
//
//	if errors.Is(err, broker.ErrBrokerNotRunning) { ... }
//	if errors.Is(err, broker.ErrBrokerStalled) { ... }
func (b *Broker) Healthcheck(ctx context.Context) error {
	stats := b.Stats()

	if !stats.IsRunning {
		return errors.Join(ErrHealthcheckFailed, ErrBrokerNotRunning)
	}

	if idle := b.clock.Now().Sub(stats.LastPassAt); idle > b.staleThreshold {
		return errors.Join(ErrHealthcheckFailed, ErrBrokerStalled,
			fmt.Errorf("no pass completed for %s", idle.Round(time.Millisecond)))
	}

	return nil
}
