package registry_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessioncore/core/broker"
	"github.com/dmitrymomot/sessioncore/core/health"
	"github.com/dmitrymomot/sessioncore/core/registry"
	"github.com/dmitrymomot/sessioncore/pkg/clock"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// recordingBus keeps every published payload per queue.
type recordingBus struct {
	mu        sync.Mutex
	published map[string][]any
}

func newRecordingBus() *recordingBus {
	return &recordingBus{published: make(map[string][]any)}
}

func (b *recordingBus) Publish(_ context.Context, queue string, payload any) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[queue] = append(b.published[queue], payload)
	return true
}

func (b *recordingBus) Subscribe(string, broker.Handler) {}

func (b *recordingBus) lifecycle() []registry.LifecycleEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []registry.LifecycleEvent
	for _, p := range b.published[registry.LifecycleQueue] {
		out = append(out, p.(registry.LifecycleEvent))
	}
	return out
}

// fakeSession implements Sender, Pinger and Closer.
type fakeSession struct {
	mu      sync.Mutex
	sent    []any
	sendErr error
	pingErr error
	closed  bool
}

func (s *fakeSession) Send(_ context.Context, msg any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSession) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pingErr
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) messages() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]any(nil), s.sent...)
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fixture struct {
	reg   *registry.Registry
	bus   *recordingBus
	clock *clock.Mock
}

func newFixture(t *testing.T, cfg registry.Config, metrics health.Provider) fixture {
	t.Helper()
	if metrics == nil {
		metrics = health.Static{CPUPercent: 10, MemoryPercent: 10}
	}
	bus := newRecordingBus()
	clk := clock.NewMock(epoch)
	reg := registry.New(bus, cfg,
		registry.WithMetricsProvider(metrics),
		registry.WithClock(clk),
		registry.WithLifecycleEvents())
	require.NotNil(t, reg)
	return fixture{reg: reg, bus: bus, clock: clk}
}

// gatedSession blocks Send and Ping until the test releases them with a result.
type gatedSession struct {
	fakeSession
	entered chan struct{}
	release chan error
}

func newGatedSession() *gatedSession {
	return &gatedSession{entered: make(chan struct{}, 1), release: make(chan error)}
}

func (s *gatedSession) wait() error {
	s.entered <- struct{}{}
	return <-s.release
}

func (s *gatedSession) Send(context.Context, any) error { return s.wait() }

func (s *gatedSession) Ping(context.Context) error { return s.wait() }

// taggedSession is comparable by type but holds an uncomparable value.
type taggedSession struct {
	tag any
}
