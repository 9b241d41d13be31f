package coordinator_test

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessioncore/app/coordinator"
)

// memTransport is a pub/sub transport shared by apps in the same test.
type memTransport struct {
	mu   sync.Mutex
	subs map[*[]string]func(string, []byte)
}

func (m *memTransport) Publish(_ context.Context, channel string, data []byte) error {
	m.mu.Lock()
	var fns []func(string, []byte)
	for chans, fn := range m.subs {
		if slices.Contains(*chans, channel) {
			fns = append(fns, fn)
		}
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(channel, data)
	}
	return nil
}

func (m *memTransport) Receive(ctx context.Context, channels []string, fn func(string, []byte)) error {
	key := &channels
	m.mu.Lock()
	m.subs[key] = fn
	m.mu.Unlock()

	<-ctx.Done()

	m.mu.Lock()
	delete(m.subs, key)
	m.mu.Unlock()
	return ctx.Err()
}

func (m *memTransport) Ping(context.Context) error { return nil }

func (m *memTransport) receivers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func TestRelay(t *testing.T) {
	t.Parallel()

	tr := &memTransport{subs: make(map[*[]string]func(string, []byte))}

	first := newApp(t, testConfig(), coordinator.WithTransport(tr))
	second := newApp(t, testConfig(), coordinator.WithTransport(tr))
	startApp(t, first)
	startApp(t, second)

	assert.True(t, first.Supervisor().Running(coordinator.TaskRelay))
	require.Eventually(t, func() bool { return tr.receivers() == 2 }, time.Second, 5*time.Millisecond)

	ctx := context.Background()
	for range 5 {
		require.True(t, first.Limiter().Allow(ctx, "alice"))
	}

	require.Eventually(t, func() bool {
		st, ok := second.Limiter().Status("alice")
		return ok && st.Remaining == 95
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRelay_Disabled(t *testing.T) {
	t.Parallel()

	app := newApp(t, testConfig())
	assert.Nil(t, app.Relay())
	assert.NoError(t, app.Close())
}
