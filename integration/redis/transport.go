package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Transport carries relayed broker messages over Redis pub/sub.
type Transport struct {
	client redis.UniversalClient
}

// NewTransport wraps a connected client.
func NewTransport(client redis.UniversalClient) *Transport {
	return &Transport{client: client}
}

// Publish sends data to every process subscribed to channel.
func (t *Transport) Publish(ctx context.Context, channel string, data []byte) error {
	return t.client.Publish(ctx, channel, data).Err()
}

// Receive subscribes to channels and calls fn for every message until ctx is
// cancelled. Returns ctx.Err() on cancellation.
func (t *Transport) Receive(ctx context.Context, channels []string, fn func(channel string, data []byte)) error {
	ps := t.client.Subscribe(ctx, channels...)
	defer ps.Close()

	// Wait for the subscription confirmation so messages published after
	// Receive starts are not missed.
	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return ErrSubscriptionClosed
			}
			fn(msg.Channel, []byte(msg.Payload))
		}
	}
}

// Ping checks connectivity.
func (t *Transport) Ping(ctx context.Context) error {
	return Healthcheck(t.client)(ctx)
}

// Close closes the underlying client.
func (t *Transport) Close() error {
	return t.client.Close()
}
