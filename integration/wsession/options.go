package wsession

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Option configures the upgrade handler.
type Option func(*config)

// MessageHandler receives every data frame read from a client.
type MessageHandler func(ctx context.Context, clientID string, messageType int, data []byte)

// WithReadBuffer sets the upgrader read buffer size.
func WithReadBuffer(size int) Option {
	return func(c *config) {
		c.upgrader.ReadBufferSize = size
	}
}

// WithWriteBuffer sets the upgrader write buffer size.
func WithWriteBuffer(size int) Option {
	return func(c *config) {
		c.upgrader.WriteBufferSize = size
	}
}

// WithHandshakeTimeout bounds the upgrade handshake.
func WithHandshakeTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.upgrader.HandshakeTimeout = timeout
	}
}

// WithOriginCheck sets the origin policy.
func WithOriginCheck(fn func(r *http.Request) bool) Option {
	return func(c *config) {
		c.upgrader.CheckOrigin = fn
	}
}

// WithAllowAnyOrigin disables the same-origin check.
func WithAllowAnyOrigin() Option {
	return func(c *config) {
		c.upgrader.CheckOrigin = func(r *http.Request) bool {
			return true
		}
	}
}

// WithWriteTimeout bounds every write to a session.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

// WithReadLimit caps the size of a single inbound message.
func WithReadLimit(n int64) Option {
	return func(c *config) {
		if n > 0 {
			c.readLimit = n
		}
	}
}

// WithClientID sets how the client id is derived from the upgrade request.
// Defaults to the client_id query parameter.
func WithClientID(fn func(r *http.Request) string) Option {
	return func(c *config) {
		if fn != nil {
			c.clientID = fn
		}
	}
}

// WithMessageHandler sets the callback for inbound data frames.
func WithMessageHandler(fn MessageHandler) Option {
	return func(c *config) {
		c.onMessage = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}
