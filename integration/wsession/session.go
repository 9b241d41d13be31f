package wsession

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Session adapts a websocket connection to the registry's Sender, Pinger and
// Closer contracts. Writes are serialized; gorilla allows a single concurrent writer.
type Session struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewSession wraps conn. A non-positive writeTimeout defaults to 10s.
func NewSession(conn *websocket.Conn, writeTimeout time.Duration) *Session {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Session{conn: conn, writeTimeout: writeTimeout}
}

// Conn returns the underlying connection.
func (s *Session) Conn() *websocket.Conn {
	return s.conn
}

// Send writes msg as a JSON text frame.
func (s *Session) Send(ctx context.Context, msg any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.SetWriteDeadline(s.deadline(ctx)); err != nil {
		return err
	}
	return s.conn.WriteJSON(msg)
}

// Ping sends a ping control frame. Pongs are handled by the read loop.
func (s *Session) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.conn.WriteControl(websocket.PingMessage, nil, s.deadline(ctx))
}

// Close sends a normal closure frame and closes the connection. Safe to call more than once.
func (s *Session) Close() error {
	return s.closeWith(websocket.CloseNormalClosure, "")
}

func (s *Session) closeWith(code int, text string) error {
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(code, text)
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.writeTimeout))
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func (s *Session) deadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(s.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		return d
	}
	return deadline
}
