package wsession

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmitrymomot/sessioncore/core/logger"
)

// Registry is the subset of the connection registry the handler drives.
type Registry interface {
	Connect(ctx context.Context, clientID string, session any) bool
	DisconnectSession(ctx context.Context, clientID string, session any) bool
	UpdateActivity(clientID string)
}

type config struct {
	upgrader     *websocket.Upgrader
	writeTimeout time.Duration
	readLimit    int64
	clientID     func(r *http.Request) string
	onMessage    MessageHandler
	logger       *slog.Logger
}

// Handler upgrades requests to websocket sessions and registers them with reg.
//
// A client refused by admission control receives a close frame with code 1013
// (try again later). Every inbound frame, pong included, counts as activity. The
// client is disconnected from the registry when the read loop ends.
func Handler(reg Registry, opts ...Option) http.HandlerFunc {
	cfg := &config{
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		writeTimeout: 10 * time.Second,
		readLimit:    1 << 20,
		clientID: func(r *http.Request) string {
			return r.URL.Query().Get("client_id")
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(cfg)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		clientID := cfg.clientID(r)
		if clientID == "" {
			http.Error(w, "missing client id", http.StatusBadRequest)
			return
		}

		conn, err := cfg.upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the HTTP error response
			cfg.logger.WarnContext(ctx, "websocket upgrade failed",
				logger.ClientID(clientID),
				logger.Error(err))
			return
		}

		session := NewSession(conn, cfg.writeTimeout)
		if !reg.Connect(ctx, clientID, session) {
			_ = session.closeWith(websocket.CloseTryAgainLater, "server at capacity")
			return
		}
		defer reg.DisconnectSession(context.WithoutCancel(ctx), clientID, session)

		conn.SetReadLimit(cfg.readLimit)
		conn.SetPongHandler(func(string) error {
			reg.UpdateActivity(clientID)
			return nil
		})

		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
					!errors.Is(err, net.ErrClosed) {
					cfg.logger.DebugContext(ctx, "websocket read ended",
						logger.ClientID(clientID),
						logger.Error(err))
				}
				return
			}

			reg.UpdateActivity(clientID)
			if cfg.onMessage != nil {
				cfg.onMessage(ctx, clientID, msgType, data)
			}
		}
	}
}
