package coordinator

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrymomot/sessioncore/core/broker"
	"github.com/dmitrymomot/sessioncore/core/logger"
	"github.com/dmitrymomot/sessioncore/integration/wsession"
)

// InboundMessage is published to the inbound queue for every accepted client frame.
type InboundMessage struct {
	ClientID    string    `json:"client_id"`
	MessageType int       `json:"message_type"`
	Data        []byte    `json:"data"`
	ReceivedAt  time.Time `json:"received_at"`
}

// RateLimitedNotice is sent to a client whose frame was refused by the limiter.
type RateLimitedNotice struct {
	Type       string    `json:"type"`
	RetryAfter float64   `json:"retry_after_seconds"`
	ResetAt    time.Time `json:"reset_at"`
}

// HandleInbound subscribes h to the inbound queue. Until a handler is set,
// accepted frames are discarded rather than queued.
func (a *App) HandleInbound(h broker.Handler) {
	a.broker.Subscribe(a.config.InboundQueue, h)
}

// Handler returns the HTTP handler serving the websocket endpoint at the
// configured path and a readiness probe at /healthz.
func (a *App) Handler() http.Handler {
	path := a.config.Server.Path
	if path == "" {
		path = "/ws"
	}

	mux := http.NewServeMux()
	mux.Handle(path, wsession.Handler(a.registry,
		wsession.WithLogger(a.logger.With(logger.Component("wsession"))),
		wsession.WithMessageHandler(a.handleInbound),
	))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.Healthcheck(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

// handleInbound applies the per-client rate limit and forwards the frame to
// the inbound queue.
func (a *App) handleInbound(ctx context.Context, clientID string, messageType int, data []byte) {
	if state := a.limiter.Check(ctx, clientID); state != nil {
		now := a.clock.Now()
		notice := RateLimitedNotice{
			Type:       "rate_limited",
			RetryAfter: state.RetryAfter(now).Seconds(),
			ResetAt:    state.ResetAt,
		}
		if err := a.registry.SendTo(ctx, clientID, notice); err != nil {
			a.logger.DebugContext(ctx, "rate limit notice not delivered",
				logger.ClientID(clientID),
				logger.Error(err))
		}
		return
	}

	if !a.broker.HasHandler(a.config.InboundQueue) {
		a.logger.DebugContext(ctx, "inbound frame discarded: no handler",
			logger.ClientID(clientID),
			logger.Queue(a.config.InboundQueue))
		return
	}

	a.broker.Publish(ctx, a.config.InboundQueue, InboundMessage{
		ClientID:    clientID,
		MessageType: messageType,
		Data:        data,
		ReceivedAt:  a.clock.Now(),
	})
}
