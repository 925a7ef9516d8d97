package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/Wyydra/devmeet/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/devmeet/internal/core/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ServeWS upgrades the request and runs the connection until it closes.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	// The request context ends with the handler; deliveries to other peers
	// must not depend on it.
	ctx := context.Background()

	c := h.Relay.Connect(ctx)
	client := ws.NewClient(c.ID, conn, h.opts.WebSocket)
	l := log.With().Str("conn_id", c.ID.String()).Str("remote", r.RemoteAddr).Logger()

	if !h.Hub.Register(client) {
		l.Warn().Msg("Hub stopped, refusing client")
		client.Close()
		h.Relay.Disconnect(ctx, c.ID)
		return
	}

	defer func() {
		h.Relay.Disconnect(ctx, c.ID)
		h.Hub.Unregister(client)
	}()

	go client.WritePump()

	if err := h.Hub.Send(ctx, c.ID, domain.Connected(c.ID)); err != nil {
		l.Error().Err(err).Msg("Failed to greet client")
		return
	}

	var limiter *rate.Limiter
	if h.opts.MessagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(h.opts.MessagesPerSecond), h.opts.Burst)
	}

	err = client.ReadPump(func(raw []byte) {
		if limiter != nil && !limiter.Allow() {
			l.Warn().Msg("Rate limit exceeded, dropping frame")
			return
		}

		msg, err := ws.DecodeInbound(raw)
		if err != nil {
			l.Warn().Err(err).Msg("Ignoring malformed frame")
			return
		}

		if err := h.Relay.Handle(ctx, c.ID, msg); err != nil {
			if errors.Is(err, domain.ErrRecipientUnavailable) {
				l.Debug().Err(err).Str("event", msg.Kind.String()).Msg("Message not delivered")
				return
			}
			l.Warn().Err(err).Str("event", msg.Kind.String()).Msg("Failed to handle message")
		}
	})

	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
		l.Error().Err(err).Msg("Unexpected close error")
	}
}
