package ws

import (
	"context"
	"fmt"
	"sync"

	"github.com/Wyydra/devmeet/internal/core/domain"
	"github.com/rs/zerolog/log"
)

// Hub tracks live websocket clients by connection id.
// implements port.Transport
type Hub struct {
	mu      sync.RWMutex
	clients map[domain.ConnectionID]*Client
	stopped bool
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[domain.ConnectionID]*Client),
	}
}

// Register adds c. It reports false after Stop, in which case the caller
// should close the connection.
func (h *Hub) Register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return false
	}
	h.clients[c.ID()] = c
	log.Debug().Str("conn_id", c.ID().String()).Int("count", len(h.clients)).Msg("Client registered")
	return true
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if cur, ok := h.clients[c.ID()]; ok && cur == c {
		delete(h.clients, c.ID())
	}
	h.mu.Unlock()

	if err := c.Close(); err != nil {
		log.Debug().Err(err).Str("conn_id", c.ID().String()).Msg("Error closing client connection")
	}
}

// Send encodes ev and queues it for the recipient's write pump.
func (h *Hub) Send(ctx context.Context, to domain.ConnectionID, ev domain.Outbound) error {
	h.mu.RLock()
	c, ok := h.clients[to]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: no client %s", domain.ErrTransportFailure, to)
	}

	msg, err := EncodeOutbound(ev)
	if err != nil {
		return err
	}
	return c.Enqueue(msg)
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop closes every client. Their read pumps then fail and run the usual
// disconnect path.
func (h *Hub) Stop() {
	h.mu.Lock()
	h.stopped = true
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	log.Info().Int("count", len(clients)).Msg("Stopping hub. Disconnecting all clients.")
	for _, c := range clients {
		if err := c.Close(); err != nil {
			log.Error().Err(err).Str("conn_id", c.ID().String()).Msg("Error closing client connection")
		}
	}
}
