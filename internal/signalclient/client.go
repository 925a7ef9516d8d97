// Package signalclient is a small Go client for the relay's websocket
// protocol. The probe command and the end-to-end tests drive it.
package signalclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/devmeet/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/devmeet/internal/core/domain"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var ErrClosed = errors.New("signalclient: connection closed")

// Client holds one relay connection.
type Client struct {
	id   domain.ConnectionID
	conn *websocket.Conn

	incoming  chan ws.Frame
	outgoing  chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to url and waits for the relay to announce the connection id.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to signaling server: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)

	var hello ws.Frame
	if err := conn.ReadJSON(&hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read greeting: %w", err)
	}
	var id domain.ConnectionID
	if hello.Event != domain.EventConnected || json.Unmarshal(hello.Data, &id) != nil || id == "" {
		conn.Close()
		return nil, fmt.Errorf("unexpected greeting %q", hello.Event)
	}

	c := &Client{
		id:       id,
		conn:     conn,
		incoming: make(chan ws.Frame, 16),
		outgoing: make(chan []byte, 16),
		done:     make(chan struct{}),
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump()
	go c.writePump()
	return c, nil
}

// ID is the connection id assigned by the relay.
func (c *Client) ID() domain.ConnectionID {
	return c.id
}

// Incoming yields every frame from the relay. It is closed when the
// connection ends.
func (c *Client) Incoming() <-chan ws.Frame {
	return c.incoming
}

// Next waits for the next frame.
func (c *Client) Next(ctx context.Context) (ws.Frame, error) {
	select {
	case f, ok := <-c.incoming:
		if !ok {
			return ws.Frame{}, ErrClosed
		}
		return f, nil
	case <-ctx.Done():
		return ws.Frame{}, ctx.Err()
	}
}

func (c *Client) Join(room string) error {
	return c.send(domain.EventJoinRoom, room)
}

// Signal sends payload to peer. The relay passes it through untouched.
func (c *Client) Signal(to domain.ConnectionID, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode signal: %w", err)
	}
	return c.send(domain.EventSignal, domain.OutgoingSignal{To: to, Signal: raw})
}

func (c *Client) send(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	msg, err := json.Marshal(ws.Frame{Event: event, Data: raw})
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Close sends a close frame and tears down the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = c.conn.Close()
	})
	return err
}

func (c *Client) readPump() {
	defer func() {
		close(c.incoming)
		c.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		var f ws.Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			return
		}
		select {
		case c.incoming <- f:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.outgoing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			return
		}
	}
}
