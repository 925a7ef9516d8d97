package ws

import (
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/devmeet/internal/core/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Options tune the per-connection pumps.
type Options struct {
	// Maximum inbound message size. SDP offers with many candidates can get large.
	ReadLimit int64
	// Time allowed to write one message.
	WriteWait time.Duration
	// Time allowed to read the next pong. Pings go out at 9/10 of this.
	PongWait time.Duration
	// Outbound messages queued per connection before sends start failing.
	SendBuffer int
}

func DefaultOptions() Options {
	return Options{
		ReadLimit:  64 * 1024,
		WriteWait:  10 * time.Second,
		PongWait:   60 * time.Second,
		SendBuffer: 256,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ReadLimit <= 0 {
		o.ReadLimit = d.ReadLimit
	}
	if o.WriteWait <= 0 {
		o.WriteWait = d.WriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = d.PongWait
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	return o
}

func (o Options) pingPeriod() time.Duration {
	return (o.PongWait * 9) / 10
}

// Client is one websocket connection. Reads happen on the caller's goroutine
// in ReadPump; all writes go through the send queue drained by WritePump.
type Client struct {
	id   domain.ConnectionID
	conn *websocket.Conn
	opts Options

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(id domain.ConnectionID, conn *websocket.Conn, opts Options) *Client {
	opts = opts.withDefaults()
	return &Client{
		id:   id,
		conn: conn,
		opts: opts,
		send: make(chan []byte, opts.SendBuffer),
		done: make(chan struct{}),
	}
}

func (c *Client) ID() domain.ConnectionID {
	return c.id
}

// Enqueue queues msg without blocking. It fails once the client is closed or
// when the queue is full.
func (c *Client) Enqueue(msg []byte) error {
	select {
	case <-c.done:
		return fmt.Errorf("%w: connection %s closed", domain.ErrTransportFailure, c.id)
	default:
	}

	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return fmt.Errorf("%w: connection %s closed", domain.ErrTransportFailure, c.id)
	default:
		return fmt.Errorf("%w: send queue of %s is full", domain.ErrTransportFailure, c.id)
	}
}

func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.opts.WriteWait))
		err = c.conn.Close()
	})
	return err
}

// ReadPump reads text frames until the connection fails and hands each one to
// onMessage. It returns the error that ended the connection.
func (c *Client) ReadPump(onMessage func([]byte)) error {
	c.conn.SetReadLimit(c.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		kind, msg, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		if kind != websocket.TextMessage {
			log.Debug().Str("conn_id", c.id.String()).Int("kind", kind).Msg("Ignoring non-text frame")
			continue
		}
		onMessage(msg)
	}
}

// WritePump drains the send queue and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.opts.pingPeriod())
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debug().Err(err).Str("conn_id", c.id.String()).Msg("Write failed")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
