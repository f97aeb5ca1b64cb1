// Package ws adapts a gorilla websocket to a room connection.
package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/victornm/livequiz/internal/domain"
)

const (
	defaultSendBuffer = 64
	defaultWriteWait  = 10 * time.Second
	defaultPongWait   = 60 * time.Second
	defaultReadLimit  = 64 << 10
)

// Encoder turns a frame into a websocket text message.
type Encoder func(f domain.Frame) ([]byte, error)

type Config struct {
	ID         string
	SendBuffer int
	WriteWait  time.Duration
	PongWait   time.Duration
	ReadLimit  int64
	Encode     Encoder
}

// Conn is one websocket connection. Frames are queued on a bounded buffer
// and written by WriteLoop, so Send never blocks.
type Conn struct {
	id     string
	ws     *websocket.Conn
	encode Encoder

	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
	readLimit  int64

	send      chan domain.Frame
	done      chan struct{}
	closeOnce sync.Once
}

func New(ws *websocket.Conn, c Config) *Conn {
	if c.SendBuffer <= 0 {
		c.SendBuffer = defaultSendBuffer
	}
	if c.WriteWait <= 0 {
		c.WriteWait = defaultWriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = defaultPongWait
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = defaultReadLimit
	}

	return &Conn{
		id:         c.ID,
		ws:         ws,
		encode:     c.Encode,
		writeWait:  c.WriteWait,
		pongWait:   c.PongWait,
		pingPeriod: c.PongWait * 9 / 10,
		readLimit:  c.ReadLimit,
		send:       make(chan domain.Frame, c.SendBuffer),
		done:       make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

// Send queues a frame. It returns false if the connection is closed or its buffer is full.
func (c *Conn) Send(f domain.Frame) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- f:
		return true
	default:
		return false
	}
}

// Close stops both loops. It is safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// ReadLoop hands every text message to handle until the peer goes away or the
// connection is closed.
func (c *Conn) ReadLoop(ctx context.Context, handle func(ctx context.Context, msg []byte)) {
	defer c.Close()

	c.ws.SetReadLimit(c.readLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		typ, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.WarnContext(ctx, "ws: read failed", "conn", c.id, "error", err)
			}
			return
		}

		if typ != websocket.TextMessage {
			continue
		}

		handle(ctx, msg)
	}
}

// WriteLoop writes queued frames and keeps the peer alive with pings.
func (c *Conn) WriteLoop(ctx context.Context) {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.ws.Close()
	}()

	for {
		select {
		case f := <-c.send:
			b, err := c.encode(f)
			if err != nil {
				slog.ErrorContext(ctx, "ws: encode frame failed", "conn", c.id, "event", f.Message.Name(), "error", err)
				continue
			}

			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.writeWait))
			return
		}
	}
}
