// Package dispatch fans room frames out to connections.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/registry"
)

// Members resolves the connections of a room.
type Members interface {
	Members(roomID string) []registry.Conn
	Member(roomID, connID string) (registry.Conn, bool)
	Conn(connID string) (registry.Conn, bool)
}

type Config struct {
	Members Members
	// OnDrop is called when a frame could not be queued for a connection.
	OnDrop func(f domain.Frame, c registry.Conn)
}

// Dispatcher delivers frames without blocking: frames are queued on each
// connection in call order, and a connection that cannot keep up is closed.
type Dispatcher struct {
	members Members
	onDrop  func(f domain.Frame, c registry.Conn)
}

func New(c Config) *Dispatcher {
	return &Dispatcher{
		members: c.Members,
		onDrop:  c.OnDrop,
	}
}

// Deliver queues frames in order. A frame with To set goes to that connection
// only, and only while it is still in the frame's room.
func (d *Dispatcher) Deliver(ctx context.Context, frames ...domain.Frame) {
	for _, f := range frames {
		if f.To != "" {
			if c, ok := d.members.Member(f.RoomID, f.To); ok {
				d.send(ctx, f, c)
			}
			continue
		}

		for _, c := range d.members.Members(f.RoomID) {
			d.send(ctx, f, c)
		}
	}
}

// Reply queues a frame for a connection regardless of the room it is in.
func (d *Dispatcher) Reply(ctx context.Context, connID string, f domain.Frame) {
	c, ok := d.members.Conn(connID)
	if !ok {
		return
	}

	d.send(ctx, f, c)
}

func (d *Dispatcher) send(ctx context.Context, f domain.Frame, c registry.Conn) {
	if c.Send(f) {
		return
	}

	slog.WarnContext(ctx, "dispatch: connection too slow, closing",
		"conn", c.ID(),
		"room", f.RoomID,
		"event", f.Message.Name(),
	)

	if d.onDrop != nil {
		d.onDrop(f, c)
	}
	c.Close()
}
