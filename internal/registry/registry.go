// Package registry tracks live connections and the room each one has joined.
package registry

import (
	"context"
	"sync"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/event"
)

// Conn is one duplex connection. Send must not block: it returns false when the
// frame could not be queued.
type Conn interface {
	ID() string
	Send(f domain.Frame) bool
	Close()
}

type Config struct {
	EventBus *event.Bus
}

type Registry struct {
	eb *event.Bus

	mu    sync.RWMutex
	conns map[string]*entry
	rooms map[string]map[string]Conn
}

type entry struct {
	conn   Conn
	roomID string
}

func New(c Config) *Registry {
	return &Registry{
		eb:    c.EventBus,
		conns: make(map[string]*entry),
		rooms: make(map[string]map[string]Conn),
	}
}

// Add registers a connection that has not joined any room yet.
func (r *Registry) Add(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[c.ID()] = &entry{conn: c}
}

// Remove forgets a connection and returns the room it was in, if any.
func (r *Registry) Remove(ctx context.Context, connID string) (string, bool) {
	r.mu.Lock()
	e, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return "", false
	}

	delete(r.conns, connID)
	roomID := e.roomID
	if roomID != "" {
		r.leaveLocked(connID, roomID)
	}
	r.mu.Unlock()

	if roomID == "" {
		return "", false
	}

	r.publish(ctx, domain.EventConnectionLeft{ConnID: connID, RoomID: roomID})
	return roomID, true
}

// Bind maps a connection to a room. A connection is in at most one room, so
// binding to another room leaves the previous one, which is returned.
func (r *Registry) Bind(ctx context.Context, connID, roomID string) (string, error) {
	r.mu.Lock()
	e, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return "", errors.ErrNotInRoom.With(errors.WithMessagef("unknown connection %s", connID))
	}

	previous := e.roomID
	if previous == roomID {
		r.mu.Unlock()
		return "", nil
	}

	if previous != "" {
		r.leaveLocked(connID, previous)
	}

	e.roomID = roomID
	if r.rooms[roomID] == nil {
		r.rooms[roomID] = make(map[string]Conn)
	}
	r.rooms[roomID][connID] = e.conn
	r.mu.Unlock()

	if previous != "" {
		r.publish(ctx, domain.EventConnectionLeft{ConnID: connID, RoomID: previous})
	}
	r.publish(ctx, domain.EventConnectionJoined{ConnID: connID, RoomID: roomID})

	return previous, nil
}

// Unbind takes a connection out of its room and keeps it registered.
func (r *Registry) Unbind(ctx context.Context, connID string) (string, bool) {
	r.mu.Lock()
	e, ok := r.conns[connID]
	if !ok || e.roomID == "" {
		r.mu.Unlock()
		return "", false
	}

	roomID := e.roomID
	e.roomID = ""
	r.leaveLocked(connID, roomID)
	r.mu.Unlock()

	r.publish(ctx, domain.EventConnectionLeft{ConnID: connID, RoomID: roomID})
	return roomID, true
}

// RoomOf returns the room a connection has joined.
func (r *Registry) RoomOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[connID]
	if !ok || e.roomID == "" {
		return "", false
	}

	return e.roomID, true
}

// Conn returns a registered connection.
func (r *Registry) Conn(connID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[connID]
	if !ok {
		return nil, false
	}

	return e.conn, true
}

// Member returns the connection if it is currently bound to roomID.
func (r *Registry) Member(roomID, connID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.rooms[roomID][connID]
	return c, ok
}

// Members returns a snapshot of the connections bound to roomID.
func (r *Registry) Members(roomID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]Conn, 0, len(r.rooms[roomID]))
	for _, c := range r.rooms[roomID] {
		members = append(members, c)
	}

	return members
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}

func (r *Registry) leaveLocked(connID, roomID string) {
	delete(r.rooms[roomID], connID)
	if len(r.rooms[roomID]) == 0 {
		delete(r.rooms, roomID)
	}
}

func (r *Registry) publish(ctx context.Context, e event.Event) {
	if r.eb == nil {
		return
	}

	r.eb.Publish(ctx, e)
}
