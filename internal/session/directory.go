package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/victornm/livequiz/internal/dispatch"
	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/question"
	"github.com/victornm/livequiz/internal/room"
	"github.com/victornm/livequiz/internal/timer"
)

// directory creates rooms on first join and reaps them once they stay empty.
type directory struct {
	bank  question.Bank
	clock timer.Clock
	grace time.Duration
	eb    *event.Bus
	d     *dispatch.Dispatcher

	roomConfig func(id string, qs []domain.Question) room.Config
	inboxSize  int

	mu    sync.Mutex
	rooms map[string]*roomActor
}

// lookup returns the live actor of a room.
func (dir *directory) lookup(id string) (*roomActor, bool) {
	dir.mu.Lock()
	defer dir.mu.Unlock()

	a, ok := dir.rooms[id]
	if !ok || a.closed.Load() {
		return nil, false
	}

	return a, true
}

// room returns the actor of a room, creating the room if needed.
func (dir *directory) room(ctx context.Context, id string) (*roomActor, error) {
	if a, ok := dir.lookup(id); ok {
		return a, nil
	}

	qs, err := dir.bank.Questions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load questions: room=%s: %w", id, err)
	}

	dir.mu.Lock()
	if a, ok := dir.rooms[id]; ok && !a.closed.Load() {
		dir.mu.Unlock()
		return a, nil
	}

	a := newRoomActor(actorConfig{
		Room:       room.New(dir.roomConfig(id, qs)),
		Clock:      dir.clock,
		Dispatcher: dir.d,
		EventBus:   dir.eb,
		InboxSize:  dir.inboxSize,
		Grace:      dir.grace,
		OnEmpty:    dir.scheduleReap,
	})
	dir.rooms[id] = a
	dir.mu.Unlock()

	go a.run()

	slog.InfoContext(ctx, "session: room created", "room", id, "questions", len(qs))
	dir.publish(ctx, domain.EventRoomCreated{RoomID: id})

	return a, nil
}

func (dir *directory) scheduleReap(a *roomActor) {
	dir.clock.AfterFunc(dir.grace, func() {
		dir.reap(context.Background(), a)
	})
}

func (dir *directory) reap(ctx context.Context, a *roomActor) {
	if err := a.do(ctx, a.tryStop); err != nil {
		return
	}

	dir.forget(a)

	slog.InfoContext(ctx, "session: room destroyed", "room", a.id)
	dir.publish(ctx, domain.EventRoomDestroyed{RoomID: a.id})
}

func (dir *directory) forget(a *roomActor) {
	dir.mu.Lock()
	defer dir.mu.Unlock()

	if dir.rooms[a.id] == a {
		delete(dir.rooms, a.id)
	}
}

// len returns the number of live rooms.
func (dir *directory) len() int {
	dir.mu.Lock()
	defer dir.mu.Unlock()

	return len(dir.rooms)
}

// close stops every actor.
func (dir *directory) close(ctx context.Context) {
	dir.mu.Lock()
	actors := make([]*roomActor, 0, len(dir.rooms))
	for _, a := range dir.rooms {
		actors = append(actors, a)
	}
	dir.mu.Unlock()

	for _, a := range actors {
		if err := a.do(ctx, a.stop); err != nil {
			slog.WarnContext(ctx, "session: stop room failed", "room", a.id, "error", err)
			continue
		}

		dir.forget(a)
		dir.publish(ctx, domain.EventRoomDestroyed{RoomID: a.id})
	}
}

func (dir *directory) publish(ctx context.Context, e event.Event) {
	if dir.eb == nil {
		return
	}

	dir.eb.Publish(ctx, e)
}
