package session

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"time"

	"github.com/victornm/livequiz/internal/dispatch"
	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/room"
	"github.com/victornm/livequiz/internal/timer"
)

var errNotEmpty = stderrors.New("room is not empty")

type command struct {
	apply func(ctx context.Context) error
	reply chan error
}

type actorConfig struct {
	Room       *room.Room
	Clock      timer.Clock
	Dispatcher *dispatch.Dispatcher
	EventBus   *event.Bus
	InboxSize  int
	Grace      time.Duration
	OnEmpty    func(a *roomActor)
}

// roomActor owns a room. Every transition, including timer expiry, runs on
// its goroutine, one at a time.
type roomActor struct {
	id      string
	room    *room.Room
	clock   timer.Clock
	timer   *timer.Timer[room.Tag]
	d       *dispatch.Dispatcher
	eb      *event.Bus
	grace   time.Duration
	onEmpty func(a *roomActor)

	inbox  chan command
	done   chan struct{}
	closed atomic.Bool

	// Owned by the actor goroutine.
	seq        uint64
	armed      bool
	armedTag   room.Tag
	emptySince time.Time
	stopping   bool
}

func newRoomActor(c actorConfig) *roomActor {
	a := &roomActor{
		id:      c.Room.ID(),
		room:    c.Room,
		clock:   c.Clock,
		d:       c.Dispatcher,
		eb:      c.EventBus,
		grace:   c.Grace,
		onEmpty: c.OnEmpty,
		inbox:   make(chan command, c.InboxSize),
		done:    make(chan struct{}),
	}
	a.timer = timer.New(c.Clock, a.expire)

	return a
}

func (a *roomActor) run() {
	ctx := context.Background()

	for {
		cmd := <-a.inbox

		err := cmd.apply(ctx)
		a.syncTimer()
		a.trackEmpty()

		if a.stopping {
			a.closed.Store(true)
			if a.armed {
				a.timer.Cancel()
				a.armed = false
			}
		}

		if cmd.reply != nil {
			cmd.reply <- err
		}

		if a.stopping {
			close(a.done)
			return
		}
	}
}

// do runs apply on the actor goroutine and waits for its result.
func (a *roomActor) do(ctx context.Context, apply func(ctx context.Context) error) error {
	if a.closed.Load() {
		return errors.ErrRoomClosed
	}

	cmd := command{apply: apply, reply: make(chan error, 1)}
	select {
	case a.inbox <- cmd:
	case <-a.done:
		return errors.ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-a.done:
		select {
		case err := <-cmd.reply:
			return err
		default:
			return errors.ErrRoomClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post enqueues apply without waiting for it.
func (a *roomActor) post(apply func(ctx context.Context) error) {
	select {
	case a.inbox <- command{apply: apply}:
	case <-a.done:
	}
}

func (a *roomActor) join(connID, displayName string, isAdminClaim bool) func(context.Context) error {
	return func(ctx context.Context) error {
		out, err := a.room.Join(connID, displayName, isAdminClaim)
		if err != nil {
			return err
		}

		a.emit(ctx, out)
		return nil
	}
}

func (a *roomActor) leave(connID string) func(context.Context) error {
	return func(ctx context.Context) error {
		a.emit(ctx, a.room.Leave(connID, a.clock.Now()))
		return nil
	}
}

func (a *roomActor) sendChat(connID, text string) func(context.Context) error {
	return func(ctx context.Context) error {
		out, err := a.room.SendChat(connID, text)
		if err != nil {
			return err
		}

		a.emit(ctx, out)
		return nil
	}
}

func (a *roomActor) startQuiz(connID string) func(context.Context) error {
	return func(ctx context.Context) error {
		out, err := a.room.StartQuiz(connID, a.clock.Now())
		if err != nil {
			return err
		}

		a.emit(ctx, out)
		return nil
	}
}

func (a *roomActor) submitAnswer(connID string, questionIndex, optionIndex int) func(context.Context) error {
	return func(ctx context.Context) error {
		out, err := a.room.SubmitAnswer(connID, questionIndex, optionIndex, a.clock.Now())

		outcome := "accepted"
		if err != nil {
			outcome = errors.Convert(err).Reason
		}
		a.publish(ctx, domain.EventAnswerSubmitted{RoomID: a.id, Outcome: outcome})

		if err != nil {
			return err
		}

		a.emit(ctx, out)
		return nil
	}
}

// expire is called by the question timer.
func (a *roomActor) expire(tag room.Tag) {
	a.post(func(ctx context.Context) error {
		a.emit(ctx, a.room.Expire(tag, a.clock.Now()))
		return nil
	})
}

// tryStop stops the actor if the room stayed empty for the grace period.
func (a *roomActor) tryStop(context.Context) error {
	if a.room.Size() > 0 || a.emptySince.IsZero() || a.clock.Now().Sub(a.emptySince) < a.grace {
		return errNotEmpty
	}

	a.stopping = true
	return nil
}

func (a *roomActor) stop(context.Context) error {
	a.stopping = true
	return nil
}

func (a *roomActor) emit(ctx context.Context, out []domain.Outbound) {
	frames := make([]domain.Frame, 0, len(out))
	for _, o := range out {
		a.seq++
		frames = append(frames, domain.Frame{
			RoomID:  a.id,
			Seq:     a.seq,
			To:      o.To,
			Message: o.Event,
		})
	}
	a.d.Deliver(ctx, frames...)

	for _, n := range a.room.Notices() {
		a.publish(ctx, n)
	}
}

// syncTimer keeps exactly one countdown armed, for the open question only.
func (a *roomActor) syncTimer() {
	tag, deadline, open := a.room.OpenQuestion()
	if open && a.armed && a.armedTag == tag {
		return
	}

	if a.armed {
		a.timer.Cancel()
		a.armed = false
	}

	if open {
		a.timer.Arm(tag, deadline)
		a.armed = true
		a.armedTag = tag
	}
}

func (a *roomActor) trackEmpty() {
	if a.room.Size() > 0 {
		a.emptySince = time.Time{}
		return
	}

	if a.emptySince.IsZero() {
		a.emptySince = a.clock.Now()
		if a.onEmpty != nil && !a.stopping {
			a.onEmpty(a)
		}
	}
}

func (a *roomActor) publish(ctx context.Context, e event.Event) {
	if a.eb == nil {
		return
	}

	a.eb.Publish(ctx, e)
}
