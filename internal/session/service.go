// Package session runs live rooms: it routes connection commands to the
// actor owning each room and fans the results out to the room's members.
package session

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/victornm/livequiz/internal/dispatch"
	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/question"
	"github.com/victornm/livequiz/internal/registry"
	"github.com/victornm/livequiz/internal/room"
	"github.com/victornm/livequiz/internal/score"
	"github.com/victornm/livequiz/internal/timer"
)

const (
	defaultGrace     = 30 * time.Second
	defaultInboxSize = 64
	joinAttempts     = 3
)

type Config struct {
	EventBus *event.Bus
	Bank     question.Bank
	Policy   score.Policy
	// Clock drives question deadlines and room reaping. Defaults to the system clock.
	Clock timer.Clock
	// Grace is how long an empty room is kept before it is destroyed.
	Grace         time.Duration
	ChatRetention int
	InboxSize     int
}

type Service struct {
	eb  *event.Bus
	reg *registry.Registry
	d   *dispatch.Dispatcher
	dir *directory
}

func NewService(c Config) *Service {
	if c.Clock == nil {
		c.Clock = timer.System
	}
	if c.Grace <= 0 {
		c.Grace = defaultGrace
	}
	if c.InboxSize <= 0 {
		c.InboxSize = defaultInboxSize
	}
	if c.Policy == (score.Policy{}) {
		c.Policy = score.DefaultPolicy
	}
	if c.Bank == nil {
		c.Bank = question.Builtin()
	}

	reg := registry.New(registry.Config{EventBus: c.EventBus})
	d := dispatch.New(dispatch.Config{Members: reg})

	return &Service{
		eb:  c.EventBus,
		reg: reg,
		d:   d,
		dir: &directory{
			bank:  c.Bank,
			clock: c.Clock,
			grace: c.Grace,
			eb:    c.EventBus,
			d:     d,
			roomConfig: func(id string, qs []domain.Question) room.Config {
				return room.Config{
					ID:            id,
					Questions:     qs,
					Policy:        c.Policy,
					ChatRetention: c.ChatRetention,
				}
			},
			inboxSize: c.InboxSize,
			rooms:     make(map[string]*roomActor),
		},
	}
}

// Connect registers a new connection. It joins no room until Join is called.
func (s *Service) Connect(c registry.Conn) {
	s.reg.Add(c)
}

// Disconnect removes a connection and leaves the room it was in.
func (s *Service) Disconnect(ctx context.Context, connID string) {
	roomID, ok := s.reg.Remove(ctx, connID)
	if !ok {
		return
	}

	s.leave(ctx, connID, roomID)
}

type JoinRequest struct {
	RoomID       string
	DisplayName  string
	IsAdminClaim bool
}

// Join puts the connection in a room, creating the room on first join.
// A connection already in another room leaves it first.
func (s *Service) Join(ctx context.Context, connID string, req JoinRequest) error {
	name := strings.TrimSpace(req.DisplayName)
	switch {
	case req.RoomID == "":
		return s.Reject(ctx, connID, errors.ErrMalformed.With(errors.WithMessagef("room id is required")))
	case name == "":
		return s.Reject(ctx, connID, errors.ErrEmptyName)
	}

	previous, err := s.reg.Bind(ctx, connID, req.RoomID)
	if err != nil {
		return s.Reject(ctx, connID, err)
	}
	if previous != "" {
		s.leave(ctx, connID, previous)
	}

	for attempt := 1; ; attempt++ {
		a, err := s.dir.room(ctx, req.RoomID)
		if err != nil {
			s.reg.Unbind(ctx, connID)
			return s.Reject(ctx, connID, err)
		}

		err = a.do(ctx, a.join(connID, name, req.IsAdminClaim))
		if errors.Is(err, errors.ErrRoomClosed) && attempt < joinAttempts {
			continue
		}
		if err != nil {
			s.reg.Unbind(ctx, connID)
			return s.Reject(ctx, connID, err)
		}

		return nil
	}
}

type SendChatRequest struct {
	RoomID string
	Text   string
}

func (s *Service) SendChat(ctx context.Context, connID string, req SendChatRequest) error {
	a, err := s.roomOf(connID, req.RoomID)
	if err != nil {
		return s.Reject(ctx, connID, err)
	}

	return s.rejectIfErr(ctx, connID, a.do(ctx, a.sendChat(connID, req.Text)))
}

type StartQuizRequest struct {
	RoomID string
}

func (s *Service) StartQuiz(ctx context.Context, connID string, req StartQuizRequest) error {
	a, err := s.roomOf(connID, req.RoomID)
	if err != nil {
		return s.Reject(ctx, connID, err)
	}

	return s.rejectIfErr(ctx, connID, a.do(ctx, a.startQuiz(connID)))
}

type SubmitAnswerRequest struct {
	RoomID        string
	QuestionIndex int
	OptionIndex   int
}

func (s *Service) SubmitAnswer(ctx context.Context, connID string, req SubmitAnswerRequest) error {
	a, err := s.roomOf(connID, req.RoomID)
	if err != nil {
		return s.Reject(ctx, connID, err)
	}

	return s.rejectIfErr(ctx, connID, a.do(ctx, a.submitAnswer(connID, req.QuestionIndex, req.OptionIndex)))
}

// Reject sends an error frame to the connection and returns err.
func (s *Service) Reject(ctx context.Context, connID string, err error) error {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(ctx, "session: operation failed", "conn", connID, "error", err)
	}

	roomID, _ := s.reg.RoomOf(connID)
	s.d.Reply(ctx, connID, domain.Frame{
		RoomID: roomID,
		To:     connID,
		Message: domain.Rejection{
			Code:    int(e.Code),
			Kind:    string(e.Kind),
			Reason:  e.Reason,
			Message: e.Message,
		},
	})

	return err
}

// Rooms returns the number of live rooms.
func (s *Service) Rooms() int {
	return s.dir.len()
}

// Connections returns the number of registered connections.
func (s *Service) Connections() int {
	return s.reg.Len()
}

// Close stops every room.
func (s *Service) Close(ctx context.Context) {
	s.dir.close(ctx)
}

func (s *Service) roomOf(connID, roomID string) (*roomActor, error) {
	bound, ok := s.reg.RoomOf(connID)
	if !ok || (roomID != "" && roomID != bound) {
		return nil, errors.ErrNotInRoom
	}

	a, ok := s.dir.lookup(bound)
	if !ok {
		return nil, errors.ErrNotInRoom
	}

	return a, nil
}

func (s *Service) leave(ctx context.Context, connID, roomID string) {
	a, ok := s.dir.lookup(roomID)
	if !ok {
		return
	}

	if err := a.do(ctx, a.leave(connID)); err != nil {
		slog.WarnContext(ctx, "session: leave room failed", "conn", connID, "room", roomID, "error", err)
	}
}

func (s *Service) rejectIfErr(ctx context.Context, connID string, err error) error {
	if err == nil {
		return nil
	}

	return s.Reject(ctx, connID, err)
}

// Standings returns the live standings of a room.
func (s *Service) Standings(ctx context.Context, roomID string) ([]domain.LeaderboardEntry, error) {
	a, ok := s.dir.lookup(roomID)
	if !ok {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("room not found: room=%s", roomID))
	}

	var entries []domain.LeaderboardEntry
	err := a.do(ctx, func(context.Context) error {
		entries = a.room.Standings()
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}
