package api

import (
	"context"
	"encoding/json"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/session"
)

type (
	// Envelope is the JSON shape of every websocket message.
	Envelope struct {
		Event  string          `json:"event"`
		RoomID string          `json:"roomId,omitempty"`
		Seq    uint64          `json:"seq,omitempty"`
		Data   json.RawMessage `json:"data,omitempty"`
	}

	JoinRoom struct {
		RoomID       string `json:"roomId"`
		DisplayName  string `json:"displayName"`
		IsAdminClaim bool   `json:"isAdminClaim"`
	}

	SendMessage struct {
		RoomID      string `json:"roomId"`
		DisplayName string `json:"displayName"`
		Text        string `json:"text"`
	}

	StartQuiz struct {
		RoomID string `json:"roomId"`
	}

	SubmitAnswer struct {
		RoomID        string `json:"roomId"`
		QuestionIndex *int   `json:"questionIndex"`
		OptionIndex   *int   `json:"optionIndex"`
		DisplayName   string `json:"displayName"`
	}
)

// EncodeFrame renders an outbound frame as an Envelope.
func EncodeFrame(f domain.Frame) ([]byte, error) {
	data, err := json.Marshal(f.Message)
	if err != nil {
		return nil, err
	}

	return json.Marshal(Envelope{
		Event:  f.Message.Name(),
		RoomID: f.RoomID,
		Seq:    f.Seq,
		Data:   data,
	})
}

// handle decodes one inbound message and runs it against the session service.
// Failures are reported to the connection by the service.
func (a *API) handle(ctx context.Context, connID string, msg []byte) {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		_ = a.session.Reject(ctx, connID, malformed("invalid envelope: %v", err))
		return
	}

	switch env.Event {
	case domain.MessageJoinRoom:
		var req JoinRoom
		if err := decode(env, &req); err != nil {
			_ = a.session.Reject(ctx, connID, err)
			return
		}
		_ = a.session.Join(ctx, connID, session.JoinRequest{
			RoomID:       req.RoomID,
			DisplayName:  req.DisplayName,
			IsAdminClaim: req.IsAdminClaim,
		})

	case domain.MessageSendMessage:
		var req SendMessage
		if err := decode(env, &req); err != nil {
			_ = a.session.Reject(ctx, connID, err)
			return
		}
		_ = a.session.SendChat(ctx, connID, session.SendChatRequest{RoomID: req.RoomID, Text: req.Text})

	case domain.MessageStartQuiz:
		var req StartQuiz
		if err := decode(env, &req); err != nil {
			_ = a.session.Reject(ctx, connID, err)
			return
		}
		_ = a.session.StartQuiz(ctx, connID, session.StartQuizRequest{RoomID: req.RoomID})

	case domain.MessageSubmitAnswer:
		var req SubmitAnswer
		if err := decode(env, &req); err != nil {
			_ = a.session.Reject(ctx, connID, err)
			return
		}
		if req.QuestionIndex == nil || req.OptionIndex == nil {
			_ = a.session.Reject(ctx, connID, malformed("questionIndex and optionIndex are required"))
			return
		}
		_ = a.session.SubmitAnswer(ctx, connID, session.SubmitAnswerRequest{
			RoomID:        req.RoomID,
			QuestionIndex: *req.QuestionIndex,
			OptionIndex:   *req.OptionIndex,
		})

	default:
		_ = a.session.Reject(ctx, connID, malformed("unknown event %q", env.Event))
	}
}

func decode(env Envelope, v any) error {
	if len(env.Data) == 0 {
		return malformed("%s: missing data", env.Event)
	}

	if err := json.Unmarshal(env.Data, v); err != nil {
		return malformed("%s: %v", env.Event, err)
	}

	return nil
}

func malformed(format string, args ...any) error {
	return errors.ErrMalformed.With(errors.WithMessagef(format, args...))
}
