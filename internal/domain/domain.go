package domain

import "time"

// Phase is the coarse state of a room.
type Phase int

const (
	PhaseLobby Phase = iota
	PhaseRunning
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseLobby:
		return "lobby"
	case PhaseRunning:
		return "running"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Question is one timed multiple choice question of a quiz.
type Question struct {
	Prompt       string        `mapstructure:"prompt" json:"prompt"`
	Options      []string      `mapstructure:"options" json:"options"`
	CorrectIndex int           `mapstructure:"correct" json:"correctIndex"`
	Deadline     time.Duration `mapstructure:"deadline" json:"deadline"`
}

// ChatMessage is one entry of a room's chat log.
type ChatMessage struct {
	Seq         uint64
	DisplayName string
	Text        string
}

// LeaderboardEntry is one row of a room's standings.
type LeaderboardEntry struct {
	ParticipantID string `json:"-"`
	DisplayName   string `json:"displayName"`
	Score         int64  `json:"score"`
}

// ScoreEvent is the score change of a participant when a question closes.
type ScoreEvent struct {
	ParticipantID string
	DisplayName   string
	Points        int64
	TotalScore    int64
}

// CloseReason tells what closed a question.
type CloseReason string

const (
	CloseExpired  CloseReason = "expired"
	CloseComplete CloseReason = "complete"
)

// Outbound is an event produced by a room transition.
// An empty To addresses the whole room, otherwise the participant with that id.
type Outbound struct {
	To    string
	Event Message
}

// Frame is a sequenced message addressed to connections of a room.
type Frame struct {
	RoomID  string
	Seq     uint64
	To      string
	Message Message
}
