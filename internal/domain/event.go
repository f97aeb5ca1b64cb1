package domain

const (
	EventNameRoomCreated        = "room.created"
	EventNameRoomDestroyed      = "room.destroyed"
	EventNameConnectionJoined   = "connection.joined"
	EventNameConnectionLeft     = "connection.left"
	EventNameAnswerSubmitted    = "answer.submitted"
	EventNameQuestionClosed     = "question.closed"
	EventNameScoreUpdated       = "score.updated"
	EventNameQuizEnded          = "quiz.ended"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventRoomCreated struct {
	RoomID string
}

func (EventRoomCreated) Name() string { return EventNameRoomCreated }

type EventRoomDestroyed struct {
	RoomID string
}

func (EventRoomDestroyed) Name() string { return EventNameRoomDestroyed }

type EventConnectionJoined struct {
	ConnID string
	RoomID string
}

func (EventConnectionJoined) Name() string { return EventNameConnectionJoined }

type EventConnectionLeft struct {
	ConnID string
	RoomID string
}

func (EventConnectionLeft) Name() string { return EventNameConnectionLeft }

type EventAnswerSubmitted struct {
	RoomID string
	// Outcome is "accepted" or the rejection reason.
	Outcome string
}

func (EventAnswerSubmitted) Name() string { return EventNameAnswerSubmitted }

type EventQuestionClosed struct {
	RoomID string
	Index  int
	Reason CloseReason
}

func (EventQuestionClosed) Name() string { return EventNameQuestionClosed }

// EventScoreUpdated is a snapshot of the roster totals in join order. Version
// grows with every snapshot of a room, so consumers can drop older ones.
type EventScoreUpdated struct {
	RoomID  string
	Version uint64
	Scores  []ScoreEvent
}

func (EventScoreUpdated) Name() string { return EventNameScoreUpdated }

type EventQuizEnded struct {
	RoomID      string
	Leaderboard []LeaderboardEntry
}

func (EventQuizEnded) Name() string { return EventNameQuizEnded }

type EventLeaderboardUpdated struct {
	RoomID  string
	Entries []LeaderboardEntry
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
