package domain

import "encoding/json"

// Names of the events exchanged with connections.
const (
	MessageJoinRoom     = "joinRoom"
	MessageSendMessage  = "sendMessage"
	MessageStartQuiz    = "startQuiz"
	MessageSubmitAnswer = "submitAnswer"

	MessageChatMessage      = "chatMessage"
	MessageParticipantCount = "participantCount"
	MessageAdminVerified    = "adminVerified"
	MessageQuizStarting     = "quizStarting"
	MessageNewQuestion      = "newQuestion"
	MessageVoteStats        = "voteStats"
	MessageQuestionClosed   = "questionClosed"
	MessageLeaderboard      = "leaderboard"
	MessageQuizEnded        = "quizEnded"
	MessageError            = "error"
)

// Message is an event sent from a room to connections.
// Its JSON encoding is the frame payload.
type Message interface {
	Name() string
}

type ChatMessageSent struct {
	DisplayName string `json:"displayName"`
	Text        string `json:"text"`
}

func (ChatMessageSent) Name() string { return MessageChatMessage }

// ParticipantCount is the roster size after a join or leave.
type ParticipantCount int

func (ParticipantCount) Name() string { return MessageParticipantCount }

type AdminVerified struct{}

func (AdminVerified) Name() string { return MessageAdminVerified }

func (AdminVerified) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

type QuizStarting struct{}

func (QuizStarting) Name() string { return MessageQuizStarting }

func (QuizStarting) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// NewQuestion announces an opened question. The correct option is withheld.
type NewQuestion struct {
	Index           int      `json:"index"`
	Prompt          string   `json:"prompt"`
	Options         []string `json:"options"`
	DeadlineSeconds float64  `json:"deadlineSeconds"`
}

func (NewQuestion) Name() string { return MessageNewQuestion }

// VoteStats carries per option counts. Final is set on the tally sent when the question closes.
type VoteStats struct {
	Index  int
	Counts []int
	Final  bool
}

func (VoteStats) Name() string { return MessageVoteStats }

func (v VoteStats) MarshalJSON() ([]byte, error) {
	if v.Counts == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v.Counts)
}

// QuestionClosed reveals the correct option once a question is resolved.
type QuestionClosed struct {
	Index        int         `json:"index"`
	CorrectIndex int         `json:"correctIndex"`
	Reason       CloseReason `json:"reason"`
}

func (QuestionClosed) Name() string { return MessageQuestionClosed }

// Leaderboard is the running standings after a question closes.
type Leaderboard []LeaderboardEntry

func (Leaderboard) Name() string { return MessageLeaderboard }

// QuizEnded carries the final standings.
type QuizEnded []LeaderboardEntry

func (QuizEnded) Name() string { return MessageQuizEnded }

// Rejection reports a failed operation to its sender.
type Rejection struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

func (Rejection) Name() string { return MessageError }
