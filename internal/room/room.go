// Package room implements the quiz room state machine. A Room does no I/O and is not
// safe for concurrent use: its owner must serialise every call.
package room

import (
	"sort"
	"strings"
	"time"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/score"
)

const defaultChatRetention = 200

type Config struct {
	ID            string
	Questions     []domain.Question
	Policy        score.Policy
	ChatRetention int
}

// Tag identifies one opening of a question. Timers carry it so an expiry can
// be matched against the question it was armed for.
type Tag struct {
	Index int
	Seq   uint64
}

// Notice is a domain event produced by a transition, for consumers outside the room.
type Notice interface {
	Name() string
}

type participant struct {
	id      string
	name    string
	score   int64
	joinSeq uint64
}

type Room struct {
	id            string
	questions     []domain.Question
	policy        score.Policy
	chatRetention int

	phase    domain.Phase
	current  int
	open     bool
	openSeq  uint64
	openedAt time.Time
	answers  map[string]score.Answer

	roster      map[string]*participant
	joinSeq     uint64
	host        string
	hostElected bool

	chat    []domain.ChatMessage
	chatSeq uint64

	notices      []Notice
	scoreVersion uint64
}

func New(c Config) *Room {
	if c.ChatRetention <= 0 {
		c.ChatRetention = defaultChatRetention
	}
	if c.Policy == (score.Policy{}) {
		c.Policy = score.DefaultPolicy
	}

	return &Room{
		id:            c.ID,
		questions:     c.Questions,
		policy:        c.Policy,
		chatRetention: c.ChatRetention,
		phase:         domain.PhaseLobby,
		current:       -1,
		roster:        make(map[string]*participant),
	}
}

func (r *Room) ID() string { return r.id }

func (r *Room) Phase() domain.Phase { return r.phase }

// Size is the number of participants in the roster.
func (r *Room) Size() int { return len(r.roster) }

// Host returns the current host id, empty if there is none.
func (r *Room) Host() string { return r.host }

// Current returns the index of the current question, -1 unless the quiz is running.
func (r *Room) Current() int { return r.current }

// Chat returns a copy of the retained chat log.
func (r *Room) Chat() []domain.ChatMessage {
	return append([]domain.ChatMessage(nil), r.chat...)
}

// OpenQuestion returns the tag and deadline of the question accepting answers.
func (r *Room) OpenQuestion() (Tag, time.Duration, bool) {
	if !r.open {
		return Tag{}, 0, false
	}

	return Tag{Index: r.current, Seq: r.openSeq}, r.questions[r.current].Deadline, true
}

// Score returns the cumulative score of a participant.
func (r *Room) Score(id string) (int64, bool) {
	p, ok := r.roster[id]
	if !ok {
		return 0, false
	}

	return p.score, true
}

// Notices drains the domain events produced since the last call.
func (r *Room) Notices() []Notice {
	n := r.notices
	r.notices = nil
	return n
}

// Join adds a participant, or re-attaches one already in the roster. Joins are
// accepted in every phase. The first admin claim elects the host; later claims
// join as ordinary participants.
func (r *Room) Join(id, displayName string, isAdminClaim bool) ([]domain.Outbound, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, errors.ErrEmptyName
	}

	if p, ok := r.roster[id]; ok {
		p.name = displayName
	} else {
		r.joinSeq++
		r.roster[id] = &participant{id: id, name: displayName, joinSeq: r.joinSeq}
	}

	out := []domain.Outbound{toRoom(domain.ParticipantCount(len(r.roster)))}

	if isAdminClaim && !r.hostElected {
		r.host = id
		r.hostElected = true
		out = append(out, domain.Outbound{To: id, Event: domain.AdminVerified{}})
	}

	return out, nil
}

// Leave removes a participant and discards its score. A leaving host is not replaced.
func (r *Room) Leave(id string, now time.Time) []domain.Outbound {
	if _, ok := r.roster[id]; !ok {
		return nil
	}

	delete(r.roster, id)
	if r.host == id {
		r.host = ""
	}
	if r.open {
		delete(r.answers, id)
	}

	if r.scoreVersion > 0 {
		r.notices = append(r.notices, r.scoreUpdate(nil))
	}

	out := []domain.Outbound{toRoom(domain.ParticipantCount(len(r.roster)))}

	if r.open && len(r.roster) > 0 && r.allAnswered() {
		out = append(out, r.close(domain.CloseComplete, now)...)
	}

	return out
}

func (r *Room) SendChat(id, text string) ([]domain.Outbound, error) {
	p, ok := r.roster[id]
	if !ok {
		return nil, errors.ErrNotInRoom
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.ErrEmptyMessage
	}

	r.chatSeq++
	r.chat = append(r.chat, domain.ChatMessage{Seq: r.chatSeq, DisplayName: p.name, Text: text})
	if len(r.chat) > r.chatRetention {
		r.chat = r.chat[len(r.chat)-r.chatRetention:]
	}

	return []domain.Outbound{toRoom(domain.ChatMessageSent{DisplayName: p.name, Text: text})}, nil
}

func (r *Room) StartQuiz(id string, now time.Time) ([]domain.Outbound, error) {
	if r.host == "" || r.host != id {
		return nil, errors.ErrNotHost
	}
	if r.phase != domain.PhaseLobby {
		return nil, errors.ErrAlreadyStarted
	}

	r.phase = domain.PhaseRunning
	out := []domain.Outbound{toRoom(domain.QuizStarting{})}

	return append(out, r.advance(now)...), nil
}

// SubmitAnswer records the answer of a participant to the open question. The
// question closes as soon as the whole roster has answered.
func (r *Room) SubmitAnswer(id string, questionIndex, optionIndex int, now time.Time) ([]domain.Outbound, error) {
	if _, ok := r.roster[id]; !ok {
		return nil, errors.ErrNotInRoom
	}
	if !r.open {
		return nil, errors.ErrNoActiveQuestion
	}
	if questionIndex != r.current {
		return nil, errors.ErrStaleSubmission
	}

	q := r.questions[r.current]
	elapsed := now.Sub(r.openedAt)
	if elapsed > q.Deadline {
		return nil, errors.ErrNoActiveQuestion
	}
	if _, ok := r.answers[id]; ok {
		return nil, errors.ErrAlreadyAnswered
	}
	if optionIndex < 0 || optionIndex >= len(q.Options) {
		return nil, errors.ErrOptionOutOfRange
	}

	r.answers[id] = score.Answer{Option: optionIndex, Elapsed: elapsed}

	out := []domain.Outbound{toRoom(domain.VoteStats{
		Index:  r.current,
		Counts: score.Tally(len(q.Options), r.answers),
	})}

	if r.allAnswered() {
		out = append(out, r.close(domain.CloseComplete, now)...)
	}

	return out, nil
}

// Expire closes the question identified by tag. Tags of questions that are no
// longer open are ignored, so a question closes at most once.
func (r *Room) Expire(tag Tag, now time.Time) []domain.Outbound {
	if open, _, ok := r.OpenQuestion(); !ok || open != tag {
		return nil
	}

	return r.close(domain.CloseExpired, now)
}

// Standings returns the roster sorted by score, ties broken by join order.
func (r *Room) Standings() []domain.LeaderboardEntry {
	ps := make([]*participant, 0, len(r.roster))
	for _, p := range r.roster {
		ps = append(ps, p)
	}

	sort.Slice(ps, func(i, j int) bool {
		if ps[i].score != ps[j].score {
			return ps[i].score > ps[j].score
		}
		return ps[i].joinSeq < ps[j].joinSeq
	})

	entries := make([]domain.LeaderboardEntry, 0, len(ps))
	for _, p := range ps {
		entries = append(entries, domain.LeaderboardEntry{
			ParticipantID: p.id,
			DisplayName:   p.name,
			Score:         p.score,
		})
	}

	return entries
}

func (r *Room) close(reason domain.CloseReason, now time.Time) []domain.Outbound {
	q := r.questions[r.current]

	counts := score.Tally(len(q.Options), r.answers)
	points := r.policy.Award(q, r.byJoinOrder(), r.answers)

	for id, pts := range points {
		r.roster[id].score += pts
	}

	r.open = false
	r.answers = nil

	r.notices = append(r.notices,
		domain.EventQuestionClosed{RoomID: r.id, Index: r.current, Reason: reason},
		r.scoreUpdate(points),
	)

	out := []domain.Outbound{
		toRoom(domain.VoteStats{Index: r.current, Counts: counts, Final: true}),
		toRoom(domain.QuestionClosed{Index: r.current, CorrectIndex: q.CorrectIndex, Reason: reason}),
		toRoom(domain.Leaderboard(r.Standings())),
	}

	return append(out, r.advance(now)...)
}

// scoreUpdate snapshots the roster totals under the next version.
func (r *Room) scoreUpdate(points map[string]int64) domain.EventScoreUpdated {
	r.scoreVersion++

	ids := r.byJoinOrder()
	scores := make([]domain.ScoreEvent, 0, len(ids))
	for _, id := range ids {
		p := r.roster[id]
		scores = append(scores, domain.ScoreEvent{
			ParticipantID: id,
			DisplayName:   p.name,
			Points:        points[id],
			TotalScore:    p.score,
		})
	}

	return domain.EventScoreUpdated{RoomID: r.id, Version: r.scoreVersion, Scores: scores}
}

func (r *Room) advance(now time.Time) []domain.Outbound {
	if r.current+1 >= len(r.questions) {
		r.phase = domain.PhaseEnded
		r.current = -1

		final := r.Standings()
		r.notices = append(r.notices, domain.EventQuizEnded{RoomID: r.id, Leaderboard: final})

		return []domain.Outbound{toRoom(domain.QuizEnded(final))}
	}

	r.current++
	r.open = true
	r.openSeq++
	r.openedAt = now
	r.answers = make(map[string]score.Answer)

	q := r.questions[r.current]
	return []domain.Outbound{toRoom(domain.NewQuestion{
		Index:           r.current,
		Prompt:          q.Prompt,
		Options:         append([]string(nil), q.Options...),
		DeadlineSeconds: q.Deadline.Seconds(),
	})}
}

func (r *Room) allAnswered() bool {
	for id := range r.roster {
		if _, ok := r.answers[id]; !ok {
			return false
		}
	}

	return true
}

func (r *Room) byJoinOrder() []string {
	ids := make([]string, 0, len(r.roster))
	for id := range r.roster {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool {
		return r.roster[ids[i]].joinSeq < r.roster[ids[j]].joinSeq
	})

	return ids
}

func toRoom(m domain.Message) domain.Outbound {
	return domain.Outbound{Event: m}
}
