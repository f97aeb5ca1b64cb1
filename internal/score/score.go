package score

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/victornm/livequiz/internal/domain"
)

// Policy awards points for correct answers, decaying linearly with the time taken:
// BasePoints for an instant answer down to MinPoints at the deadline.
type Policy struct {
	BasePoints int64
	MinPoints  int64
}

var DefaultPolicy = Policy{BasePoints: 1000, MinPoints: 500}

// Validate rejects policies that could award negative points or reward slower answers.
func (p Policy) Validate() error {
	if p.MinPoints < 0 {
		return fmt.Errorf("min points must not be negative: %d", p.MinPoints)
	}
	if p.BasePoints < p.MinPoints {
		return fmt.Errorf("base points %d must not be lower than min points %d", p.BasePoints, p.MinPoints)
	}

	return nil
}

// Answer is a recorded choice for the open question.
type Answer struct {
	Option  int
	Elapsed time.Duration
}

// Points returns the points earned by a. Incorrect answers earn nothing.
func (p Policy) Points(a Answer, deadline time.Duration, correct int) int64 {
	if a.Option != correct {
		return 0
	}
	if deadline <= 0 {
		return p.BasePoints
	}

	elapsed := a.Elapsed
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > deadline {
		elapsed = deadline
	}

	frac := decimal.NewFromInt(int64(elapsed)).Div(decimal.NewFromInt(int64(deadline)))
	span := decimal.NewFromInt(p.BasePoints - p.MinPoints)

	return decimal.NewFromInt(p.BasePoints).Sub(span.Mul(frac)).Round(0).IntPart()
}

// Award computes the points of every participant for q. Participants without
// an answer are present with zero points.
func (p Policy) Award(q domain.Question, participants []string, answers map[string]Answer) map[string]int64 {
	points := make(map[string]int64, len(participants))
	for _, id := range participants {
		a, ok := answers[id]
		if !ok {
			points[id] = 0
			continue
		}
		points[id] = p.Points(a, q.Deadline, q.CorrectIndex)
	}

	return points
}

// Tally counts answers per option. Answers outside the option range are ignored.
func Tally(options int, answers map[string]Answer) []int {
	counts := make([]int, options)
	for _, a := range answers {
		if a.Option < 0 || a.Option >= options {
			continue
		}
		counts[a.Option]++
	}

	return counts
}
