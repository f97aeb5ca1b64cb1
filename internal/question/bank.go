// Package question loads the question sets rooms are created with.
package question

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
)

// DefaultQuiz is the quiz used for room ids without a question set of their own.
const DefaultQuiz = "default"

const defaultDeadline = 10 * time.Second

// Bank returns the questions of a quiz. A room's id is its quiz id.
type Bank interface {
	Questions(ctx context.Context, quizID string) ([]domain.Question, error)
}

// StaticBank is an in-memory Bank.
type StaticBank map[string][]domain.Question

func (b StaticBank) Questions(_ context.Context, quizID string) ([]domain.Question, error) {
	qs, ok := b[quizID]
	if !ok {
		// Keys loaded through viper are lower case.
		qs, ok = b[strings.ToLower(quizID)]
	}
	if !ok {
		qs, ok = b[DefaultQuiz]
	}
	if !ok {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("no questions for quiz %s", quizID))
	}

	return append([]domain.Question(nil), qs...), nil
}

// Validate checks a question and fills in the default deadline.
func Validate(q *domain.Question) error {
	if q.Prompt == "" {
		return fmt.Errorf("empty prompt")
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("question %q: need at least 2 options, got %d", q.Prompt, len(q.Options))
	}
	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		return fmt.Errorf("question %q: correct option %d out of range", q.Prompt, q.CorrectIndex)
	}
	if q.Deadline < 0 {
		return fmt.Errorf("question %q: negative deadline", q.Prompt)
	}
	if q.Deadline == 0 {
		q.Deadline = defaultDeadline
	}

	return nil
}

// Builtin is the question set used when no bank is configured.
func Builtin() StaticBank {
	return StaticBank{
		DefaultQuiz: {
			{
				Prompt:       "Which planet is known as the Red Planet?",
				Options:      []string{"Venus", "Mars", "Jupiter", "Mercury"},
				CorrectIndex: 1,
				Deadline:     defaultDeadline,
			},
			{
				Prompt:       "What is the largest ocean on Earth?",
				Options:      []string{"Atlantic", "Indian", "Pacific", "Arctic"},
				CorrectIndex: 2,
				Deadline:     defaultDeadline,
			},
			{
				Prompt:       "How many bits are in a byte?",
				Options:      []string{"4", "8", "16", "32"},
				CorrectIndex: 1,
				Deadline:     defaultDeadline,
			},
		},
	}
}
