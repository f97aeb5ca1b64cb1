package question

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
)

// Querier is the part of *pgxpool.Pool the bank uses.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type PostgresConfig struct {
	DB Querier
}

// PostgresBank reads questions from the quiz_questions table:
//
//	CREATE TABLE quiz_questions (
//		quiz_id       TEXT    NOT NULL,
//		position      INT     NOT NULL,
//		prompt        TEXT    NOT NULL,
//		options       TEXT[]  NOT NULL,
//		correct_index INT     NOT NULL,
//		deadline_ms   BIGINT  NOT NULL DEFAULT 10000,
//		PRIMARY KEY (quiz_id, position)
//	);
type PostgresBank struct {
	db Querier
}

func NewPostgresBank(c PostgresConfig) *PostgresBank {
	return &PostgresBank{db: c.DB}
}

// Questions returns the questions of quizID in position order, falling back to the default quiz.
func (b *PostgresBank) Questions(ctx context.Context, quizID string) ([]domain.Question, error) {
	qs, err := b.list(ctx, quizID)
	if err != nil {
		return nil, err
	}

	if len(qs) == 0 && quizID != DefaultQuiz {
		qs, err = b.list(ctx, DefaultQuiz)
		if err != nil {
			return nil, err
		}
	}

	if len(qs) == 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("no questions for quiz %s", quizID))
	}

	return qs, nil
}

func (b *PostgresBank) list(ctx context.Context, quizID string) ([]domain.Question, error) {
	const stmt = `
SELECT prompt, options, correct_index, deadline_ms
FROM quiz_questions
WHERE quiz_id = $1
ORDER BY position;`

	rows, err := b.db.Query(ctx, stmt, quizID)
	if err != nil {
		return nil, fmt.Errorf("query questions: quiz=%s: %w", quizID, err)
	}

	qs, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Question, error) {
		var (
			q          domain.Question
			deadlineMS int64
		)
		if err := r.Scan(&q.Prompt, &q.Options, &q.CorrectIndex, &deadlineMS); err != nil {
			return domain.Question{}, err
		}
		q.Deadline = time.Duration(deadlineMS) * time.Millisecond

		if err := Validate(&q); err != nil {
			return domain.Question{}, err
		}
		return q, nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect questions: quiz=%s: %w", quizID, err)
	}

	return qs, nil
}
