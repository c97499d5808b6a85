package postgres

import (
	"context"
	"fmt"

	"examdeck-session-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// AttemptStore persists finalized attempts and their per-question answer
// records in a single transaction.
type AttemptStore struct {
	pool *pgxpool.Pool
}

func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

func (s *AttemptStore) SaveAttempt(ctx context.Context, attempt domain.Attempt) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin attempt tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO attempts (id, exam_id, user_id, score, submitted_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		attempt.ID, attempt.ExamID, attempt.UserID, attempt.Score, attempt.SubmittedAt)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}

	for _, answer := range attempt.Answers {
		_, err = tx.Exec(ctx,
			`INSERT INTO attempt_answers (attempt_id, question_id, choice_id, is_correct, awarded)
			 VALUES ($1, $2, $3, $4, $5)`,
			attempt.ID, answer.QuestionID, answer.ChoiceID, answer.Correct, answer.Awarded)
		if err != nil {
			return fmt.Errorf("insert attempt answer: %w", err)
		}
	}
	return tx.Commit(ctx)
}
