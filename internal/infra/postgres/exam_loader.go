package postgres

import (
	"context"
	"errors"
	"fmt"

	"examdeck-session-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ExamLoader loads exams with their questions and choices from Postgres.
type ExamLoader struct {
	pool *pgxpool.Pool
}

func NewExamLoader(pool *pgxpool.Pool) *ExamLoader {
	return &ExamLoader{pool: pool}
}

func (l *ExamLoader) LoadExam(ctx context.Context, examID string) (domain.Exam, error) {
	exam := domain.Exam{ID: examID}
	err := l.pool.QueryRow(ctx,
		`SELECT title, duration_minutes FROM exams WHERE id=$1`, examID,
	).Scan(&exam.Title, &exam.DurationMinutes)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Exam{}, domain.ErrExamNotFound
	}
	if err != nil {
		return domain.Exam{}, fmt.Errorf("load exam: %w", err)
	}

	rows, err := l.pool.Query(ctx, `
		SELECT q.id, q.prompt_html, q.points,
		       c.id, c.text_html, c.is_correct
		FROM questions q
		LEFT JOIN choices c ON c.question_id = q.id
		WHERE q.exam_id = $1
		ORDER BY q.position, q.id, c.position, c.id`, examID)
	if err != nil {
		return domain.Exam{}, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	exam.Questions, err = collectQuestions(rows)
	if err != nil {
		return domain.Exam{}, err
	}
	return exam, nil
}

// collectQuestions normalizes the left-joined row set into the canonical
// question/choice shape. Choice columns are nullable: a question without
// choices produces a single row with NULLs on the choice side.
func collectQuestions(rows pgx.Rows) ([]domain.Question, error) {
	var (
		questions []domain.Question
		index     = map[string]int{}
	)
	for rows.Next() {
		var (
			qID, promptHTML      string
			points               int
			choiceID, choiceHTML *string
			isCorrect            *bool
		)
		if err := rows.Scan(&qID, &promptHTML, &points, &choiceID, &choiceHTML, &isCorrect); err != nil {
			return nil, fmt.Errorf("scan question row: %w", err)
		}
		i, ok := index[qID]
		if !ok {
			i = len(questions)
			index[qID] = i
			questions = append(questions, domain.Question{
				ID:         qID,
				PromptHTML: promptHTML,
				Points:     points,
			})
		}
		if choiceID == nil {
			continue
		}
		choice := domain.Choice{ID: *choiceID}
		if choiceHTML != nil {
			choice.TextHTML = *choiceHTML
		}
		if isCorrect != nil {
			choice.Correct = *isCorrect
		}
		questions[i].Choices = append(questions[i].Choices, choice)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate question rows: %w", err)
	}
	return questions, nil
}
