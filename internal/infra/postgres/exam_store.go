package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"examdeck-session-service/internal/domain"
	"github.com/uptrace/bun"
)

// ExamStore is the authoring-side CRUD layer over exams, questions and
// choices, used by the admin endpoints.
type ExamStore struct {
	db *bun.DB
}

func NewExamStore(db *bun.DB) *ExamStore {
	return &ExamStore{db: db}
}

type examRow struct {
	bun.BaseModel `bun:"table:exams"`

	ID              string `bun:"id,pk"`
	Title           string `bun:"title"`
	DurationMinutes int    `bun:"duration_minutes"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions"`

	ID         string `bun:"id,pk"`
	ExamID     string `bun:"exam_id"`
	PromptHTML string `bun:"prompt_html"`
	Points     int    `bun:"points"`
	Position   int    `bun:"position"`
}

type choiceRow struct {
	bun.BaseModel `bun:"table:choices"`

	ID         string `bun:"id,pk"`
	QuestionID string `bun:"question_id"`
	TextHTML   string `bun:"text_html"`
	IsCorrect  bool   `bun:"is_correct"`
	Position   int    `bun:"position"`
}

// CreateExam inserts the exam with its full question/choice tree.
func (s *ExamStore) CreateExam(ctx context.Context, exam domain.Exam) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := examRow{ID: exam.ID, Title: exam.Title, DurationMinutes: exam.DurationMinutes}
		if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
			return fmt.Errorf("insert exam: %w", err)
		}
		return insertQuestionsTx(ctx, tx, exam)
	})
}

// UpdateExam replaces the exam's metadata and question set.
func (s *ExamStore) UpdateExam(ctx context.Context, exam domain.Exam) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := examRow{ID: exam.ID, Title: exam.Title, DurationMinutes: exam.DurationMinutes}
		result, err := tx.NewUpdate().Model(&row).WherePK().Exec(ctx)
		if err != nil {
			return fmt.Errorf("update exam: %w", err)
		}
		if affected, err := result.RowsAffected(); err == nil && affected == 0 {
			return domain.ErrExamNotFound
		}
		if err := deleteQuestionsTx(ctx, tx, exam.ID); err != nil {
			return err
		}
		return insertQuestionsTx(ctx, tx, exam)
	})
}

// DeleteExam removes the exam and everything under it.
func (s *ExamStore) DeleteExam(ctx context.Context, examID string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := deleteQuestionsTx(ctx, tx, examID); err != nil {
			return err
		}
		result, err := tx.NewDelete().Model((*examRow)(nil)).Where("id = ?", examID).Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete exam: %w", err)
		}
		if affected, err := result.RowsAffected(); err == nil && affected == 0 {
			return domain.ErrExamNotFound
		}
		return nil
	})
}

// GetExam loads one exam with its questions and choices.
func (s *ExamStore) GetExam(ctx context.Context, examID string) (domain.Exam, error) {
	var row examRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", examID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Exam{}, domain.ErrExamNotFound
	}
	if err != nil {
		return domain.Exam{}, fmt.Errorf("select exam: %w", err)
	}
	exam := domain.Exam{ID: row.ID, Title: row.Title, DurationMinutes: row.DurationMinutes}

	var questionRows []questionRow
	if err := s.db.NewSelect().Model(&questionRows).
		Where("exam_id = ?", examID).
		Order("position", "id").
		Scan(ctx); err != nil {
		return domain.Exam{}, fmt.Errorf("select questions: %w", err)
	}
	for _, q := range questionRows {
		var choiceRows []choiceRow
		if err := s.db.NewSelect().Model(&choiceRows).
			Where("question_id = ?", q.ID).
			Order("position", "id").
			Scan(ctx); err != nil {
			return domain.Exam{}, fmt.Errorf("select choices: %w", err)
		}
		question := domain.Question{ID: q.ID, PromptHTML: q.PromptHTML, Points: q.Points}
		for _, c := range choiceRows {
			question.Choices = append(question.Choices, domain.Choice{
				ID:       c.ID,
				TextHTML: c.TextHTML,
				Correct:  c.IsCorrect,
			})
		}
		exam.Questions = append(exam.Questions, question)
	}
	return exam, nil
}

// ListExams returns exam metadata only (no question trees).
func (s *ExamStore) ListExams(ctx context.Context) ([]domain.Exam, error) {
	var rows []examRow
	if err := s.db.NewSelect().Model(&rows).Order("title", "id").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	exams := make([]domain.Exam, 0, len(rows))
	for _, row := range rows {
		exams = append(exams, domain.Exam{
			ID:              row.ID,
			Title:           row.Title,
			DurationMinutes: row.DurationMinutes,
		})
	}
	return exams, nil
}

func insertQuestionsTx(ctx context.Context, tx bun.Tx, exam domain.Exam) error {
	for qi, q := range exam.Questions {
		qRow := questionRow{
			ID:         q.ID,
			ExamID:     exam.ID,
			PromptHTML: q.PromptHTML,
			Points:     q.Points,
			Position:   qi,
		}
		if _, err := tx.NewInsert().Model(&qRow).Exec(ctx); err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
		for ci, c := range q.Choices {
			cRow := choiceRow{
				ID:         c.ID,
				QuestionID: q.ID,
				TextHTML:   c.TextHTML,
				IsCorrect:  c.Correct,
				Position:   ci,
			}
			if _, err := tx.NewInsert().Model(&cRow).Exec(ctx); err != nil {
				return fmt.Errorf("insert choice: %w", err)
			}
		}
	}
	return nil
}

func deleteQuestionsTx(ctx context.Context, tx bun.Tx, examID string) error {
	if _, err := tx.NewDelete().Model((*choiceRow)(nil)).
		Where("question_id IN (SELECT id FROM questions WHERE exam_id = ?)", examID).
		Exec(ctx); err != nil {
		return fmt.Errorf("delete choices: %w", err)
	}
	if _, err := tx.NewDelete().Model((*questionRow)(nil)).
		Where("exam_id = ?", examID).
		Exec(ctx); err != nil {
		return fmt.Errorf("delete questions: %w", err)
	}
	return nil
}
