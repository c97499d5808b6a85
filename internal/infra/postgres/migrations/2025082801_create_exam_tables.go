package migrations

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

const createExamTablesSQL = `
CREATE TABLE IF NOT EXISTS exams (
    id               TEXT PRIMARY KEY,
    title            TEXT NOT NULL DEFAULT '',
    duration_minutes INT  NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS questions (
    id          TEXT PRIMARY KEY,
    exam_id     TEXT NOT NULL REFERENCES exams(id),
    prompt_html TEXT NOT NULL DEFAULT '',
    points      INT  NOT NULL DEFAULT 1,
    position    INT  NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS questions_exam_id_idx ON questions (exam_id);

CREATE TABLE IF NOT EXISTS choices (
    id          TEXT PRIMARY KEY,
    question_id TEXT NOT NULL REFERENCES questions(id),
    text_html   TEXT NOT NULL DEFAULT '',
    is_correct  BOOLEAN NOT NULL DEFAULT FALSE,
    position    INT  NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS choices_question_id_idx ON choices (question_id);

CREATE TABLE IF NOT EXISTS attempts (
    id           TEXT PRIMARY KEY,
    exam_id      TEXT NOT NULL,
    user_id      TEXT NOT NULL,
    score        INT  NOT NULL DEFAULT 0,
    submitted_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS attempts_exam_user_idx ON attempts (exam_id, user_id);

CREATE TABLE IF NOT EXISTS attempt_answers (
    attempt_id  TEXT NOT NULL REFERENCES attempts(id),
    question_id TEXT NOT NULL,
    choice_id   TEXT NOT NULL,
    is_correct  BOOLEAN NOT NULL DEFAULT FALSE,
    awarded     INT  NOT NULL DEFAULT 0,
    PRIMARY KEY (attempt_id, question_id)
);
`

const dropExamTablesSQL = `
DROP TABLE IF EXISTS attempt_answers;
DROP TABLE IF EXISTS attempts;
DROP TABLE IF EXISTS choices;
DROP TABLE IF EXISTS questions;
DROP TABLE IF EXISTS exams;
`

var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createExamTablesSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, dropExamTablesSQL)
			return err
		},
	)
}
