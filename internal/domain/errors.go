package domain

import "errors"

var (
	// ErrExamNotFound indicates the exam content could not be loaded.
	ErrExamNotFound = errors.New("exam not found")
	// ErrSessionNotFound is returned when no exam session has been started.
	ErrSessionNotFound = errors.New("exam session not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrChoiceNotFound indicates a choice ID that does not belong to the question.
	ErrChoiceNotFound = errors.New("choice not found")
	// ErrTimeUp is returned when a mutation arrives after the countdown expired.
	ErrTimeUp = errors.New("time is up")
	// ErrSubmitInProgress guards against re-entering an in-flight submission.
	ErrSubmitInProgress = errors.New("submission already in progress")
	// ErrAlreadySubmitted is returned for any action on a finalized session.
	ErrAlreadySubmitted = errors.New("attempt already submitted")
	// ErrAtFirstQuestion rejects backward navigation from the first question.
	ErrAtFirstQuestion = errors.New("already at first question")
)
