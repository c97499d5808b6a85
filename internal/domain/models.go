package domain

import "time"

// Choice represents one selectable option for a question. The Correct flag
// never leaves the server before an attempt is submitted.
type Choice struct {
	ID       string `json:"id"`
	TextHTML string `json:"textHtml"`
	Correct  bool   `json:"correct"`
}

// Question models a single-answer question with a rich-text body.
type Question struct {
	ID         string   `json:"id"`
	PromptHTML string   `json:"promptHtml"`
	Points     int      `json:"points"` // defaults to 1 if zero
	Choices    []Choice `json:"choices"`
}

// Exam is a named collection of questions with a time limit.
type Exam struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	DurationMinutes int        `json:"durationMinutes"`
	Questions       []Question `json:"questions"`
}

// AnswerRecord captures how a single question was answered in a finalized attempt.
type AnswerRecord struct {
	QuestionID string `json:"questionId"`
	ChoiceID   string `json:"choiceId"`
	Correct    bool   `json:"correct"`
	Awarded    int    `json:"awarded"`
}

// Attempt is one finalized, scored submission of answers for an exam.
type Attempt struct {
	ID          string         `json:"id"`
	ExamID      string         `json:"examId"`
	UserID      string         `json:"userId"`
	Score       int            `json:"score"`
	SubmittedAt time.Time      `json:"submittedAt"`
	Answers     []AnswerRecord `json:"answers"`
}

// ProgressSnapshotVersion is bumped whenever the snapshot layout changes;
// stores discard snapshots written under a different version.
const ProgressSnapshotVersion = 1

// ProgressSnapshot is the serialized in-progress session state saved for
// resumption. Question and choice order are persisted so that a restored
// CurrentIndex points at the same logical question it did when saved.
type ProgressSnapshot struct {
	Version       int                 `json:"version"`
	Answers       map[string]string   `json:"answers"`
	CurrentIndex  int                 `json:"currentIndex"`
	TimeLeft      int                 `json:"timeLeft"`
	QuestionOrder []string            `json:"questionOrder"`
	ChoiceOrder   map[string][]string `json:"choiceOrder"`
}

// Phase is the session's position in the answer/review/submit protocol.
type Phase string

const (
	PhaseAnswering  Phase = "answering"
	PhaseReviewing  Phase = "reviewing"
	PhaseSubmitting Phase = "submitting"
	PhaseDone       Phase = "done"
)

// ChoiceView is a client-safe projection of a Choice, without the correctness flag.
type ChoiceView struct {
	ID       string `json:"id"`
	TextHTML string `json:"textHtml"`
}

// QuestionView is a client-safe projection of a Question.
type QuestionView struct {
	ID         string       `json:"id"`
	PromptHTML string       `json:"promptHtml"`
	Points     int          `json:"points"`
	Choices    []ChoiceView `json:"choices"`
}

// SessionView is the snapshot pushed to clients after every state change.
type SessionView struct {
	ExamID         string       `json:"examId"`
	Phase          Phase        `json:"phase"`
	CurrentIndex   int          `json:"currentIndex"`
	TotalQuestions int          `json:"totalQuestions"`
	Question       QuestionView `json:"question"`
	SelectedID     string       `json:"selectedChoiceId,omitempty"`
	Answered       int          `json:"answered"`
	TimeLeft       int          `json:"timeLeft"`
	TimeDisplay    string       `json:"timeDisplay"`
	TimeUp         bool         `json:"timeUp"`
	AttemptID      string       `json:"attemptId,omitempty"`
	Score          int          `json:"score,omitempty"`
}
