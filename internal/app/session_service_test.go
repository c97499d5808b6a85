package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"examdeck-session-service/internal/app"
	"examdeck-session-service/internal/domain"
	"examdeck-session-service/internal/infra/memory"
)

func serviceExam() domain.Exam {
	return domain.Exam{
		ID:              "exam-1",
		Title:           "Service exam",
		DurationMinutes: 1,
		Questions: []domain.Question{
			{
				ID: "q1", PromptHTML: "<p>one</p>", Points: 1,
				Choices: []domain.Choice{
					{ID: "q1-right", TextHTML: "right", Correct: true},
					{ID: "q1-wrong", TextHTML: "wrong", Correct: false},
				},
			},
			{
				ID: "q2", PromptHTML: "<p>two</p>", Points: 2,
				Choices: []domain.Choice{
					{ID: "q2-right", TextHTML: "right", Correct: true},
					{ID: "q2-wrong", TextHTML: "wrong", Correct: false},
				},
			},
			{
				ID: "q3", PromptHTML: "<p>three</p>", Points: 1,
				Choices: []domain.Choice{
					{ID: "q3-right", TextHTML: "right", Correct: true},
					{ID: "q3-wrong", TextHTML: "wrong", Correct: false},
				},
			},
		},
	}
}

type testEnv struct {
	service  *app.SessionService
	progress *memory.ProgressStore
	attempts *memory.AttemptStore
}

// newTestEnv builds a service without a ticker so tests stay deterministic.
func newTestEnv(attempts app.AttemptStore) testEnv {
	progress := memory.NewProgressStore()
	memAttempts, _ := attempts.(*memory.AttemptStore)
	examRepo := memory.NewExamRepository(memory.NewStaticExamLoader(map[string]domain.Exam{
		"exam-1": serviceExam(),
	}), time.Minute)
	service := app.NewSessionServiceWithTick(examRepo, memory.NewSessionStore(), progress, attempts, 0)
	return testEnv{service: service, progress: progress, attempts: memAttempts}
}

// rightChoice maps a question ID from a view to its correct choice ID;
// the test exam encodes correctness in the IDs.
func rightChoice(questionID string) string {
	return questionID + "-right"
}

func TestStartUnknownExam(t *testing.T) {
	env := newTestEnv(memory.NewAttemptStore())
	if _, err := env.service.Start(context.Background(), "missing", "u1"); !errors.Is(err, domain.ErrExamNotFound) {
		t.Fatalf("expected exam-not-found, got %v", err)
	}
}

func TestFullSessionWithReview(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(memory.NewAttemptStore())

	view, err := env.service.Start(ctx, "exam-1", "u1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if view.TotalQuestions != 3 || view.TimeLeft != 60 {
		t.Fatalf("unexpected initial view %+v", view)
	}

	// Answer the first question, skip the second, answer the third.
	if _, err := env.service.SelectAnswer(ctx, "exam-1", "u1", view.Question.ID, rightChoice(view.Question.ID)); err != nil {
		t.Fatalf("answer: %v", err)
	}
	view, err = env.service.Advance(ctx, "exam-1", "u1")
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	skippedID := view.Question.ID
	view, err = env.service.Advance(ctx, "exam-1", "u1")
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if _, err := env.service.SelectAnswer(ctx, "exam-1", "u1", view.Question.ID, rightChoice(view.Question.ID)); err != nil {
		t.Fatalf("answer: %v", err)
	}

	// Advancing from the last question must enter review on the skipped one,
	// never submit directly.
	view, err = env.service.Advance(ctx, "exam-1", "u1")
	if err != nil {
		t.Fatalf("advance into review: %v", err)
	}
	if view.Phase != domain.PhaseReviewing || view.Question.ID != skippedID {
		t.Fatalf("expected review of %s, got %+v", skippedID, view)
	}
	if len(env.attempts.Attempts()) != 0 {
		t.Fatalf("premature submission")
	}

	if _, err := env.service.SelectAnswer(ctx, "exam-1", "u1", skippedID, rightChoice(skippedID)); err != nil {
		t.Fatalf("answer in review: %v", err)
	}
	view, err = env.service.Advance(ctx, "exam-1", "u1")
	if err != nil {
		t.Fatalf("final advance: %v", err)
	}
	if view.Phase != domain.PhaseDone || view.AttemptID == "" {
		t.Fatalf("expected finalized view, got %+v", view)
	}
	if view.Score != 4 {
		t.Fatalf("expected score 4, got %d", view.Score)
	}

	attempts := env.attempts.Attempts()
	if len(attempts) != 1 {
		t.Fatalf("expected one attempt, got %d", len(attempts))
	}
	if attempts[0].Score != 4 || len(attempts[0].Answers) != 3 {
		t.Fatalf("unexpected attempt %+v", attempts[0])
	}
	if _, found, _ := env.progress.Load(ctx, "exam-1", "u1"); found {
		t.Fatalf("progress must be cleared after successful submission")
	}
}

func TestResumeRestoresProgress(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(memory.NewAttemptStore())

	view, err := env.service.Start(ctx, "exam-1", "u1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	firstID := view.Question.ID
	if _, err := env.service.SelectAnswer(ctx, "exam-1", "u1", firstID, rightChoice(firstID)); err != nil {
		t.Fatalf("answer: %v", err)
	}
	view, err = env.service.Advance(ctx, "exam-1", "u1")
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	secondID := view.Question.ID
	env.service.Detach("exam-1", "u1")

	// Restart resumes from the snapshot: same index, same logical question,
	// the recorded answer intact.
	view, err = env.service.Start(ctx, "exam-1", "u1")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if view.CurrentIndex != 1 || view.Question.ID != secondID {
		t.Fatalf("expected resume on %s at index 1, got %+v", secondID, view)
	}
	if view.Answered != 1 {
		t.Fatalf("expected one recorded answer after resume, got %d", view.Answered)
	}
}

func TestResumeRestoresSavedFields(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(memory.NewAttemptStore())

	// Seed a snapshot directly, the way a prior session would have left it.
	snap := domain.ProgressSnapshot{
		Version:       domain.ProgressSnapshotVersion,
		Answers:       map[string]string{"q1": "q1-right"},
		CurrentIndex:  2,
		TimeLeft:      120,
		QuestionOrder: []string{"q3", "q2", "q1"},
		ChoiceOrder: map[string][]string{
			"q1": {"q1-wrong", "q1-right"},
			"q2": {"q2-right", "q2-wrong"},
			"q3": {"q3-wrong", "q3-right"},
		},
	}
	if err := env.progress.Save(ctx, "exam-1", "u1", snap); err != nil {
		t.Fatalf("seed progress: %v", err)
	}

	view, err := env.service.Start(ctx, "exam-1", "u1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if view.CurrentIndex != 2 || view.TimeLeft != 120 {
		t.Fatalf("expected index 2 and 120s restored, got %+v", view)
	}
	if view.Question.ID != "q1" {
		t.Fatalf("expected persisted order to place q1 at index 2, got %s", view.Question.ID)
	}
	if view.SelectedID != "q1-right" {
		t.Fatalf("expected restored answer, got %q", view.SelectedID)
	}
	if view.Question.Choices[0].ID != "q1-wrong" {
		t.Fatalf("expected persisted choice order, got %+v", view.Question.Choices)
	}
}

// flakyAttemptStore fails the first save, then delegates.
type flakyAttemptStore struct {
	inner    *memory.AttemptStore
	failures int
}

func (s *flakyAttemptStore) SaveAttempt(ctx context.Context, attempt domain.Attempt) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("backend unavailable")
	}
	return s.inner.SaveAttempt(ctx, attempt)
}

func TestSubmissionFailureKeepsProgress(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewAttemptStore()
	flaky := &flakyAttemptStore{inner: inner, failures: 1}
	env := newTestEnv(flaky)

	view, err := env.service.Start(ctx, "exam-1", "u1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := env.service.SelectAnswer(ctx, "exam-1", "u1", view.Question.ID, rightChoice(view.Question.ID)); err != nil {
			t.Fatalf("answer: %v", err)
		}
		if i < 2 {
			view, err = env.service.Advance(ctx, "exam-1", "u1")
			if err != nil {
				t.Fatalf("advance: %v", err)
			}
		}
	}

	// First submission attempt fails; progress stays for a retry.
	if _, err := env.service.Advance(ctx, "exam-1", "u1"); err == nil {
		t.Fatalf("expected submission failure")
	}
	if _, found, _ := env.progress.Load(ctx, "exam-1", "u1"); !found {
		t.Fatalf("progress must survive a failed submission")
	}
	if len(inner.Attempts()) != 0 {
		t.Fatalf("no attempt should be stored on failure")
	}

	// Manual retry succeeds exactly once.
	view, err = env.service.Advance(ctx, "exam-1", "u1")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if view.Phase != domain.PhaseDone {
		t.Fatalf("expected done after retry, got %+v", view)
	}
	if len(inner.Attempts()) != 1 {
		t.Fatalf("expected exactly one attempt, got %d", len(inner.Attempts()))
	}
	if _, found, _ := env.progress.Load(ctx, "exam-1", "u1"); found {
		t.Fatalf("progress must be cleared after the successful retry")
	}
}

func TestAutoSubmitOnTimeUp(t *testing.T) {
	ctx := context.Background()
	progress := memory.NewProgressStore()
	attempts := memory.NewAttemptStore()
	examRepo := memory.NewExamRepository(memory.NewStaticExamLoader(map[string]domain.Exam{
		"exam-1": serviceExam(),
	}), time.Minute)
	// Millisecond ticks drain the 60-second budget quickly; each tick still
	// decrements exactly one second of budget.
	service := app.NewSessionServiceWithTick(examRepo, memory.NewSessionStore(), progress, attempts, time.Millisecond)

	if _, err := service.Start(ctx, "exam-1", "u1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer service.Detach("exam-1", "u1")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(attempts.Attempts()) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := len(attempts.Attempts()); got != 1 {
		t.Fatalf("expected exactly one auto-submitted attempt, got %d", got)
	}

	// Extra ticks after expiry must not submit again.
	time.Sleep(50 * time.Millisecond)
	if got := len(attempts.Attempts()); got != 1 {
		t.Fatalf("expected no duplicate submission, got %d", got)
	}
	if attempt := attempts.Attempts()[0]; attempt.Score != 0 || len(attempt.Answers) != 0 {
		t.Fatalf("expected empty attempt on timeout, got %+v", attempt)
	}
}

// laggedProgressStore delays every save, leaving it in flight while other
// goroutines move the session forward.
type laggedProgressStore struct {
	inner *memory.ProgressStore
	lag   time.Duration
}

func (s *laggedProgressStore) Save(ctx context.Context, examID, userID string, snap domain.ProgressSnapshot) error {
	time.Sleep(s.lag)
	return s.inner.Save(ctx, examID, userID, snap)
}

func (s *laggedProgressStore) Load(ctx context.Context, examID, userID string) (domain.ProgressSnapshot, bool, error) {
	return s.inner.Load(ctx, examID, userID)
}

func (s *laggedProgressStore) Clear(ctx context.Context, examID, userID string) error {
	return s.inner.Clear(ctx, examID, userID)
}

func TestTickerSaveCannotResurrectClearedProgress(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewProgressStore()
	lagged := &laggedProgressStore{inner: inner, lag: 5 * time.Millisecond}
	attempts := memory.NewAttemptStore()
	exam := domain.Exam{
		ID: "exam-quick", Title: "Quick exam", DurationMinutes: 1,
		Questions: []domain.Question{{
			ID: "q1", PromptHTML: "<p>one</p>", Points: 1,
			Choices: []domain.Choice{
				{ID: "q1-right", TextHTML: "right", Correct: true},
				{ID: "q1-wrong", TextHTML: "wrong", Correct: false},
			},
		}},
	}
	examRepo := memory.NewExamRepository(memory.NewStaticExamLoader(map[string]domain.Exam{
		"exam-quick": exam,
	}), time.Minute)
	service := app.NewSessionServiceWithTick(examRepo, memory.NewSessionStore(), lagged, attempts, time.Millisecond)

	// Submit repeatedly while the ticker keeps slow saves in flight; a save
	// started before finalization must never land after the clear.
	for i := 0; i < 25; i++ {
		view, err := service.Start(ctx, "exam-quick", "u1")
		if err != nil {
			t.Fatalf("iteration %d: start: %v", i, err)
		}
		if _, err := service.SelectAnswer(ctx, "exam-quick", "u1", view.Question.ID, rightChoice(view.Question.ID)); err != nil {
			t.Fatalf("iteration %d: answer: %v", i, err)
		}
		view, err = service.Advance(ctx, "exam-quick", "u1")
		if err != nil {
			t.Fatalf("iteration %d: submit: %v", i, err)
		}
		if view.Phase != domain.PhaseDone {
			t.Fatalf("iteration %d: expected done, got %+v", i, view)
		}
		service.Detach("exam-quick", "u1")

		time.Sleep(3 * lagged.lag) // let any straggler save land
		if _, found, _ := inner.Load(ctx, "exam-quick", "u1"); found {
			t.Fatalf("iteration %d: progress reappeared after successful submission", i)
		}
	}
}

func TestZeroDurationExamDoesNotAutoSubmit(t *testing.T) {
	ctx := context.Background()
	progress := memory.NewProgressStore()
	attempts := memory.NewAttemptStore()
	exam := serviceExam()
	exam.DurationMinutes = 0
	examRepo := memory.NewExamRepository(memory.NewStaticExamLoader(map[string]domain.Exam{
		"exam-1": exam,
	}), time.Minute)
	service := app.NewSessionServiceWithTick(examRepo, memory.NewSessionStore(), progress, attempts, time.Millisecond)

	view, err := service.Start(ctx, "exam-1", "u1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer service.Detach("exam-1", "u1")
	if view.Phase != domain.PhaseAnswering || view.TimeUp {
		t.Fatalf("unexpected initial view %+v", view)
	}

	// Without a time budget there is no countdown; nothing may fire.
	time.Sleep(50 * time.Millisecond)
	if got := len(attempts.Attempts()); got != 0 {
		t.Fatalf("expected no auto-submitted attempt, got %d", got)
	}
}

func TestSubscribeReceivesViews(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(memory.NewAttemptStore())

	if _, err := env.service.Start(ctx, "exam-1", "u1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	ch, cancel, err := env.service.Subscribe(ctx, "exam-1", "u1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	initial := <-ch
	if _, err := env.service.SelectAnswer(ctx, "exam-1", "u1", initial.Question.ID, rightChoice(initial.Question.ID)); err != nil {
		t.Fatalf("answer: %v", err)
	}

	update := <-ch
	if update.Answered != 1 || update.SelectedID != rightChoice(initial.Question.ID) {
		t.Fatalf("expected answer reflected in update, got %+v", update)
	}
}
