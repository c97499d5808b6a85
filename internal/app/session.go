package app

import (
	"fmt"
	"math/rand"
	"sync"

	"examdeck-session-service/internal/domain"
)

// Session holds the state of one in-progress exam attempt. All state lives
// behind the mutex; the per-second ticker goroutine is the only mutator
// besides direct user actions.
type Session struct {
	examID string
	userID string

	mu        sync.Mutex
	questions []domain.Question // shuffled once at load
	answers   map[string]string // questionID -> choiceID, at most one entry each
	current   int
	timeLeft  int
	phase     domain.Phase
	prevPhase domain.Phase // phase to return to if a submission fails

	reviewQueue []int
	reviewPos   int

	timeUp    bool
	attemptID string
	score     int

	subscribers map[chan domain.SessionView]struct{}

	// persistMu serializes progress writes against the clear that follows a
	// successful submission, so an in-flight tick save cannot land after it.
	persistMu sync.Mutex

	stopTick chan struct{}
	stopOnce sync.Once
}

func newSession(examID, userID string, exam domain.Exam, rnd *rand.Rand) *Session {
	questions := shuffleExam(exam, rnd)
	return &Session{
		examID:      examID,
		userID:      userID,
		questions:   questions,
		answers:     make(map[string]string),
		timeLeft:    exam.DurationMinutes * 60,
		phase:       domain.PhaseAnswering,
		subscribers: make(map[chan domain.SessionView]struct{}),
		stopTick:    make(chan struct{}),
	}
}

// stopTicker cancels the session's ticker goroutine. Safe to call more than
// once; required on submit completion and on teardown so no orphaned tick
// mutates state after the session is gone.
func (s *Session) stopTicker() {
	s.stopOnce.Do(func() { close(s.stopTick) })
}

// shuffleExam applies a uniform random permutation to the question sequence
// and, independently, to each question's choices. Runs exactly once per load.
func shuffleExam(exam domain.Exam, rnd *rand.Rand) []domain.Question {
	questions := make([]domain.Question, len(exam.Questions))
	copy(questions, exam.Questions)
	rnd.Shuffle(len(questions), func(i, j int) {
		questions[i], questions[j] = questions[j], questions[i]
	})
	for qi := range questions {
		choices := make([]domain.Choice, len(questions[qi].Choices))
		copy(choices, questions[qi].Choices)
		rnd.Shuffle(len(choices), func(i, j int) {
			choices[i], choices[j] = choices[j], choices[i]
		})
		questions[qi].Choices = choices
	}
	return questions
}

// restore applies a saved progress snapshot. The persisted question and
// choice order replace the fresh shuffle so the restored index lands on the
// same logical question it pointed at when the snapshot was written.
// Snapshots with a different schema version or a question set that no longer
// matches the exam are discarded.
func (s *Session) restore(snap domain.ProgressSnapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.Version != domain.ProgressSnapshotVersion {
		return false
	}
	if len(snap.QuestionOrder) != len(s.questions) {
		return false
	}
	byID := make(map[string]domain.Question, len(s.questions))
	for _, q := range s.questions {
		byID[q.ID] = q
	}
	restored := make([]domain.Question, 0, len(snap.QuestionOrder))
	for _, id := range snap.QuestionOrder {
		q, ok := byID[id]
		if !ok {
			return false
		}
		restored = append(restored, reorderChoices(q, snap.ChoiceOrder[id]))
	}
	s.questions = restored

	s.answers = make(map[string]string, len(snap.Answers))
	for qID, cID := range snap.Answers {
		if _, ok := byID[qID]; ok {
			s.answers[qID] = cID
		}
	}
	s.current = snap.CurrentIndex
	if s.current < 0 || s.current >= len(s.questions) {
		s.current = 0
	}
	s.timeLeft = snap.TimeLeft
	if s.timeLeft <= 0 {
		// The clock had run out by the time this snapshot was written; the
		// only action left after resume is retrying the submission.
		s.timeLeft = 0
		s.timeUp = true
	}
	return true
}

func reorderChoices(q domain.Question, order []string) domain.Question {
	if len(order) != len(q.Choices) {
		return q
	}
	byID := make(map[string]domain.Choice, len(q.Choices))
	for _, c := range q.Choices {
		byID[c.ID] = c
	}
	choices := make([]domain.Choice, 0, len(order))
	for _, id := range order {
		c, ok := byID[id]
		if !ok {
			return q
		}
		choices = append(choices, c)
	}
	q.Choices = choices
	return q
}

// selectAnswer records the choice for a question, replacing any prior
// selection. Rejected once the countdown has expired.
func (s *Session) selectAnswer(questionID, choiceID string) (domain.SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guardMutableLocked(); err != nil {
		return s.viewLocked(), err
	}

	var question *domain.Question
	for i := range s.questions {
		if s.questions[i].ID == questionID {
			question = &s.questions[i]
			break
		}
	}
	if question == nil {
		return s.viewLocked(), domain.ErrQuestionNotFound
	}
	found := false
	for _, c := range question.Choices {
		if c.ID == choiceID {
			found = true
			break
		}
	}
	if !found {
		return s.viewLocked(), domain.ErrChoiceNotFound
	}

	s.answers[questionID] = choiceID
	return s.broadcastLocked(), nil
}

// advance moves the session forward through the answering and review phases.
// It reports submitNeeded=true when the protocol has reached the point where
// the attempt must be finalized; the caller owns the submission I/O.
func (s *Session) advance() (view domain.SessionView, submitNeeded bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case domain.PhaseDone:
		return s.viewLocked(), false, domain.ErrAlreadySubmitted
	case domain.PhaseSubmitting:
		return s.viewLocked(), false, domain.ErrSubmitInProgress
	}

	// After time-up the only remaining action is retrying the submission.
	if s.timeUp {
		return s.viewLocked(), true, nil
	}

	switch s.phase {
	case domain.PhaseAnswering:
		if s.current < len(s.questions)-1 {
			s.current++
			return s.broadcastLocked(), false, nil
		}
		unanswered := s.unansweredLocked()
		if len(unanswered) == 0 {
			return s.viewLocked(), true, nil
		}
		s.phase = domain.PhaseReviewing
		s.reviewQueue = unanswered
		s.reviewPos = 0
		s.current = unanswered[0]
		return s.broadcastLocked(), false, nil

	case domain.PhaseReviewing:
		// The snapshot may contain questions answered since it was taken;
		// skip those when walking forward.
		for pos := s.reviewPos + 1; pos < len(s.reviewQueue); pos++ {
			idx := s.reviewQueue[pos]
			if _, answered := s.answers[s.questions[idx].ID]; !answered {
				s.reviewPos = pos
				s.current = idx
				return s.broadcastLocked(), false, nil
			}
		}
		// Snapshot exhausted; re-check globally before allowing submission.
		unanswered := s.unansweredLocked()
		if len(unanswered) == 0 {
			return s.viewLocked(), true, nil
		}
		s.reviewQueue = unanswered
		s.reviewPos = 0
		s.current = unanswered[0]
		return s.broadcastLocked(), false, nil
	}

	return s.viewLocked(), false, fmt.Errorf("advance in unexpected phase %q", s.phase)
}

// back moves the pointer one question backwards without changing phase.
func (s *Session) back() (domain.SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guardMutableLocked(); err != nil {
		return s.viewLocked(), err
	}
	if s.current == 0 {
		return s.viewLocked(), domain.ErrAtFirstQuestion
	}
	s.current--
	return s.broadcastLocked(), nil
}

// tick decrements the countdown by one second. It reports expired=true on
// the single transition to zero; repeated ticks after that are no-ops, so
// the auto-submit fires exactly once.
func (s *Session) tick() (view domain.SessionView, expired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == domain.PhaseDone || s.phase == domain.PhaseSubmitting || s.timeUp {
		return s.viewLocked(), false
	}
	if s.timeLeft > 0 {
		s.timeLeft--
	}
	if s.timeLeft == 0 {
		s.timeUp = true
		return s.broadcastLocked(), true
	}
	return s.broadcastLocked(), false
}

// beginSubmit scores the recorded answers and moves the session into the
// submitting phase. The returned attempt has no ID or timestamp yet; the
// service assigns those before persisting.
func (s *Session) beginSubmit() (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case domain.PhaseDone:
		return domain.Attempt{}, domain.ErrAlreadySubmitted
	case domain.PhaseSubmitting:
		return domain.Attempt{}, domain.ErrSubmitInProgress
	}

	attempt := domain.Attempt{
		ExamID: s.examID,
		UserID: s.userID,
	}
	for _, q := range s.questions {
		choiceID, answered := s.answers[q.ID]
		if !answered {
			continue
		}
		record := domain.AnswerRecord{QuestionID: q.ID, ChoiceID: choiceID}
		for _, c := range q.Choices {
			if c.ID == choiceID && c.Correct {
				record.Correct = true
				record.Awarded = q.Points
				if record.Awarded == 0 {
					record.Awarded = 1
				}
				attempt.Score += record.Awarded
				break
			}
		}
		attempt.Answers = append(attempt.Answers, record)
	}

	s.prevPhase = s.phase
	s.phase = domain.PhaseSubmitting
	s.broadcastLocked()
	return attempt, nil
}

// failSubmit returns the session to its pre-submit phase so the user can
// retry; recorded answers are untouched.
func (s *Session) failSubmit() domain.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == domain.PhaseSubmitting {
		s.phase = s.prevPhase
	}
	return s.broadcastLocked()
}

// completeSubmit finalizes the session after the attempt was persisted.
func (s *Session) completeSubmit(attemptID string, score int) domain.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = domain.PhaseDone
	s.attemptID = attemptID
	s.score = score
	return s.broadcastLocked()
}

func (s *Session) guardMutableLocked() error {
	switch s.phase {
	case domain.PhaseDone:
		return domain.ErrAlreadySubmitted
	case domain.PhaseSubmitting:
		return domain.ErrSubmitInProgress
	}
	if s.timeUp {
		return domain.ErrTimeUp
	}
	return nil
}

func (s *Session) unansweredLocked() []int {
	var indices []int
	for i, q := range s.questions {
		if _, ok := s.answers[q.ID]; !ok {
			indices = append(indices, i)
		}
	}
	return indices
}

// snapshot captures the persistable progress record. It reports ok=false
// once submission has begun: from that point the attempt record is the
// source of truth and no new progress may be written.
func (s *Session) snapshot() (domain.ProgressSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == domain.PhaseSubmitting || s.phase == domain.PhaseDone {
		return domain.ProgressSnapshot{}, false
	}

	answers := make(map[string]string, len(s.answers))
	for k, v := range s.answers {
		answers[k] = v
	}
	order := make([]string, 0, len(s.questions))
	choiceOrder := make(map[string][]string, len(s.questions))
	for _, q := range s.questions {
		order = append(order, q.ID)
		ids := make([]string, 0, len(q.Choices))
		for _, c := range q.Choices {
			ids = append(ids, c.ID)
		}
		choiceOrder[q.ID] = ids
	}
	return domain.ProgressSnapshot{
		Version:       domain.ProgressSnapshotVersion,
		Answers:       answers,
		CurrentIndex:  s.current,
		TimeLeft:      s.timeLeft,
		QuestionOrder: order,
		ChoiceOrder:   choiceOrder,
	}, true
}

// subscribe returns a channel receiving session views. The caller must
// invoke the returned cancel function to avoid leaks.
func (s *Session) subscribe() (<-chan domain.SessionView, func()) {
	ch := make(chan domain.SessionView, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	initial := s.viewLocked()
	s.mu.Unlock()

	ch <- initial

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcastLocked() domain.SessionView {
	view := s.viewLocked()
	for ch := range s.subscribers {
		select {
		case ch <- view:
		default:
			// Drop the stale update so a slow reader never blocks the session.
			select {
			case <-ch:
			default:
			}
			ch <- view
		}
	}
	return view
}

func (s *Session) view() domain.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() domain.SessionView {
	view := domain.SessionView{
		ExamID:         s.examID,
		Phase:          s.phase,
		CurrentIndex:   s.current,
		TotalQuestions: len(s.questions),
		Answered:       len(s.answers),
		TimeLeft:       s.timeLeft,
		TimeDisplay:    formatTimeLeft(s.timeLeft),
		TimeUp:         s.timeUp,
		AttemptID:      s.attemptID,
		Score:          s.score,
	}
	if s.current >= 0 && s.current < len(s.questions) {
		q := s.questions[s.current]
		view.Question = questionView(q)
		view.SelectedID = s.answers[q.ID]
	}
	return view
}

// questionView strips correctness flags before anything reaches a client.
func questionView(q domain.Question) domain.QuestionView {
	choices := make([]domain.ChoiceView, 0, len(q.Choices))
	for _, c := range q.Choices {
		choices = append(choices, domain.ChoiceView{ID: c.ID, TextHTML: c.TextHTML})
	}
	return domain.QuestionView{
		ID:         q.ID,
		PromptHTML: q.PromptHTML,
		Points:     q.Points,
		Choices:    choices,
	}
}

func formatTimeLeft(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
