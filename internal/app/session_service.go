package app

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"examdeck-session-service/internal/domain"
	"github.com/google/uuid"
)

// ExamRepository loads exam content (from cache/backing store).
type ExamRepository interface {
	GetExam(ctx context.Context, examID string) (domain.Exam, error)
}

// ProgressStore persists in-progress session snapshots for resumption,
// keyed by exam and user.
type ProgressStore interface {
	Save(ctx context.Context, examID, userID string, snap domain.ProgressSnapshot) error
	Load(ctx context.Context, examID, userID string) (domain.ProgressSnapshot, bool, error)
	Clear(ctx context.Context, examID, userID string) error
}

// AttemptStore persists finalized attempts.
type AttemptStore interface {
	SaveAttempt(ctx context.Context, attempt domain.Attempt) error
}

// SessionRepository abstracts how live sessions are tracked (in-memory, Redis-backed, etc).
type SessionRepository interface {
	Put(examID, userID string, session *Session)
	Get(examID, userID string) (*Session, bool)
	Delete(examID, userID string)
}

// SessionService owns the exam session use cases: start/resume, answer
// recording, navigation, the countdown, and submission.
type SessionService struct {
	exams    ExamRepository
	sessions SessionRepository
	progress ProgressStore
	attempts AttemptStore
	tick     time.Duration

	now func() time.Time

	rndMu sync.Mutex
	rnd   *rand.Rand
}

// NewSessionService wires the service with a one-second tick.
func NewSessionService(exams ExamRepository, sessions SessionRepository, progress ProgressStore, attempts AttemptStore) *SessionService {
	return NewSessionServiceWithTick(exams, sessions, progress, attempts, time.Second)
}

// NewSessionServiceWithTick allows a faster tick for tests.
func NewSessionServiceWithTick(exams ExamRepository, sessions SessionRepository, progress ProgressStore, attempts AttemptStore, tick time.Duration) *SessionService {
	return &SessionService{
		exams:    exams,
		sessions: sessions,
		progress: progress,
		attempts: attempts,
		tick:     tick,
		now:      time.Now,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start loads the exam, shuffles questions and choices once, restores a
// prior progress snapshot if one exists, and begins the countdown. A fresh
// session replaces any live session for the same exam and user.
func (svc *SessionService) Start(ctx context.Context, examID, userID string) (domain.SessionView, error) {
	exam, err := svc.exams.GetExam(ctx, examID)
	if err != nil {
		return domain.SessionView{}, err
	}

	if old, ok := svc.sessions.Get(examID, userID); ok {
		old.stopTicker()
		svc.sessions.Delete(examID, userID)
	}

	svc.rndMu.Lock()
	session := newSession(examID, userID, exam, svc.rnd)
	svc.rndMu.Unlock()

	snap, found, err := svc.progress.Load(ctx, examID, userID)
	if err != nil {
		log.Printf("load progress for exam %s: %v", examID, err)
	} else if found {
		if !session.restore(snap) {
			log.Printf("discarding stale progress snapshot for exam %s", examID)
		}
	}

	svc.sessions.Put(examID, userID, session)
	svc.persist(ctx, session)
	view := session.view()
	// The countdown only runs for a positive time budget; a session resumed
	// or loaded with nothing left must not auto-submit off the first tick.
	if svc.tick > 0 && view.TimeLeft > 0 {
		go svc.runTicker(session)
	}
	return view, nil
}

// runTicker is the sole background mutator of a session. It stops when the
// session is finalized or torn down.
func (svc *SessionService) runTicker(session *Session) {
	ticker := time.NewTicker(svc.tick)
	defer ticker.Stop()
	for {
		select {
		case <-session.stopTick:
			return
		case <-ticker.C:
			_, expired := session.tick()
			svc.persist(context.Background(), session)
			if expired {
				if err := svc.finalize(context.Background(), session); err != nil {
					log.Printf("auto-submit for exam %s: %v", session.examID, err)
				}
			}
		}
	}
}

// SelectAnswer records the user's choice for a question, overwriting any
// prior selection for it.
func (svc *SessionService) SelectAnswer(ctx context.Context, examID, userID, questionID, choiceID string) (domain.SessionView, error) {
	session, ok := svc.sessions.Get(examID, userID)
	if !ok {
		return domain.SessionView{}, domain.ErrSessionNotFound
	}
	view, err := session.selectAnswer(questionID, choiceID)
	if err != nil {
		return view, err
	}
	svc.persist(ctx, session)
	return view, nil
}

// Advance runs one step of the answer/review protocol and finalizes the
// attempt when the protocol allows it.
func (svc *SessionService) Advance(ctx context.Context, examID, userID string) (domain.SessionView, error) {
	session, ok := svc.sessions.Get(examID, userID)
	if !ok {
		return domain.SessionView{}, domain.ErrSessionNotFound
	}
	view, submitNeeded, err := session.advance()
	if err != nil {
		return view, err
	}
	svc.persist(ctx, session)
	if submitNeeded {
		if err := svc.finalize(ctx, session); err != nil {
			return session.view(), err
		}
	}
	return session.view(), nil
}

// Back moves the question pointer backwards.
func (svc *SessionService) Back(ctx context.Context, examID, userID string) (domain.SessionView, error) {
	session, ok := svc.sessions.Get(examID, userID)
	if !ok {
		return domain.SessionView{}, domain.ErrSessionNotFound
	}
	view, err := session.back()
	if err != nil {
		return view, err
	}
	svc.persist(ctx, session)
	return view, nil
}

// Subscribe returns a channel that receives session views for a live session.
// The caller must invoke the returned cancel function to avoid leaks.
func (svc *SessionService) Subscribe(_ context.Context, examID, userID string) (<-chan domain.SessionView, func(), error) {
	session, ok := svc.sessions.Get(examID, userID)
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	ch, cancel := session.subscribe()
	return ch, cancel, nil
}

// Detach drops the live session (progress stays persisted for resumption)
// and cancels its ticker.
func (svc *SessionService) Detach(examID, userID string) {
	session, ok := svc.sessions.Get(examID, userID)
	if !ok {
		return
	}
	session.stopTicker()
	svc.sessions.Delete(examID, userID)
}

// finalize persists the attempt exactly once. On failure the session phase
// is reverted and the progress snapshot retained so a retry can recover the
// recorded answers.
func (svc *SessionService) finalize(ctx context.Context, session *Session) error {
	attempt, err := session.beginSubmit()
	if err != nil {
		return err
	}
	attempt.ID = uuid.NewString()
	attempt.SubmittedAt = svc.now()

	if err := svc.attempts.SaveAttempt(ctx, attempt); err != nil {
		session.failSubmit()
		return fmt.Errorf("save attempt: %w", err)
	}
	// The session is already in the submitting phase, so no new progress
	// save can start; the fence waits out any save still in flight.
	session.persistMu.Lock()
	err = svc.progress.Clear(ctx, session.examID, session.userID)
	session.persistMu.Unlock()
	if err != nil {
		log.Printf("clear progress for exam %s: %v", session.examID, err)
	}
	session.completeSubmit(attempt.ID, attempt.Score)
	session.stopTicker()
	return nil
}

// persist writes the current progress snapshot, best-effort. It holds the
// session's persist fence for the duration of the store write; finalize takes
// the same fence before clearing, so a slow save started on an earlier tick
// can never resurrect progress for a finished attempt.
func (svc *SessionService) persist(ctx context.Context, session *Session) {
	session.persistMu.Lock()
	defer session.persistMu.Unlock()

	snap, ok := session.snapshot()
	if !ok {
		return
	}
	if err := svc.progress.Save(ctx, session.examID, session.userID, snap); err != nil {
		log.Printf("save progress for exam %s: %v", session.examID, err)
	}
}
