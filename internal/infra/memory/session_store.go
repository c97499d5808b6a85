package memory

import (
	"sync"

	"examdeck-session-service/internal/app"
)

// SessionStore is an in-memory implementation of app.SessionRepository,
// keyed by exam and user.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Put(examID, userID string, session *app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionKey(examID, userID)] = session
}

func (s *SessionStore) Get(examID, userID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionKey(examID, userID)]
	return session, ok
}

func (s *SessionStore) Delete(examID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionKey(examID, userID))
}

func sessionKey(examID, userID string) string {
	return examID + "/" + userID
}
