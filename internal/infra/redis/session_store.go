package redis

import (
	"context"
	"sync"
	"time"

	"examdeck-session-service/internal/app"
	"github.com/redis/go-redis/v9"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Live sessions stay in a local map; the session's ticker and subscriber
//     channels are in-process constructs.
//   - Redis marks session liveness so operators can see active attempts
//     (and a future multi-instance setup could route on it).
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Put(examID, userID string, session *app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[s.mapKey(examID, userID)] = session
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(examID, userID), "1", s.ttl).Err()
}

func (s *SessionStore) Get(examID, userID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[s.mapKey(examID, userID)]
	return session, ok
}

func (s *SessionStore) Delete(examID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, s.mapKey(examID, userID))
	_ = s.client.Del(context.Background(), s.key(examID, userID)).Err()
}

func (s *SessionStore) mapKey(examID, userID string) string {
	return examID + "/" + userID
}

func (s *SessionStore) key(examID, userID string) string {
	return "exam:session:" + examID + ":" + userID
}
