package memory

import (
	"context"
	"sync"

	"examdeck-session-service/internal/domain"
)

// ProgressStore keeps progress snapshots in memory (useful for tests/demos
// and for running without Redis; snapshots then survive reconnects but not
// process restarts).
type ProgressStore struct {
	mu        sync.RWMutex
	snapshots map[string]domain.ProgressSnapshot
}

func NewProgressStore() *ProgressStore {
	return &ProgressStore{snapshots: make(map[string]domain.ProgressSnapshot)}
}

func (s *ProgressStore) Save(_ context.Context, examID, userID string, snap domain.ProgressSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[progressKey(examID, userID)] = snap
	return nil
}

func (s *ProgressStore) Load(_ context.Context, examID, userID string) (domain.ProgressSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[progressKey(examID, userID)]
	return snap, ok, nil
}

func (s *ProgressStore) Clear(_ context.Context, examID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, progressKey(examID, userID))
	return nil
}

func progressKey(examID, userID string) string {
	return examID + "/" + userID
}
