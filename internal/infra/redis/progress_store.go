package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"examdeck-session-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ProgressStore persists progress snapshots as JSON values with a TTL, so an
// abandoned session eventually expires instead of lingering forever.
// Layout: SET exam:progress:{examID}:{userID} {json} EX ttl
type ProgressStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewProgressStore(client *redis.Client, ttl time.Duration) *ProgressStore {
	return &ProgressStore{client: client, ttl: ttl}
}

func (s *ProgressStore) Save(ctx context.Context, examID, userID string, snap domain.ProgressSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	return s.client.Set(ctx, s.key(examID, userID), raw, s.ttl).Err()
}

func (s *ProgressStore) Load(ctx context.Context, examID, userID string) (domain.ProgressSnapshot, bool, error) {
	raw, err := s.client.Get(ctx, s.key(examID, userID)).Bytes()
	if err == redis.Nil {
		return domain.ProgressSnapshot{}, false, nil
	}
	if err != nil {
		return domain.ProgressSnapshot{}, false, err
	}
	var snap domain.ProgressSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		// A corrupt or old-format snapshot is treated as absent.
		return domain.ProgressSnapshot{}, false, nil
	}
	return snap, true, nil
}

func (s *ProgressStore) Clear(ctx context.Context, examID, userID string) error {
	return s.client.Del(ctx, s.key(examID, userID)).Err()
}

func (s *ProgressStore) key(examID, userID string) string {
	return "exam:progress:" + examID + ":" + userID
}
