package memory

import (
	"context"
	"testing"

	"examdeck-session-service/internal/domain"
)

func TestProgressStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewProgressStore()

	if _, found, err := store.Load(ctx, "exam-1", "u1"); err != nil || found {
		t.Fatalf("expected empty store, found=%v err=%v", found, err)
	}

	snap := domain.ProgressSnapshot{
		Version:       domain.ProgressSnapshotVersion,
		Answers:       map[string]string{"q1": "c2"},
		CurrentIndex:  3,
		TimeLeft:      120,
		QuestionOrder: []string{"q2", "q1"},
	}
	if err := store.Save(ctx, "exam-1", "u1", snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, found, err := store.Load(ctx, "exam-1", "u1")
	if err != nil || !found {
		t.Fatalf("load: found=%v err=%v", found, err)
	}
	if got.CurrentIndex != 3 || got.TimeLeft != 120 || got.Answers["q1"] != "c2" {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	// Scoped per exam and user.
	if _, found, _ := store.Load(ctx, "exam-1", "u2"); found {
		t.Fatalf("snapshot leaked across users")
	}

	if err := store.Clear(ctx, "exam-1", "u1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, found, _ := store.Load(ctx, "exam-1", "u1"); found {
		t.Fatalf("expected snapshot cleared")
	}
}
