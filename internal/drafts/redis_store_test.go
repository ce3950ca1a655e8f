package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://"+s.Addr(), time.Hour)
	if err != nil {
		t.Fatalf("failed to create draft store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, s
}

func TestSaveAndLoadDraft(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	canvas := json.RawMessage(`{"layers":[{"id":"l1"}]}`)
	if err := store.Save(ctx, "design-1", "user-1", canvas); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	draft, err := store.Load(ctx, "design-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if draft.ParticipantID != "user-1" {
		t.Errorf("participant = %s, want user-1", draft.ParticipantID)
	}
	if string(draft.Canvas) != string(canvas) {
		t.Errorf("canvas = %s, want %s", draft.Canvas, canvas)
	}
	if draft.SavedAt.IsZero() {
		t.Error("SavedAt not set")
	}
}

func TestLoadMissingDraft(t *testing.T) {
	store, _ := setupTestStore(t)
	if _, err := store.Load(context.Background(), "nope"); !errors.Is(err, ErrNoDraft) {
		t.Errorf("Load of missing draft = %v, want ErrNoDraft", err)
	}
}

func TestDraftExpires(t *testing.T) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://"+s.Addr(), time.Second)
	if err != nil {
		t.Fatalf("failed to create draft store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "design-1", "user-1", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	s.FastForward(2 * time.Second)

	if _, err := store.Load(ctx, "design-1"); !errors.Is(err, ErrNoDraft) {
		t.Errorf("Load of expired draft = %v, want ErrNoDraft", err)
	}
}

func TestLatestSaveWins(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "design-1", "user-1", json.RawMessage(`{"v":1}`)); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, "design-1", "user-2", json.RawMessage(`{"v":2}`)); err != nil {
		t.Fatal(err)
	}

	draft, err := store.Load(ctx, "design-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if draft.ParticipantID != "user-2" || string(draft.Canvas) != `{"v":2}` {
		t.Errorf("draft = %+v, want user-2's canvas", draft)
	}
}

func TestDiscardDraft(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "design-1", "user-1", json.RawMessage(`{}`)); err != nil {
		t.Fatal(err)
	}
	if err := store.Discard(ctx, "design-1"); err != nil {
		t.Fatalf("Discard failed: %v", err)
	}
	if _, err := store.Load(ctx, "design-1"); !errors.Is(err, ErrNoDraft) {
		t.Errorf("Load after discard = %v, want ErrNoDraft", err)
	}

	// Discarding again is fine.
	if err := store.Discard(ctx, "design-1"); err != nil {
		t.Errorf("Discard of missing draft failed: %v", err)
	}
}
