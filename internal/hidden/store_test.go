package hidden

import (
	"context"
	"errors"
	"testing"
)

func TestInMemoryStore_HideUnhide(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	if err := store.Hide(ctx, "user-1", "req-1"); err != nil {
		t.Fatalf("Hide failed: %v", err)
	}
	if err := store.Hide(ctx, "user-1", "req-1"); err != nil {
		t.Fatalf("second Hide should be a no-op, got %v", err)
	}
	if err := store.Hide(ctx, "user-1", "req-2"); err != nil {
		t.Fatalf("Hide failed: %v", err)
	}

	hidden, err := store.List(ctx, "user-1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(hidden) != 2 {
		t.Fatalf("expected 2 hidden requests, got %d", len(hidden))
	}
	if _, ok := hidden["req-1"]; !ok {
		t.Error("expected req-1 to be hidden")
	}

	if err := store.Unhide(ctx, "user-1", "req-1"); err != nil {
		t.Fatalf("Unhide failed: %v", err)
	}
	if err := store.Unhide(ctx, "user-1", "req-never-hidden"); err != nil {
		t.Errorf("unhiding a visible request should succeed, got %v", err)
	}

	hidden, _ = store.List(ctx, "user-1")
	if _, ok := hidden["req-1"]; ok || len(hidden) != 1 {
		t.Errorf("unexpected hidden set after unhide: %v", hidden)
	}
}

func TestInMemoryStore_PerUser(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	_ = store.Hide(ctx, "user-1", "req-1")

	hidden, err := store.List(ctx, "user-2")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if hidden == nil || len(hidden) != 0 {
		t.Errorf("expected empty set for user-2, got %v", hidden)
	}
}

func TestInMemoryStore_Validation(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	if err := store.Hide(ctx, "", "req-1"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if err := store.Unhide(ctx, "user-1", ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
