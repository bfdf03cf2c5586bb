package request

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	return path
}

func TestLoadFixture(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	path := writeFixture(t, `{
  "categories": [{"id": "cat-audio", "name": "Audio"}, {"id": "cat-bikes", "name": "Bikes"}],
  "requests": [
    {"title": "Turntable", "categories": [{"id": "cat-audio"}], "submission_count": 4, "created_hours_ago": 2},
    {"title": "Road bike", "categories": [{"id": "cat-bikes"}], "created_hours_ago": 10}
  ]
}`)

	repo := NewInMemoryRepository()
	ctx := context.Background()
	n, err := repo.LoadFixture(ctx, path, now)
	if err != nil {
		t.Fatalf("LoadFixture failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 requests loaded, got %d", n)
	}

	categories, _ := repo.ListCategories(ctx)
	if len(categories) != 2 {
		t.Errorf("expected 2 categories, got %d", len(categories))
	}

	open, err := repo.ListOpen(ctx, 10)
	if err != nil {
		t.Fatalf("ListOpen failed: %v", err)
	}
	if len(open) != 2 || open[0].Title != "Turntable" {
		t.Fatalf("unexpected open requests: %+v", open)
	}
	if !open[0].CreatedAt.Equal(now.Add(-2 * time.Hour)) {
		t.Errorf("expected created_at 2h before load, got %s", open[0].CreatedAt)
	}
	if open[0].SubmissionCount != 4 || open[0].Status != StatusOpen {
		t.Errorf("unexpected seeded request: %+v", open[0])
	}
	if open[0].Categories[0].Name != "Audio" {
		t.Errorf("expected category resolved to registered name, got %+v", open[0].Categories)
	}
}

func TestLoadFixture_UnknownCategory(t *testing.T) {
	path := writeFixture(t, `{"requests": [{"title": "Orphan", "categories": [{"id": "cat-missing"}]}]}`)

	_, err := NewInMemoryRepository().LoadFixture(context.Background(), path, time.Now())
	if !errors.Is(err, ErrCategoryNotFound) {
		t.Errorf("expected ErrCategoryNotFound, got %v", err)
	}
}

func TestLoadFixture_BadInput(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	if _, err := repo.LoadFixture(ctx, filepath.Join(t.TempDir(), "missing.json"), time.Now()); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := repo.LoadFixture(ctx, writeFixture(t, "{not json"), time.Now()); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := repo.LoadFixture(ctx, writeFixture(t, `{"categories": [{"name": "No ID"}]}`), time.Now()); err == nil {
		t.Error("expected error for category without id")
	}
}

func TestLoadFixture_ShippedSeed(t *testing.T) {
	path := filepath.Join("..", "..", "configs", "seed.json")
	if _, err := os.Stat(path); err != nil {
		t.Skipf("seed file not found: %v", err)
	}

	n, err := NewInMemoryRepository().LoadFixture(context.Background(), path, time.Now())
	if err != nil {
		t.Fatalf("shipped seed failed to load: %v", err)
	}
	if n == 0 {
		t.Error("expected shipped seed to contain requests")
	}
}
