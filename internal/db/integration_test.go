//go:build integration

// Integration tests run the repositories against a real PostgreSQL started
// with testcontainers. Docker is required.
//
//	go test -tags=integration -v ./internal/db/...
package db_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/onnwee/wantlist/internal/db"
	"github.com/onnwee/wantlist/internal/hidden"
	"github.com/onnwee/wantlist/internal/preference"
	"github.com/onnwee/wantlist/internal/request"
)

func skipIfNoDocker(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, "docker", "info").Run(); err != nil {
		t.Skip("Skipping test: Docker not available")
	}
}

func migration(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "migrations", name))
	if err != nil {
		t.Fatalf("failed to read migration %s: %v", name, err)
	}
	return string(data)
}

// startPostgres returns a migrated database.
func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	skipIfNoDocker(t)

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("wantlist"),
		postgres.WithUsername("wantlist"),
		postgres.WithPassword("wantlist"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to build connection string: %v", err)
	}

	conn, err := db.Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if _, err := conn.ExecContext(ctx, migration(t, "000001_init.up.sql")); err != nil {
		t.Fatalf("failed to apply up migration: %v", err)
	}
	return conn
}

func TestRepositories_Postgres(t *testing.T) {
	conn := startPostgres(t)
	ctx := context.Background()

	if _, err := conn.ExecContext(ctx, `
		INSERT INTO categories (id, name, slug) VALUES
			('cat-audio', 'Audio', 'audio'),
			('cat-bikes', 'Bikes', 'bikes')
	`); err != nil {
		t.Fatalf("failed to seed categories: %v", err)
	}

	requests := request.NewPostgresRepository(conn)
	prefs := preference.NewPostgresStore(conn)
	hiddenStore := hidden.NewPostgresStore(conn)

	older := &request.Request{
		AuthorID:   "user-author",
		Title:      "Road bike",
		Categories: []request.Category{{ID: "cat-bikes"}},
		PriceLock:  &request.PriceLock{MaxPriceCents: 80000, Currency: "USD"},
		CreatedAt:  time.Now().Add(-2 * time.Hour),
	}
	newer := &request.Request{
		AuthorID:    "user-author",
		Title:       "Tube amp",
		Categories:  []request.Category{{ID: "cat-audio"}, {ID: "cat-bikes"}},
		Preferences: []request.PreferenceNote{{Label: "Condition", Note: "working"}},
	}
	for _, req := range []*request.Request{older, newer} {
		if err := requests.Create(ctx, req); err != nil {
			t.Fatalf("Create(%s) failed: %v", req.Title, err)
		}
	}

	if _, err := conn.ExecContext(ctx,
		`INSERT INTO submissions (id, request_id, submitter_id) VALUES (gen_random_uuid(), $1, 'user-seller')`,
		older.ID,
	); err != nil {
		t.Fatalf("failed to seed submission: %v", err)
	}

	t.Run("list open", func(t *testing.T) {
		open, err := requests.ListOpen(ctx, 10)
		if err != nil {
			t.Fatalf("ListOpen failed: %v", err)
		}
		if len(open) != 2 || open[0].ID != newer.ID || open[1].ID != older.ID {
			t.Fatalf("unexpected order: %+v", open)
		}
		if len(open[0].Categories) != 2 || open[0].Categories[0].Name != "Audio" {
			t.Errorf("categories not joined: %+v", open[0].Categories)
		}
		if open[1].SubmissionCount != 1 {
			t.Errorf("SubmissionCount = %d, want 1", open[1].SubmissionCount)
		}
		if open[1].PriceLock == nil || open[1].PriceLock.MaxPriceCents != 80000 {
			t.Errorf("PriceLock = %+v", open[1].PriceLock)
		}
	})

	t.Run("unknown category", func(t *testing.T) {
		err := requests.Create(ctx, &request.Request{
			AuthorID:   "user-author",
			Title:      "Synth",
			Categories: []request.Category{{ID: "cat-missing"}},
		})
		if !errors.Is(err, request.ErrCategoryNotFound) {
			t.Errorf("expected ErrCategoryNotFound, got %v", err)
		}
	})

	t.Run("preferences", func(t *testing.T) {
		if err := prefs.Set(ctx, "user-1", "cat-audio", 1.0); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if err := prefs.Set(ctx, "user-1", "cat-audio", 2.5); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
		if err := prefs.Set(ctx, "user-1", "cat-missing", 1.0); !errors.Is(err, request.ErrCategoryNotFound) {
			t.Errorf("expected ErrCategoryNotFound, got %v", err)
		}

		weights, err := prefs.Get(ctx, "user-1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if len(weights) != 1 || weights["cat-audio"] != 2.5 {
			t.Errorf("weights = %v", weights)
		}

		if err := prefs.Remove(ctx, "user-1", "cat-audio"); err != nil {
			t.Fatalf("Remove failed: %v", err)
		}
		weights, _ = prefs.Get(ctx, "user-1")
		if len(weights) != 0 {
			t.Errorf("expected no weights after Remove, got %v", weights)
		}
	})

	t.Run("hidden", func(t *testing.T) {
		if err := hiddenStore.Hide(ctx, "user-1", older.ID); err != nil {
			t.Fatalf("Hide failed: %v", err)
		}
		if err := hiddenStore.Hide(ctx, "user-1", older.ID); err != nil {
			t.Fatalf("second Hide should be a no-op: %v", err)
		}
		if err := hiddenStore.Hide(ctx, "user-1", "not-a-uuid"); !errors.Is(err, request.ErrRequestNotFound) {
			t.Errorf("expected ErrRequestNotFound, got %v", err)
		}

		set, err := hiddenStore.List(ctx, "user-1")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if _, ok := set[older.ID]; !ok || len(set) != 1 {
			t.Errorf("hidden set = %v", set)
		}
	})
}

func TestMigrations_DownDropsSchema(t *testing.T) {
	conn := startPostgres(t)
	ctx := context.Background()

	if _, err := conn.ExecContext(ctx, migration(t, "000001_init.down.sql")); err != nil {
		t.Fatalf("failed to apply down migration: %v", err)
	}

	var count int
	if err := conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = 'public'
		  AND table_name IN ('categories', 'requests', 'request_categories',
		                     'submissions', 'category_preferences', 'hidden_requests')
	`).Scan(&count); err != nil {
		t.Fatalf("failed to count tables: %v", err)
	}
	if count != 0 {
		t.Errorf("expected all tables dropped, %d remain", count)
	}
}
