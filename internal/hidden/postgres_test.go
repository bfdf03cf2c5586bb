package hidden

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/onnwee/wantlist/internal/request"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func TestPostgresStore_Hide(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO hidden_requests .* ON CONFLICT \(user_id, request_id\) DO NOTHING`).
		WithArgs("user-1", "req-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Hide(context.Background(), "user-1", "req-1"); err != nil {
		t.Fatalf("Hide failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresStore_Hide_UnknownRequest(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO hidden_requests`).
		WillReturnError(&pq.Error{Code: "23503"})

	if err := store.Hide(context.Background(), "user-1", "req-missing"); !errors.Is(err, request.ErrRequestNotFound) {
		t.Errorf("expected request.ErrRequestNotFound, got %v", err)
	}
}

func TestPostgresStore_Unhide(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM hidden_requests WHERE user_id = \$1 AND request_id = \$2`).
		WithArgs("user-1", "req-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Unhide(context.Background(), "user-1", "req-1"); err != nil {
		t.Fatalf("Unhide failed: %v", err)
	}
}

func TestPostgresStore_List(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT request_id FROM hidden_requests WHERE user_id = \$1`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"request_id"}).AddRow("req-1").AddRow("req-7"))

	hidden, err := store.List(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(hidden) != 2 {
		t.Errorf("expected 2 hidden requests, got %v", hidden)
	}
	if _, ok := hidden["req-7"]; !ok {
		t.Error("expected req-7 in hidden set")
	}
}

func TestPostgresStore_List_Error(t *testing.T) {
	store, mock := newMockStore(t)
	dbErr := errors.New("timeout")

	mock.ExpectQuery(`FROM hidden_requests`).WillReturnError(dbErr)

	if _, err := store.List(context.Background(), "user-1"); !errors.Is(err, dbErr) {
		t.Errorf("expected wrapped timeout, got %v", err)
	}
}
