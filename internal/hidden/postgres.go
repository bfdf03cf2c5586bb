package hidden

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/onnwee/wantlist/internal/request"
	"github.com/onnwee/wantlist/internal/tracing"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Hide inserts a hidden mark, ignoring duplicates. An unknown request maps to
// request.ErrRequestNotFound.
func (s *PostgresStore) Hide(ctx context.Context, userID, requestID string) (err error) {
	if err := validate(userID, requestID); err != nil {
		return err
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "hidden_requests", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO hidden_requests (user_id, request_id, hidden_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id, request_id) DO NOTHING
	`, userID, requestID)
	if err != nil {
		var pqErr *pq.Error
		// foreign_key_violation, invalid_text_representation
		if errors.As(err, &pqErr) && (pqErr.Code == "23503" || pqErr.Code == "22P02") {
			return request.ErrRequestNotFound
		}
		return fmt.Errorf("failed to hide request: %w", err)
	}
	return nil
}

// Unhide deletes a hidden mark.
func (s *PostgresStore) Unhide(ctx context.Context, userID, requestID string) (err error) {
	if err := validate(userID, requestID); err != nil {
		return err
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "hidden_requests", tracing.DBOperationDelete)
	defer func() { endSpan(err) }()

	if _, err = s.db.ExecContext(ctx,
		`DELETE FROM hidden_requests WHERE user_id = $1 AND request_id = $2`,
		userID, requestID,
	); err != nil {
		return fmt.Errorf("failed to unhide request: %w", err)
	}
	return nil
}

// List returns the set of request IDs hidden by userID.
func (s *PostgresStore) List(ctx context.Context, userID string) (hidden map[string]struct{}, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "hidden_requests", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT request_id FROM hidden_requests WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list hidden requests: %w", err)
	}
	defer rows.Close()

	hidden = make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan hidden request: %w", err)
		}
		hidden[id] = struct{}{}
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hidden requests: %w", err)
	}
	return hidden, nil
}
