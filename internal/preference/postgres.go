package preference

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

// Get returns the user's weights keyed by category ID.
func (s *PostgresStore) Get(ctx context.Context, userID string) (weights map[string]float64, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "category_preferences", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT category_id, weight FROM category_preferences WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query preferences: %w", err)
	}
	defer rows.Close()

	weights = make(map[string]float64)
	for rows.Next() {
		var categoryID string
		var weight float64
		if err := rows.Scan(&categoryID, &weight); err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}
		weights[categoryID] = weight
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating preferences: %w", err)
	}

	return weights, nil
}

// Set upserts one weight. An unknown category maps to request.ErrCategoryNotFound.
func (s *PostgresStore) Set(ctx context.Context, userID, categoryID string, weight float64) (err error) {
	if err := validateKeys(userID, categoryID); err != nil {
		return err
	}
	if err := ValidateWeight(weight); err != nil {
		return err
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "category_preferences", tracing.DBOperationUpsert)
	defer func() { endSpan(err) }()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO category_preferences (user_id, category_id, weight, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, category_id)
		DO UPDATE SET weight = EXCLUDED.weight, updated_at = NOW()
	`, userID, categoryID, weight)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return request.ErrCategoryNotFound
		}
		return fmt.Errorf("failed to upsert preference: %w", err)
	}
	return nil
}

// Remove deletes one weight.
func (s *PostgresStore) Remove(ctx context.Context, userID, categoryID string) (err error) {
	if err := validateKeys(userID, categoryID); err != nil {
		return err
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "category_preferences", tracing.DBOperationDelete)
	defer func() { endSpan(err) }()

	if _, err = s.db.ExecContext(ctx,
		`DELETE FROM category_preferences WHERE user_id = $1 AND category_id = $2`,
		userID, categoryID,
	); err != nil {
		return fmt.Errorf("failed to delete preference: %w", err)
	}
	return nil
}
