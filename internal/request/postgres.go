package request

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/onnwee/wantlist/internal/tracing"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// selectRequests is the shared projection for request reads. Categories are
// aggregated in name order so ids, names and slugs line up index by index.
const selectRequests = `
	SELECT r.id, r.author_id, r.title, r.description, r.status,
	       r.price_lock_cents, r.price_lock_currency, r.exact_item, r.preferences,
	       r.created_at, r.updated_at,
	       COALESCE(array_agg(c.id ORDER BY c.name, c.id) FILTER (WHERE c.id IS NOT NULL), '{}') AS category_ids,
	       COALESCE(array_agg(c.name ORDER BY c.name, c.id) FILTER (WHERE c.id IS NOT NULL), '{}') AS category_names,
	       COALESCE(array_agg(c.slug ORDER BY c.name, c.id) FILTER (WHERE c.id IS NOT NULL), '{}') AS category_slugs,
	       (SELECT COUNT(*) FROM submissions s WHERE s.request_id = r.id) AS submission_count
	FROM requests r
	LEFT JOIN request_categories rc ON rc.request_id = r.id
	LEFT JOIN categories c ON c.id = rc.category_id
`

// ListOpen returns up to limit open requests, newest first.
func (r *PostgresRepository) ListOpen(ctx context.Context, limit int) (requests []Request, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "requests", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := selectRequests + `
	WHERE r.status = $1
	GROUP BY r.id
	ORDER BY r.created_at DESC, r.id ASC
	LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, string(StatusOpen), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list open requests: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *req)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating requests: %w", err)
	}

	return requests, nil
}

// GetByID retrieves a request by ID.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (req *Request, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "requests", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	// ids are UUIDs; anything else cannot match a row
	if _, parseErr := uuid.Parse(id); parseErr != nil {
		return nil, ErrRequestNotFound
	}

	query := selectRequests + `
	WHERE r.id = $1
	GROUP BY r.id
	`

	req, err = scanRequest(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

// ListCategories returns all categories ordered by name.
func (r *PostgresRepository) ListCategories(ctx context.Context) (categories []Category, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "categories", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := r.db.QueryContext(ctx, `SELECT id, name, slug FROM categories ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	return categories, nil
}

// Create inserts a new request and its category links in one transaction.
func (r *PostgresRepository) Create(ctx context.Context, req *Request) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "requests", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	prefs, err := json.Marshal(notesOrEmpty(req.Preferences))
	if err != nil {
		return fmt.Errorf("failed to encode request preferences: %w", err)
	}

	now := time.Now()
	id := uuid.New().String()
	createdAt := req.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	status := req.Status
	if status == "" {
		status = StatusOpen
	}

	var lockCents sql.NullInt64
	var lockCurrency sql.NullString
	if req.PriceLock != nil {
		lockCents = sql.NullInt64{Int64: req.PriceLock.MaxPriceCents, Valid: true}
		lockCurrency = sql.NullString{String: req.PriceLock.Currency, Valid: true}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO requests (
			id, author_id, title, description, status,
			price_lock_cents, price_lock_currency, exact_item, preferences,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, id, req.AuthorID, req.Title, req.Description, string(status),
		lockCents, lockCurrency, req.ExactItem, prefs, createdAt, now)
	if err != nil {
		return fmt.Errorf("failed to insert request: %w", err)
	}

	for _, c := range req.Categories {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO request_categories (request_id, category_id) VALUES ($1, $2)`,
			id, c.ID,
		); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23503" {
				err = ErrCategoryNotFound
				return err
			}
			return fmt.Errorf("failed to link category %s: %w", c.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit request: %w", err)
	}

	req.ID = id
	req.Status = status
	req.CreatedAt = createdAt
	req.UpdatedAt = now
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*Request, error) {
	var (
		req          Request
		status       string
		lockCents    sql.NullInt64
		lockCurrency sql.NullString
		prefs        []byte
		ids          []string
		names        []string
		slugs        []string
	)

	err := row.Scan(
		&req.ID,
		&req.AuthorID,
		&req.Title,
		&req.Description,
		&status,
		&lockCents,
		&lockCurrency,
		&req.ExactItem,
		&prefs,
		&req.CreatedAt,
		&req.UpdatedAt,
		pq.Array(&ids),
		pq.Array(&names),
		pq.Array(&slugs),
		&req.SubmissionCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan request: %w", err)
	}

	req.Status = Status(status)
	if lockCents.Valid {
		req.PriceLock = &PriceLock{
			MaxPriceCents: lockCents.Int64,
			Currency:      lockCurrency.String,
		}
	}
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &req.Preferences); err != nil {
			return nil, fmt.Errorf("failed to decode preferences for request %s: %w", req.ID, err)
		}
	}

	if len(ids) != len(names) || len(ids) != len(slugs) {
		return nil, fmt.Errorf("category arrays misaligned for request %s", req.ID)
	}
	if len(ids) > 0 {
		req.Categories = make([]Category, len(ids))
		for i := range ids {
			req.Categories[i] = Category{ID: ids[i], Name: names[i], Slug: slugs[i]}
		}
	}

	return &req, nil
}

func notesOrEmpty(notes []PreferenceNote) []PreferenceNote {
	if notes == nil {
		return []PreferenceNote{}
	}
	return notes
}
