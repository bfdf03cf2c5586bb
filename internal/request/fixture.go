package request

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Fixture is the on-disk shape of a seed file for the in-memory repository.
type Fixture struct {
	Categories []Category       `json:"categories"`
	Requests   []FixtureRequest `json:"requests"`
}

// FixtureRequest is a seeded request. CreatedHoursAgo is relative to load
// time so seeded feeds do not age out of the recency horizon.
type FixtureRequest struct {
	Request
	CreatedHoursAgo float64 `json:"created_hours_ago"`
}

// LoadFixture reads a JSON fixture from path and inserts its categories and
// requests. It returns the number of requests created.
func (r *InMemoryRepository) LoadFixture(ctx context.Context, path string, now time.Time) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read fixture: %w", err)
	}

	var fixture Fixture
	if err := json.Unmarshal(data, &fixture); err != nil {
		return 0, fmt.Errorf("failed to parse fixture: %w", err)
	}

	for _, c := range fixture.Categories {
		if c.ID == "" {
			return 0, fmt.Errorf("fixture category %q has no id", c.Name)
		}
		r.AddCategory(c)
	}

	for i, fr := range fixture.Requests {
		req := fr.Request
		if fr.CreatedHoursAgo > 0 {
			req.CreatedAt = now.Add(-time.Duration(fr.CreatedHoursAgo * float64(time.Hour)))
		}
		if err := r.Create(ctx, &req); err != nil {
			return i, fmt.Errorf("fixture request %d (%s): %w", i, req.Title, err)
		}
	}

	return len(fixture.Requests), nil
}
