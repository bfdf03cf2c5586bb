package ranking

import (
	"math"
	"testing"
	"time"

	"github.com/onnwee/wantlist/internal/request"
)

// TestRecencyScore tests linear decay and the horizon boundaries.
func TestRecencyScore(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	week := 7 * 24 * time.Hour

	tests := []struct {
		name      string
		createdAt time.Time
		horizon   time.Duration
		expected  float64
	}{
		{
			name:      "created now",
			createdAt: now,
			horizon:   week,
			expected:  1.0,
		},
		{
			name:      "half the horizon",
			createdAt: now.Add(-84 * time.Hour),
			horizon:   week,
			expected:  0.5,
		},
		{
			name:      "exactly at the horizon",
			createdAt: now.Add(-week),
			horizon:   week,
			expected:  0.0,
		},
		{
			name:      "beyond the horizon is clamped",
			createdAt: now.Add(-30 * 24 * time.Hour),
			horizon:   week,
			expected:  0.0,
		},
		{
			name:      "trending horizon at 36 hours",
			createdAt: now.Add(-36 * time.Hour),
			horizon:   72 * time.Hour,
			expected:  0.5,
		},
		{
			name:      "future dated is not clamped",
			createdAt: now.Add(84 * time.Hour),
			horizon:   week,
			expected:  1.5,
		},
		{
			name:      "zero horizon",
			createdAt: now,
			horizon:   0,
			expected:  0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RecencyScore(tt.createdAt, now, tt.horizon)
			if math.Abs(result-tt.expected) > 1e-9 {
				t.Errorf("expected %f, got %f", tt.expected, result)
			}
		})
	}
}

// TestActivityScore tests normalization and capping.
func TestActivityScore(t *testing.T) {
	tests := []struct {
		name     string
		count    int
		cap      float64
		expected float64
	}{
		{name: "no submissions", count: 0, cap: 10, expected: 0.0},
		{name: "three submissions", count: 3, cap: 10, expected: 0.3},
		{name: "at cap", count: 10, cap: 10, expected: 1.0},
		{name: "above cap", count: 250, cap: 10, expected: 1.0},
		{name: "zero cap", count: 5, cap: 0, expected: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ActivityScore(tt.count, tt.cap)
			if math.Abs(result-tt.expected) > 1e-9 {
				t.Errorf("expected %f, got %f", tt.expected, result)
			}
		})
	}
}

// TestTrendingActivity tests that trending activity is capped but not rescaled.
func TestTrendingActivity(t *testing.T) {
	tests := []struct {
		count    int
		expected float64
	}{
		{count: 0, expected: 0},
		{count: 4, expected: 4},
		{count: 10, expected: 10},
		{count: 42, expected: 10},
	}

	for _, tt := range tests {
		if got := TrendingActivity(tt.count, 10); got != tt.expected {
			t.Errorf("TrendingActivity(%d) = %f, want %f", tt.count, got, tt.expected)
		}
	}
}

// TestCategoryScore tests weight summing and matched category collection.
func TestCategoryScore(t *testing.T) {
	audio := request.Category{ID: "cat-audio", Name: "Audio"}
	bikes := request.Category{ID: "cat-bikes", Name: "Bikes"}
	books := request.Category{ID: "cat-books", Name: "Books"}

	prefs := PreferenceWeights{"cat-audio": 1.0, "cat-bikes": 0.5}

	tests := []struct {
		name            string
		categories      []request.Category
		expectedScore   float64
		expectedMatched []string
	}{
		{
			name:            "no categories",
			categories:      nil,
			expectedScore:   0,
			expectedMatched: []string{},
		},
		{
			name:            "single match",
			categories:      []request.Category{audio},
			expectedScore:   1.0,
			expectedMatched: []string{"cat-audio"},
		},
		{
			name:            "multiple matches sum",
			categories:      []request.Category{bikes, books, audio},
			expectedScore:   1.5,
			expectedMatched: []string{"cat-bikes", "cat-audio"},
		},
		{
			name:            "no match",
			categories:      []request.Category{books},
			expectedScore:   0,
			expectedMatched: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, matched := CategoryScore(tt.categories, prefs)
			if math.Abs(score-tt.expectedScore) > 1e-9 {
				t.Errorf("expected score %f, got %f", tt.expectedScore, score)
			}
			if matched == nil {
				t.Fatal("matched categories must not be nil")
			}
			if len(matched) != len(tt.expectedMatched) {
				t.Fatalf("expected %d matched, got %d", len(tt.expectedMatched), len(matched))
			}
			for i, id := range tt.expectedMatched {
				if matched[i].ID != id {
					t.Errorf("matched[%d]: expected %s, got %s", i, id, matched[i].ID)
				}
			}
		})
	}
}

// TestMatchReason tests the human-readable explanation.
func TestMatchReason(t *testing.T) {
	tests := []struct {
		name     string
		matched  []request.Category
		expected string
	}{
		{
			name:     "no match",
			matched:  nil,
			expected: "",
		},
		{
			name:     "single category",
			matched:  []request.Category{{ID: "cat-audio", Name: "Audio"}},
			expected: "Because you follow: Audio",
		},
		{
			name: "comma joined",
			matched: []request.Category{
				{ID: "cat-audio", Name: "Audio"},
				{ID: "cat-bikes", Name: "Bikes"},
			},
			expected: "Because you follow: Audio, Bikes",
		},
		{
			name:     "unnamed category falls back to id",
			matched:  []request.Category{{ID: "cat-misc"}},
			expected: "Because you follow: cat-misc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchReason(tt.matched); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}
