package ranking

import (
	"strings"
	"time"

	"github.com/onnwee/wantlist/internal/request"
)

// matchReasonPrefix starts every human-readable match explanation.
const matchReasonPrefix = "Because you follow: "

// RecencyScore computes a linear recency score for an item created at
// createdAt, observed at now.
//
// Formula: max(0, 1 - ageHours / horizonHours)
//
// Returns 1.0 for an item created exactly at now and 0.0 for items at or
// beyond the horizon. Future-dated items are not clamped from above.
func RecencyScore(createdAt, now time.Time, horizon time.Duration) float64 {
	if horizon <= 0 {
		return 0.0
	}

	ageHours := now.Sub(createdAt).Hours()
	score := 1.0 - ageHours/horizon.Hours()
	if score < 0.0 {
		return 0.0
	}
	return score
}

// ActivityScore normalizes a submission count to [0, 1], reaching 1.0 at cap.
// Formula: min(1, count / cap)
func ActivityScore(count int, cap float64) float64 {
	if cap <= 0 {
		return 0.0
	}
	score := float64(count) / cap
	if score > 1.0 {
		return 1.0
	}
	return score
}

// TrendingActivity caps a submission count without rescaling it.
// Formula: min(cap, count)
func TrendingActivity(count int, cap float64) float64 {
	activity := float64(count)
	if activity > cap {
		return cap
	}
	return activity
}

// TrendingScore combines capped activity with recency decay.
func TrendingScore(activity, recencyDecay float64) float64 {
	return activity * recencyDecay
}

// CategoryScore sums the preference weights of the categories present in
// prefs and returns the matched categories in the order they are tagged.
// The returned slice is never nil.
func CategoryScore(categories []request.Category, prefs PreferenceWeights) (float64, []request.Category) {
	matched := make([]request.Category, 0, len(categories))
	score := 0.0
	for _, c := range categories {
		w, ok := prefs[c.ID]
		if !ok {
			continue
		}
		score += w
		matched = append(matched, c)
	}
	return score, matched
}

// MatchReason renders the explanation shown next to a personalized item,
// e.g. "Because you follow: Audio, Bikes". Returns "" when nothing matched.
func MatchReason(matched []request.Category) string {
	if len(matched) == 0 {
		return ""
	}

	names := make([]string, len(matched))
	for i, c := range matched {
		names[i] = c.Name
		if names[i] == "" {
			names[i] = c.ID
		}
	}
	return matchReasonPrefix + strings.Join(names, ", ")
}
