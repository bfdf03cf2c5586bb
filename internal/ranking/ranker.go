package ranking

import (
	"math"
	"sort"
	"time"

	"github.com/onnwee/wantlist/internal/request"
)

// PreferenceWeights maps a category ID to the user's affinity for it.
// Absent categories carry zero affinity.
type PreferenceWeights map[string]float64

// RankedRequest is a request augmented with its personalization result.
type RankedRequest struct {
	request.Request
	PersonalizationScore float64            `json:"personalization_score"`
	MatchedCategories    []request.Category `json:"matched_categories"`
	MatchReason          string             `json:"match_reason,omitempty"`
}

// TrendingRequest is a request augmented with its trending score.
type TrendingRequest struct {
	request.Request
	TrendingScore float64 `json:"trending_score"`
}

// Ranker applies a fixed set of weights. It holds no per-call state and is
// safe for concurrent use.
type Ranker struct {
	weights *Weights
	now     func() time.Time
}

// NewRanker creates a ranker. Nil weights select DefaultWeights.
func NewRanker(weights *Weights) *Ranker {
	if weights == nil {
		weights = DefaultWeights()
	}
	return &Ranker{weights: weights, now: time.Now}
}

// WithClock returns a copy of the ranker that reads the current time from now.
func (r *Ranker) WithClock(now func() time.Time) *Ranker {
	c := *r
	c.now = now
	return &c
}

// Weights returns the weights the ranker was built with.
func (r *Ranker) Weights() *Weights {
	return r.weights
}

// RankPersonalized scores every request against prefs, splits the score order
// into matched and serendipity pools and interleaves them. The output is a
// permutation of requests with the same length.
//
// An empty prefs map zeroes every category score; deciding whether to rank at
// all in that case is left to the caller.
func (r *Ranker) RankPersonalized(requests []request.Request, prefs PreferenceWeights) []RankedRequest {
	n := len(requests)
	if n == 0 {
		return []RankedRequest{}
	}

	w := r.weights.Personalized
	now := r.now()
	horizon := w.RecencyHorizon()

	scored := make([]RankedRequest, n)
	for i, req := range requests {
		category, matched := CategoryScore(req.Categories, prefs)
		recency := RecencyScore(req.CreatedAt, now, horizon)
		activity := ActivityScore(req.SubmissionCount, w.ActivityCap)

		scored[i] = RankedRequest{
			Request:              req,
			PersonalizationScore: w.Category*category + w.Recency*recency + w.Activity*activity,
			MatchedCategories:    matched,
			MatchReason:          MatchReason(matched),
		}
	}

	// Category scores tie at zero often; input order must survive.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].PersonalizationScore > scored[j].PersonalizationScore
	})

	split := matchedCount(n, w.MatchedFraction)
	matchedPool := scored[:split]
	serendipity := scored[split:]
	sort.SliceStable(serendipity, func(i, j int) bool {
		return serendipity[i].CreatedAt.After(serendipity[j].CreatedAt)
	})

	return interleave(matchedPool, serendipity, w.SerendipityInterval)
}

// RankTrending orders requests by recency-decayed activity.
func (r *Ranker) RankTrending(requests []request.Request) []TrendingRequest {
	if len(requests) == 0 {
		return []TrendingRequest{}
	}

	w := r.weights.Trending
	now := r.now()
	horizon := w.RecencyHorizon()

	ranked := make([]TrendingRequest, len(requests))
	for i, req := range requests {
		decay := RecencyScore(req.CreatedAt, now, horizon)
		ranked[i] = TrendingRequest{
			Request:       req,
			TrendingScore: TrendingScore(TrendingActivity(req.SubmissionCount, w.ActivityCap), decay),
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].TrendingScore > ranked[j].TrendingScore
	})

	return ranked
}

// matchedCount is floor(fraction * n) clamped to [0, n]. The epsilon keeps
// products such as 0.8*10 from flooring to 7.
func matchedCount(n int, fraction float64) int {
	count := int(math.Floor(fraction*float64(n) + 1e-9))
	if count < 0 {
		return 0
	}
	if count > n {
		return n
	}
	return count
}

// interleave walks the output positions. Every interval-th slot (1-based) is
// drawn from serendipity while it has items; other slots take the next matched
// item. Whichever pool remains fills the rest.
func interleave(matched, serendipity []RankedRequest, interval int) []RankedRequest {
	n := len(matched) + len(serendipity)
	out := make([]RankedRequest, 0, n)

	mi, si := 0, 0
	for i := 0; i < n; i++ {
		serendipitySlot := interval > 0 && i%interval == interval-1
		switch {
		case serendipitySlot && si < len(serendipity):
			out = append(out, serendipity[si])
			si++
		case mi < len(matched):
			out = append(out, matched[mi])
			mi++
		default:
			out = append(out, serendipity[si])
			si++
		}
	}

	return out
}
