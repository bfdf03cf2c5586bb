// Package ranking orders open requests for display in a user's feed.
//
// Two independent orderings are provided:
//
//	ranker := ranking.NewRanker(weights)
//
//	// Affinity + freshness, with a guaranteed share of unmatched content
//	items := ranker.RankPersonalized(requests, ranking.PreferenceWeights{
//		"cat-audio": 1.0,
//		"cat-bikes": 0.5,
//	})
//
//	// Momentum only: recency-decayed submission activity
//	trending := ranker.RankTrending(requests)
//
// Personalized Ranking:
//
// Each request is scored as
//
//	total = 0.6*category + 0.2*recency + 0.2*activity
//
// where category is the sum of the user's weights for the request's
// categories, recency decays linearly to zero over 7 days and activity is
// submissions/10 capped at 1. Requests are stable-sorted by total. The top
// 80% form the matched pool and the rest form the serendipity pool, which is
// re-sorted newest first. Output positions 4, 9, 14, ... are filled from the
// serendipity pool while it has items; every other position takes the next
// matched item. When one pool runs out the other fills the remaining slots.
//
// Trending Ranking:
//
//	trending = min(10, submissions) * max(0, 1 - ageHours/72)
//
// stable-sorted descending with no interleaving.
//
// Both functions are pure: no I/O, no shared state, no errors, and inputs are
// never modified. The clock is injectable through WithClock.
//
// Calibration:
//
// The constants above are the defaults returned by DefaultWeights. A JSON
// calibration file loaded at startup may override individual fields; see
// configs/ranking.calibration.json.
package ranking
