// Package feed assembles a user's request feed: it loads open candidates,
// drops what the user has hidden, ranks them in the requested mode and
// truncates the result.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/wantlist/internal/hidden"
	"github.com/onnwee/wantlist/internal/preference"
	"github.com/onnwee/wantlist/internal/ranking"
	"github.com/onnwee/wantlist/internal/request"
	"github.com/onnwee/wantlist/internal/tracing"
)

// Feed limits.
const (
	DefaultCandidateLimit = 200
	DefaultLimit          = 20
	MaxLimit              = 100
)

// Errors returned by Service.Feed.
var (
	ErrInvalidMode  = errors.New("invalid feed mode")
	ErrInvalidLimit = errors.New("limit must not be negative")
)

// Mode selects how a feed is ordered.
type Mode string

const (
	ModePersonalized Mode = "personalized"
	ModeTrending     Mode = "trending"
	ModeLatest       Mode = "latest"
)

// ParseMode maps a query value to a Mode. The empty string selects
// ModePersonalized.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModePersonalized:
		return ModePersonalized, nil
	case ModeTrending:
		return ModeTrending, nil
	case ModeLatest:
		return ModeLatest, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Query describes one feed request. An empty UserID is an anonymous viewer.
type Query struct {
	UserID string
	Mode   string
	Limit  int
}

// Item is one entry of a served feed.
type Item struct {
	request.Request
	Score             float64            `json:"score"`
	MatchedCategories []request.Category `json:"matched_categories"`
	MatchReason       string             `json:"match_reason,omitempty"`
}

// Result is a served feed. Mode is the mode actually used; Fallback is set
// when a personalized feed was served as latest.
type Result struct {
	Mode        Mode      `json:"mode"`
	Fallback    bool      `json:"fallback"`
	Items       []Item    `json:"items"`
	GeneratedAt time.Time `json:"generated_at"`
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// CandidateLimit caps how many open requests are ranked per feed.
	CandidateLimit int
	Logger         *slog.Logger
	Metrics        *Metrics
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Service builds feeds. It is safe for concurrent use.
type Service struct {
	config      ServiceConfig
	ranker      *ranking.Ranker
	requests    request.Repository
	preferences preference.Store
	hidden      hidden.Store
	snapshots   SnapshotStore
}

// NewService creates a feed service. A nil snapshots store computes the
// trending order on every call.
func NewService(
	config ServiceConfig,
	ranker *ranking.Ranker,
	requests request.Repository,
	preferences preference.Store,
	hiddenStore hidden.Store,
	snapshots SnapshotStore,
) *Service {
	if config.CandidateLimit <= 0 {
		config.CandidateLimit = DefaultCandidateLimit
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	return &Service{
		config:      config,
		ranker:      ranker,
		requests:    requests,
		preferences: preferences,
		hidden:      hiddenStore,
		snapshots:   snapshots,
	}
}

// Feed builds the feed for q.
func (s *Service) Feed(ctx context.Context, q Query) (result *Result, err error) {
	mode, err := ParseMode(q.Mode)
	if err != nil {
		return nil, err
	}
	limit, err := normalizeLimit(q.Limit)
	if err != nil {
		return nil, err
	}

	ctx, endSpan := tracing.StartSpan(ctx, "feed.build")
	defer func() { endSpan(err) }()
	tracing.SetAttributes(ctx,
		attribute.String("feed.mode", string(mode)),
		attribute.Bool("feed.anonymous", q.UserID == ""),
		attribute.Int("feed.limit", limit),
	)

	hiddenSet, err := s.hiddenFor(ctx, q.UserID)
	if err != nil {
		return nil, err
	}

	result = &Result{Mode: mode, GeneratedAt: s.config.Clock()}

	switch mode {
	case ModeTrending:
		snapshot, err := s.Trending(ctx)
		if err != nil {
			return nil, err
		}
		result.GeneratedAt = snapshot.GeneratedAt
		result.Items = trendingItems(snapshot.Items, hiddenSet, limit)

	case ModePersonalized:
		prefs, err := s.preferencesFor(ctx, q.UserID)
		if err != nil {
			return nil, err
		}
		candidates, err := s.candidates(ctx, hiddenSet)
		if err != nil {
			return nil, err
		}
		if len(prefs) == 0 {
			result.Mode = ModeLatest
			result.Fallback = true
			result.Items = latestItems(candidates, limit)
			break
		}

		start := time.Now()
		ranked := s.ranker.RankPersonalized(candidates, ranking.PreferenceWeights(prefs))
		s.config.Metrics.ObserveRankDuration(ModePersonalized, time.Since(start).Seconds())
		result.Items = personalizedItems(ranked, limit)

	case ModeLatest:
		candidates, err := s.candidates(ctx, hiddenSet)
		if err != nil {
			return nil, err
		}
		result.Items = latestItems(candidates, limit)
	}

	s.config.Metrics.IncRequests(result.Mode, result.Fallback)
	s.config.Logger.DebugContext(ctx, "feed built",
		"mode", result.Mode,
		"fallback", result.Fallback,
		"items", len(result.Items),
		"user_id", q.UserID)

	return result, nil
}

// Trending returns the current trending snapshot, computing and storing a new
// one when none is cached. Snapshot store failures fall back to a live
// computation.
func (s *Service) Trending(ctx context.Context) (*Snapshot, error) {
	if s.snapshots != nil {
		snapshot, err := s.snapshots.Load(ctx)
		switch {
		case err == nil:
			s.config.Metrics.IncSnapshot(SnapshotHit)
			return snapshot, nil
		case errors.Is(err, ErrSnapshotNotFound):
			s.config.Metrics.IncSnapshot(SnapshotMiss)
		default:
			s.config.Metrics.IncSnapshot(SnapshotError)
			s.config.Logger.WarnContext(ctx, "trending snapshot unavailable, computing live",
				"error", err)
		}
	}

	return s.RefreshTrending(ctx)
}

// RefreshTrending ranks the current candidate pool by trending score and
// stores the result as the new snapshot. A failed store write is logged and
// the fresh snapshot is still returned.
func (s *Service) RefreshTrending(ctx context.Context) (*Snapshot, error) {
	candidates, err := s.candidates(ctx, nil)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	snapshot := &Snapshot{
		Items:       s.ranker.RankTrending(candidates),
		GeneratedAt: s.config.Clock(),
	}
	s.config.Metrics.ObserveRankDuration(ModeTrending, time.Since(start).Seconds())

	if s.snapshots == nil {
		return snapshot, nil
	}
	if err := s.snapshots.Save(ctx, snapshot); err != nil {
		s.config.Logger.WarnContext(ctx, "failed to store trending snapshot", "error", err)
		return snapshot, nil
	}
	s.config.Metrics.SetLastSnapshotTimestamp(float64(snapshot.GeneratedAt.Unix()))
	return snapshot, nil
}

// candidates loads open requests and removes the hidden ones.
func (s *Service) candidates(ctx context.Context, hiddenSet map[string]struct{}) ([]request.Request, error) {
	requests, err := s.requests.ListOpen(ctx, s.config.CandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load feed candidates: %w", err)
	}

	if len(hiddenSet) > 0 {
		visible := requests[:0]
		for _, req := range requests {
			if _, ok := hiddenSet[req.ID]; !ok {
				visible = append(visible, req)
			}
		}
		requests = visible
	}

	s.config.Metrics.ObserveCandidates(len(requests))
	return requests, nil
}

func (s *Service) hiddenFor(ctx context.Context, userID string) (map[string]struct{}, error) {
	if userID == "" || s.hidden == nil {
		return nil, nil
	}
	set, err := s.hidden.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load hidden requests: %w", err)
	}
	return set, nil
}

func (s *Service) preferencesFor(ctx context.Context, userID string) (map[string]float64, error) {
	if userID == "" || s.preferences == nil {
		return nil, nil
	}
	prefs, err := s.preferences.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	return prefs, nil
}

func normalizeLimit(limit int) (int, error) {
	switch {
	case limit < 0:
		return 0, ErrInvalidLimit
	case limit == 0:
		return DefaultLimit, nil
	case limit > MaxLimit:
		return MaxLimit, nil
	default:
		return limit, nil
	}
}

func personalizedItems(ranked []ranking.RankedRequest, limit int) []Item {
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	items := make([]Item, len(ranked))
	for i, r := range ranked {
		items[i] = Item{
			Request:           r.Request,
			Score:             r.PersonalizationScore,
			MatchedCategories: r.MatchedCategories,
			MatchReason:       r.MatchReason,
		}
	}
	return items
}

func trendingItems(ranked []ranking.TrendingRequest, hiddenSet map[string]struct{}, limit int) []Item {
	items := make([]Item, 0, min(limit, len(ranked)))
	for _, r := range ranked {
		if len(items) == limit {
			break
		}
		if _, ok := hiddenSet[r.ID]; ok {
			continue
		}
		items = append(items, Item{
			Request:           r.Request,
			Score:             r.TrendingScore,
			MatchedCategories: []request.Category{},
		})
	}
	return items
}

// latestItems relies on ListOpen returning requests newest first.
func latestItems(requests []request.Request, limit int) []Item {
	if len(requests) > limit {
		requests = requests[:limit]
	}
	items := make([]Item, len(requests))
	for i, req := range requests {
		items[i] = Item{Request: req, MatchedCategories: []request.Category{}}
	}
	return items
}
