package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/onnwee/wantlist/internal/feed"
	"github.com/onnwee/wantlist/internal/middleware"
)

// FeedBuilder builds feeds; *feed.Service implements it.
type FeedBuilder interface {
	Feed(ctx context.Context, q feed.Query) (*feed.Result, error)
}

// FeedHandlers holds dependencies for feed HTTP handlers.
type FeedHandlers struct {
	feeds FeedBuilder
}

// NewFeedHandlers creates a new FeedHandlers instance.
func NewFeedHandlers(feeds FeedBuilder) *FeedHandlers {
	return &FeedHandlers{feeds: feeds}
}

// GetFeed handles GET /feed?mode=&limit=.
// Anonymous callers get a latest feed when asking for personalized.
func (h *FeedHandlers) GetFeed(w http.ResponseWriter, r *http.Request) {
	query := feed.Query{
		UserID: middleware.GetUserID(r.Context()),
		Mode:   r.URL.Query().Get("mode"),
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "limit must be an integer")
			return
		}
		query.Limit = limit
	}

	result, err := h.feeds.Feed(r.Context(), query)
	if err != nil {
		switch {
		case errors.Is(err, feed.ErrInvalidMode):
			WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "mode must be one of personalized, trending, latest")
		case errors.Is(err, feed.ErrInvalidLimit):
			WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "limit must not be negative")
		default:
			slog.ErrorContext(r.Context(), "failed to build feed", "error", err, "mode", query.Mode)
			WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to build feed")
		}
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}
