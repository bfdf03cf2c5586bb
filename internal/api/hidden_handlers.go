package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/wantlist/internal/hidden"
	"github.com/onnwee/wantlist/internal/middleware"
	"github.com/onnwee/wantlist/internal/request"
)

// HiddenHandlers holds dependencies for hide/unhide HTTP handlers.
type HiddenHandlers struct {
	store    hidden.Store
	requests request.Repository
}

// NewHiddenHandlers creates a new HiddenHandlers instance.
func NewHiddenHandlers(store hidden.Store, requests request.Repository) *HiddenHandlers {
	return &HiddenHandlers{store: store, requests: requests}
}

// HideRequest handles POST /requests/{id}/hide. Hiding twice is a no-op.
func (h *HiddenHandlers) HideRequest(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, "hide", h.store.Hide)
}

// UnhideRequest handles DELETE /requests/{id}/hide.
func (h *HiddenHandlers) UnhideRequest(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, "unhide", h.store.Unhide)
}

func (h *HiddenHandlers) update(w http.ResponseWriter, r *http.Request, action string, apply func(ctx context.Context, userID, requestID string) error) {
	userID := middleware.GetUserID(r.Context())
	requestID := r.PathValue("id")

	if _, err := h.requests.GetByID(r.Context(), requestID); err != nil {
		if errors.Is(err, request.ErrRequestNotFound) {
			WriteError(w, r.Context(), http.StatusNotFound, ErrCodeRequestNotFound, "Request not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to look up request", "error", err, "request_id", requestID)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to "+action+" request")
		return
	}

	if err := apply(r.Context(), userID, requestID); err != nil {
		if errors.Is(err, request.ErrRequestNotFound) {
			WriteError(w, r.Context(), http.StatusNotFound, ErrCodeRequestNotFound, "Request not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to "+action+" request", "error", err, "user_id", userID, "request_id", requestID)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to "+action+" request")
		return
	}

	slog.DebugContext(r.Context(), "request visibility changed", "action", action, "user_id", userID, "request_id", requestID)
	w.WriteHeader(http.StatusNoContent)
}
