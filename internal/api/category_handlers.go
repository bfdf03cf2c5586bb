package api

import (
	"log/slog"
	"net/http"

	"github.com/onnwee/wantlist/internal/request"
)

// CategoryHandlers holds dependencies for category HTTP handlers.
type CategoryHandlers struct {
	requests request.Repository
}

// NewCategoryHandlers creates a new CategoryHandlers instance.
func NewCategoryHandlers(requests request.Repository) *CategoryHandlers {
	return &CategoryHandlers{requests: requests}
}

// CategoriesResponse is the body of GET /categories.
type CategoriesResponse struct {
	Categories []request.Category `json:"categories"`
}

// ListCategories handles GET /categories.
func (h *CategoryHandlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.requests.ListCategories(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list categories", "error", err)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to list categories")
		return
	}
	if categories == nil {
		categories = []request.Category{}
	}

	writeJSON(w, r, http.StatusOK, CategoriesResponse{Categories: categories})
}
