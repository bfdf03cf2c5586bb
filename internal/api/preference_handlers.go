package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/wantlist/internal/middleware"
	"github.com/onnwee/wantlist/internal/preference"
	"github.com/onnwee/wantlist/internal/request"
)

// maxPreferenceBody bounds PUT /preferences bodies.
const maxPreferenceBody = 1 << 10

// PreferenceHandlers holds dependencies for preference HTTP handlers.
// All routes require an authenticated user.
type PreferenceHandlers struct {
	store    preference.Store
	requests request.Repository
}

// NewPreferenceHandlers creates a new PreferenceHandlers instance.
func NewPreferenceHandlers(store preference.Store, requests request.Repository) *PreferenceHandlers {
	return &PreferenceHandlers{store: store, requests: requests}
}

// PreferencesResponse is the body of GET /preferences.
type PreferencesResponse struct {
	Weights map[string]float64 `json:"weights"`
}

// SetPreferenceRequest is the body of PUT /preferences/{category_id}.
// A missing weight means preference.DefaultWeight.
type SetPreferenceRequest struct {
	Weight *float64 `json:"weight"`
}

// PreferenceResponse is the body returned after setting one weight.
type PreferenceResponse struct {
	CategoryID string  `json:"category_id"`
	Weight     float64 `json:"weight"`
}

// GetPreferences handles GET /preferences.
func (h *PreferenceHandlers) GetPreferences(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	weights, err := h.store.Get(r.Context(), userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to load preferences", "error", err, "user_id", userID)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to load preferences")
		return
	}
	if weights == nil {
		weights = map[string]float64{}
	}

	writeJSON(w, r, http.StatusOK, PreferencesResponse{Weights: weights})
}

// SetPreference handles PUT /preferences/{category_id}.
func (h *PreferenceHandlers) SetPreference(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	categoryID := r.PathValue("category_id")

	weight := preference.DefaultWeight
	if r.ContentLength != 0 {
		var body SetPreferenceRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPreferenceBody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&body); err != nil {
			WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body")
			return
		}
		if body.Weight != nil {
			weight = *body.Weight
		}
	}

	if err := preference.ValidateWeight(weight); err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeInvalidWeight, "weight must be a positive number")
		return
	}

	known, err := h.categoryExists(r.Context(), categoryID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to look up category", "error", err, "category_id", categoryID)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to save preference")
		return
	}
	if !known {
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeCategoryNotFound, "Category not found")
		return
	}

	if err := h.store.Set(r.Context(), userID, categoryID, weight); err != nil {
		switch {
		case errors.Is(err, request.ErrCategoryNotFound):
			WriteError(w, r.Context(), http.StatusNotFound, ErrCodeCategoryNotFound, "Category not found")
		case errors.Is(err, preference.ErrInvalidWeight):
			WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeInvalidWeight, "weight must be a positive number")
		default:
			slog.ErrorContext(r.Context(), "failed to save preference", "error", err, "user_id", userID, "category_id", categoryID)
			WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to save preference")
		}
		return
	}

	slog.DebugContext(r.Context(), "preference set", "user_id", userID, "category_id", categoryID, "weight", weight)
	writeJSON(w, r, http.StatusOK, PreferenceResponse{CategoryID: categoryID, Weight: weight})
}

// DeletePreference handles DELETE /preferences/{category_id}. Deleting a
// weight the user never set still returns 204.
func (h *PreferenceHandlers) DeletePreference(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	categoryID := r.PathValue("category_id")

	if err := h.store.Remove(r.Context(), userID, categoryID); err != nil {
		slog.ErrorContext(r.Context(), "failed to remove preference", "error", err, "user_id", userID, "category_id", categoryID)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to remove preference")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *PreferenceHandlers) categoryExists(ctx context.Context, categoryID string) (bool, error) {
	categories, err := h.requests.ListCategories(ctx)
	if err != nil {
		return false, err
	}
	for _, c := range categories {
		if c.ID == categoryID {
			return true, nil
		}
	}
	return false, nil
}
