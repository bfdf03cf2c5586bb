package api

import (
	"net/http"

	"github.com/onnwee/wantlist/internal/middleware"
)

// ServiceName identifies the API in the root response and traces.
const ServiceName = "wantlist-api"

// RouterConfig collects the handlers and per-route middleware mounted by
// NewRouter. Nil rate limiters disable limiting for that route group.
type RouterConfig struct {
	Feed        *FeedHandlers
	Categories  *CategoryHandlers
	Preferences *PreferenceHandlers
	Hidden      *HiddenHandlers
	Health      *HealthHandlers

	// Metrics serves /metrics when set.
	Metrics http.Handler

	ReadLimit  func(http.Handler) http.Handler
	WriteLimit func(http.Handler) http.Handler

	Version string
}

// NewRouter registers all routes on a ServeMux. Authentication itself runs
// outside the router (middleware.Auth); user-scoped routes are wrapped in
// middleware.RequireUser here.
func NewRouter(cfg RouterConfig) *http.ServeMux {
	read := orPassthrough(cfg.ReadLimit)
	write := orPassthrough(cfg.WriteLimit)
	user := func(h http.HandlerFunc) http.Handler {
		return middleware.RequireUser(h)
	}

	mux := http.NewServeMux()

	mux.Handle("GET /feed", read(http.HandlerFunc(cfg.Feed.GetFeed)))
	mux.Handle("GET /categories", read(http.HandlerFunc(cfg.Categories.ListCategories)))

	mux.Handle("GET /preferences", user(cfg.Preferences.GetPreferences))
	mux.Handle("PUT /preferences/{category_id}", write(user(cfg.Preferences.SetPreference)))
	mux.Handle("DELETE /preferences/{category_id}", write(user(cfg.Preferences.DeletePreference)))

	mux.Handle("POST /requests/{id}/hide", write(user(cfg.Hidden.HideRequest)))
	mux.Handle("DELETE /requests/{id}/hide", write(user(cfg.Hidden.UnhideRequest)))

	mux.HandleFunc("GET /health", cfg.Health.Health)
	mux.HandleFunc("GET /ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Only handle exact root path, everything else returns 404
		if r.URL.Path != "/" {
			WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]string{"service": ServiceName, "version": version})
	})

	return mux
}

func orPassthrough(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if mw == nil {
		return func(h http.Handler) http.Handler { return h }
	}
	return mw
}
