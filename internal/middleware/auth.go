package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/onnwee/wantlist/internal/auth"
)

// Error codes written by middleware. They match the codes used by the api
// package so clients see one vocabulary.
const (
	errCodeAuthFailed  = "auth_failed"
	errCodeRateLimited = "rate_limited"
)

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	ValidateAccessToken(token string) (*auth.Claims, error)
}

// Auth authenticates requests carrying an Authorization: Bearer header and
// stores the token subject as the user ID. Requests without the header pass
// through anonymously; a present but invalid token is rejected with 401.
func Auth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeError(w, r, http.StatusUnauthorized, errCodeAuthFailed, "Authorization header must use the Bearer scheme")
				return
			}

			claims, err := validator.ValidateAccessToken(token)
			if err != nil {
				slog.DebugContext(r.Context(), "bearer token rejected", "error", err)
				message := "Invalid token"
				if errors.Is(err, auth.ErrExpiredToken) {
					message = "Token has expired"
				}
				writeError(w, r, http.StatusUnauthorized, errCodeAuthFailed, message)
				return
			}

			ctx := SetUserID(r.Context(), claims.UserID())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUser rejects anonymous requests with 401. It must run after Auth.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserID(r.Context()) == "" {
			writeError(w, r, http.StatusUnauthorized, errCodeAuthFailed, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeError writes the standard {"error":{"code","message"}} envelope and
// records the code for Logging.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	SetErrorCode(r.Context(), code)

	body := map[string]map[string]string{
		"error": {"code": code, "message": message},
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(r.Context(), "failed to write error response", "error", err)
	}
}
