package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// CookieName is the HttpOnly cookie that carries the session JWT.
const CookieName = "token"

// contextKey is unexported so no other package can read or shadow the
// user ID stored by the middleware.
type contextKey string

const userIDKey contextKey = "userID"

const (
	unauthorizedBody  = `{"error":"unauthorized","message":"valid authentication required"}`
	unconfiguredBody  = `{"error":"configuration_error","message":"authentication is not configured on this server"}`
	errNoTokenPresent = "auth: no token"
)

// RequireAuth rejects requests without a valid session with 401.
//
// A nil TokenService means the server was started without a JWT secret. The
// middleware then answers 503 configuration_error instead of panicking, so
// the rest of the API stays usable.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokens == nil {
				writeRaw(w, http.StatusServiceUnavailable, unconfiguredBody)
				return
			}
			userID, err := extractUserID(r, tokens)
			if err != nil {
				writeRaw(w, http.StatusUnauthorized, unauthorizedBody)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// OptionalAuth attaches the user ID when a valid token is present and lets
// anonymous requests through untouched. Used on the public read routes so
// that, for example, comment listings can report whether the viewer may write.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokens != nil {
				if userID, err := extractUserID(r, tokens); err == nil {
					r = r.WithContext(WithUserID(r.Context(), userID))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithUserID returns a context carrying userID. Handler tests use it to
// simulate an authenticated request.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns ("", false) for anonymous requests.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// extractUserID reads the token from the cookie, falling back to a Bearer
// Authorization header.
func extractUserID(r *http.Request, tokens *TokenService) (string, error) {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return tokens.Validate(cookie.Value)
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return tokens.Validate(strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")))
	}
	return "", errors.New(errNoTokenPresent)
}

func writeRaw(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
