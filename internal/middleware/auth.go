package middleware

import (
	"net/http"
	"strings"

	"github.com/Will-Jameson/portfolio-website/internal/auth"
)

const SessionCookie = "portfolio_session"

// SessionToken reads the session token from the cookie set at login or
// from a Bearer Authorization header.
func SessionToken(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}

// RequireSession lets through requests carrying the live session token.
// Browsers are redirected to loginURL and their location is kept for after
// login; API clients get 401 and leave no redirect behind.
func RequireSession(gate *auth.Gate, loginURL string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			browser := loginURL != "" && strings.Contains(r.Header.Get("Accept"), "text/html")
			location := ""
			if browser {
				location = r.URL.RequestURI()
			}
			if !gate.RequireAuth(ctx, location) || !gate.Authenticate(ctx, SessionToken(r)) {
				if browser {
					http.Redirect(w, r, loginURL, http.StatusFound)
					return
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			gate.NoteActivity(ctx)
			next.ServeHTTP(w, r)
		})
	}
}
