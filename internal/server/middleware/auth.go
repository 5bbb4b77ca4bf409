// Package middleware contains HTTP middleware for the job API.
package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
)

// userIDKey is the context key for the authenticated user id.
type userIDKey struct{}

// Auth resolves the job-owning principal for the request. With credentials
// configured it enforces basic auth and uses the authenticated username;
// without credentials it trusts the X-User-Id header and falls back to
// "anonymous", which is only suitable for development.
func Auth(username, password string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var userID string

			if username != "" {
				u, p, ok := r.BasicAuth()
				if !ok ||
					subtle.ConstantTimeCompare([]byte(u), []byte(username)) != 1 ||
					subtle.ConstantTimeCompare([]byte(p), []byte(password)) != 1 {
					w.Header().Set("WWW-Authenticate", `Basic realm="longjob"`)
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
				userID = u
			} else {
				userID = r.Header.Get("X-User-Id")
				if userID == "" {
					userID = "anonymous"
				}
			}

			ctx := context.WithValue(r.Context(), userIDKey{}, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext extracts the authenticated user id from the context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	if v := ctx.Value(userIDKey{}); v != nil {
		return v.(string), true
	}
	return "", false
}
