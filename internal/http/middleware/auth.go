package middleware

import (
	"context"
	"net/http"

	"roamlotto/internal/auth"
)

type ctxKey string

const ctxAuthenticated ctxKey = "authenticated"

// WithAuth marks the request authenticated when the session cookie is valid
// or the dashboard has no password.
func WithAuth(a *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok := !a.Enabled()
			if !ok {
				if c, err := r.Cookie(auth.CookieName); err == nil && c.Value != "" {
					ok = a.Valid(c.Value) == nil
				}
			}
			ctx := context.WithValue(r.Context(), ctxAuthenticated, ok)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if Authenticated(r) {
			next.ServeHTTP(w, r)
			return
		}
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})
}

func Authenticated(r *http.Request) bool {
	v, _ := r.Context().Value(ctxAuthenticated).(bool)
	return v
}
