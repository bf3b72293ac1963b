// Package middleware contains HTTP middleware for the controller.
package middleware

import (
	"net/http"
	"strings"

	"mosaic/internal/auth"
)

// RequireOperatorToken ensures the request carries the operator bearer
// token. An empty token disables the check.
func RequireOperatorToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		verifier := auth.NewVerifier(token)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Missing authorization header", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Invalid authorization header", http.StatusUnauthorized)
				return
			}

			if !verifier.Verify(parts[1]) {
				http.Error(w, "Invalid authorization token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
