package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
)

// AuthHeader is the shared-secret header mutating endpoints check when an
// API key is configured.
const AuthHeader = "X-API-Key"

// RequireAPIKey enforces the pre-shared header on mutating requests. An
// empty apiKey disables the check entirely — the shared secret is optional.
// Comparison is constant-time to avoid leaking the key length/prefix via
// response timing.
func RequireAPIKey(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if apiKey == "" {
			return next
		}
		want := sha256.Sum256([]byte(apiKey))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := sha256.Sum256([]byte(r.Header.Get(AuthHeader)))
			if subtle.ConstantTimeCompare(want[:], got[:]) != 1 {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
