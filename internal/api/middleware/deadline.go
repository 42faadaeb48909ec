package middleware

import (
	"context"
	"net/http"
	"time"
)

// Deadline cancels the request context after d so a slow handler still
// answers before the server's write timeout drops the connection.
// A non-positive d leaves the request unbounded.
func Deadline(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
