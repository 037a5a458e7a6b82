package middleware

import (
	"net/http"
	"time"
)

// Timeout wraps the five POST endpoints with an http.TimeoutHandler as a
// backstop above the pipeline's own request deadline (spec.md §5) — if a
// handler ever hangs past it, the caller still gets a bounded response
// instead of a dropped connection. The response body matches the
// deadline_exceeded error shape the rest of the HTTP surface returns
// (internal/chronoerr, internal/handler/errors.go).
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, `{"success":false,"error":"deadline_exceeded: request timeout"}`)
	}
}
