package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/example/benefits/internal/security"
)

// HTTPObserver counts finished requests.
type HTTPObserver interface {
	ObserveHTTPRequest(method string, status int)
}

func RequestLogger(l *slog.Logger, obs HTTPObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(sw, r)
			dur := time.Since(start)

			if obs != nil {
				obs.ObserveHTTPRequest(r.Method, sw.status)
			}
			if l == nil {
				return
			}
			l.Info("http_request",
				"cid", security.CorrelationIDFromContext(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", dur.Milliseconds(),
			)
		})
	}
}
