package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/example/benefits/internal/security"
	"github.com/example/benefits/pkg/audit"
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// AuditMiddleware records every state-changing request in the audit chain.
// Reads are not audited.
func AuditMiddleware(a Auditor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(sw, r)
			dur := time.Since(start)

			a.Record(audit.Event{
				Kind:          "http.request",
				CorrelationID: security.CorrelationIDFromContext(r.Context()),
				Fields: map[string]string{
					"method":      r.Method,
					"path":        r.URL.Path,
					"status":      strconv.Itoa(sw.status),
					"duration_ms": strconv.FormatInt(dur.Milliseconds(), 10),
				},
			})
		})
	}
}
