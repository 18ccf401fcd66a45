package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/benefits/internal/benefit"
	"github.com/example/benefits/internal/security"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	cid := security.CorrelationIDFromContext(r.Context())
	if cid != "" {
		w.Header().Set(security.CorrelationIDHeader, cid)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDomainError maps a benefit error onto its HTTP status and error body.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, benefit.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, benefit.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, benefit.ErrInactive),
		errors.Is(err, benefit.ErrInsufficientFunds),
		errors.Is(err, benefit.ErrVersionConflict),
		errors.Is(err, benefit.ErrLockTimeout):
		status = http.StatusConflict
	}

	body := security.ErrorResponse{
		Error:     benefit.Kind(err),
		Retryable: benefit.IsRetryable(err),
	}
	if status == http.StatusInternalServerError {
		body.Message = "an unexpected error occurred"
	} else {
		body.Message = err.Error()
	}
	security.WriteError(w, r, status, body)
}
