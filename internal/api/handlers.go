package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/example/benefits/internal/benefit"
	"github.com/example/benefits/internal/security"
	"github.com/example/benefits/pkg/audit"
)

type handlers struct {
	deps Dependencies
}

type transferResponse struct {
	Message    string `json:"message"`
	TransferID string `json:"transfer_id"`
}

func (h *handlers) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter benefit.AccountFilter

	if v := q.Get("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeDomainError(w, r, &benefit.ValidationError{Field: "active", Reason: "must be true or false"})
			return
		}
		filter.ActiveOnly = b
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		i, err := strconv.Atoi(v)
		if err != nil {
			writeDomainError(w, r, &benefit.ValidationError{Field: name, Reason: "must be an integer"})
			return
		}
		*dst = i
	}

	accounts, err := h.deps.Service.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, nonNil(accounts))
}

func (h *handlers) listActive(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.deps.Service.ListActive(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, nonNil(accounts))
}

func (h *handlers) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	account, err := h.deps.Service.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, account)
}

func (h *handlers) create(w http.ResponseWriter, r *http.Request) {
	var req benefit.CreateAccountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	account, err := h.deps.Service.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/benefits/"+strconv.FormatInt(account.ID, 10))
	writeJSON(w, r, http.StatusCreated, account)
}

func (h *handlers) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req benefit.UpdateAccountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	account, err := h.deps.Service.Update(r.Context(), id, req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, account)
}

func (h *handlers) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.deps.Service.Delete(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) transfer(w http.ResponseWriter, r *http.Request) {
	var req benefit.TransferRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.deps.Engine.Transfer(r.Context(), req)
	fields := map[string]string{
		"source_id":      strconv.FormatInt(req.SourceID, 10),
		"destination_id": strconv.FormatInt(req.DestinationID, 10),
	}
	if req.Amount.Valid {
		fields["amount"] = benefit.FormatAmount(req.Amount.Decimal)
	}
	if err != nil {
		fields["error"] = benefit.Kind(err)
		h.record(r, "transfer.rejected", fields)
		writeDomainError(w, r, err)
		return
	}
	fields["transfer_id"] = result.TransferID
	h.record(r, "transfer.committed", fields)

	writeJSON(w, r, http.StatusOK, transferResponse{
		Message:    benefit.TransferMessage,
		TransferID: result.TransferID,
	})
}

func (h *handlers) record(r *http.Request, kind string, fields map[string]string) {
	if h.deps.Auditor == nil {
		return
	}
	h.deps.Auditor.Record(audit.Event{
		Kind:          kind,
		CorrelationID: security.CorrelationIDFromContext(r.Context()),
		Fields:        fields,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		security.WriteError(w, r, http.StatusBadRequest, security.ErrorResponse{Error: "invalid_json", Message: err.Error()})
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeDomainError(w, r, &benefit.ValidationError{Field: "id", Reason: "must be an integer"})
		return 0, false
	}
	return id, true
}

func nonNil(accounts []benefit.Account) []benefit.Account {
	if accounts == nil {
		return []benefit.Account{}
	}
	return accounts
}
