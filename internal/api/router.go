package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/benefits/internal/benefit"
	"github.com/example/benefits/internal/idempotency"
	"github.com/example/benefits/internal/security"
	"github.com/example/benefits/pkg/audit"
)

type Auditor interface {
	Record(ev audit.Event) *audit.LogEntry
}

// Metrics is the slice of the metrics collector the router uses.
type Metrics interface {
	HTTPObserver
	GetHandler() http.Handler
}

type Dependencies struct {
	Logger  *slog.Logger
	Engine  *benefit.TransferEngine
	Service *benefit.AccountService

	Metrics      Metrics
	Auditor      Auditor
	RateLimiter  *security.RedisTokenBucket
	Idempotency  *idempotency.Store
	IPAllowlist  security.Allowlist
	MaxBodyBytes int64
}

func NewRouter(deps Dependencies) (http.Handler, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	createV, err := security.NewJSONSchemaValidator(createAccountSchema)
	if err != nil {
		return nil, err
	}
	updateV, err := security.NewJSONSchemaValidator(updateAccountSchema)
	if err != nil {
		return nil, err
	}
	transferV, err := security.NewJSONSchemaValidator(transferSchema)
	if err != nil {
		return nil, err
	}

	var obs HTTPObserver
	if deps.Metrics != nil {
		obs = deps.Metrics
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(security.CorrelationID)
	r.Use(RequestLogger(deps.Logger, obs))
	r.Use(security.BodySizeLimit(deps.MaxBodyBytes))
	r.Use(security.IPAllowlist(deps.IPAllowlist))
	if deps.RateLimiter.Enabled() {
		r.Use(security.RateLimitMiddleware(deps.RateLimiter, security.ClientIPKey))
	}
	if deps.Auditor != nil {
		r.Use(AuditMiddleware(deps.Auditor))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.GetHandler())
	}

	h := &handlers{deps: deps}
	r.Route("/v1/benefits", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/active", h.listActive)
		r.Get("/{id}", h.get)
		r.With(createV.Middleware).Post("/", h.create)
		r.With(updateV.Middleware).Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
		r.With(transferV.Middleware, deps.Idempotency.Middleware).Post("/transfer", h.transfer)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		security.WriteJSONError(w, r, http.StatusNotFound, "not_found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		security.WriteJSONError(w, r, http.StatusMethodNotAllowed, "method_not_allowed")
	})

	return r, nil
}
