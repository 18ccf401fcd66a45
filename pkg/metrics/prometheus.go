package metrics

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// MetricsCollector owns a private registry with the service's metrics.
type MetricsCollector struct {
	registry         *prometheus.Registry
	transfers        *prometheus.CounterVec
	transferDuration prometheus.Histogram
	transferAmount   prometheus.Histogram
	httpRequests     *prometheus.CounterVec
	rpcRequests      *prometheus.CounterVec
	logger           *slog.Logger
}

func NewMetricsCollector(logger *slog.Logger) *MetricsCollector {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()

	return &MetricsCollector{
		registry: registry,
		transfers: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "benefit_transfers_total",
			Help: "Transfers attempted, by outcome",
		}, []string{"outcome"}),
		transferDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "benefit_transfer_duration_seconds",
			Help:    "Time taken by a transfer, lock waits included",
			Buckets: prometheus.DefBuckets,
		}),
		transferAmount: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "benefit_transfer_amount",
			Help:    "Amounts of committed transfers",
			Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000, 10000},
		}),
		httpRequests: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "benefit_http_requests_total",
			Help: "HTTP requests served, by method and status",
		}, []string{"method", "status"}),
		rpcRequests: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "benefit_grpc_requests_total",
			Help: "gRPC calls served, by method and code",
		}, []string{"method", "code"}),
		logger: logger,
	}
}

// ObserveTransfer records one transfer attempt. Amounts are only observed for
// committed transfers.
func (m *MetricsCollector) ObserveTransfer(outcome string, amount decimal.Decimal, elapsed time.Duration) {
	m.transfers.WithLabelValues(outcome).Inc()
	m.transferDuration.Observe(elapsed.Seconds())
	if outcome == "ok" {
		m.transferAmount.Observe(amount.InexactFloat64())
	}
}

func (m *MetricsCollector) ObserveHTTPRequest(method string, status int) {
	m.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

func (m *MetricsCollector) ObserveRPC(method, code string) {
	m.rpcRequests.WithLabelValues(method, code).Inc()
}

func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.registry
}

// GetHandler serves the registry. Gather failures are written to the
// collector's logger.
func (m *MetricsCollector) GetHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog: slog.NewLogLogger(m.logger.Handler(), slog.LevelError),
	})
}
