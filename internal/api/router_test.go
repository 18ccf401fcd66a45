package api

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/benefits/internal/benefit"
	"github.com/example/benefits/internal/idempotency"
	"github.com/example/benefits/internal/security"
	"github.com/example/benefits/pkg/audit"
	"github.com/example/benefits/pkg/metrics"
)

type auditSpy struct {
	mu    sync.Mutex
	kinds []string
}

func (a *auditSpy) Record(ev audit.Event) *audit.LogEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.kinds = append(a.kinds, ev.Kind)
	return &audit.LogEntry{Event: ev}
}

func (a *auditSpy) recorded() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.kinds...)
}

type testAPI struct {
	handler http.Handler
	store   *benefit.MemoryStore
	audit   *auditSpy
	metrics *metrics.MetricsCollector
}

func newTestAPI(t *testing.T, mutate func(*Dependencies)) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := benefit.NewMemoryStore()
	m := metrics.NewMetricsCollector(logger)
	spy := &auditSpy{}

	deps := Dependencies{
		Logger:       logger,
		Engine:       benefit.NewTransferEngine(store, benefit.WithLogger(logger), benefit.WithRecorder(m)),
		Service:      benefit.NewAccountService(store, logger),
		Metrics:      m,
		Auditor:      spy,
		MaxBodyBytes: 1 << 20,
	}
	if mutate != nil {
		mutate(&deps)
	}
	h, err := NewRouter(deps)
	require.NoError(t, err)
	return &testAPI{handler: h, store: store, audit: spy, metrics: m}
}

func (a *testAPI) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) create(t *testing.T, name, balance string) benefit.Account {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/v1/benefits/", `{"name":"`+name+`","balance":"`+balance+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var acc benefit.Account
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&acc))
	return acc
}

func (a *testAPI) balance(t *testing.T, id int64) decimal.Decimal {
	t.Helper()
	acc, err := a.store.Get(context.Background(), id)
	require.NoError(t, err)
	return acc.Balance
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) security.ErrorResponse {
	t.Helper()
	var resp security.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestTransfer_Example(t *testing.T) {
	api := newTestAPI(t, nil)
	a := api.create(t, "A", "1000.00")
	b := api.create(t, "B", "500.00")

	rec := api.do(t, http.MethodPost, "/v1/benefits/transfer",
		`{"source_id":`+itoa(a.ID)+`,"destination_id":`+itoa(b.ID)+`,"amount":200.00}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get(security.CorrelationIDHeader))

	var resp transferResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, benefit.TransferMessage, resp.Message)
	assert.NotEmpty(t, resp.TransferID)

	assert.True(t, api.balance(t, a.ID).Equal(decimal.RequireFromString("800")))
	assert.True(t, api.balance(t, b.ID).Equal(decimal.RequireFromString("700")))
	assert.Contains(t, api.audit.recorded(), "transfer.committed")

	rec = api.do(t, http.MethodGet, "/v1/benefits/"+itoa(a.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"balance":"800.00"`)
}

func TestTransfer_ErrorMapping(t *testing.T) {
	api := newTestAPI(t, nil)
	a := api.create(t, "A", "100")
	b := api.create(t, "B", "0")
	rec := api.do(t, http.MethodPost, "/v1/benefits/", `{"name":"closed","balance":"50","active":false}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var closed benefit.Account
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&closed))

	cases := []struct {
		name      string
		body      string
		status    int
		code      string
		retryable bool
	}{
		{"missing amount", `{"source_id":` + itoa(a.ID) + `,"destination_id":` + itoa(b.ID) + `}`, http.StatusBadRequest, "validation_error", false},
		{"null amount", `{"source_id":` + itoa(a.ID) + `,"destination_id":` + itoa(b.ID) + `,"amount":null}`, http.StatusBadRequest, "validation_error", false},
		{"zero amount", `{"source_id":` + itoa(a.ID) + `,"destination_id":` + itoa(b.ID) + `,"amount":"0"}`, http.StatusBadRequest, "validation_error", false},
		{"same account", `{"source_id":` + itoa(a.ID) + `,"destination_id":` + itoa(a.ID) + `,"amount":"1"}`, http.StatusBadRequest, "validation_error", false},
		{"unknown field", `{"source_id":1,"destination_id":2,"amount":"1","memo":"x"}`, http.StatusBadRequest, "validation_error", false},
		{"malformed json", `{"source_id":`, http.StatusBadRequest, "invalid_json", false},
		{"unknown source", `{"source_id":999,"destination_id":` + itoa(b.ID) + `,"amount":"1"}`, http.StatusNotFound, "not_found", false},
		{"inactive source", `{"source_id":` + itoa(closed.ID) + `,"destination_id":` + itoa(b.ID) + `,"amount":"1"}`, http.StatusConflict, "account_inactive", false},
		{"insufficient funds", `{"source_id":` + itoa(a.ID) + `,"destination_id":` + itoa(b.ID) + `,"amount":"100.01"}`, http.StatusConflict, "insufficient_funds", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, "/v1/benefits/transfer", tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			resp := decodeError(t, rec)
			assert.Equal(t, tc.code, resp.Error)
			assert.Equal(t, tc.retryable, resp.Retryable)
			assert.NotEmpty(t, resp.CorrelationID)
		})
	}

	assert.True(t, api.balance(t, a.ID).Equal(decimal.RequireFromString("100")))
	assert.True(t, api.balance(t, b.ID).IsZero())
}

func TestAccountCRUD(t *testing.T) {
	api := newTestAPI(t, nil)
	meal := api.create(t, "meal", "10.50")
	assert.True(t, meal.Active)
	assert.Equal(t, int64(1), meal.Version)

	rec := api.do(t, http.MethodPost, "/v1/benefits/", `{"name":"gym","balance":5,"active":false}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Location"))

	rec = api.do(t, http.MethodGet, "/v1/benefits/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []benefit.Account
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&all))
	assert.Len(t, all, 2)

	for _, path := range []string{"/v1/benefits/active", "/v1/benefits/?active=true"} {
		rec = api.do(t, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var active []benefit.Account
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&active))
		require.Len(t, active, 1, path)
		assert.Equal(t, meal.ID, active[0].ID)
	}

	rec = api.do(t, http.MethodPut, "/v1/benefits/"+itoa(meal.ID), `{"name":"meal plus","balance":"20","version":1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated benefit.Account
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&updated))
	assert.Equal(t, "meal plus", updated.Name)
	assert.True(t, updated.Active)
	assert.Equal(t, int64(2), updated.Version)

	rec = api.do(t, http.MethodPut, "/v1/benefits/"+itoa(meal.ID), `{"name":"stale","balance":"1","version":1}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "version_conflict", resp.Error)
	assert.True(t, resp.Retryable)

	rec = api.do(t, http.MethodPost, "/v1/benefits/", `{"name":"neg","balance":"-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/v1/benefits/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodDelete, "/v1/benefits/"+itoa(meal.ID), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = api.do(t, http.MethodDelete, "/v1/benefits/"+itoa(meal.ID), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = api.do(t, http.MethodGet, "/v1/benefits/"+itoa(meal.ID), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTransfer_IdempotentReplay(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	api := newTestAPI(t, func(d *Dependencies) {
		d.Idempotency = &idempotency.Store{Redis: rdb, TTL: time.Hour}
	})
	a := api.create(t, "A", "1000")
	b := api.create(t, "B", "0")
	body := `{"source_id":` + itoa(a.ID) + `,"destination_id":` + itoa(b.ID) + `,"amount":"250"}`

	first := api.do(t, http.MethodPost, "/v1/benefits/transfer", body, idempotency.HeaderKey, "pay-1")
	require.Equal(t, http.StatusOK, first.Code)
	second := api.do(t, http.MethodPost, "/v1/benefits/transfer", body, idempotency.HeaderKey, "pay-1")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get(idempotency.ReplayedHeader))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	assert.True(t, api.balance(t, a.ID).Equal(decimal.RequireFromString("750")), "moved once")
}

func TestMetricsAndHealth(t *testing.T) {
	api := newTestAPI(t, nil)
	rec := api.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	api.do(t, http.MethodPost, "/v1/benefits/transfer", `{"source_id":1,"destination_id":1,"amount":"1"}`)

	rec = api.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `benefit_transfers_total{outcome="validation_error"} 1`)
	assert.Contains(t, rec.Body.String(), `benefit_http_requests_total{method="POST",status="400"} 1`)

	rec = api.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = api.do(t, http.MethodPatch, "/v1/benefits/transfer", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMiddlewareLimits(t *testing.T) {
	t.Run("allowlist", func(t *testing.T) {
		allow, err := security.ParseAllowlist("10.0.0.0/8")
		require.NoError(t, err)
		api := newTestAPI(t, func(d *Dependencies) { d.IPAllowlist = allow })
		rec := api.do(t, http.MethodGet, "/v1/benefits/", "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("body size", func(t *testing.T) {
		api := newTestAPI(t, func(d *Dependencies) { d.MaxBodyBytes = 16 })
		rec := api.do(t, http.MethodPost, "/v1/benefits/", `{"name":"a very long benefit name","balance":"1"}`)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("rate limit", func(t *testing.T) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { rdb.Close() })
		api := newTestAPI(t, func(d *Dependencies) {
			d.RateLimiter = &security.RedisTokenBucket{Redis: rdb, Prefix: "test", Capacity: 1, RefillRate: 0.001}
		})
		assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/v1/benefits/", "").Code)
		rec := api.do(t, http.MethodGet, "/v1/benefits/", "")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	})
}

func TestMTLSRequired(t *testing.T) {
	certs := generateMTLSCerts(t)
	api := newTestAPI(t, nil)

	ts := httptest.NewUnstartedServer(api.handler)
	ts.TLS = certs.serverTLS
	ts.StartTLS()
	defer ts.Close()

	clientNoCert := &http.Client{Transport: &http.Transport{TLSClientConfig: certs.noClientTLS}}
	_, err := clientNoCert.Get(ts.URL + "/healthz")
	require.Error(t, err)

	clientWithCert := &http.Client{Transport: &http.Transport{TLSClientConfig: certs.clientTLS}}
	resp, err := clientWithCert.Post(ts.URL+"/v1/benefits/", "application/json", bytes.NewReader([]byte(`{"name":"meal","balance":"1"}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

type testCerts struct {
	serverTLS   *tls.Config
	clientTLS   *tls.Config
	noClientTLS *tls.Config
}

func generateMTLSCerts(t *testing.T) *testCerts {
	caKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	caTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTmpl, caTmpl, &caKey.PublicKey, caKey)
	require.NoError(t, err)
	caCert, err := x509.ParseCertificate(caDER)
	require.NoError(t, err)

	caPool := x509.NewCertPool()
	caPool.AddCert(caCert)

	serverCert := signCert(t, caCert, caKey, "server", []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}, []net.IP{net.ParseIP("127.0.0.1")})
	clientCert := signCert(t, caCert, caKey, "client", []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}, nil)

	return &testCerts{
		serverTLS: &tls.Config{
			Certificates: []tls.Certificate{serverCert},
			ClientAuth:   tls.RequireAndVerifyClientCert,
			ClientCAs:    caPool,
			MinVersion:   tls.VersionTLS13,
		},
		clientTLS: &tls.Config{
			Certificates: []tls.Certificate{clientCert},
			RootCAs:      caPool,
			MinVersion:   tls.VersionTLS13,
		},
		noClientTLS: &tls.Config{
			RootCAs:    caPool,
			MinVersion: tls.VersionTLS13,
		},
	}
}

func signCert(t *testing.T, ca *x509.Certificate, caKey *rsa.PrivateKey, cn string, eku []x509.ExtKeyUsage, ips []net.IP) tls.Certificate {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  eku,
		IPAddresses:  ips,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca, &key.PublicKey, caKey)
	require.NoError(t, err)

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}
