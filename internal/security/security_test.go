package security

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func decodeError(t *testing.T, body io.Reader) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(body).Decode(&resp))
	return resp
}

func TestCorrelationID(t *testing.T) {
	var seen string
	h := CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationIDHeader, "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", seen)
	assert.Equal(t, "req-123", rec.Header().Get(CorrelationIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationIDHeader, "bad value\nwith newline")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.NotEqual(t, "bad value\nwith newline", seen)
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, rec.Header().Get(CorrelationIDHeader))
}

func TestIncomingCorrelationID(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(CorrelationIDMetadataKey, "grpc-1"))
	assert.Equal(t, "grpc-1", IncomingCorrelationID(ctx))
	assert.Len(t, IncomingCorrelationID(context.Background()), 36)

	out := OutgoingCorrelationID(context.Background(), "cli-7")
	md, ok := metadata.FromOutgoingContext(out)
	require.True(t, ok)
	assert.Equal(t, []string{"cli-7"}, md.Get(CorrelationIDMetadataKey))
}

func TestWriteError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithCorrelationID(req.Context(), "cid-9"))
	rec := httptest.NewRecorder()

	WriteError(rec, req, http.StatusConflict, ErrorResponse{Error: "version_conflict", Message: "stale", Retryable: true})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	resp := decodeError(t, rec.Body)
	assert.Equal(t, "version_conflict", resp.Error)
	assert.Equal(t, "stale", resp.Message)
	assert.True(t, resp.Retryable)
	assert.Equal(t, "cid-9", resp.CorrelationID)
}

const testSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["name"],
  "properties": {"name": {"type": "string", "minLength": 1}}
}`

func TestJSONSchemaValidator(t *testing.T) {
	v, err := NewJSONSchemaValidator(testSchema)
	require.NoError(t, err)
	h := BodySizeLimit(64)(v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"name":"meal"}`, string(body))
		w.WriteHeader(http.StatusNoContent)
	})))

	cases := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"valid", `{"name":"meal"}`, http.StatusNoContent, ""},
		{"invalid json", `{"name":`, http.StatusBadRequest, "invalid_json"},
		{"missing field", `{}`, http.StatusBadRequest, "validation_error"},
		{"extra field", `{"name":"x","admin":true}`, http.StatusBadRequest, "validation_error"},
		{"too large", `{"name":"` + strings.Repeat("x", 100) + `"}`, http.StatusRequestEntityTooLarge, "payload_too_large"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body)))
			assert.Equal(t, tc.status, rec.Code)
			if tc.code != "" {
				assert.Equal(t, tc.code, decodeError(t, rec.Body).Error)
			}
		})
	}

	_, err = NewJSONSchemaValidator(`{"type": 12}`)
	assert.Error(t, err)
}

func TestAllowlist(t *testing.T) {
	allow, err := ParseAllowlist("10.0.0.0/8, 192.168.1.5 ,::1")
	require.NoError(t, err)

	assert.True(t, allow.Allows("10.1.2.3:5555"))
	assert.True(t, allow.Allows("192.168.1.5:80"))
	assert.True(t, allow.Allows("[::1]:443"))
	assert.False(t, allow.Allows("192.168.1.6:80"))
	assert.False(t, allow.Allows("garbage"))
	assert.True(t, Allowlist(nil).Allows("8.8.8.8:1"))

	_, err = ParseAllowlist("10.0.0.0/33")
	assert.Error(t, err)

	h := IPAllowlist(allow)(okHandler)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "172.16.0.1:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	limiter := &RedisTokenBucket{Redis: rdb, Prefix: "rl", Capacity: 2, RefillRate: 0.5}
	h := RateLimitMiddleware(limiter, ClientIPKey)(okHandler)

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:9999"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, do().Code)
	assert.Equal(t, http.StatusNoContent, do().Code)
	limited := do()
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "2", limited.Header().Get("Retry-After"))
	resp := decodeError(t, limited.Body)
	assert.Equal(t, "rate_limited", resp.Error)
	assert.True(t, resp.Retryable)

	assert.Equal(t, 2*time.Second, limiter.RetryAfter())
}

func TestRateLimitMiddleware_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	limiter := &RedisTokenBucket{Redis: rdb, Capacity: 1, RefillRate: 1}
	rec := httptest.NewRecorder()
	RateLimitMiddleware(limiter, ClientIPKey)(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRateLimitDisabled(t *testing.T) {
	var limiter *RedisTokenBucket
	rec := httptest.NewRecorder()
	RateLimitMiddleware(limiter, ClientIPKey)(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
