// Package idempotency replays the stored response of a request whose
// Idempotency-Key has already completed successfully.
package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/benefits/internal/security"
)

const (
	HeaderKey      = "Idempotency-Key"
	ReplayedHeader = "Idempotent-Replayed"
	DefaultTTL     = 24 * time.Hour
	maxKeyLength   = 255
)

const (
	statePending = "pending"
	stateDone    = "done"
)

type record struct {
	State       string `json:"state"`
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Store keeps idempotency records in Redis.
//
// The first request with a key claims it with SET NX. A 2xx response is saved
// and replayed to later requests with the same key; any other outcome releases
// the key so the client can try again.
type Store struct {
	Redis  redis.UniversalClient
	Prefix string
	TTL    time.Duration
	Logger *slog.Logger
}

func (s *Store) key(k string) string {
	if s.Prefix == "" {
		return "idem:" + k
	}
	return s.Prefix + ":" + k
}

func (s *Store) ttl() time.Duration {
	if s.TTL <= 0 {
		return DefaultTTL
	}
	return s.TTL
}

func (s *Store) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// claim returns (nil, nil) when the key was free and is now pending, or the
// existing record otherwise.
func (s *Store) claim(ctx context.Context, k, fingerprint string) (*record, error) {
	pending, err := json.Marshal(record{State: statePending, Fingerprint: fingerprint})
	if err != nil {
		return nil, err
	}
	ok, err := s.Redis.SetNX(ctx, s.key(k), pending, s.ttl()).Result()
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, nil
	}

	raw, err := s.Redis.Get(ctx, s.key(k)).Bytes()
	if errors.Is(err, redis.Nil) {
		// Released between SETNX and GET; treat as in flight.
		return &record{State: statePending, Fingerprint: fingerprint}, nil
	}
	if err != nil {
		return nil, err
	}
	var existing record
	if err := json.Unmarshal(raw, &existing); err != nil {
		return nil, err
	}
	return &existing, nil
}

func (s *Store) complete(ctx context.Context, k string, rec record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.Redis.Set(ctx, s.key(k), data, s.ttl()).Err()
}

func (s *Store) release(ctx context.Context, k string) error {
	return s.Redis.Del(ctx, s.key(k)).Err()
}

// Middleware applies the key protocol to requests carrying Idempotency-Key.
// Requests without the header pass through untouched.
func (s *Store) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		k := r.Header.Get(HeaderKey)
		if k == "" || s == nil || s.Redis == nil {
			next.ServeHTTP(w, r)
			return
		}
		if len(k) > maxKeyLength {
			security.WriteError(w, r, http.StatusBadRequest, security.ErrorResponse{
				Error:   "invalid_idempotency_key",
				Message: "Idempotency-Key must be at most 255 characters",
			})
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_request")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		sum := sha256.Sum256(body)
		fingerprint := hex.EncodeToString(sum[:])

		existing, err := s.claim(r.Context(), k, fingerprint)
		if err != nil {
			s.logger().Error("idempotency store unavailable", "error", err)
			security.WriteError(w, r, http.StatusServiceUnavailable, security.ErrorResponse{Error: "idempotency_unavailable", Retryable: true})
			return
		}
		if existing != nil {
			s.respondExisting(w, r, existing, fingerprint)
			return
		}

		cw := &captureWriter{ResponseWriter: w, status: http.StatusOK}
		settled := false
		defer func() {
			if !settled {
				_ = s.release(context.WithoutCancel(r.Context()), k)
			}
		}()

		next.ServeHTTP(cw, r)

		ctx := context.WithoutCancel(r.Context())
		if cw.status >= 200 && cw.status < 300 {
			err = s.complete(ctx, k, record{
				State:       stateDone,
				Fingerprint: fingerprint,
				Status:      cw.status,
				ContentType: cw.Header().Get("Content-Type"),
				Body:        cw.buf.Bytes(),
			})
			if err == nil {
				settled = true
			} else {
				s.logger().Error("idempotency record not saved", "error", err)
			}
		}
	})
}

func (s *Store) respondExisting(w http.ResponseWriter, r *http.Request, existing *record, fingerprint string) {
	if existing.Fingerprint != fingerprint {
		security.WriteError(w, r, http.StatusUnprocessableEntity, security.ErrorResponse{
			Error:   "idempotency_key_reused",
			Message: "Idempotency-Key was already used with a different request body",
		})
		return
	}
	if existing.State != stateDone {
		security.WriteError(w, r, http.StatusConflict, security.ErrorResponse{
			Error:     "idempotency_in_progress",
			Message:   "a request with this Idempotency-Key is still being processed",
			Retryable: true,
		})
		return
	}

	if existing.ContentType != "" {
		w.Header().Set("Content-Type", existing.ContentType)
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(existing.Status)
	_, _ = w.Write(existing.Body)
}

// captureWriter writes through to the client while keeping a copy of the response.
type captureWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	buf         bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	if !c.wroteHeader {
		c.status = code
		c.wroteHeader = true
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	if !c.wroteHeader {
		c.WriteHeader(http.StatusOK)
	}
	c.buf.Write(b)
	return c.ResponseWriter.Write(b)
}
