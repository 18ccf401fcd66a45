package security

import (
	"context"
	"net/http"
	"regexp"

	"github.com/google/uuid"
	"google.golang.org/grpc/metadata"
)

const (
	CorrelationIDHeader = "X-Correlation-ID"
	// CorrelationIDMetadataKey is the gRPC metadata key; metadata keys are lower case.
	CorrelationIDMetadataKey = "x-correlation-id"
)

var correlationIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

type correlationIDKey struct{}

// CorrelationID accepts a well-formed inbound X-Correlation-ID or mints a new
// one, stores it in the request context and echoes it on the response.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cid := normalizeCorrelationID(r.Header.Get(CorrelationIDHeader))
		w.Header().Set(CorrelationIDHeader, cid)
		next.ServeHTTP(w, r.WithContext(WithCorrelationID(r.Context(), cid)))
	})
}

// IncomingCorrelationID reads the correlation id from gRPC metadata, minting
// one when absent or malformed.
func IncomingCorrelationID(ctx context.Context) string {
	var raw string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(CorrelationIDMetadataKey); len(vals) > 0 {
			raw = vals[0]
		}
	}
	return normalizeCorrelationID(raw)
}

// OutgoingCorrelationID attaches cid to an outgoing gRPC call.
func OutgoingCorrelationID(ctx context.Context, cid string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, CorrelationIDMetadataKey, cid)
}

func normalizeCorrelationID(raw string) string {
	if correlationIDPattern.MatchString(raw) {
		return raw
	}
	return uuid.NewString()
}

func WithCorrelationID(ctx context.Context, cid string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, cid)
}

func CorrelationIDFromContext(ctx context.Context) string {
	if v := ctx.Value(correlationIDKey{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
