package rpc

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/example/benefits/internal/security"
)

// RPCObserver counts finished calls.
type RPCObserver interface {
	ObserveRPC(method, code string)
}

// CorrelationInterceptor attaches the caller's x-correlation-id, or a new
// one, to the context and echoes it back in the response header.
func CorrelationInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		cid := security.IncomingCorrelationID(ctx)
		ctx = security.WithCorrelationID(ctx, cid)
		_ = grpc.SetHeader(ctx, metadata.Pairs(security.CorrelationIDMetadataKey, cid))
		return handler(ctx, req)
	}
}

// LoggingInterceptor logs every call and reports it to obs when set.
func LoggingInterceptor(l *slog.Logger, obs RPCObserver) grpc.UnaryServerInterceptor {
	if l == nil {
		l = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)

		level := slog.LevelInfo
		if code == codes.Internal || code == codes.Unknown {
			level = slog.LevelError
		}
		l.Log(ctx, level, "grpc_request",
			"cid", security.CorrelationIDFromContext(ctx),
			"method", info.FullMethod,
			"code", code.String(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		if obs != nil {
			obs.ObserveRPC(info.FullMethod, code.String())
		}
		return resp, err
	}
}

// AllowlistInterceptor rejects peers outside allow.
func AllowlistInterceptor(allow security.Allowlist) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !allow.Allows(peerAddr(ctx)) {
			return nil, status.Error(codes.PermissionDenied, "forbidden")
		}
		return handler(ctx, req)
	}
}

// RateLimitInterceptor applies the token bucket per peer host.
func RateLimitInterceptor(l *security.RedisTokenBucket) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		key := peerHost(ctx)
		if key == "" || !l.Enabled() {
			return handler(ctx, req)
		}
		allowed, _, err := l.Allow(ctx, key)
		if err != nil {
			return nil, status.Error(codes.Unavailable, "rate limiter unavailable")
		}
		if !allowed {
			return nil, status.Error(codes.ResourceExhausted, "rate limited")
		}
		return handler(ctx, req)
	}
}

func peerAddr(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	return p.Addr.String()
}

func peerHost(ctx context.Context) string {
	addr := peerAddr(ctx)
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
