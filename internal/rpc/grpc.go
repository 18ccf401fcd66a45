package rpc

import (
	"crypto/tls"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	pb "github.com/example/benefits/api/gen/benefit"
	"github.com/example/benefits/internal/security"
)

const maxMsgSize = 1024 * 1024

// Options configures the gRPC server around a Server.
type Options struct {
	Logger      *slog.Logger
	Metrics     RPCObserver
	Allowlist   security.Allowlist
	RateLimiter *security.RedisTokenBucket
	TLS         *tls.Config
}

// NewGRPCServer registers srv on a new grpc.Server with the interceptor
// chain: correlation id, logging, allowlist, then rate limit.
func NewGRPCServer(srv *Server, opts Options) *grpc.Server {
	chain := []grpc.UnaryServerInterceptor{
		CorrelationInterceptor(),
		LoggingInterceptor(opts.Logger, opts.Metrics),
	}
	if len(opts.Allowlist) > 0 {
		chain = append(chain, AllowlistInterceptor(opts.Allowlist))
	}
	if opts.RateLimiter.Enabled() {
		chain = append(chain, RateLimitInterceptor(opts.RateLimiter))
	}

	serverOpts := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(maxMsgSize),
		grpc.MaxSendMsgSize(maxMsgSize),
		grpc.ChainUnaryInterceptor(chain...),
	}
	if opts.TLS != nil {
		serverOpts = append(serverOpts, grpc.Creds(credentials.NewTLS(opts.TLS)))
	}

	gs := grpc.NewServer(serverOpts...)
	pb.RegisterBenefitServiceServer(gs, srv)
	return gs
}
