package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/improbable-eng/grpc-web/go/grpcweb"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/reflection"

	"github.com/example/benefits/internal/app"
	"github.com/example/benefits/internal/config"
	"github.com/example/benefits/internal/rpc"
	"github.com/example/benefits/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		app.NewLogger(os.Stderr, "").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := app.NewLogger(os.Stdout, cfg.Environment)

	if err := run(cfg, logger); err != nil {
		logger.Error("benefits server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	allowlist, err := security.ParseAllowlist(cfg.IPAllowlist)
	if err != nil {
		return err
	}

	c, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	opts := rpc.Options{
		Logger:    logger,
		Metrics:   c.Metrics,
		Allowlist: allowlist,
	}
	if c.Redis != nil {
		opts.RateLimiter = &security.RedisTokenBucket{
			Redis:      c.Redis,
			Prefix:     "benefits_grpc",
			Capacity:   cfg.RateLimitCapacity,
			RefillRate: cfg.RateLimitRefill,
		}
	}
	tlsFiles := security.TLSConfig{CertFile: cfg.TLSCertFile, KeyFile: cfg.TLSKeyFile, CAFile: cfg.TLSCAFile}
	if tlsFiles.Enabled() {
		if opts.TLS, err = security.LoadServerTLSConfig(tlsFiles); err != nil {
			return err
		}
	}

	gs := rpc.NewGRPCServer(rpc.NewServer(c.Engine, c.Service, c.Audit, logger), opts)
	reflection.Register(gs)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("benefits grpc listening", "addr", cfg.GRPCAddr, "store", cfg.StoreDriver)
		return gs.Serve(lis)
	})

	var webSrv *http.Server
	if cfg.GRPCWebAddr != "" {
		wrapped := grpcweb.WrapServer(gs)
		webSrv = &http.Server{
			Addr:              cfg.GRPCWebAddr,
			ReadHeaderTimeout: 5 * time.Second,
			Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if wrapped.IsGrpcWebRequest(r) || wrapped.IsAcceptableGrpcCorsRequest(r) {
					wrapped.ServeHTTP(w, r)
					return
				}
				if r.URL.Path == "/metrics" {
					c.Metrics.GetHandler().ServeHTTP(w, r)
					return
				}
				http.NotFound(w, r)
			}),
		}
		g.Go(func() error {
			logger.Info("benefits grpc-web listening", "addr", cfg.GRPCWebAddr)
			if err := webSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		if webSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = webSrv.Shutdown(shutdownCtx)
		}
		gs.GracefulStop()
		return nil
	})

	return g.Wait()
}
