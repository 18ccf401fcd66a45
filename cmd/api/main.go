package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/benefits/internal/api"
	"github.com/example/benefits/internal/app"
	"github.com/example/benefits/internal/config"
	"github.com/example/benefits/internal/idempotency"
	"github.com/example/benefits/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		app.NewLogger(os.Stderr, "").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := app.NewLogger(os.Stdout, cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	allowlist, err := security.ParseAllowlist(cfg.IPAllowlist)
	if err != nil {
		logger.Error("invalid API_IP_ALLOWLIST", "error", err)
		os.Exit(1)
	}

	c, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialise", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	deps := api.Dependencies{
		Logger:       logger,
		Engine:       c.Engine,
		Service:      c.Service,
		Metrics:      c.Metrics,
		Auditor:      c.Audit,
		IPAllowlist:  allowlist,
		MaxBodyBytes: cfg.MaxBodyBytes,
	}
	if c.Redis != nil {
		deps.RateLimiter = &security.RedisTokenBucket{
			Redis:      c.Redis,
			Prefix:     "benefits_api",
			Capacity:   cfg.RateLimitCapacity,
			RefillRate: cfg.RateLimitRefill,
		}
		deps.Idempotency = &idempotency.Store{
			Redis:  c.Redis,
			TTL:    cfg.IdempotencyTTL,
			Logger: logger,
		}
	}

	router, err := api.NewRouter(deps)
	if err != nil {
		logger.Error("failed to build router", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	tlsFiles := security.TLSConfig{CertFile: cfg.TLSCertFile, KeyFile: cfg.TLSKeyFile, CAFile: cfg.TLSCAFile}
	if tlsFiles.Enabled() {
		srv.TLSConfig, err = security.LoadServerTLSConfig(tlsFiles)
		if err != nil {
			logger.Error("failed to load TLS config", "error", err)
			os.Exit(1)
		}
	}

	ln, err := net.Listen("tcp", cfg.APIAddr)
	if err != nil {
		logger.Error("failed to listen", "error", err)
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("benefits api listening", "addr", cfg.APIAddr, "tls", tlsFiles.Enabled(), "store", cfg.StoreDriver)
	if srv.TLSConfig != nil {
		err = srv.ServeTLS(ln, "", "")
	} else {
		err = srv.Serve(ln)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
