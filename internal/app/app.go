// Package app assembles the store, engine and shared infrastructure used by
// every binary.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"github.com/example/benefits/internal/benefit"
	"github.com/example/benefits/internal/config"
	"github.com/example/benefits/pkg/audit"
	"github.com/example/benefits/pkg/metrics"
)

// Components holds everything a transport needs to serve requests.
type Components struct {
	Store   benefit.Store
	Engine  *benefit.TransferEngine
	Service *benefit.AccountService
	Metrics *metrics.MetricsCollector
	Audit   *audit.ChainLogger
	Redis   redis.UniversalClient

	closers []func() error
}

// Build opens the configured store and wires the engine, service, metrics,
// audit log and (when REDIS_ADDR is set) the Redis client.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Components{}

	store, closeStore, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	c.Store = store
	c.closers = append(c.closers, closeStore)

	auditLog, closeAudit, err := OpenAudit(cfg, logger)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.Audit = auditLog
	c.closers = append(c.closers, closeAudit)

	c.Metrics = metrics.NewMetricsCollector(logger)
	c.Engine = benefit.NewTransferEngine(store,
		benefit.WithLogger(logger),
		benefit.WithRecorder(c.Metrics),
		benefit.WithLockTimeout(cfg.TransferLockTimeout),
	)
	c.Service = benefit.NewAccountService(store, logger)

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		c.Redis = client
		c.closers = append(c.closers, client.Close)
	}
	return c, nil
}

// Close releases resources in reverse order of acquisition.
func (c *Components) Close() error {
	var err error
	for i := len(c.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, c.closers[i]())
	}
	c.closers = nil
	return err
}

// OpenStore builds the store named by cfg.StoreDriver. SQLite databases are
// migrated on open; PostgreSQL schemas are applied with `benefitctl migrate`.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (benefit.Store, func() error, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to ping database: %w", err)
		}
		logger.Info("store opened", "driver", cfg.StoreDriver)
		return benefit.NewPostgresStore(pool), func() error { pool.Close(); return nil }, nil

	case config.DriverSQLite:
		db, err := benefit.OpenSQLite(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := benefit.MigrateSQLite(db, logger); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("store opened", "driver", cfg.StoreDriver, "path", cfg.DatabaseURL)
		return benefit.NewSQLiteStore(db, benefit.WithBusyWait(cfg.TransferLockTimeout)), db.Close, nil

	case config.DriverMemory:
		logger.Warn("using in-memory store; data is lost on exit")
		return benefit.NewMemoryStore(), func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// OpenAudit creates the audit chain. With AUDIT_LOG_PATH set, entries are
// appended to that file and the chain head is checkpointed next to it.
func OpenAudit(cfg *config.Config, logger *slog.Logger) (*audit.ChainLogger, func() error, error) {
	opts := []audit.Option{audit.WithLogger(logger)}
	closer := func() error { return nil }

	if cfg.AuditLogPath != "" {
		f, err := os.OpenFile(cfg.AuditLogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		opts = append(opts, audit.WithSink(f), audit.WithCheckpoint(cfg.AuditCheckpointPath))
		closer = f.Close
	}

	chain, err := audit.NewChainLogger(opts...)
	if err != nil {
		_ = closer()
		return nil, nil, err
	}
	return chain, closer, nil
}

// NewLogger returns the JSON logger every binary writes to stdout.
func NewLogger(w io.Writer, env string) *slog.Logger {
	level := slog.LevelInfo
	if env == "development" || env == "test" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
