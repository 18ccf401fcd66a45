package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config holds the application configuration.
type Config struct {
	Environment string
	StoreDriver string
	DatabaseURL string

	APIAddr     string
	GRPCAddr    string
	GRPCWebAddr string
	RedisAddr   string

	TransferLockTimeout time.Duration
	IdempotencyTTL      time.Duration

	MaxBodyBytes        int64
	RateLimitCapacity   int
	RateLimitRefill     float64
	IPAllowlist         string
	TLSCertFile         string
	TLSKeyFile          string
	TLSCAFile           string
	AuditLogPath        string
	AuditCheckpointPath string
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env file", "error", err)
	}
	return LoadFromEnv()
}

// LoadFromEnv builds and validates a Config from environment variables only.
func LoadFromEnv() (*Config, error) {
	p := &parser{}
	cfg := &Config{
		Environment:         os.Getenv("APP_ENV"),
		StoreDriver:         getenv("STORE_DRIVER", DriverPostgres),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		APIAddr:             getenv("API_ADDR", ":8080"),
		GRPCAddr:            getenv("GRPC_ADDR", ":9090"),
		GRPCWebAddr:         os.Getenv("GRPC_WEB_ADDR"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		TransferLockTimeout: p.duration("TRANSFER_LOCK_TIMEOUT", 5*time.Second),
		IdempotencyTTL:      p.duration("IDEMPOTENCY_TTL", 24*time.Hour),
		MaxBodyBytes:        int64(p.int("API_MAX_BODY_BYTES", 1<<20)),
		RateLimitCapacity:   p.int("API_RATE_LIMIT_CAPACITY", 0),
		RateLimitRefill:     p.float("API_RATE_LIMIT_REFILL_PER_SEC", 0),
		IPAllowlist:         os.Getenv("API_IP_ALLOWLIST"),
		TLSCertFile:         os.Getenv("API_TLS_CERT"),
		TLSKeyFile:          os.Getenv("API_TLS_KEY"),
		TLSCAFile:           os.Getenv("API_TLS_CA"),
		AuditLogPath:        os.Getenv("AUDIT_LOG_PATH"),
	}
	if cfg.AuditLogPath != "" {
		cfg.AuditCheckpointPath = cfg.AuditLogPath + ".head"
	}

	if len(p.errs) > 0 {
		return nil, errors.Join(p.errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var missing []string

	if c.Environment == "" {
		missing = append(missing, "APP_ENV")
	}
	switch c.StoreDriver {
	case DriverPostgres, DriverSQLite:
		if c.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be one of %s, %s, %s (got %q)", DriverPostgres, DriverSQLite, DriverMemory, c.StoreDriver)
	}

	if len(missing) > 0 {
		return errors.New("missing required environment variables: " + strings.Join(missing, ", "))
	}

	if c.IsProduction() && c.StoreDriver == DriverMemory {
		return errors.New("STORE_DRIVER=memory is not allowed in " + c.Environment)
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return errors.New("API_TLS_CERT and API_TLS_KEY must be set together")
	}
	if c.TLSCAFile != "" && c.TLSCertFile == "" {
		return errors.New("API_TLS_CA requires API_TLS_CERT and API_TLS_KEY")
	}
	if c.TransferLockTimeout <= 0 {
		return errors.New("TRANSFER_LOCK_TIMEOUT must be positive")
	}
	if c.RateLimitCapacity < 0 || c.RateLimitRefill < 0 {
		return errors.New("rate limit settings must not be negative")
	}

	return nil
}

// IsProduction reports whether the environment forbids development shortcuts.
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "staging"
}

func getenv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

type parser struct {
	errs []error
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func (p *parser) int(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func (p *parser) float(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return f
}
