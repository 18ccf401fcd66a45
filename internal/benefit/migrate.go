package benefit

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations
var migrationsFS embed.FS

// MigratePostgres applies the embedded PostgreSQL schema to databaseURL.
func MigratePostgres(databaseURL string, logger *slog.Logger) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to create postgres driver instance: %w", err)
	}

	m, err := newMigrator("migrations/postgres", "postgres", driver)
	if err != nil {
		db.Close()
		return err
	}
	defer m.Close()

	return runUp(m, logger)
}

// MigrateSQLite applies the embedded SQLite schema to db. db stays open.
func MigrateSQLite(db *sql.DB, logger *slog.Logger) error {
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver instance: %w", err)
	}

	// Closing m would close db through the driver.
	m, err := newMigrator("migrations/sqlite", "sqlite3", driver)
	if err != nil {
		return err
	}
	return runUp(m, logger)
}

func newMigrator(path, dbName string, driver database.Driver) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, dbName, driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return m, nil
}

func runUp(m *migrate.Migrate, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no new migrations found")
			return nil
		}
		var dirtyErr migrate.ErrDirty
		if errors.As(err, &dirtyErr) {
			return fmt.Errorf("migration failed: dirty database version %d", dirtyErr.Version)
		}
		return fmt.Errorf("migration failed: %w", err)
	}
	version, _, err := m.Version()
	if err == nil {
		logger.Info("migrations applied", "version", version)
	}
	return nil
}
