// Package postgres provides the PostgreSQL connection pool, schema migration
// management, and repository implementations under repositories/. Migrations
// ship embedded in the binary and run automatically on startup; the CLI
// exposes rollback, status, and recovery commands for advanced scenarios.
package postgres

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // Postgres driver
	_ "github.com/golang-migrate/migrate/v4/source/file"       // File source driver
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/spanmark/spanmark/internal/config"
	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/logging"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// newMigrate builds a migrate instance for cfg. The embedded migration set is
// used unless cfg.MigrationPath points at an on-disk directory, which is the
// escape hatch for developing new migrations without recompiling.
func newMigrate(cfg config.DatabaseConfig) (*migrate.Migrate, error) {
	dbURL := buildDSN(cfg)

	if cfg.MigrationPath != "" {
		m, err := migrate.New("file://"+cfg.MigrationPath, dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create migrate instance from %s: %w", cfg.MigrationPath, err)
		}
		return m, nil
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// RunMigrations — apply all pending migrations
// ─────────────────────────────────────────────────────────────────────────────

// RunMigrations applies all pending schema migrations. It is called during
// application startup, before the connection pool is handed to repositories.
// A database that is already up to date is not an error.
func RunMigrations(cfg config.DatabaseConfig, log logging.Logger) error {
	m, err := newMigrate(cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Debug("Database schema is up to date")
			return nil
		}
		version, _, _ := m.Version()
		return fmt.Errorf("failed to run migrations (current version: %d): %w", version, err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		log.Warn("Failed to read migration version", logging.Err(err))
	}

	log.Info("Database migrations completed",
		logging.Int64("version", int64(version)),
		logging.Bool("dirty", dirty),
	)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// RollbackMigration — roll back by a number of steps
// ─────────────────────────────────────────────────────────────────────────────

// RollbackMigration rolls the schema back by the specified number of migration
// steps. Intended for development and testing.
func RollbackMigration(cfg config.DatabaseConfig, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("steps must be greater than 0, got %d", steps)
	}

	m, err := newMigrate(cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Steps(-steps); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("no migrations to roll back")
		}
		return fmt.Errorf("failed to roll back %d step(s): %w", steps, err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// MigrationStatus — query current migration state
// ─────────────────────────────────────────────────────────────────────────────

// MigrationStatus returns the current migration version and dirty state. A
// dirty state means a previous migration failed partway and the schema needs
// manual intervention before further migrations can run.
func MigrationStatus(cfg config.DatabaseConfig) (version uint, dirty bool, err error) {
	m, err := newMigrate(cfg)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()

	version, dirty, err = m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			// No migrations have been applied yet.
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// ResetDatabase — roll back everything and re-apply
// ─────────────────────────────────────────────────────────────────────────────

// ResetDatabase rolls back all migrations and re-applies them from scratch.
// This drops every table; it exists for development and test environments and
// must never run against production data.
func ResetDatabase(cfg config.DatabaseConfig) error {
	m, err := newMigrate(cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Down(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to roll back all migrations: %w", err)
		}
	}

	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to re-apply migrations: %w", err)
		}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// ForceMigrationVersion — manually set migration version
// ─────────────────────────────────────────────────────────────────────────────

// ForceMigrationVersion forcibly sets the schema version without running any
// migrations. It is the recovery path for a dirty migration state: fix the
// schema by hand, then force the version to match.
func ForceMigrationVersion(cfg config.DatabaseConfig, version int) error {
	m, err := newMigrate(cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Force(version); err != nil {
		return fmt.Errorf("failed to force version %d: %w", version, err)
	}
	return nil
}
