//go:build integration

// Package postgres_test provides integration tests for the connection pool and
// migration management. Tests require Docker and are gated behind the
// "integration" build tag.
package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/spanmark/spanmark/internal/config"
	"github.com/spanmark/spanmark/internal/infrastructure/database/postgres"
	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/logging"
)

// ─────────────────────────────────────────────────────────────────────────────
// Test helpers
// ─────────────────────────────────────────────────────────────────────────────

// startPostgres launches a PostgreSQL 16 container and returns a database
// config pointed at it.
func startPostgres(t *testing.T) config.DatabaseConfig {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "spanmark_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return config.DatabaseConfig{
		Host:     host,
		Port:     port.Int(),
		User:     "test",
		Password: "test",
		DBName:   "spanmark_test",
		SSLMode:  "disable",
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Connection tests
// ─────────────────────────────────────────────────────────────────────────────

func TestNewConnection_PingAndClose(t *testing.T) {
	cfg := startPostgres(t)
	ctx := context.Background()

	conn, err := postgres.NewConnection(ctx, cfg, logging.NewNopLogger())
	require.NoError(t, err)

	assert.NoError(t, conn.HealthCheck(ctx))
	assert.NotNil(t, conn.Pool())

	// Close is idempotent.
	conn.Close()
	conn.Close()
}

func TestNewConnection_UnreachableHost(t *testing.T) {
	cfg := startPostgres(t)
	cfg.Port = 1 // nothing listens here

	_, err := postgres.NewConnection(context.Background(), cfg, logging.NewNopLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database connection failed")
}

func TestWithTransaction_CommitAndRollback(t *testing.T) {
	cfg := startPostgres(t)
	ctx := context.Background()

	conn, err := postgres.NewConnection(ctx, cfg, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	pool := conn.Pool()
	_, err = pool.Exec(ctx, `CREATE TABLE tx_probe (id INT PRIMARY KEY)`)
	require.NoError(t, err)

	// Commit path.
	err = postgres.WithTransaction(ctx, pool, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO tx_probe (id) VALUES (1)`)
		return err
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM tx_probe`).Scan(&count))
	assert.Equal(t, 1, count)

	// Rollback path: fn error discards the insert.
	boom := fmt.Errorf("boom")
	err = postgres.WithTransaction(ctx, pool, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO tx_probe (id) VALUES (2)`); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM tx_probe`).Scan(&count))
	assert.Equal(t, 1, count)
}

// ─────────────────────────────────────────────────────────────────────────────
// Migration tests
// ─────────────────────────────────────────────────────────────────────────────

func TestRunMigrations_UpStatusRollback(t *testing.T) {
	cfg := startPostgres(t)

	require.NoError(t, postgres.RunMigrations(cfg, logging.NewNopLogger()))

	version, dirty, err := postgres.MigrationStatus(cfg)
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(3), version)

	// Running again is a no-op.
	require.NoError(t, postgres.RunMigrations(cfg, logging.NewNopLogger()))

	// Roll back one step.
	require.NoError(t, postgres.RollbackMigration(cfg, 1))
	version, _, err = postgres.MigrationStatus(cfg)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
}

func TestMigrationStatus_FreshDatabase(t *testing.T) {
	cfg := startPostgres(t)

	version, dirty, err := postgres.MigrationStatus(cfg)
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.False(t, dirty)
}

func TestResetDatabase_RoundTrip(t *testing.T) {
	cfg := startPostgres(t)

	require.NoError(t, postgres.RunMigrations(cfg, logging.NewNopLogger()))
	require.NoError(t, postgres.ResetDatabase(cfg))

	version, dirty, err := postgres.MigrationStatus(cfg)
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(3), version)
}
