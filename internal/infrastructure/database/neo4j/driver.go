// Package neo4j exports the committed annotation structure as a property
// graph. Entity mentions become nodes keyed by surface and type, relations
// become typed edges carrying the document they were asserted in, so the
// corpus can be explored in Neo4j Browser or consumed by graph tooling.
package neo4j

import (
	"context"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/spanmark/spanmark/internal/config"
	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/logging"
	"github.com/spanmark/spanmark/pkg/errors"
)

const (
	defaultPoolSize       = 25
	defaultConnectTimeout = 10 * time.Second
	defaultDatabase       = "neo4j"
)

// Result abstracts neo4j.ResultWithContext to what the exporter consumes.
type Result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
	Consume(ctx context.Context) (neo4j.ResultSummary, error)
}

// Transaction abstracts neo4j.ManagedTransaction.
type Transaction interface {
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)
}

// TransactionWork is a unit of work executed inside a managed transaction.
type TransactionWork func(tx Transaction) (any, error)

// Executor is the transactional surface the graph exporter depends on.
// *Driver implements it against a live cluster; tests substitute a fake.
type Executor interface {
	ExecuteRead(ctx context.Context, work TransactionWork) (any, error)
	ExecuteWrite(ctx context.Context, work TransactionWork) (any, error)
}

type internalSession interface {
	ExecuteRead(ctx context.Context, work func(Transaction) (any, error)) (any, error)
	ExecuteWrite(ctx context.Context, work func(Transaction) (any, error)) (any, error)
	Close(ctx context.Context) error
}

type internalDriver interface {
	VerifyConnectivity(ctx context.Context) error
	NewSession(ctx context.Context, config neo4j.SessionConfig) internalSession
	Close(ctx context.Context) error
}

// boltResult adapts neo4j.ResultWithContext to Result.
type boltResult struct {
	res neo4j.ResultWithContext
}

func (r *boltResult) Next(ctx context.Context) bool { return r.res.Next(ctx) }
func (r *boltResult) Record() *neo4j.Record         { return r.res.Record() }
func (r *boltResult) Err() error                    { return r.res.Err() }
func (r *boltResult) Consume(ctx context.Context) (neo4j.ResultSummary, error) {
	return r.res.Consume(ctx)
}

type boltTransaction struct {
	tx neo4j.ManagedTransaction
}

func (t *boltTransaction) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	res, err := t.tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return &boltResult{res: res}, nil
}

type boltSession struct {
	s neo4j.SessionWithContext
}

func (s *boltSession) ExecuteRead(ctx context.Context, work func(Transaction) (any, error)) (any, error) {
	return s.s.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return work(&boltTransaction{tx: tx})
	})
}

func (s *boltSession) ExecuteWrite(ctx context.Context, work func(Transaction) (any, error)) (any, error) {
	return s.s.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return work(&boltTransaction{tx: tx})
	})
}

func (s *boltSession) Close(ctx context.Context) error { return s.s.Close(ctx) }

type boltDriver struct {
	d neo4j.DriverWithContext
}

func (d *boltDriver) VerifyConnectivity(ctx context.Context) error {
	return d.d.VerifyConnectivity(ctx)
}

func (d *boltDriver) NewSession(ctx context.Context, config neo4j.SessionConfig) internalSession {
	return &boltSession{s: d.d.NewSession(ctx, config)}
}

func (d *boltDriver) Close(ctx context.Context) error { return d.d.Close(ctx) }

// Driver wraps the Bolt driver with managed read/write transactions against
// the configured database.
type Driver struct {
	driver internalDriver
	cfg    config.Neo4jConfig
	logger logging.Logger
	once   sync.Once
}

var _ Executor = (*Driver)(nil)

// NewDriver connects to the cluster named in cfg and verifies connectivity
// before returning.
func NewDriver(cfg config.Neo4jConfig, log logging.Logger) (*Driver, error) {
	if cfg.URI == "" {
		return nil, errors.New(errors.ErrCodeValidation, "neo4j URI is required")
	}

	auth := neo4j.BasicAuth(cfg.User, cfg.Password, "")
	drv, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
		if c.MaxConnectionPoolSize <= 0 {
			c.MaxConnectionPoolSize = defaultPoolSize
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create neo4j driver")
	}

	timeout := cfg.ConnectionTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := drv.VerifyConnectivity(ctx); err != nil {
		_ = drv.Close(context.Background())
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to connect to neo4j")
	}

	log.Info("Connected to Neo4j",
		logging.String("uri", cfg.URI),
		logging.String("database", cfg.Database))

	return &Driver{
		driver: &boltDriver{d: drv},
		cfg:    cfg,
		logger: log,
	}, nil
}

func (d *Driver) session(ctx context.Context, mode neo4j.AccessMode) internalSession {
	name := d.cfg.Database
	if name == "" {
		name = defaultDatabase
	}
	return d.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: name,
		AccessMode:   mode,
	})
}

// ExecuteRead runs work inside a managed read transaction.
func (d *Driver) ExecuteRead(ctx context.Context, work TransactionWork) (any, error) {
	session := d.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, work)
	if err != nil {
		d.logger.Error("Neo4j read transaction failed", logging.Err(err))
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "neo4j read failed")
	}
	return result, nil
}

// ExecuteWrite runs work inside a managed write transaction.
func (d *Driver) ExecuteWrite(ctx context.Context, work TransactionWork) (any, error) {
	session := d.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, work)
	if err != nil {
		d.logger.Error("Neo4j write transaction failed", logging.Err(err))
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "neo4j write failed")
	}
	return result, nil
}

// HealthCheck verifies connectivity and runs a trivial query.
func (d *Driver) HealthCheck(ctx context.Context) error {
	if err := d.driver.VerifyConnectivity(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "neo4j connectivity check failed")
	}

	_, err := d.ExecuteRead(ctx, func(tx Transaction) (any, error) {
		result, err := tx.Run(ctx, "RETURN 1 AS health", nil)
		if err != nil {
			return nil, err
		}
		if result.Next(ctx) {
			return result.Record().Values[0], nil
		}
		return nil, result.Err()
	})
	return err
}

// Close releases the underlying driver. Safe to call more than once.
func (d *Driver) Close() error {
	var err error
	d.once.Do(func() {
		err = d.driver.Close(context.Background())
		if err != nil {
			d.logger.Error("Failed to close Neo4j driver", logging.Err(err))
			return
		}
		d.logger.Info("Closed Neo4j driver")
	})
	return err
}

// CollectRecords drains a result, mapping every record through mapper.
func CollectRecords[T any](ctx context.Context, result Result, mapper func(*neo4j.Record) (T, error)) ([]T, error) {
	var items []T
	for result.Next(ctx) {
		item, err := mapper(result.Record())
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// ExtractSingleRecord maps the first record of a result, or reports not found.
func ExtractSingleRecord[T any](ctx context.Context, result Result, mapper func(*neo4j.Record) (T, error)) (T, error) {
	var zero T
	if result.Next(ctx) {
		return mapper(result.Record())
	}
	if err := result.Err(); err != nil {
		return zero, err
	}
	return zero, errors.New(errors.ErrCodeNotFound, "no record found")
}
