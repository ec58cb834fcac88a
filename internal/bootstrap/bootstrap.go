// Package bootstrap assembles running processes from a loaded configuration.
// NewCore wires the shared stack: infrastructure clients, repositories, and
// application services.  New wraps a Core with the HTTP layer for
// cmd/apiserver and the CLI's serve command; cmd/worker consumes the Core
// directly.  Keeping one wiring path stops the entry points drifting apart.
//
// Postgres is the only hard dependency.  Every other backend degrades when
// unreachable: redis falls back to no-op caching and locking, kafka to the
// no-op event publisher, opensearch to the in-memory mention index, and
// neo4j and minio switch their features off.  Each degradation is logged at
// WARN so a misconfigured deployment stays visible without being fatal.
package bootstrap

import (
	"context"

	"github.com/spanmark/spanmark/internal/application/annotate"
	"github.com/spanmark/spanmark/internal/application/dataset"
	searchapp "github.com/spanmark/spanmark/internal/application/search"
	"github.com/spanmark/spanmark/internal/application/training"
	"github.com/spanmark/spanmark/internal/config"
	"github.com/spanmark/spanmark/internal/domain/annotation"
	"github.com/spanmark/spanmark/internal/domain/document"
	"github.com/spanmark/spanmark/internal/domain/taxonomy"
	domainTraining "github.com/spanmark/spanmark/internal/domain/training"
	"github.com/spanmark/spanmark/internal/infrastructure/database/neo4j"
	"github.com/spanmark/spanmark/internal/infrastructure/database/postgres"
	pgrepo "github.com/spanmark/spanmark/internal/infrastructure/database/postgres/repositories"
	"github.com/spanmark/spanmark/internal/infrastructure/database/redis"
	"github.com/spanmark/spanmark/internal/infrastructure/messaging/kafka"
	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/logging"
	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/prometheus"
	"github.com/spanmark/spanmark/internal/infrastructure/process"
	infraSearch "github.com/spanmark/spanmark/internal/infrastructure/search"
	"github.com/spanmark/spanmark/internal/infrastructure/search/opensearch"
	"github.com/spanmark/spanmark/internal/infrastructure/storage/minio"
	httpserver "github.com/spanmark/spanmark/internal/interfaces/http"
	"github.com/spanmark/spanmark/internal/interfaces/http/handlers"
	"github.com/spanmark/spanmark/internal/nlp/gazetteer"
	"github.com/spanmark/spanmark/internal/nlp/tokenize"
	"github.com/spanmark/spanmark/pkg/errors"
)

// eventSource identifies the API server in event envelopes.
const eventSource = "apiserver"

// HealthCheck names a backend liveness probe.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Core holds the process stack shared by the API server and the worker:
// repositories, application services, and the handles to every backend that
// came up.  Everything it opens is closed again, in reverse order, by Close.
type Core struct {
	Config *config.Config
	Logger logging.Logger

	// Repositories, exposed so the worker's event handlers and tests can
	// reach behind the application services.
	Documents   document.Repository
	Annotations annotation.Repository
	Jobs        domainTraining.Repository

	// Graph is nil when neo4j is unreachable.
	Graph *neo4j.GraphExporter

	Annotate annotate.Service
	Dataset  dataset.Service
	Search   searchapp.Service
	Training training.Service

	checks  []HealthCheck
	closers []namedCloser
}

// Container wraps a Core with the assembled HTTP server.
type Container struct {
	*Core

	// HTTP is ready to Start.
	HTTP *httpserver.Server
}

type namedCloser struct {
	name  string
	close func() error
}

func (c *Core) addCloser(name string, close func() error) {
	c.closers = append(c.closers, namedCloser{name: name, close: close})
}

// HealthChecks reports the probes for every backend that came up, postgres
// first.
func (c *Core) HealthChecks() []HealthCheck { return c.checks }

// NewLogger builds the process logger from the config file's log section.
func NewLogger(cfg config.LogConfig) (logging.Logger, error) {
	lc := logging.LogConfig{
		Level:            cfg.Level,
		Format:           cfg.Format,
		EnableCaller:     cfg.EnableCaller,
		EnableStacktrace: cfg.EnableStacktrace,
	}
	if cfg.Output != "" {
		lc.OutputPaths = []string{cfg.Output}
	}
	return logging.NewLogger(lc)
}

// NewCore wires the shared stack. source is stamped into the envelopes of
// every event the process publishes.
func NewCore(ctx context.Context, cfg *config.Config, logger logging.Logger, source string) (*Core, error) {
	if cfg == nil {
		return nil, errors.New(errors.CodeInvalidParam, "bootstrap requires a configuration")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	c := &Core{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = c.Close()
		}
	}()

	// Postgres is required. Everything downstream persists through it.
	conn, err := postgres.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	c.addCloser("postgres", func() error { conn.Close(); return nil })

	c.Documents = pgrepo.NewDocumentRepository(conn.Pool(), logger)
	c.Annotations = pgrepo.NewAnnotationRepository(conn.Pool(), logger)
	c.Jobs = pgrepo.NewTrainingJobRepository(conn.Pool(), logger)

	c.checks = []HealthCheck{{Name: "postgres", Check: conn.HealthCheck}}

	// Redis backs the cache, the export locks, and the lexicon term store.
	var (
		cache     redis.Cache
		locks     redis.LockFactory
		termStore *redis.TermStore
	)
	if rc, err := redis.NewClient(cfg.Redis, logger); err != nil {
		logger.Warn("Redis unavailable, caching and locking disabled", logging.Err(err))
		cache = redis.NewNopCache()
	} else {
		c.addCloser("redis", rc.Close)
		cache = redis.NewCache(rc, logger)
		locks = redis.NewLockFactory(rc, logger)
		termStore = redis.NewTermStore(rc, logger)
		c.checks = append(c.checks, HealthCheck{Name: "redis", Check: rc.HealthCheck})
	}

	var publisher kafka.EventPublisher = kafka.NewNopPublisher()
	if producer, err := kafka.NewProducer(cfg.Kafka, source, logger); err != nil {
		logger.Warn("Kafka unavailable, event publishing disabled", logging.Err(err))
	} else {
		publisher = producer
		c.addCloser("kafka-producer", producer.Close)
	}

	var graph annotate.GraphCleaner
	if driver, err := neo4j.NewDriver(cfg.Neo4j, logger); err != nil {
		logger.Warn("Neo4j unavailable, graph maintenance disabled", logging.Err(err))
	} else {
		c.addCloser("neo4j", driver.Close)
		c.Graph = neo4j.NewGraphExporter(driver, logger)
		graph = c.Graph
		c.checks = append(c.checks, HealthCheck{Name: "neo4j", Check: driver.HealthCheck})
	}

	var index infraSearch.EntityIndex
	if osc, err := opensearch.NewClient(cfg.OpenSearch, logger); err != nil {
		logger.Warn("OpenSearch unavailable, using the in-memory mention index", logging.Err(err))
		index = infraSearch.NewMemoryIndex()
	} else {
		c.addCloser("opensearch", osc.Close)
		entityIndex := opensearch.NewEntityIndex(osc, cfg.OpenSearch, logger)
		if err := entityIndex.EnsureIndex(ctx); err != nil {
			logger.Warn("OpenSearch index bootstrap failed, using the in-memory mention index", logging.Err(err))
			index = infraSearch.NewMemoryIndex()
		} else {
			index = entityIndex
			c.checks = append(c.checks, HealthCheck{Name: "opensearch", Check: osc.Ping})
		}
	}

	var store *minio.DatasetStore
	if mc, err := minio.NewClient(cfg.MinIO, logger); err != nil {
		logger.Warn("MinIO unavailable, dataset publishing disabled", logging.Err(err))
	} else {
		store = minio.NewDatasetStore(mc, logger)
		c.checks = append(c.checks, HealthCheck{Name: "minio", Check: mc.HealthCheck})
	}

	// The taxonomy gates every annotation write, so it is as mandatory as
	// the database.
	if cfg.Pipeline.TypesPath == "" {
		return nil, errors.New(errors.ErrCodeValidation,
			"pipeline.types_path must point to a types file")
	}
	tax, err := taxonomy.Load(cfg.Pipeline.TypesPath)
	if err != nil {
		return nil, err
	}

	var tokOpts []tokenize.Option
	if cfg.Pipeline.BoundaryRunes != "" {
		tokOpts = append(tokOpts, tokenize.WithBoundaryRunes(cfg.Pipeline.BoundaryRunes))
	}
	tok := tokenize.NewTokenizer(tokOpts...)
	cleaner := tokenize.NewCleaner()

	gaz := gazetteer.New(
		gazetteer.WithCaseSensitive(cfg.Pipeline.GazetteerCaseSensitive),
		gazetteer.WithTermTokenizer(tok),
	)
	for _, path := range cfg.Pipeline.LexiconPaths {
		n, err := gazetteer.Load(gaz, path)
		if err != nil {
			return nil, err
		}
		logger.Info("Loaded lexicon file",
			logging.String("path", path), logging.Int("terms", n))
	}
	if termStore != nil {
		entries, err := termStore.Load(ctx)
		if err != nil {
			logger.Warn("Lexicon term store read failed", logging.Err(err))
		} else if len(entries) > 0 {
			added, err := gaz.AddEntries(entries)
			if err != nil {
				return nil, err
			}
			logger.Info("Loaded lexicon term store", logging.Int("terms", added))
		}
	}
	matcher := gazetteer.NewMatcher(gaz)

	c.Annotate = annotate.NewService(annotate.Dependencies{
		Documents:   c.Documents,
		Annotations: c.Annotations,
		Taxonomy:    tax,
		Tokenizer:   tok,
		Cleaner:     cleaner,
		Matcher:     matcher,
		Index:       index,
		Publisher:   publisher,
		Graph:       graph,
		Pipeline:    cfg.Pipeline,
	}, logger)

	datasetDeps := dataset.Dependencies{
		Documents:   c.Documents,
		Annotations: c.Annotations,
		Taxonomy:    tax,
		Tokenizer:   tok,
		Cleaner:     cleaner,
		Locks:       locks,
		Publisher:   publisher,
		Dataset:     cfg.Dataset,
		Pipeline:    cfg.Pipeline,
	}
	if store != nil {
		datasetDeps.Store = store
	}
	c.Dataset = dataset.NewService(datasetDeps, logger)

	c.Search = searchapp.NewService(searchapp.Dependencies{
		Documents:   c.Documents,
		Annotations: c.Annotations,
		Index:       index,
		Cache:       cache,
	}, logger)

	trainingDeps := training.Dependencies{
		Jobs:      c.Jobs,
		Runner:    process.NewRunner(logger),
		Importer:  c.Dataset,
		Publisher: publisher,
		Training:  cfg.Training,
	}
	if store != nil {
		trainingDeps.Fetcher = store
	}
	c.Training = training.NewService(trainingDeps, logger)
	c.addCloser("training-service", c.Training.Close)

	ok = true
	return c, nil
}

// New wires a Core plus the HTTP serving layer. version is stamped into the
// health endpoint and startup log line.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger, version string) (*Container, error) {
	core, err := NewCore(ctx, cfg, logger, eventSource)
	if err != nil {
		return nil, err
	}

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            "spanmark",
		Subsystem:            "api",
		EnableProcessMetrics: true,
		EnableGoMetrics:      true,
	}, core.Logger)
	if err != nil {
		_ = core.Close()
		return nil, err
	}
	appMetrics := prometheus.NewAppMetrics(collector)

	checkers := make([]handlers.HealthChecker, 0, len(core.checks))
	for _, hc := range core.checks {
		checkers = append(checkers, handlers.NewChecker(hc.Name, hc.Check))
	}

	router := httpserver.NewRouter(httpserver.RouterConfig{
		Documents:   handlers.NewDocumentHandler(core.Annotate),
		Annotations: handlers.NewAnnotationHandler(core.Annotate),
		Datasets:    handlers.NewDatasetHandler(core.Dataset),
		Jobs:        handlers.NewJobHandler(core.Training),
		Search:      handlers.NewSearchHandler(core.Search),
		Health:      handlers.NewHealthHandler(version, checkers...),
		Logger:      core.Logger,
		Metrics:     collector,
		AppMetrics:  appMetrics,
		Mode:        cfg.Server.Mode,
	})

	core.Logger.Info("Server stack assembled",
		logging.String("version", version),
		logging.Int("port", cfg.Server.Port),
		logging.Int("health_checks", len(checkers)))

	return &Container{
		Core: core,
		HTTP: httpserver.NewServer(cfg.Server, router, core.Logger),
	}, nil
}

// Close tears the stack down in reverse construction order. The first error
// is returned; later closers still run.
func (c *Core) Close() error {
	var firstErr error
	for i := len(c.closers) - 1; i >= 0; i-- {
		cl := c.closers[i]
		if err := cl.close(); err != nil {
			c.Logger.Warn("Shutdown close failed",
				logging.String("component", cl.name), logging.Err(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	c.closers = nil
	return firstErr
}
