// Package e2e_test drives the complete HTTP surface in one process: the
// application services run over in-memory repositories, the gin router sits
// in front, and every call goes through the public Go client against an
// httptest server. No external infrastructure is needed.
package e2e_test

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spanmark/spanmark/internal/application/annotate"
	"github.com/spanmark/spanmark/internal/application/dataset"
	searchapp "github.com/spanmark/spanmark/internal/application/search"
	"github.com/spanmark/spanmark/internal/application/training"
	"github.com/spanmark/spanmark/internal/config"
	"github.com/spanmark/spanmark/internal/domain/taxonomy"
	"github.com/spanmark/spanmark/internal/infrastructure/database/redis"
	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/logging"
	"github.com/spanmark/spanmark/internal/infrastructure/process"
	infraSearch "github.com/spanmark/spanmark/internal/infrastructure/search"
	httpserver "github.com/spanmark/spanmark/internal/interfaces/http"
	"github.com/spanmark/spanmark/internal/interfaces/http/handlers"
	"github.com/spanmark/spanmark/internal/nlp/gazetteer"
	"github.com/spanmark/spanmark/internal/nlp/tokenize"
	"github.com/spanmark/spanmark/internal/testutil"
	"github.com/spanmark/spanmark/pkg/client"
)

// storyText tokenizes to 9 tokens in one sentence and carries three
// gazetteer terms: Alice, White Rabbit, and garden.
const storyText = "Alice met the White Rabbit in the garden."

// env is one fully wired API stack. All state is per-test and disposable.
type env struct {
	api    *client.Client
	docs   *testutil.MemoryDocumentRepo
	anns   *testutil.MemoryAnnotationRepo
	jobs   *testutil.MemoryJobRepo
	pub    *testutil.RecordingPublisher
	index  *infraSearch.MemoryIndex
	runner *scriptedRunner

	workDir   string
	exportDir string
}

type envConfig struct {
	pipeline config.PipelineConfig
}

func withPipeline(p config.PipelineConfig) func(*envConfig) {
	return func(c *envConfig) { c.pipeline = p }
}

func newEnv(t *testing.T, opts ...func(*envConfig)) *env {
	t.Helper()

	var cfg envConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	tax, err := taxonomy.New(
		[]taxonomy.EntityType{
			{Type: "character", Short: "Char"},
			{Type: "location", Short: "Loc"},
		},
		[]taxonomy.RelationType{
			{Type: "met", Short: "Met", Symmetric: true},
			{Type: "located_in", Short: "In"},
		},
	)
	require.NoError(t, err)

	tok := tokenize.NewTokenizer()
	gaz := gazetteer.New(gazetteer.WithTermTokenizer(tok))
	require.NoError(t, gaz.Add("Alice", "character"))
	require.NoError(t, gaz.Add("White Rabbit", "character"))
	require.NoError(t, gaz.Add("garden", "location"))

	e := &env{
		docs:      testutil.NewMemoryDocumentRepo(),
		anns:      testutil.NewMemoryAnnotationRepo(),
		jobs:      testutil.NewMemoryJobRepo(),
		pub:       testutil.NewRecordingPublisher(),
		index:     infraSearch.NewMemoryIndex(),
		runner:    &scriptedRunner{},
		workDir:   t.TempDir(),
		exportDir: t.TempDir(),
	}
	logger := logging.NewNopLogger()
	cleaner := tokenize.NewCleaner(tokenize.WithStripCitations(true))

	annotateSvc := annotate.NewService(annotate.Dependencies{
		Documents:   e.docs,
		Annotations: e.anns,
		Taxonomy:    tax,
		Tokenizer:   tok,
		Cleaner:     cleaner,
		Matcher:     gazetteer.NewMatcher(gaz),
		Index:       e.index,
		Publisher:   e.pub,
		Pipeline:    cfg.pipeline,
	}, logger)

	datasetSvc := dataset.NewService(dataset.Dependencies{
		Documents:   e.docs,
		Annotations: e.anns,
		Taxonomy:    tax,
		Tokenizer:   tok,
		Cleaner:     cleaner,
		Publisher:   e.pub,
		Dataset: config.DatasetConfig{
			OutputDir:  e.exportDir,
			TrainRatio: 0.8,
			DevRatio:   0.1,
			TestRatio:  0.1,
			Seed:       7,
		},
		Pipeline: cfg.pipeline,
	}, logger)

	searchSvc := searchapp.NewService(searchapp.Dependencies{
		Documents:   e.docs,
		Annotations: e.anns,
		Index:       e.index,
		Cache:       redis.NewNopCache(),
	}, logger)

	trainingSvc := training.NewService(training.Dependencies{
		Jobs:      e.jobs,
		Runner:    e.runner,
		Importer:  datasetSvc,
		Publisher: e.pub,
		Training: config.TrainingConfig{
			Interpreter:     "python3",
			Script:          "spert.py",
			ConfigPath:      "configs/train.conf",
			WorkDir:         e.workDir,
			PredictionsFile: "predictions.json",
		},
	}, logger)
	t.Cleanup(func() { _ = trainingSvc.Close() })

	router := httpserver.NewRouter(httpserver.RouterConfig{
		Documents:   handlers.NewDocumentHandler(annotateSvc),
		Annotations: handlers.NewAnnotationHandler(annotateSvc),
		Datasets:    handlers.NewDatasetHandler(datasetSvc),
		Jobs:        handlers.NewJobHandler(trainingSvc),
		Search:      handlers.NewSearchHandler(searchSvc),
		Health:      handlers.NewHealthHandler("e2e"),
		Logger:      logger,
		Mode:        "test",
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	api, err := client.NewClient(srv.URL,
		client.WithRetryMax(0),
		client.WithTimeout(10*time.Second),
	)
	require.NoError(t, err)
	e.api = api
	return e
}

// importDoc stores one document through the API and fails the test on any
// error.
func (e *env) importDoc(t *testing.T, name, text string) *client.Document {
	t.Helper()
	doc, err := e.api.Documents().Import(context.Background(), &client.ImportDocumentRequest{
		Name: name,
		Text: text,
	})
	require.NoError(t, err)
	return doc
}

// annotateDoc runs a committing gazetteer pass over the document.
func (e *env) annotateDoc(t *testing.T, documentID string) *client.MergeOutcome {
	t.Helper()
	outcome, err := e.api.Annotations().AutoAnnotate(context.Background(), documentID, false)
	require.NoError(t, err)
	return outcome
}

// ─────────────────────────────────────────────────────────────────────────────
// Scripted process runner
// ─────────────────────────────────────────────────────────────────────────────

// scriptedRunner satisfies training.ProcessRunner without spawning real
// processes. Tests install a behavior per run; the default reports success.
type scriptedRunner struct {
	mu    sync.Mutex
	specs []process.Spec
	run   func(ctx context.Context, spec process.Spec) (*process.Outcome, error)
}

func (r *scriptedRunner) Run(ctx context.Context, spec process.Spec) (*process.Outcome, error) {
	r.mu.Lock()
	r.specs = append(r.specs, spec)
	fn := r.run
	r.mu.Unlock()
	if fn != nil {
		return fn(ctx, spec)
	}
	return &process.Outcome{ExitCode: 0, Duration: 5 * time.Millisecond}, nil
}

func (r *scriptedRunner) script(fn func(ctx context.Context, spec process.Spec) (*process.Outcome, error)) {
	r.mu.Lock()
	r.run = fn
	r.mu.Unlock()
}

func (r *scriptedRunner) Specs() []process.Spec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]process.Spec(nil), r.specs...)
}
