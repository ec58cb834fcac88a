package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/spanmark/spanmark/internal/application/annotate"
	"github.com/spanmark/spanmark/internal/application/dataset"
	appsearch "github.com/spanmark/spanmark/internal/application/search"
	"github.com/spanmark/spanmark/internal/application/training"
	"github.com/spanmark/spanmark/internal/config"
	"github.com/spanmark/spanmark/internal/domain/annotation"
	"github.com/spanmark/spanmark/internal/domain/document"
	"github.com/spanmark/spanmark/internal/domain/taxonomy"
	infraSearch "github.com/spanmark/spanmark/internal/infrastructure/search"
	apihttp "github.com/spanmark/spanmark/internal/interfaces/http"
	"github.com/spanmark/spanmark/internal/interfaces/http/handlers"
	"github.com/spanmark/spanmark/internal/nlp/gazetteer"
	"github.com/spanmark/spanmark/internal/nlp/tokenize"
	"github.com/spanmark/spanmark/internal/testutil"
	"github.com/spanmark/spanmark/pkg/types/common"
)

const fixtureText = "John works for Google in California"

// ─────────────────────────────────────────────────────────────────────────────
// Job service stub
// ─────────────────────────────────────────────────────────────────────────────

// stubJobService records calls so handler tests can assert forwarding
// without running real training processes.
type stubJobService struct {
	submitted []*training.SubmitInput
	listed    []*training.ListInput
	fetched   []string
	cancelled []string
	job       *training.JobDTO
	err       error
}

func (s *stubJobService) Submit(ctx context.Context, input *training.SubmitInput) (*training.JobDTO, error) {
	s.submitted = append(s.submitted, input)
	if s.err != nil {
		return nil, s.err
	}
	return s.job, nil
}

func (s *stubJobService) Get(ctx context.Context, id string) (*training.JobDTO, error) {
	s.fetched = append(s.fetched, id)
	if s.err != nil {
		return nil, s.err
	}
	return s.job, nil
}

func (s *stubJobService) List(ctx context.Context, input *training.ListInput) (*training.JobListDTO, error) {
	s.listed = append(s.listed, input)
	if s.err != nil {
		return nil, s.err
	}
	return &training.JobListDTO{
		Jobs:     []*training.JobDTO{s.job},
		Page:     input.Page,
		PageSize: input.PageSize,
		Total:    1,
	}, nil
}

func (s *stubJobService) Cancel(ctx context.Context, id string) (*training.JobDTO, error) {
	s.cancelled = append(s.cancelled, id)
	if s.err != nil {
		return nil, s.err
	}
	return s.job, nil
}

func (s *stubJobService) Wait(ctx context.Context, id string, poll time.Duration) (*training.JobDTO, error) {
	return s.job, nil
}

func (s *stubJobService) Close() error { return nil }

// ─────────────────────────────────────────────────────────────────────────────
// Fixture
// ─────────────────────────────────────────────────────────────────────────────

// apiFixture serves the full route tree over in-memory infrastructure, so
// handler tests exercise real binding, routing, and envelope behavior.
type apiFixture struct {
	router    *gin.Engine
	docs      *testutil.MemoryDocumentRepo
	anns      *testutil.MemoryAnnotationRepo
	publisher *testutil.RecordingPublisher
	index     *infraSearch.MemoryIndex
	jobs      *stubJobService
	outDir    string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	tax, err := taxonomy.New(
		[]taxonomy.EntityType{
			{Type: "Person", Short: "Per"},
			{Type: "Organization", Short: "Org"},
			{Type: "Location", Short: "Loc"},
		},
		[]taxonomy.RelationType{
			{Type: "works_for", Short: "Works"},
			{Type: "located_in", Short: "In"},
		},
	)
	require.NoError(t, err)

	gaz := gazetteer.New()
	require.NoError(t, gaz.Add("John", "Person"))
	require.NoError(t, gaz.Add("Google", "Organization"))
	require.NoError(t, gaz.Add("California", "Location"))

	f := &apiFixture{
		docs:      testutil.NewMemoryDocumentRepo(),
		anns:      testutil.NewMemoryAnnotationRepo(),
		publisher: testutil.NewRecordingPublisher(),
		index:     infraSearch.NewMemoryIndex(),
		jobs: &stubJobService{job: &training.JobDTO{
			ID:    "job-1",
			Kind:  "train",
			State: "pending",
		}},
		outDir: t.TempDir(),
	}

	tokenizer := tokenize.NewTokenizer()
	cleaner := tokenize.NewCleaner(tokenize.WithStripCitations(true))

	annotateSvc := annotate.NewService(annotate.Dependencies{
		Documents:   f.docs,
		Annotations: f.anns,
		Taxonomy:    tax,
		Tokenizer:   tokenizer,
		Cleaner:     cleaner,
		Matcher:     gazetteer.NewMatcher(gaz),
		Index:       f.index,
		Publisher:   f.publisher,
	}, nil)

	datasetSvc := dataset.NewService(dataset.Dependencies{
		Documents:   f.docs,
		Annotations: f.anns,
		Taxonomy:    tax,
		Tokenizer:   tokenizer,
		Cleaner:     cleaner,
		Publisher:   f.publisher,
		Dataset:     config.DatasetConfig{OutputDir: f.outDir},
		Pipeline:    config.PipelineConfig{MinSentenceTokens: 3},
	}, nil)

	searchSvc := appsearch.NewService(appsearch.Dependencies{
		Documents:   f.docs,
		Annotations: f.anns,
		Index:       f.index,
	}, nil)

	f.router = apihttp.NewRouter(apihttp.RouterConfig{
		Documents:   handlers.NewDocumentHandler(annotateSvc),
		Annotations: handlers.NewAnnotationHandler(annotateSvc),
		Datasets:    handlers.NewDatasetHandler(datasetSvc),
		Jobs:        handlers.NewJobHandler(f.jobs),
		Search:      handlers.NewSearchHandler(searchSvc),
		Health:      handlers.NewHealthHandler("0.0.0-test"),
		Mode:        gin.TestMode,
	})
	return f
}

// do sends one JSON request through the router.
func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// doRaw sends a request with a verbatim body, for malformed-input cases.
func (f *apiFixture) doRaw(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// importDoc drives a document through the real import endpoint.
func (f *apiFixture) importDoc(t *testing.T, name, text string) annotate.DocumentDTO {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/documents", annotate.ImportDocumentInput{Name: name, Text: text})
	require.Equal(t, http.StatusCreated, rec.Code, "import failed: %s", rec.Body.String())
	return dataAs[annotate.DocumentDTO](t, rec)
}

// seedAnnotatedDoc persists one annotated document directly through the
// repositories: Person[0,1) works_for Organization[3,4).
func (f *apiFixture) seedAnnotatedDoc(t *testing.T, name string) *document.Document {
	t.Helper()
	ctx := context.Background()

	doc, err := tokenize.NewTokenizer().Tokenize(name, fixtureText)
	require.NoError(t, err)
	require.NoError(t, f.docs.Create(ctx, doc))

	headID := common.ID("e1-" + name)
	tailID := common.ID("e2-" + name)
	set := annotation.AnnotationSet{
		Entities: []annotation.Entity{
			{ID: headID, DocumentID: doc.ID, Type: "Person", Start: 0, End: 1, Provenance: annotation.ProvenanceManual},
			{ID: tailID, DocumentID: doc.ID, Type: "Organization", Start: 3, End: 4, Provenance: annotation.ProvenanceManual},
		},
		Relations: []annotation.Relation{
			{ID: common.ID("r1-" + name), DocumentID: doc.ID, Type: "works_for", HeadID: headID, TailID: tailID},
		},
	}
	require.NoError(t, f.anns.SaveSet(ctx, doc.ID, set))
	return doc
}

// ─────────────────────────────────────────────────────────────────────────────
// Envelope decoding
// ─────────────────────────────────────────────────────────────────────────────

// envelope mirrors the response envelope for decoding replies.
type envelope struct {
	Success    bool                `json:"success"`
	Data       json.RawMessage     `json:"data"`
	Error      *common.ErrorDetail `json:"error"`
	Pagination *common.Pagination  `json:"pagination"`
	RequestID  string              `json:"request_id"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), "body: %s", rec.Body.String())
	return env
}

// dataAs decodes the data field of a success envelope.
func dataAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	env := decodeEnvelope(t, rec)
	require.True(t, env.Success, "expected a success envelope, got: %s", rec.Body.String())
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

// errorCode returns the code of an error envelope.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	env := decodeEnvelope(t, rec)
	require.False(t, env.Success, "expected an error envelope, got: %s", rec.Body.String())
	require.NotNil(t, env.Error)
	return env.Error.Code
}
