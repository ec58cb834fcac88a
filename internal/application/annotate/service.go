// Package annotate implements the annotation application service: the
// orchestration layer between the HTTP/CLI interfaces and the document,
// annotation, and nlp domain packages. It owns the import pipeline
// (clean, tokenize, chunk, persist, publish), the gazetteer auto-annotation
// pass, manual span and relation editing through the annotation store, and
// the per-document undo history. Business rules stay in the domain layer;
// this package sequences them and talks to the infrastructure adapters.
package annotate

import (
	"context"
	"time"

	"github.com/spanmark/spanmark/internal/config"
	"github.com/spanmark/spanmark/internal/domain/annotation"
	"github.com/spanmark/spanmark/internal/domain/document"
	"github.com/spanmark/spanmark/internal/domain/taxonomy"
	"github.com/spanmark/spanmark/internal/infrastructure/messaging/kafka"
	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/logging"
	"github.com/spanmark/spanmark/internal/infrastructure/search"
	"github.com/spanmark/spanmark/internal/nlp/gazetteer"
	"github.com/spanmark/spanmark/internal/nlp/tokenize"
	"github.com/spanmark/spanmark/pkg/errors"
	"github.com/spanmark/spanmark/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// Service interface
// ─────────────────────────────────────────────────────────────────────────────

// Service exposes the annotation pipeline operations.
type Service interface {
	// ImportDocument cleans, tokenizes, and persists a source text. Documents
	// longer than the configured chunk size are additionally split into chunk
	// documents with lineage back to the source. A document.imported event is
	// published on success.
	ImportDocument(ctx context.Context, input *ImportDocumentInput) (*DocumentDTO, error)

	// GetDocument returns a document together with its annotation set and
	// undo depth.
	GetDocument(ctx context.Context, id string) (*DocumentDetailDTO, error)

	// ListDocuments returns one page of documents, newest first.
	ListDocuments(ctx context.Context, page, pageSize int) (*DocumentListDTO, error)

	// ListChunks returns the chunk documents derived from a source document,
	// in source token order.
	ListChunks(ctx context.Context, sourceID string) ([]*DocumentDTO, error)

	// DeleteDocument removes a document, its annotations, its search index
	// entries, and its graph contribution.
	DeleteDocument(ctx context.Context, id string) error

	// AutoAnnotate runs the gazetteer matcher over a document and merges the
	// candidates into the stored annotation set under the configured merge
	// policy. With Preview set, the merge report is returned without
	// persisting anything.
	AutoAnnotate(ctx context.Context, input *AutoAnnotateInput) (*MergeOutcomeDTO, error)

	// AddEntity records a manual entity annotation.
	AddEntity(ctx context.Context, input *AddEntityInput) (*EntityDTO, error)

	// UpdateEntity rewrites an entity's type and span in place, keeping its
	// identity and any relations that reference it.
	UpdateEntity(ctx context.Context, input *UpdateEntityInput) (*EntityDTO, error)

	// DeleteEntity removes an entity and cascades to every relation that
	// references it, reporting how many relations went with it.
	DeleteEntity(ctx context.Context, documentID, entityID string) (*DeleteEntityDTO, error)

	// AddRelation records a directed, typed relation between two entities of
	// the same document.
	AddRelation(ctx context.Context, input *AddRelationInput) (*RelationDTO, error)

	// DeleteRelation removes a single relation, leaving its endpoints alone.
	DeleteRelation(ctx context.Context, documentID, relationID string) error

	// Undo restores the document's annotation set to the state before the
	// most recent mutation and persists the restored state.
	Undo(ctx context.Context, documentID string) (*DocumentDetailDTO, error)
}

// GraphCleaner removes a document's contribution from the mention graph.
// *neo4j.GraphExporter satisfies it; deployments without a graph leave it nil.
type GraphCleaner interface {
	RemoveDocument(ctx context.Context, documentID string) error
}

// ─────────────────────────────────────────────────────────────────────────────
// Inputs
// ─────────────────────────────────────────────────────────────────────────────

// ImportDocumentInput carries a source text into the pipeline.
type ImportDocumentInput struct {
	Name string `json:"name"`
	Text string `json:"text"`
	// Clean runs the corpus cleaner over the text before tokenizing.
	Clean bool `json:"clean,omitempty"`
}

// AutoAnnotateInput selects the document to annotate.
type AutoAnnotateInput struct {
	DocumentID string `json:"document_id"`
	// Preview computes the merge report without persisting the result.
	Preview bool `json:"preview,omitempty"`
}

// AddEntityInput describes a manual entity annotation. Start and End are
// token indices, half-open.
type AddEntityInput struct {
	DocumentID string `json:"document_id"`
	Type       string `json:"type"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
}

// UpdateEntityInput rewrites an existing entity's type and span.
type UpdateEntityInput struct {
	DocumentID string `json:"document_id"`
	EntityID   string `json:"entity_id"`
	Type       string `json:"type"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
}

// AddRelationInput describes a relation between two existing entities.
type AddRelationInput struct {
	DocumentID string `json:"document_id"`
	Type       string `json:"type"`
	HeadID     string `json:"head_id"`
	TailID     string `json:"tail_id"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Dependencies and construction
// ─────────────────────────────────────────────────────────────────────────────

// Dependencies collects everything the service orchestrates. Index, Publisher,
// and Graph are optional; a nil Publisher is replaced by the no-op publisher
// and the other two are skipped when absent.
type Dependencies struct {
	Documents   document.Repository
	Annotations annotation.Repository
	Taxonomy    *taxonomy.Taxonomy
	Tokenizer   *tokenize.Tokenizer
	Cleaner     *tokenize.Cleaner
	Matcher     *gazetteer.Matcher
	Index       search.EntityIndex
	Publisher   kafka.EventPublisher
	Graph       GraphCleaner
	Pipeline    config.PipelineConfig
}

type serviceImpl struct {
	deps    Dependencies
	history *history
	logger  logging.Logger
}

// NewService creates the annotation application service.
func NewService(deps Dependencies, log logging.Logger) Service {
	if deps.Publisher == nil {
		deps.Publisher = kafka.NewNopPublisher()
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &serviceImpl{
		deps:    deps,
		history: newHistory(undoLimit),
		logger:  log,
	}
}

// strict reports whether the merge policy forbids overlapping spans.
func (s *serviceImpl) strict() bool { return !s.deps.Pipeline.AllowOverlaps }

// ─────────────────────────────────────────────────────────────────────────────
// Document operations
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) ImportDocument(ctx context.Context, input *ImportDocumentInput) (*DocumentDTO, error) {
	if input == nil {
		return nil, errors.InvalidParam("import input is required")
	}
	if input.Name == "" {
		return nil, errors.InvalidParam("document name is required")
	}
	if input.Text == "" {
		return nil, errors.InvalidParam("document text is required")
	}

	if _, err := s.deps.Documents.GetByName(ctx, input.Name); err == nil {
		return nil, errors.Newf(errors.ErrCodeDocumentAlreadyExists,
			"document %q already exists", input.Name)
	} else if !errors.IsNotFound(err) {
		return nil, err
	}

	text := input.Text
	if input.Clean && s.deps.Cleaner != nil {
		cleaned, stats := s.deps.Cleaner.Clean(text)
		text = cleaned
		s.logger.Debug("Cleaned document text",
			logging.String("name", input.Name),
			logging.Int("runes_in", stats.RunesIn),
			logging.Int("runes_out", stats.RunesOut))
	}

	doc, err := s.deps.Tokenizer.Tokenize(input.Name, text)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Documents.Create(ctx, doc); err != nil {
		return nil, err
	}

	chunks := 0
	if max := s.deps.Pipeline.MaxChunkTokens; max > 0 && doc.TokenCount() > max {
		parts, err := tokenize.Chunk(doc, max)
		if err != nil {
			return nil, err
		}
		for _, part := range parts {
			if err := s.deps.Documents.Create(ctx, part); err != nil {
				return nil, err
			}
		}
		chunks = len(parts)
	}

	s.publishImported(ctx, doc)
	s.logger.Info("Imported document",
		logging.String("document_id", string(doc.ID)),
		logging.String("name", doc.Name),
		logging.Int("tokens", doc.TokenCount()),
		logging.Int("chunks", chunks))

	dto := documentToDTO(doc)
	dto.Chunks = chunks
	return dto, nil
}

func (s *serviceImpl) GetDocument(ctx context.Context, id string) (*DocumentDetailDTO, error) {
	if id == "" {
		return nil, errors.InvalidParam("document id is required")
	}
	doc, err := s.deps.Documents.GetByID(ctx, common.ID(id))
	if err != nil {
		return nil, err
	}
	set, err := s.deps.Annotations.LoadSet(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	return s.detailDTO(doc, set), nil
}

func (s *serviceImpl) ListDocuments(ctx context.Context, page, pageSize int) (*DocumentListDTO, error) {
	p := common.Pagination{Page: page, PageSize: pageSize}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = defaultPageSize
	}
	if p.PageSize > maxPageSize {
		p.PageSize = maxPageSize
	}

	docs, total, err := s.deps.Documents.List(ctx, p)
	if err != nil {
		return nil, err
	}
	out := &DocumentListDTO{
		Documents: make([]*DocumentDTO, 0, len(docs)),
		Page:      p.Page,
		PageSize:  p.PageSize,
		Total:     total,
	}
	for _, doc := range docs {
		out.Documents = append(out.Documents, documentToDTO(doc))
	}
	return out, nil
}

func (s *serviceImpl) ListChunks(ctx context.Context, sourceID string) ([]*DocumentDTO, error) {
	if sourceID == "" {
		return nil, errors.InvalidParam("source document id is required")
	}
	if _, err := s.deps.Documents.GetByID(ctx, common.ID(sourceID)); err != nil {
		return nil, err
	}
	chunks, err := s.deps.Documents.ListChunks(ctx, common.ID(sourceID))
	if err != nil {
		return nil, err
	}
	out := make([]*DocumentDTO, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, documentToDTO(c))
	}
	return out, nil
}

func (s *serviceImpl) DeleteDocument(ctx context.Context, id string) error {
	if id == "" {
		return errors.InvalidParam("document id is required")
	}
	docID := common.ID(id)
	if _, err := s.deps.Documents.GetByID(ctx, docID); err != nil {
		return err
	}
	if err := s.deps.Documents.Delete(ctx, docID); err != nil {
		return err
	}
	s.history.forget(docID)

	// The row is gone; derived stores are cleaned up best-effort.
	if s.deps.Index != nil {
		if err := s.deps.Index.DeleteDocument(ctx, id); err != nil {
			s.logger.Warn("Failed to remove document from search index",
				logging.String("document_id", id), logging.Err(err))
		}
	}
	if s.deps.Graph != nil {
		if err := s.deps.Graph.RemoveDocument(ctx, id); err != nil {
			s.logger.Warn("Failed to remove document from graph",
				logging.String("document_id", id), logging.Err(err))
		}
	}
	s.logger.Info("Deleted document", logging.String("document_id", id))
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Event publication
// ─────────────────────────────────────────────────────────────────────────────

// publishImported emits document.imported. Publish failures are logged, not
// returned: the document is already durable and the pipeline can be re-driven.
func (s *serviceImpl) publishImported(ctx context.Context, doc *document.Document) {
	payload := kafka.DocumentImportedPayload{
		DocumentID: string(doc.ID),
		Source:     doc.Name,
		Sentences:  tokenize.SentenceCount(doc.Tokens),
		Tokens:     doc.TokenCount(),
		ImportedAt: time.Now().UTC(),
	}
	if err := s.deps.Publisher.PublishEvent(ctx, kafka.EventDocumentImported, string(doc.ID), payload); err != nil {
		s.logger.Error("Failed to publish document.imported",
			logging.String("document_id", string(doc.ID)), logging.Err(err))
	}
}

// publishMerged emits annotations.merged after a persisted merge pass.
func (s *serviceImpl) publishMerged(ctx context.Context, docID common.ID, set annotation.AnnotationSet, report annotation.MergeReport) {
	payload := kafka.AnnotationsMergedPayload{
		DocumentID:       string(docID),
		Entities:         len(set.Entities),
		Relations:        len(set.Relations),
		DroppedEntities:  len(report.DroppedEntities),
		DroppedRelations: len(report.DroppedRelations),
		Strict:           report.Strict,
		MergedAt:         time.Now().UTC(),
	}
	if err := s.deps.Publisher.PublishEvent(ctx, kafka.EventAnnotationsMerged, string(docID), payload); err != nil {
		s.logger.Error("Failed to publish annotations.merged",
			logging.String("document_id", string(docID)), logging.Err(err))
	}
}
