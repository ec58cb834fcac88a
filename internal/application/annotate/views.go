package annotate

import (
	"time"

	"github.com/spanmark/spanmark/internal/domain/annotation"
	"github.com/spanmark/spanmark/internal/domain/document"
	"github.com/spanmark/spanmark/internal/nlp/tokenize"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ─────────────────────────────────────────────────────────────────────────────
// DTOs
// ─────────────────────────────────────────────────────────────────────────────

// DocumentDTO is the transport representation of a document.
type DocumentDTO struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	TokenCount    int       `json:"token_count"`
	SentenceCount int       `json:"sentence_count"`
	// Chunks is the number of chunk documents created at import time; zero
	// for documents that fit in one chunk and for chunks themselves.
	Chunks            int       `json:"chunks,omitempty"`
	SourceID          string    `json:"source_id,omitempty"`
	SourceTokenOffset int       `json:"source_token_offset,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// DocumentDetailDTO is a document with its full text and annotation set.
type DocumentDetailDTO struct {
	DocumentDTO
	Text      string         `json:"text"`
	Entities  []*EntityDTO   `json:"entities"`
	Relations []*RelationDTO `json:"relations"`
	UndoDepth int            `json:"undo_depth"`
}

// DocumentListDTO is one page of documents.
type DocumentListDTO struct {
	Documents []*DocumentDTO `json:"documents"`
	Page      int            `json:"page"`
	PageSize  int            `json:"page_size"`
	Total     int64          `json:"total"`
}

// EntityDTO is the transport representation of an entity annotation. Surface
// is the document text the span covers.
type EntityDTO struct {
	ID         string  `json:"id"`
	DocumentID string  `json:"document_id"`
	Type       string  `json:"type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Surface    string  `json:"surface"`
	Provenance string  `json:"provenance"`
	Confidence float64 `json:"confidence,omitempty"`
}

// RelationDTO is the transport representation of a relation. Head and tail
// surfaces are resolved for display.
type RelationDTO struct {
	ID          string `json:"id"`
	DocumentID  string `json:"document_id"`
	Type        string `json:"type"`
	HeadID      string `json:"head_id"`
	TailID      string `json:"tail_id"`
	HeadSurface string `json:"head_surface,omitempty"`
	TailSurface string `json:"tail_surface,omitempty"`
}

// DeleteEntityDTO reports an entity removal and its relation cascade.
type DeleteEntityDTO struct {
	EntityID         string `json:"entity_id"`
	RemovedRelations int    `json:"removed_relations"`
}

// MergeOutcomeDTO reports a merge pass. When Preview is true nothing was
// persisted and the counts describe what a commit would produce.
type MergeOutcomeDTO struct {
	DocumentID string                 `json:"document_id"`
	Preview    bool                   `json:"preview"`
	Entities   int                    `json:"entities"`
	Relations  int                    `json:"relations"`
	Report     annotation.MergeReport `json:"report"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Mappers
// ─────────────────────────────────────────────────────────────────────────────

func documentToDTO(doc *document.Document) *DocumentDTO {
	return &DocumentDTO{
		ID:                string(doc.ID),
		Name:              doc.Name,
		TokenCount:        doc.TokenCount(),
		SentenceCount:     tokenize.SentenceCount(doc.Tokens),
		SourceID:          string(doc.SourceID),
		SourceTokenOffset: doc.SourceTokenOffset,
		CreatedAt:         doc.CreatedAt,
		UpdatedAt:         doc.UpdatedAt,
	}
}

func entityToDTO(doc *document.Document, e annotation.Entity) *EntityDTO {
	surface, _ := doc.SpanText(e.Start, e.End)
	return &EntityDTO{
		ID:         string(e.ID),
		DocumentID: string(doc.ID),
		Type:       e.Type,
		Start:      e.Start,
		End:        e.End,
		Surface:    surface,
		Provenance: string(e.Provenance),
		Confidence: e.Confidence,
	}
}

func relationToDTO(doc *document.Document, set annotation.AnnotationSet, r annotation.Relation) *RelationDTO {
	dto := &RelationDTO{
		ID:         string(r.ID),
		DocumentID: string(doc.ID),
		Type:       r.Type,
		HeadID:     string(r.HeadID),
		TailID:     string(r.TailID),
	}
	if head, ok := set.EntityByID(r.HeadID); ok {
		dto.HeadSurface, _ = doc.SpanText(head.Start, head.End)
	}
	if tail, ok := set.EntityByID(r.TailID); ok {
		dto.TailSurface, _ = doc.SpanText(tail.Start, tail.End)
	}
	return dto
}

func (s *serviceImpl) detailDTO(doc *document.Document, set annotation.AnnotationSet) *DocumentDetailDTO {
	detail := &DocumentDetailDTO{
		DocumentDTO: *documentToDTO(doc),
		Text:        doc.Text,
		Entities:    make([]*EntityDTO, 0, len(set.Entities)),
		Relations:   make([]*RelationDTO, 0, len(set.Relations)),
		UndoDepth:   s.history.depth(doc.ID),
	}
	for _, e := range set.Entities {
		detail.Entities = append(detail.Entities, entityToDTO(doc, e))
	}
	for _, r := range set.Relations {
		detail.Relations = append(detail.Relations, relationToDTO(doc, set, r))
	}
	return detail
}

func mergeOutcomeDTO(doc *document.Document, set annotation.AnnotationSet, report annotation.MergeReport, preview bool) *MergeOutcomeDTO {
	return &MergeOutcomeDTO{
		DocumentID: string(doc.ID),
		Preview:    preview,
		Entities:   len(set.Entities),
		Relations:  len(set.Relations),
		Report:     report,
	}
}

