// Package search defines the entity mention index: every committed annotation
// pass projects its entities into Mention records (surface text, type, span,
// sentence context, relation partners) that can be queried by surface
// substring and type. The EntityIndex interface has two implementations, an
// OpenSearch-backed one in the opensearch subpackage and the in-process
// MemoryIndex used by tests and single-user CLI sessions.
package search

import (
	"context"
	"time"
)

// RelationPartner is the other endpoint of a relation touching a mention.
type RelationPartner struct {
	Relation string `json:"relation"`
	Surface  string `json:"surface"`
	Type     string `json:"type"`
	// Direction is "out" when the mention is the relation head, "in" when it
	// is the tail.
	Direction string `json:"direction"`
}

// Mention is one committed entity annotation in its document context.
type Mention struct {
	DocumentID   string            `json:"document_id"`
	DocumentName string            `json:"document_name,omitempty"`
	EntityID     string            `json:"entity_id"`
	Surface      string            `json:"surface"`
	SurfaceNorm  string            `json:"surface_norm"`
	Type         string            `json:"type"`
	Start        int               `json:"start"`
	End          int               `json:"end"`
	Context      string            `json:"context,omitempty"`
	Partners     []RelationPartner `json:"partners,omitempty"`
	IndexedAt    time.Time         `json:"indexed_at"`
}

// DocID returns the stable index identity of the mention. Re-indexing the
// same entity overwrites its previous record.
func (m Mention) DocID() string {
	return m.DocumentID + ":" + m.EntityID
}

// Query selects mentions. Surface matches as a case-insensitive substring;
// Type and DocumentID are exact filters. Empty fields do not constrain the
// result.
type Query struct {
	Surface    string `json:"surface,omitempty"`
	Type       string `json:"type,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
	Offset     int    `json:"offset,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// Result is one page of matching mentions. Total counts all matches, not
// just the returned page.
type Result struct {
	Total    int64     `json:"total"`
	Mentions []Mention `json:"mentions"`
	TookMs   int64     `json:"took_ms"`
}

// EntityIndex stores and queries entity mentions. ReplaceDocument swaps a
// document's mentions wholesale: a committed annotation pass is the unit of
// indexing, so stale mentions from the previous pass never linger.
type EntityIndex interface {
	ReplaceDocument(ctx context.Context, documentID string, mentions []Mention) error
	DeleteDocument(ctx context.Context, documentID string) error
	Search(ctx context.Context, q Query) (*Result, error)
}

const (
	// DefaultPageSize is applied when a query gives no limit.
	DefaultPageSize = 20
	// MaxPageSize caps any requested limit.
	MaxPageSize = 100
)

// Normalize clamps pagination to the supported window.
func (q Query) Normalize() Query {
	if q.Limit <= 0 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}
