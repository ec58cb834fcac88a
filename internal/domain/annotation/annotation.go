// Package annotation implements the canonical in-memory representation of one
// document's entity and relation annotations: the Entity and Relation value
// objects, the AnnotationSet collection, the Store that guards every mutation
// behind validate-then-commit discipline, and the Merge engine that reconciles
// automatically generated candidates with manual gold annotations.
package annotation

import (
	"fmt"

	"github.com/spanmark/spanmark/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// Provenance
// ─────────────────────────────────────────────────────────────────────────────

// Provenance records where an annotation came from. It arbitrates merge
// conflicts (manual always beats the automatic sources) and is never written
// to the external training format.
type Provenance string

const (
	ProvenanceManual    Provenance = "manual"
	ProvenanceGazetteer Provenance = "gazetteer"
	ProvenanceModel     Provenance = "model-prediction"
)

// Valid reports whether p is one of the declared provenance values.
func (p Provenance) Valid() bool {
	switch p {
	case ProvenanceManual, ProvenanceGazetteer, ProvenanceModel:
		return true
	}
	return false
}

// rank orders provenance for merge arbitration: lower wins.
func (p Provenance) rank() int {
	if p == ProvenanceManual {
		return 0
	}
	return 1
}

// ─────────────────────────────────────────────────────────────────────────────
// Entity
// ─────────────────────────────────────────────────────────────────────────────

// Entity is a span annotation: a half-open token range [Start, End) over a
// document, labeled with a type from the entity taxonomy. Within one document
// an entity is identified by (Start, End, Type); the ID exists so relations
// can reference endpoints without copying them.
//
// Confidence is advisory metadata from the producing matcher or model. Like
// Provenance it does not survive export to the training format.
type Entity struct {
	ID         common.ID  `json:"id,omitempty"`
	DocumentID common.ID  `json:"document_id,omitempty"`
	Type       string     `json:"type"`
	Start      int        `json:"start"`
	End        int        `json:"end"`
	Provenance Provenance `json:"provenance,omitempty"`
	Confidence float64    `json:"confidence,omitempty"`
}

// SpanLength returns the number of tokens the entity covers.
func (e Entity) SpanLength() int { return e.End - e.Start }

// Overlaps reports whether the token ranges of e and other intersect.
func (e Entity) Overlaps(other Entity) bool {
	return e.Start < other.End && other.Start < e.End
}

// SameSpan reports whether e and other cover the identical token range.
func (e Entity) SameSpan(other Entity) bool {
	return e.Start == other.Start && e.End == other.End
}

// Key returns the (Start, End, Type) identity of the entity within its
// document.
func (e Entity) Key() string {
	return fmt.Sprintf("%d:%d:%s", e.Start, e.End, e.Type)
}

// SpanString renders the half-open token range for messages and display.
func (e Entity) SpanString() string {
	return fmt.Sprintf("%s[%d,%d)", e.Type, e.Start, e.End)
}

// ─────────────────────────────────────────────────────────────────────────────
// Relation
// ─────────────────────────────────────────────────────────────────────────────

// Relation is a directed, typed link between two entities of the same
// document. Endpoints are held by reference; the store guarantees both are
// live and cascades deletion.
type Relation struct {
	ID         common.ID `json:"id,omitempty"`
	DocumentID common.ID `json:"document_id,omitempty"`
	Type       string    `json:"type"`
	HeadID     common.ID `json:"head_id"`
	TailID     common.ID `json:"tail_id"`
}

// References reports whether the relation touches the given entity.
func (r Relation) References(entityID common.ID) bool {
	return r.HeadID == entityID || r.TailID == entityID
}

// key returns the duplicate-detection identity of the relation. For symmetric
// relation types the endpoint pair is unordered, so (r, a, b) and (r, b, a)
// collapse to the same key.
func (r Relation) key(symmetric bool) string {
	head, tail := string(r.HeadID), string(r.TailID)
	if symmetric && head > tail {
		head, tail = tail, head
	}
	return fmt.Sprintf("%s:%s:%s", r.Type, head, tail)
}
