// Package spert converts between the annotation domain model and the JSON
// schema of the external span-based training framework. The schema is fixed
// bit for bit: a record carries the token texts, an entity list addressed by
// token indices, and a relation list whose head/tail indices point into the
// entity list, not the token list. That indirection is the sharp edge of the
// format and is computed in exactly one place (entityIndex).
package spert

import (
	"github.com/spanmark/spanmark/internal/domain/annotation"
)

// ─────────────────────────────────────────────────────────────────────────────
// Wire schema
// ─────────────────────────────────────────────────────────────────────────────

// Record is one training or prediction record in the external schema.
type Record struct {
	Tokens    []string         `json:"tokens"`
	Entities  []RecordEntity   `json:"entities"`
	Relations []RecordRelation `json:"relations"`
}

// RecordEntity is an entity mention: token indices, end exclusive.
type RecordEntity struct {
	Type  string `json:"type"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// RecordRelation is a typed, directed relation. Head and Tail are zero-based
// positions in the record's entity list.
type RecordRelation struct {
	Type string `json:"type"`
	Head int    `json:"head"`
	Tail int    `json:"tail"`
}

// normalized replaces nil slices with empty ones so the record marshals the
// [] the external framework expects, never null.
func (r Record) normalized() Record {
	if r.Tokens == nil {
		r.Tokens = []string{}
	}
	if r.Entities == nil {
		r.Entities = []RecordEntity{}
	}
	if r.Relations == nil {
		r.Relations = []RecordRelation{}
	}
	return r
}

// ─────────────────────────────────────────────────────────────────────────────
// File classes
// ─────────────────────────────────────────────────────────────────────────────

// FileClass says what kind of file a record came from. The class drives the
// provenance of imported annotations; it is always supplied by the caller and
// never inferred from record content, since the wire schema itself carries no
// provenance.
type FileClass string

const (
	// ClassGold marks curated training data; annotations import as manual.
	ClassGold FileClass = "gold"
	// ClassPrediction marks framework output; annotations import as
	// model predictions.
	ClassPrediction FileClass = "prediction"
	// ClassRaw marks unannotated prediction input; records must carry empty
	// entity and relation lists.
	ClassRaw FileClass = "raw"
)

// Valid reports whether c is a known file class.
func (c FileClass) Valid() bool {
	switch c {
	case ClassGold, ClassPrediction, ClassRaw:
		return true
	}
	return false
}

// Provenance returns the provenance tag annotations imported under this class
// receive. Raw files carry no annotations, so the zero value is returned.
func (c FileClass) Provenance() annotation.Provenance {
	switch c {
	case ClassGold:
		return annotation.ProvenanceManual
	case ClassPrediction:
		return annotation.ProvenanceModel
	default:
		return ""
	}
}
