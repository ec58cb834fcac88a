package spert

import (
	"fmt"

	"github.com/spanmark/spanmark/internal/domain/annotation"
	"github.com/spanmark/spanmark/internal/domain/document"
	"github.com/spanmark/spanmark/pkg/errors"
	"github.com/spanmark/spanmark/pkg/types/common"
)

// Encode converts one document and its annotation set into an external
// record. Entities are emitted in canonical span order (start, then end, then
// type); relation endpoints are rewritten from entity IDs to positions in
// that emitted list. Provenance and confidence are dropped, since the wire
// schema has no field for either.
//
// The set must be a committed one: every entity needs a nonzero ID for
// relations to reference.
func Encode(doc *document.Document, set annotation.AnnotationSet) (Record, error) {
	if doc == nil {
		return Record{}, errors.InvalidParam("document must not be nil")
	}

	entities := append([]annotation.Entity(nil), set.Entities...)
	annotation.SortEntities(entities)

	wireEntities := make([]RecordEntity, 0, len(entities))
	for i, e := range entities {
		if e.Type == "" {
			return Record{}, errors.Newf(errors.ErrCodeSchemaMalformed,
				"entity %d: missing type", i)
		}
		if !doc.ValidSpan(e.Start, e.End) {
			return Record{}, errors.Newf(errors.ErrCodeSchemaEntityRange,
				"entity %d: span [%d,%d) does not fit %d tokens",
				i, e.Start, e.End, doc.TokenCount())
		}
		wireEntities = append(wireEntities, RecordEntity{Type: e.Type, Start: e.Start, End: e.End})
	}

	index := entityIndex(entities)
	wireRelations := make([]RecordRelation, 0, len(set.Relations))
	for i, r := range set.Relations {
		if r.Type == "" {
			return Record{}, errors.Newf(errors.ErrCodeSchemaMalformed,
				"relation %d: missing type", i)
		}
		head, ok := index[r.HeadID]
		if !ok {
			return Record{}, errors.Newf(errors.ErrCodeSchemaRelationIndex,
				"relation %d: head entity %q is not in the set", i, r.HeadID)
		}
		tail, ok := index[r.TailID]
		if !ok {
			return Record{}, errors.Newf(errors.ErrCodeSchemaRelationIndex,
				"relation %d: tail entity %q is not in the set", i, r.TailID)
		}
		wireRelations = append(wireRelations, RecordRelation{Type: r.Type, Head: head, Tail: tail})
	}

	return Record{
		Tokens:    doc.TokenTexts(),
		Entities:  wireEntities,
		Relations: wireRelations,
	}, nil
}

// entityIndex maps entity IDs to positions in the emitted entity list. It is
// the single place the ID-to-index indirection used by relation head/tail
// fields is computed; entities without an ID are unaddressable and skipped.
func entityIndex(entities []annotation.Entity) map[common.ID]int {
	index := make(map[common.ID]int, len(entities))
	for i, e := range entities {
		if e.ID == "" {
			continue
		}
		index[e.ID] = i
	}
	return index
}

// RawRecord builds an unannotated record from a document, the input shape
// prediction jobs consume.
func RawRecord(doc *document.Document) (Record, error) {
	if doc == nil {
		return Record{}, errors.InvalidParam("document must not be nil")
	}
	return Record{
		Tokens:    doc.TokenTexts(),
		Entities:  []RecordEntity{},
		Relations: []RecordRelation{},
	}, nil
}

// EncodeDataset encodes parallel document and annotation-set slices into
// records, labeling any failure with the position it occurred at.
func EncodeDataset(docs []*document.Document, sets []annotation.AnnotationSet) ([]Record, error) {
	if len(docs) != len(sets) {
		return nil, errors.Newf(errors.CodeInvalidParam,
			"%d documents but %d annotation sets", len(docs), len(sets))
	}

	records := make([]Record, 0, len(docs))
	for i := range docs {
		rec, err := Encode(docs[i], sets[i])
		if err != nil {
			return nil, labelRecord(err, i)
		}
		records = append(records, rec)
	}
	return records, nil
}

// labelRecord suffixes an error with the index of the record it belongs to,
// so file-level failures point at the exact record to fix.
func labelRecord(err error, i int) error {
	if ae, ok := errors.AsAppError(err); ok {
		return ae.WithDetailf("record %d", i)
	}
	return errors.Wrap(err, errors.ErrCodeSchemaMalformed, fmt.Sprintf("record %d", i))
}
