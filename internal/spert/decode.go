package spert

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/spanmark/spanmark/internal/domain/annotation"
	"github.com/spanmark/spanmark/internal/domain/document"
	"github.com/spanmark/spanmark/pkg/errors"
	"github.com/spanmark/spanmark/pkg/types/common"
)

// Decode converts one external record back into a document and annotation
// set. class supplies the provenance of the imported annotations: gold files
// import as manual, prediction files as model predictions, and raw records
// must not carry annotations at all.
//
// The wire schema has no character offsets, so the document text is
// synthesized by joining tokens with single spaces.
func Decode(name string, rec Record, class FileClass) (*document.Document, annotation.AnnotationSet, error) {
	var none annotation.AnnotationSet

	if !class.Valid() {
		return nil, none, errors.Newf(errors.CodeInvalidParam, "unknown file class %q", class)
	}
	if len(rec.Tokens) == 0 {
		return nil, none, errors.New(errors.ErrCodeSchemaEmptyTokens, "record has no tokens")
	}
	if class == ClassRaw && (len(rec.Entities) > 0 || len(rec.Relations) > 0) {
		return nil, none, errors.New(errors.ErrCodeSchemaMalformed,
			"raw record carries annotations")
	}

	doc, err := documentFromTokens(name, rec.Tokens)
	if err != nil {
		return nil, none, err
	}

	provenance := class.Provenance()
	entities := make([]annotation.Entity, 0, len(rec.Entities))
	for i, we := range rec.Entities {
		if we.Type == "" {
			return nil, none, errors.Newf(errors.ErrCodeSchemaMalformed,
				"entity %d: missing type", i)
		}
		if we.Start < 0 || we.End > len(rec.Tokens) || we.Start >= we.End {
			return nil, none, errors.Newf(errors.ErrCodeSchemaEntityRange,
				"entity %d: span [%d,%d) does not fit %d tokens",
				i, we.Start, we.End, len(rec.Tokens))
		}
		entities = append(entities, annotation.Entity{
			ID:         common.NewID(),
			DocumentID: doc.ID,
			Type:       we.Type,
			Start:      we.Start,
			End:        we.End,
			Provenance: provenance,
			Confidence: 1.0,
		})
	}

	relations := make([]annotation.Relation, 0, len(rec.Relations))
	for i, wr := range rec.Relations {
		if wr.Type == "" {
			return nil, none, errors.Newf(errors.ErrCodeSchemaMalformed,
				"relation %d: missing type", i)
		}
		if wr.Head < 0 || wr.Head >= len(entities) {
			return nil, none, errors.Newf(errors.ErrCodeSchemaRelationIndex,
				"relation %d: head index %d out of range (%d entities)",
				i, wr.Head, len(entities))
		}
		if wr.Tail < 0 || wr.Tail >= len(entities) {
			return nil, none, errors.Newf(errors.ErrCodeSchemaRelationIndex,
				"relation %d: tail index %d out of range (%d entities)",
				i, wr.Tail, len(entities))
		}
		if wr.Head == wr.Tail {
			return nil, none, errors.Newf(errors.ErrCodeSchemaRelationIndex,
				"relation %d: head and tail both reference entity %d", i, wr.Head)
		}
		relations = append(relations, annotation.Relation{
			ID:         common.NewID(),
			DocumentID: doc.ID,
			Type:       wr.Type,
			HeadID:     entities[wr.Head].ID,
			TailID:     entities[wr.Tail].ID,
		})
	}

	return doc, annotation.AnnotationSet{Entities: entities, Relations: relations}, nil
}

// documentFromTokens rebuilds a document from bare token texts, assigning
// synthetic rune offsets over a single-space join.
func documentFromTokens(name string, texts []string) (*document.Document, error) {
	var b strings.Builder
	tokens := make([]document.Token, 0, len(texts))

	pos := 0
	for i, text := range texts {
		if text == "" {
			return nil, errors.Newf(errors.ErrCodeSchemaMalformed, "token %d is empty", i)
		}
		if i > 0 {
			b.WriteByte(' ')
			pos++
		}
		width := utf8.RuneCountInString(text)
		tokens = append(tokens, document.Token{Text: text, Start: pos, End: pos + width})
		b.WriteString(text)
		pos += width
	}

	return document.New(name, b.String(), tokens)
}

// DecodeDataset decodes every record of a dataset, naming the resulting
// documents "<base>#NNNN" by record position. A failure is labeled with the
// index of the record it came from.
func DecodeDataset(base string, records []Record, class FileClass) ([]*document.Document, []annotation.AnnotationSet, error) {
	docs := make([]*document.Document, 0, len(records))
	sets := make([]annotation.AnnotationSet, 0, len(records))

	for i, rec := range records {
		doc, set, err := Decode(fmt.Sprintf("%s#%04d", base, i), rec, class)
		if err != nil {
			return nil, nil, labelRecord(err, i)
		}
		docs = append(docs, doc)
		sets = append(sets, set)
	}
	return docs, sets, nil
}
