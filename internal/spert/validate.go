package spert

import (
	"github.com/spanmark/spanmark/internal/domain/taxonomy"
	"github.com/spanmark/spanmark/pkg/errors"
)

// ValidateTypes checks every entity and relation type in the record against
// the session taxonomy, naming the first offending index. Structural checks
// (span bounds, relation indices) belong to Decode; this covers the type
// vocabulary only.
func (r Record) ValidateTypes(tax *taxonomy.Taxonomy) error {
	if tax == nil {
		return errors.InvalidParam("taxonomy must not be nil")
	}
	for i, e := range r.Entities {
		if !tax.HasEntityType(e.Type) {
			return errors.Newf(errors.ErrCodeTaxonomyUnknownType,
				"entity %d: unknown entity type %q", i, e.Type)
		}
	}
	for i, rel := range r.Relations {
		if !tax.HasRelationType(rel.Type) {
			return errors.Newf(errors.ErrCodeTaxonomyUnknownType,
				"relation %d: unknown relation type %q", i, rel.Type)
		}
	}
	return nil
}

// ValidateDatasetTypes runs ValidateTypes over a whole dataset, labeling the
// failing record.
func ValidateDatasetTypes(records []Record, tax *taxonomy.Taxonomy) error {
	for i, rec := range records {
		if err := rec.ValidateTypes(tax); err != nil {
			return labelRecord(err, i)
		}
	}
	return nil
}
