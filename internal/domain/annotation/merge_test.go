package annotation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanmark/spanmark/internal/domain/annotation"
	"github.com/spanmark/spanmark/pkg/types/common"
)

func gazetteerCandidate(typeName string, start, end int) annotation.Entity {
	return annotation.Entity{
		Type:       typeName,
		Start:      start,
		End:        end,
		Provenance: annotation.ProvenanceGazetteer,
		Confidence: 1.0,
	}
}

func spans(entities []annotation.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.SpanString()
	}
	return out
}

func TestMerge_CandidatesIntoEmptySet(t *testing.T) {
	t.Parallel()

	candidates := []annotation.Entity{
		gazetteerCandidate("PERSON", 0, 1),
		gazetteerCandidate("ORGANIZATION", 3, 4),
		gazetteerCandidate("LOCATION", 5, 6),
	}

	merged, report := annotation.Merge(annotation.AnnotationSet{}, candidates,
		annotation.MergePolicy{Strict: true})

	assert.Equal(t, []string{
		"PERSON[0,1)",
		"ORGANIZATION[3,4)",
		"LOCATION[5,6)",
	}, spans(merged.Entities))
	for _, e := range merged.Entities {
		assert.Equal(t, annotation.ProvenanceGazetteer, e.Provenance)
	}

	assert.Equal(t, 3, report.AcceptedEntities)
	assert.False(t, report.HasConflicts())
}

func TestMerge_ManualBeatsLongerOverlappingCandidate(t *testing.T) {
	t.Parallel()

	existing := annotation.AnnotationSet{
		Entities: []annotation.Entity{{
			ID:         common.ID("e-manual"),
			Type:       "PERSON",
			Start:      0,
			End:        1,
			Provenance: annotation.ProvenanceManual,
		}},
	}
	candidates := []annotation.Entity{gazetteerCandidate("ORGANIZATION", 0, 2)}

	merged, report := annotation.Merge(existing, candidates,
		annotation.MergePolicy{Strict: true})

	require.Len(t, merged.Entities, 1)
	assert.Equal(t, "PERSON[0,1)", merged.Entities[0].SpanString())
	assert.Equal(t, annotation.ProvenanceManual, merged.Entities[0].Provenance)

	require.Len(t, report.DroppedEntities, 1)
	dropped := report.DroppedEntities[0]
	assert.Equal(t, "ORGANIZATION[0,2)", dropped.Entity.SpanString())
	assert.Equal(t, annotation.DropOverlap, dropped.Reason)
	require.NotNil(t, dropped.ConflictWith)
	assert.Equal(t, "PERSON[0,1)", dropped.ConflictWith.SpanString())
}

func TestMerge_LongerSpanWinsAtSameProvenance(t *testing.T) {
	t.Parallel()

	candidates := []annotation.Entity{
		gazetteerCandidate("ORGANIZATION", 0, 1),
		gazetteerCandidate("ORGANIZATION", 0, 2),
	}

	merged, report := annotation.Merge(annotation.AnnotationSet{}, candidates,
		annotation.MergePolicy{Strict: true})

	require.Len(t, merged.Entities, 1)
	assert.Equal(t, "ORGANIZATION[0,2)", merged.Entities[0].SpanString())

	require.Len(t, report.DroppedEntities, 1)
	assert.Equal(t, annotation.DropOverlap, report.DroppedEntities[0].Reason)
}

func TestMerge_EarlierStartWinsAtEqualLength(t *testing.T) {
	t.Parallel()

	// Same provenance, same length, overlapping: [0,2) is considered first.
	candidates := []annotation.Entity{
		gazetteerCandidate("ORGANIZATION", 1, 3),
		gazetteerCandidate("ORGANIZATION", 0, 2),
	}

	merged, report := annotation.Merge(annotation.AnnotationSet{}, candidates,
		annotation.MergePolicy{Strict: true})

	require.Len(t, merged.Entities, 1)
	assert.Equal(t, "ORGANIZATION[0,2)", merged.Entities[0].SpanString())
	require.Len(t, report.DroppedEntities, 1)
	assert.Equal(t, "ORGANIZATION[1,3)", report.DroppedEntities[0].Entity.SpanString())
}

func TestMerge_IdenticalSpanKeepsManualProvenance(t *testing.T) {
	t.Parallel()

	existing := annotation.AnnotationSet{
		Entities: []annotation.Entity{{
			ID:         common.ID("e-manual"),
			Type:       "PERSON",
			Start:      0,
			End:        1,
			Provenance: annotation.ProvenanceManual,
		}},
	}
	candidates := []annotation.Entity{gazetteerCandidate("PERSON", 0, 1)}

	merged, report := annotation.Merge(existing, candidates,
		annotation.MergePolicy{Strict: true})

	require.Len(t, merged.Entities, 1)
	assert.Equal(t, annotation.ProvenanceManual, merged.Entities[0].Provenance)
	assert.Equal(t, common.ID("e-manual"), merged.Entities[0].ID)

	require.Len(t, report.DroppedEntities, 1)
	assert.Equal(t, annotation.DropDuplicate, report.DroppedEntities[0].Reason)
}

func TestMerge_RelationSurvivesOnlyWithBothEndpoints(t *testing.T) {
	t.Parallel()

	org := annotation.Entity{
		ID: common.ID("e-org"), Type: "ORGANIZATION", Start: 0, End: 1,
		Provenance: annotation.ProvenanceGazetteer,
	}
	loc := annotation.Entity{
		ID: common.ID("e-loc"), Type: "LOCATION", Start: 5, End: 6,
		Provenance: annotation.ProvenanceGazetteer,
	}
	existing := annotation.AnnotationSet{
		Entities: []annotation.Entity{org, loc},
		Relations: []annotation.Relation{{
			ID: common.ID("r-1"), Type: "located_in",
			HeadID: org.ID, TailID: loc.ID,
		}},
	}

	// A longer same-provenance span displaces the org entity.
	candidates := []annotation.Entity{gazetteerCandidate("ORGANIZATION", 0, 2)}

	merged, report := annotation.Merge(existing, candidates,
		annotation.MergePolicy{Strict: true})

	assert.Equal(t, []string{"ORGANIZATION[0,2)", "LOCATION[5,6)"}, spans(merged.Entities))
	assert.Empty(t, merged.Relations)

	require.Len(t, report.DroppedEntities, 1)
	assert.Equal(t, "ORGANIZATION[0,1)", report.DroppedEntities[0].Entity.SpanString())

	require.Len(t, report.DroppedRelations, 1)
	assert.Equal(t, annotation.DropEndpointLost, report.DroppedRelations[0].Reason)
	assert.Equal(t, common.ID("r-1"), report.DroppedRelations[0].Relation.ID)
}

func TestMerge_RelationKeptWhenEndpointsSurvive(t *testing.T) {
	t.Parallel()

	per := annotation.Entity{
		ID: common.ID("e-per"), Type: "PERSON", Start: 0, End: 1,
		Provenance: annotation.ProvenanceManual,
	}
	org := annotation.Entity{
		ID: common.ID("e-org"), Type: "ORGANIZATION", Start: 3, End: 4,
		Provenance: annotation.ProvenanceManual,
	}
	existing := annotation.AnnotationSet{
		Entities: []annotation.Entity{per, org},
		Relations: []annotation.Relation{{
			ID: common.ID("r-1"), Type: "works_for",
			HeadID: per.ID, TailID: org.ID,
		}},
	}

	merged, report := annotation.Merge(existing,
		[]annotation.Entity{gazetteerCandidate("LOCATION", 5, 6)},
		annotation.MergePolicy{Strict: true})

	assert.Len(t, merged.Entities, 3)
	require.Len(t, merged.Relations, 1)
	assert.Equal(t, common.ID("r-1"), merged.Relations[0].ID)
	assert.Equal(t, 1, report.AcceptedRelations)
	assert.False(t, report.HasConflicts())
}

func TestMerge_NonStrictKeepsOverlaps(t *testing.T) {
	t.Parallel()

	candidates := []annotation.Entity{
		gazetteerCandidate("PERSON", 0, 1),
		gazetteerCandidate("ORGANIZATION", 0, 2),
	}

	merged, report := annotation.Merge(annotation.AnnotationSet{}, candidates,
		annotation.MergePolicy{Strict: false})

	assert.Equal(t, []string{"PERSON[0,1)", "ORGANIZATION[0,2)"}, spans(merged.Entities))
	assert.False(t, report.HasConflicts())
}

func TestMerge_StrictResultHasNoOverlappingSpans(t *testing.T) {
	t.Parallel()

	existing := annotation.AnnotationSet{
		Entities: []annotation.Entity{
			{ID: common.ID("e-1"), Type: "PERSON", Start: 2, End: 4, Provenance: annotation.ProvenanceManual},
			{ID: common.ID("e-2"), Type: "LOCATION", Start: 8, End: 9, Provenance: annotation.ProvenanceGazetteer},
		},
	}
	candidates := []annotation.Entity{
		gazetteerCandidate("ORGANIZATION", 0, 3),
		gazetteerCandidate("ORGANIZATION", 3, 5),
		gazetteerCandidate("PERSON", 7, 9),
		gazetteerCandidate("LOCATION", 8, 10),
		gazetteerCandidate("PERSON", 2, 4),
	}

	merged, _ := annotation.Merge(existing, candidates, annotation.MergePolicy{Strict: true})

	for i, a := range merged.Entities {
		for j, b := range merged.Entities {
			if i == j {
				continue
			}
			assert.False(t, a.Overlaps(b),
				"%s overlaps %s in strict merge result", a.SpanString(), b.SpanString())
		}
	}
}

func TestMerge_DeterministicAndPure(t *testing.T) {
	t.Parallel()

	existing := annotation.AnnotationSet{
		Entities: []annotation.Entity{
			{ID: common.ID("e-1"), Type: "PERSON", Start: 0, End: 1, Provenance: annotation.ProvenanceManual},
		},
	}
	candidates := []annotation.Entity{
		gazetteerCandidate("ORGANIZATION", 0, 2),
		gazetteerCandidate("LOCATION", 5, 6),
		gazetteerCandidate("ORGANIZATION", 3, 4),
	}

	existingBefore := existing.Clone()
	candidatesBefore := append([]annotation.Entity(nil), candidates...)

	first, firstReport := annotation.Merge(existing, candidates, annotation.MergePolicy{Strict: true})
	second, secondReport := annotation.Merge(existing, candidates, annotation.MergePolicy{Strict: true})

	assert.Equal(t, first, second)
	assert.Equal(t, firstReport, secondReport)

	assert.Equal(t, existingBefore, existing, "merge must not mutate the existing set")
	assert.Equal(t, candidatesBefore, candidates, "merge must not mutate the candidates")
}

func TestMerge_ResultInCanonicalOrder(t *testing.T) {
	t.Parallel()

	candidates := []annotation.Entity{
		gazetteerCandidate("LOCATION", 5, 6),
		gazetteerCandidate("PERSON", 0, 1),
		gazetteerCandidate("ORGANIZATION", 3, 4),
	}

	merged, _ := annotation.Merge(annotation.AnnotationSet{}, candidates,
		annotation.MergePolicy{Strict: true})

	assert.Equal(t, []string{
		"PERSON[0,1)",
		"ORGANIZATION[3,4)",
		"LOCATION[5,6)",
	}, spans(merged.Entities))
}
