package annotation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanmark/spanmark/internal/domain/annotation"
	"github.com/spanmark/spanmark/pkg/types/common"
)

func TestClone_IsIndependent(t *testing.T) {
	t.Parallel()

	orig := annotation.AnnotationSet{
		Entities: []annotation.Entity{
			{ID: common.ID("e-1"), Type: "PERSON", Start: 0, End: 1, Provenance: annotation.ProvenanceManual},
		},
		Relations: []annotation.Relation{
			{ID: common.ID("r-1"), Type: "works_for", HeadID: common.ID("e-1"), TailID: common.ID("e-2")},
		},
	}

	cp := orig.Clone()
	cp.Entities[0].Type = "LOCATION"
	cp.Relations[0].Type = "located_in"

	assert.Equal(t, "PERSON", orig.Entities[0].Type)
	assert.Equal(t, "works_for", orig.Relations[0].Type)
}

func TestFindEntity(t *testing.T) {
	t.Parallel()

	set := annotation.AnnotationSet{
		Entities: []annotation.Entity{
			{ID: common.ID("e-1"), Type: "PERSON", Start: 0, End: 1},
			{ID: common.ID("e-2"), Type: "ORGANIZATION", Start: 3, End: 4},
		},
	}

	e, ok := set.FindEntity(3, 4, "ORGANIZATION")
	require.True(t, ok)
	assert.Equal(t, common.ID("e-2"), e.ID)

	_, ok = set.FindEntity(3, 4, "PERSON")
	assert.False(t, ok)

	e, ok = set.EntityByID(common.ID("e-1"))
	require.True(t, ok)
	assert.Equal(t, "PERSON", e.Type)
}

func TestDiff_DetectsChanges(t *testing.T) {
	t.Parallel()

	per := annotation.Entity{ID: common.ID("e-1"), Type: "PERSON", Start: 0, End: 1}
	org := annotation.Entity{ID: common.ID("e-2"), Type: "ORGANIZATION", Start: 3, End: 4}
	loc := annotation.Entity{ID: common.ID("e-3"), Type: "LOCATION", Start: 5, End: 6}

	base := annotation.AnnotationSet{
		Entities: []annotation.Entity{per, org},
		Relations: []annotation.Relation{
			{ID: common.ID("r-1"), Type: "works_for", HeadID: per.ID, TailID: org.ID},
		},
	}
	next := annotation.AnnotationSet{
		Entities: []annotation.Entity{per, loc},
		Relations: []annotation.Relation{
			{ID: common.ID("r-2"), Type: "located_in", HeadID: per.ID, TailID: loc.ID},
		},
	}

	diff := base.Diff(next)

	require.Len(t, diff.AddedEntities, 1)
	assert.Equal(t, "LOCATION", diff.AddedEntities[0].Type)
	require.Len(t, diff.RemovedEntities, 1)
	assert.Equal(t, "ORGANIZATION", diff.RemovedEntities[0].Type)
	require.Len(t, diff.AddedRelations, 1)
	require.Len(t, diff.RemovedRelations, 1)
	assert.False(t, diff.IsEmpty())
}

func TestDiff_IgnoresIDReassignment(t *testing.T) {
	t.Parallel()

	base := annotation.AnnotationSet{
		Entities: []annotation.Entity{
			{ID: common.ID("a"), Type: "PERSON", Start: 0, End: 1},
			{ID: common.ID("b"), Type: "ORGANIZATION", Start: 3, End: 4},
		},
		Relations: []annotation.Relation{
			{ID: common.ID("r-1"), Type: "works_for", HeadID: common.ID("a"), TailID: common.ID("b")},
		},
	}

	// Same annotations, freshly assigned IDs (as after a store replace).
	next := annotation.AnnotationSet{
		Entities: []annotation.Entity{
			{ID: common.ID("x"), Type: "PERSON", Start: 0, End: 1},
			{ID: common.ID("y"), Type: "ORGANIZATION", Start: 3, End: 4},
		},
		Relations: []annotation.Relation{
			{ID: common.ID("r-9"), Type: "works_for", HeadID: common.ID("x"), TailID: common.ID("y")},
		},
	}

	assert.True(t, base.Diff(next).IsEmpty(),
		"identity is (span, type) and endpoint spans, not IDs")
}

func TestIsEmpty(t *testing.T) {
	t.Parallel()

	assert.True(t, annotation.AnnotationSet{}.IsEmpty())
	assert.False(t, annotation.AnnotationSet{
		Entities: []annotation.Entity{{Type: "PERSON", Start: 0, End: 1}},
	}.IsEmpty())
}
