package annotation

import (
	"sort"

	"github.com/spanmark/spanmark/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// AnnotationSet
// ─────────────────────────────────────────────────────────────────────────────

// AnnotationSet is the full collection of entities and relations for one
// document at a point in time. It is a plain value: copying it with Clone and
// comparing two sets with Diff are the supported ways to snapshot and audit
// annotation state.
type AnnotationSet struct {
	Entities  []Entity   `json:"entities"`
	Relations []Relation `json:"relations"`
}

// Clone returns a deep copy of the set.
func (s AnnotationSet) Clone() AnnotationSet {
	out := AnnotationSet{}
	if s.Entities != nil {
		out.Entities = append([]Entity(nil), s.Entities...)
	}
	if s.Relations != nil {
		out.Relations = append([]Relation(nil), s.Relations...)
	}
	return out
}

// IsEmpty reports whether the set holds no annotations at all.
func (s AnnotationSet) IsEmpty() bool {
	return len(s.Entities) == 0 && len(s.Relations) == 0
}

// EntityByID returns the entity with the given ID.
func (s AnnotationSet) EntityByID(id common.ID) (Entity, bool) {
	for _, e := range s.Entities {
		if e.ID == id {
			return e, true
		}
	}
	return Entity{}, false
}

// FindEntity returns the entity with the given (start, end, type) identity.
func (s AnnotationSet) FindEntity(start, end int, typeName string) (Entity, bool) {
	for _, e := range s.Entities {
		if e.Start == start && e.End == end && e.Type == typeName {
			return e, true
		}
	}
	return Entity{}, false
}

// SortEntities orders entities canonically by (start, end, type). This is the
// order the external format converter emits, so sorting here keeps entity
// indices stable across export and merge.
func SortEntities(entities []Entity) {
	sort.SliceStable(entities, func(i, j int) bool {
		a, b := entities[i], entities[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.End != b.End {
			return a.End < b.End
		}
		return a.Type < b.Type
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Diff
// ─────────────────────────────────────────────────────────────────────────────

// SetDiff describes how a set changed relative to a baseline. Entities are
// compared by (start, end, type) identity, relations by type plus the span
// identities of their endpoints, so diffs are stable across ID reassignment.
type SetDiff struct {
	AddedEntities    []Entity
	RemovedEntities  []Entity
	AddedRelations   []Relation
	RemovedRelations []Relation
}

// IsEmpty reports whether the diff records no change.
func (d SetDiff) IsEmpty() bool {
	return len(d.AddedEntities) == 0 && len(d.RemovedEntities) == 0 &&
		len(d.AddedRelations) == 0 && len(d.RemovedRelations) == 0
}

// Diff returns the changes in next relative to s.
func (s AnnotationSet) Diff(next AnnotationSet) SetDiff {
	var diff SetDiff

	baseEntities := make(map[string]Entity, len(s.Entities))
	for _, e := range s.Entities {
		baseEntities[e.Key()] = e
	}
	nextEntities := make(map[string]Entity, len(next.Entities))
	for _, e := range next.Entities {
		nextEntities[e.Key()] = e
	}

	for _, e := range next.Entities {
		if _, ok := baseEntities[e.Key()]; !ok {
			diff.AddedEntities = append(diff.AddedEntities, e)
		}
	}
	for _, e := range s.Entities {
		if _, ok := nextEntities[e.Key()]; !ok {
			diff.RemovedEntities = append(diff.RemovedEntities, e)
		}
	}

	baseRelations := make(map[string]Relation, len(s.Relations))
	for _, r := range s.Relations {
		baseRelations[s.relationIdentity(r)] = r
	}
	nextRelations := make(map[string]Relation, len(next.Relations))
	for _, r := range next.Relations {
		nextRelations[next.relationIdentity(r)] = r
	}

	for _, r := range next.Relations {
		if _, ok := baseRelations[next.relationIdentity(r)]; !ok {
			diff.AddedRelations = append(diff.AddedRelations, r)
		}
	}
	for _, r := range s.Relations {
		if _, ok := nextRelations[s.relationIdentity(r)]; !ok {
			diff.RemovedRelations = append(diff.RemovedRelations, r)
		}
	}

	return diff
}

// relationIdentity keys a relation by type and endpoint span identities so
// two sets with differently assigned IDs still compare equal.
func (s AnnotationSet) relationIdentity(r Relation) string {
	head, tail := "?", "?"
	if e, ok := s.EntityByID(r.HeadID); ok {
		head = e.Key()
	}
	if e, ok := s.EntityByID(r.TailID); ok {
		tail = e.Key()
	}
	return r.Type + "|" + head + "|" + tail
}
