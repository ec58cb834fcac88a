package annotation

import (
	"sort"

	"github.com/spanmark/spanmark/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// Merge policy and report
// ─────────────────────────────────────────────────────────────────────────────

// MergePolicy configures conflict arbitration for one merge pass.
type MergePolicy struct {
	// Strict enables the no-overlapping rule: once a span is accepted, every
	// other span intersecting it is dropped and reported, at any provenance.
	Strict bool
}

// DropReason explains why the merge engine rejected an annotation. Conflicts
// are never fatal; callers inspect the report.
type DropReason string

const (
	// DropDuplicate marks an annotation whose (start, end, type) identity was
	// already accepted.
	DropDuplicate DropReason = "duplicate"

	// DropOverlap marks a span rejected under the strict no-overlapping rule.
	DropOverlap DropReason = "overlap-conflict"

	// DropEndpointLost marks a relation whose head or tail entity did not
	// survive the merge.
	DropEndpointLost DropReason = "endpoint-lost"
)

// DroppedEntity records one rejected span together with the accepted
// annotation that displaced it.
type DroppedEntity struct {
	Entity       Entity     `json:"entity"`
	Reason       DropReason `json:"reason"`
	ConflictWith *Entity    `json:"conflict_with,omitempty"`
}

// DroppedRelation records one relation that could not survive the merge.
type DroppedRelation struct {
	Relation Relation   `json:"relation"`
	Reason   DropReason `json:"reason"`
}

// MergeReport is the audit trail of a merge pass: what survived, what was
// dropped, and why.
type MergeReport struct {
	Strict            bool              `json:"strict"`
	AcceptedEntities  int               `json:"accepted_entities"`
	AcceptedRelations int               `json:"accepted_relations"`
	DroppedEntities   []DroppedEntity   `json:"dropped_entities,omitempty"`
	DroppedRelations  []DroppedRelation `json:"dropped_relations,omitempty"`
}

// HasConflicts reports whether anything was dropped.
func (r MergeReport) HasConflicts() bool {
	return len(r.DroppedEntities) > 0 || len(r.DroppedRelations) > 0
}

// ─────────────────────────────────────────────────────────────────────────────
// Merge engine
// ─────────────────────────────────────────────────────────────────────────────

// claim is one annotation competing for acceptance. seq preserves input order
// (existing set first, then candidates) as the final tie-break, so the
// incumbent wins against an otherwise equal newcomer and merges stay
// deterministic.
type claim struct {
	entity Entity
	seq    int
}

// Merge reconciles an existing annotation set with automatically generated
// candidate spans and returns the merged set plus an audit report. It is a
// pure function: neither input is modified, and identical inputs always
// produce the identical result.
//
// Arbitration order:
//  1. manual provenance beats gazetteer and model provenance;
//  2. the longer span beats the shorter;
//  3. the earlier start beats the later;
//  4. existing annotations beat candidates, and earlier candidates beat
//     later ones.
//
// An annotation whose (start, end, type) identity was already accepted is
// dropped as a duplicate. Under MergePolicy.Strict any span overlapping an
// accepted span is dropped as a conflict. A relation survives only if both
// its endpoints survive; accepted candidates keep their zero ID, which the
// store assigns on commit.
func Merge(existing AnnotationSet, candidates []Entity, policy MergePolicy) (AnnotationSet, MergeReport) {
	report := MergeReport{Strict: policy.Strict}

	claims := make([]claim, 0, len(existing.Entities)+len(candidates))
	for _, e := range existing.Entities {
		claims = append(claims, claim{entity: e, seq: len(claims)})
	}
	for _, e := range candidates {
		claims = append(claims, claim{entity: e, seq: len(claims)})
	}

	sort.Slice(claims, func(i, j int) bool {
		a, b := claims[i].entity, claims[j].entity
		if ra, rb := a.Provenance.rank(), b.Provenance.rank(); ra != rb {
			return ra < rb
		}
		if la, lb := a.SpanLength(), b.SpanLength(); la != lb {
			return la > lb
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return claims[i].seq < claims[j].seq
	})

	accepted := make([]Entity, 0, len(claims))
	acceptedByKey := make(map[string]int, len(claims))

	for _, c := range claims {
		e := c.entity

		if idx, dup := acceptedByKey[e.Key()]; dup {
			winner := accepted[idx]
			report.DroppedEntities = append(report.DroppedEntities, DroppedEntity{
				Entity:       e,
				Reason:       DropDuplicate,
				ConflictWith: &winner,
			})
			continue
		}

		if policy.Strict {
			if winner, overlaps := findOverlap(accepted, e); overlaps {
				report.DroppedEntities = append(report.DroppedEntities, DroppedEntity{
					Entity:       e,
					Reason:       DropOverlap,
					ConflictWith: &winner,
				})
				continue
			}
		}

		acceptedByKey[e.Key()] = len(accepted)
		accepted = append(accepted, e)
	}

	SortEntities(accepted)

	// ── Relation survival ────────────────────────────────────────────────────
	survivors := make(map[common.ID]bool, len(accepted))
	for _, e := range accepted {
		if e.ID != "" {
			survivors[e.ID] = true
		}
	}

	relations := make([]Relation, 0, len(existing.Relations))
	for _, r := range existing.Relations {
		if survivors[r.HeadID] && survivors[r.TailID] {
			relations = append(relations, r)
			continue
		}
		report.DroppedRelations = append(report.DroppedRelations, DroppedRelation{
			Relation: r,
			Reason:   DropEndpointLost,
		})
	}

	merged := AnnotationSet{Entities: accepted, Relations: relations}
	report.AcceptedEntities = len(merged.Entities)
	report.AcceptedRelations = len(merged.Relations)
	return merged, report
}

// findOverlap returns the first accepted entity whose span intersects e.
func findOverlap(accepted []Entity, e Entity) (Entity, bool) {
	for _, a := range accepted {
		if e.Overlaps(a) {
			return a, true
		}
	}
	return Entity{}, false
}
