package annotation

import (
	"fmt"
	"sync"
	"time"

	"github.com/spanmark/spanmark/internal/domain/document"
	"github.com/spanmark/spanmark/internal/domain/taxonomy"
	"github.com/spanmark/spanmark/pkg/errors"
	"github.com/spanmark/spanmark/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// Store
// ─────────────────────────────────────────────────────────────────────────────

// Store owns the annotations of exactly one document and guards every
// mutation behind validate-then-commit: an operation that would violate a
// taxonomy, bounds, duplicate, or overlap rule fails without changing the
// store, and no reader ever observes a partial mutation.
//
// The store assumes at most one mutator at a time; the internal lock exists
// so concurrent readers stay consistent, not to serialize writers.
type Store struct {
	mu     sync.RWMutex
	doc    *document.Document
	tax    *taxonomy.Taxonomy
	strict bool
	set    AnnotationSet
}

// StoreOption configures a Store at construction time.
type StoreOption func(*Store)

// WithStrictMode toggles the no-overlapping policy: when enabled, no two
// entity spans in the store may intersect, matching the training framework's
// strict mode. Default is enabled.
func WithStrictMode(strict bool) StoreOption {
	return func(s *Store) { s.strict = strict }
}

// WithInitialSet seeds the store with an existing annotation set. The seed is
// validated like any other mutation; construction fails if it violates the
// store's rules.
func WithInitialSet(set AnnotationSet) StoreOption {
	return func(s *Store) { s.set = set.Clone() }
}

// NewStore creates an annotation store for the given document, validating
// types against the given taxonomy.
func NewStore(doc *document.Document, tax *taxonomy.Taxonomy, opts ...StoreOption) (*Store, error) {
	if doc == nil {
		return nil, errors.InvalidParam("annotation store requires a document")
	}
	if tax == nil {
		return nil, errors.InvalidParam("annotation store requires a taxonomy")
	}

	s := &Store{
		doc:    doc,
		tax:    tax,
		strict: true,
	}
	for _, opt := range opts {
		opt(s)
	}

	if !s.set.IsEmpty() {
		seed := s.set
		s.set = AnnotationSet{}
		if err := s.Replace(seed); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Document returns the document this store annotates.
func (s *Store) Document() *document.Document { return s.doc }

// Taxonomy returns the taxonomy this store validates against.
func (s *Store) Taxonomy() *taxonomy.Taxonomy { return s.tax }

// Strict reports whether the no-overlapping policy is active.
func (s *Store) Strict() bool { return s.strict }

// Set returns a deep copy of the current annotation set.
func (s *Store) Set() AnnotationSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set.Clone()
}

// ─────────────────────────────────────────────────────────────────────────────
// Entity CRUD
// ─────────────────────────────────────────────────────────────────────────────

// AddEntity validates and inserts a new entity. The input's ID and DocumentID
// are ignored; the store assigns both on commit and returns the stored value.
func (s *Store) AddEntity(e Entity) (Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateEntityLocked(e, ""); err != nil {
		return Entity{}, err
	}

	e.ID = common.NewID()
	e.DocumentID = s.doc.ID
	s.set.Entities = append(s.set.Entities, e)
	return e, nil
}

// UpdateEntity replaces the span, type, provenance, and confidence of the
// entity with the given ID, revalidating against every other annotation.
// Relations referencing the entity keep their endpoints; the ID is stable.
func (s *Store) UpdateEntity(id common.ID, e Entity) (Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.entityIndexLocked(id)
	if idx < 0 {
		return Entity{}, errors.Newf(errors.ErrCodeEntityNotFound, "entity %s not found", id)
	}

	if err := s.validateEntityLocked(e, id); err != nil {
		return Entity{}, err
	}

	e.ID = id
	e.DocumentID = s.doc.ID
	s.set.Entities[idx] = e
	return e, nil
}

// DeleteEntity removes the entity and cascades to every relation referencing
// it. It returns the number of relations removed by the cascade.
func (s *Store) DeleteEntity(id common.ID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.entityIndexLocked(id)
	if idx < 0 {
		return 0, errors.Newf(errors.ErrCodeEntityNotFound, "entity %s not found", id)
	}

	s.set.Entities = append(s.set.Entities[:idx], s.set.Entities[idx+1:]...)

	kept := s.set.Relations[:0]
	cascaded := 0
	for _, r := range s.set.Relations {
		if r.References(id) {
			cascaded++
			continue
		}
		kept = append(kept, r)
	}
	s.set.Relations = kept
	return cascaded, nil
}

// Entity returns the entity with the given ID.
func (s *Store) Entity(id common.ID) (Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if idx := s.entityIndexLocked(id); idx >= 0 {
		return s.set.Entities[idx], nil
	}
	return Entity{}, errors.Newf(errors.ErrCodeEntityNotFound, "entity %s not found", id)
}

// Entities returns a copy of all entities in insertion order.
func (s *Store) Entities() []Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entity(nil), s.set.Entities...)
}

// EntityCount returns the number of entities in the store.
func (s *Store) EntityCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.set.Entities)
}

// ─────────────────────────────────────────────────────────────────────────────
// Relation CRUD
// ─────────────────────────────────────────────────────────────────────────────

// AddRelation validates and inserts a new relation between two live entities.
// The input's ID and DocumentID are ignored; the store assigns both.
func (s *Store) AddRelation(r Relation) (Relation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateRelationLocked(r, ""); err != nil {
		return Relation{}, err
	}

	r.ID = common.NewID()
	r.DocumentID = s.doc.ID
	s.set.Relations = append(s.set.Relations, r)
	return r, nil
}

// DeleteRelation removes the relation with the given ID.
func (s *Store) DeleteRelation(id common.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range s.set.Relations {
		if r.ID == id {
			s.set.Relations = append(s.set.Relations[:i], s.set.Relations[i+1:]...)
			return nil
		}
	}
	return errors.Newf(errors.ErrCodeRelationNotFound, "relation %s not found", id)
}

// Relation returns the relation with the given ID.
func (s *Store) Relation(id common.ID) (Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.set.Relations {
		if r.ID == id {
			return r, nil
		}
	}
	return Relation{}, errors.Newf(errors.ErrCodeRelationNotFound, "relation %s not found", id)
}

// Relations returns a copy of all relations in insertion order.
func (s *Store) Relations() []Relation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Relation(nil), s.set.Relations...)
}

// RelationCount returns the number of relations in the store.
func (s *Store) RelationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.set.Relations)
}

// ─────────────────────────────────────────────────────────────────────────────
// Snapshot / restore / replace
// ─────────────────────────────────────────────────────────────────────────────

// Snapshot is a point-in-time, deep copy of a store's annotation set, bound
// to the document it was taken from.
type Snapshot struct {
	DocumentID common.ID     `json:"document_id"`
	TakenAt    time.Time     `json:"taken_at"`
	Set        AnnotationSet `json:"set"`
}

// Snapshot captures the current annotation set for later rollback.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		DocumentID: s.doc.ID,
		TakenAt:    time.Now().UTC(),
		Set:        s.set.Clone(),
	}
}

// Restore rolls the store back to a snapshot previously taken from the same
// document. Snapshots taken under the store's own rules need no revalidation.
func (s *Store) Restore(snap Snapshot) error {
	if snap.DocumentID != s.doc.ID {
		return errors.Newf(errors.ErrCodeDocumentMismatch,
			"snapshot belongs to document %s, store holds %s", snap.DocumentID, s.doc.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = snap.Set.Clone()
	return nil
}

// Replace atomically installs a whole annotation set, validating every entity
// and relation up front. On any violation the store is left unchanged. The
// store assigns IDs to entities and relations that arrive without one, so a
// merged set whose accepted candidates carry zero IDs commits cleanly.
func (s *Store) Replace(next AnnotationSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next = next.Clone()

	// ── Validate entities ────────────────────────────────────────────────────
	seenIDs := make(map[common.ID]bool, len(next.Entities))
	seenKeys := make(map[string]bool, len(next.Entities))
	for i := range next.Entities {
		e := next.Entities[i]
		if err := s.checkEntityShape(e); err != nil {
			return err
		}
		if e.ID != "" && seenIDs[e.ID] {
			return errors.Newf(errors.ErrCodeDuplicateEntity,
				"entity ID %s appears more than once", e.ID)
		}
		if seenKeys[e.Key()] {
			return errors.Newf(errors.ErrCodeDuplicateEntity,
				"duplicate entity %s", e.SpanString())
		}
		if s.strict {
			for j := 0; j < i; j++ {
				if e.Overlaps(next.Entities[j]) {
					return errors.Newf(errors.ErrCodeSpanOverlap,
						"entity %s overlaps %s", e.SpanString(), next.Entities[j].SpanString())
				}
			}
		}
		if e.ID != "" {
			seenIDs[e.ID] = true
		}
		seenKeys[e.Key()] = true
	}

	// ── Validate relations ───────────────────────────────────────────────────
	entityIDs := make(map[common.ID]bool, len(next.Entities))
	for _, e := range next.Entities {
		if e.ID != "" {
			entityIDs[e.ID] = true
		}
	}
	seenRelations := make(map[string]bool, len(next.Relations))
	for _, r := range next.Relations {
		if !s.tax.HasRelationType(r.Type) {
			return errors.Newf(errors.ErrCodeUnknownRelationType,
				"relation type %q is not in the taxonomy", r.Type)
		}
		if r.HeadID == r.TailID {
			return errors.Newf(errors.ErrCodeSelfRelation,
				"relation %q references entity %s as both head and tail", r.Type, r.HeadID)
		}
		if !entityIDs[r.HeadID] {
			return errors.Newf(errors.ErrCodeEndpointNotFound,
				"relation %q head references unknown entity %s", r.Type, r.HeadID)
		}
		if !entityIDs[r.TailID] {
			return errors.Newf(errors.ErrCodeEndpointNotFound,
				"relation %q tail references unknown entity %s", r.Type, r.TailID)
		}
		key := r.key(s.tax.IsSymmetric(r.Type))
		if seenRelations[key] {
			return errors.Newf(errors.ErrCodeDuplicateRelation,
				"duplicate relation %q between %s and %s", r.Type, r.HeadID, r.TailID)
		}
		seenRelations[key] = true
	}

	// ── Commit ───────────────────────────────────────────────────────────────
	for i := range next.Entities {
		if next.Entities[i].ID == "" {
			next.Entities[i].ID = common.NewID()
		}
		next.Entities[i].DocumentID = s.doc.ID
	}
	for i := range next.Relations {
		if next.Relations[i].ID == "" {
			next.Relations[i].ID = common.NewID()
		}
		next.Relations[i].DocumentID = s.doc.ID
	}
	s.set = next
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation internals
// ─────────────────────────────────────────────────────────────────────────────

// checkEntityShape validates the document-independent rules for one entity:
// provenance, taxonomy membership, and span bounds.
func (s *Store) checkEntityShape(e Entity) error {
	if !e.Provenance.Valid() {
		return errors.Validation(fmt.Sprintf("unknown provenance %q", e.Provenance))
	}
	if !s.tax.HasEntityType(e.Type) {
		return errors.Newf(errors.ErrCodeUnknownEntityType,
			"entity type %q is not in the taxonomy", e.Type)
	}
	if !s.doc.ValidSpan(e.Start, e.End) {
		return errors.Newf(errors.ErrCodeSpanOutOfBounds,
			"entity span [%d,%d) out of bounds for document of %d tokens",
			e.Start, e.End, s.doc.TokenCount())
	}
	return nil
}

// validateEntityLocked applies all entity rules against the current state,
// ignoring the entity with the exclude ID (used when updating in place).
func (s *Store) validateEntityLocked(e Entity, exclude common.ID) error {
	if err := s.checkEntityShape(e); err != nil {
		return err
	}

	for _, other := range s.set.Entities {
		if exclude != "" && other.ID == exclude {
			continue
		}
		if e.SameSpan(other) && e.Type == other.Type {
			return errors.Newf(errors.ErrCodeDuplicateEntity,
				"entity %s already exists", e.SpanString())
		}
		if s.strict && e.Overlaps(other) {
			return errors.Newf(errors.ErrCodeSpanOverlap,
				"entity %s overlaps existing %s", e.SpanString(), other.SpanString())
		}
	}
	return nil
}

// validateRelationLocked applies all relation rules against the current
// state, ignoring the relation with the exclude ID.
func (s *Store) validateRelationLocked(r Relation, exclude common.ID) error {
	if !s.tax.HasRelationType(r.Type) {
		return errors.Newf(errors.ErrCodeUnknownRelationType,
			"relation type %q is not in the taxonomy", r.Type)
	}
	if r.HeadID == r.TailID {
		return errors.Newf(errors.ErrCodeSelfRelation,
			"relation %q references entity %s as both head and tail", r.Type, r.HeadID)
	}
	if idx := s.entityIndexLocked(r.HeadID); idx < 0 {
		return errors.Newf(errors.ErrCodeEndpointNotFound,
			"relation %q head references unknown entity %s", r.Type, r.HeadID)
	}
	if idx := s.entityIndexLocked(r.TailID); idx < 0 {
		return errors.Newf(errors.ErrCodeEndpointNotFound,
			"relation %q tail references unknown entity %s", r.Type, r.TailID)
	}

	key := r.key(s.tax.IsSymmetric(r.Type))
	for _, other := range s.set.Relations {
		if exclude != "" && other.ID == exclude {
			continue
		}
		if other.key(s.tax.IsSymmetric(other.Type)) == key {
			return errors.Newf(errors.ErrCodeDuplicateRelation,
				"duplicate relation %q between %s and %s", r.Type, r.HeadID, r.TailID)
		}
	}
	return nil
}

// entityIndexLocked returns the slice index of the entity with the given ID,
// or -1 when absent.
func (s *Store) entityIndexLocked(id common.ID) int {
	for i, e := range s.set.Entities {
		if e.ID == id {
			return i
		}
	}
	return -1
}
