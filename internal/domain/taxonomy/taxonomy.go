// Package taxonomy implements the closed set of entity and relation type
// labels a session annotates against. A Taxonomy is loaded once from its JSON
// file and is read-only thereafter; entities and relations validate their type
// against it at creation time.
package taxonomy

import (
	"fmt"

	"github.com/spanmark/spanmark/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Type definitions
// ─────────────────────────────────────────────────────────────────────────────

// EntityType describes one entity label: the canonical type name used in
// annotations, a short code for dense display, and an optional verbose label.
type EntityType struct {
	Type    string `json:"type"`
	Short   string `json:"short"`
	Verbose string `json:"verbose,omitempty"`
}

// RelationType describes one relation label. Symmetric marks relations whose
// direction carries no meaning (head and tail are interchangeable).
type RelationType struct {
	Type      string `json:"type"`
	Short     string `json:"short"`
	Verbose   string `json:"verbose,omitempty"`
	Symmetric bool   `json:"symmetric,omitempty"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Taxonomy
// ─────────────────────────────────────────────────────────────────────────────

// Taxonomy is the immutable label inventory for a session. Lookup is by
// canonical type name; the original declaration order is preserved for
// display and serialization.
type Taxonomy struct {
	entities  []EntityType
	relations []RelationType

	entityByName   map[string]EntityType
	relationByName map[string]RelationType
}

// New builds a Taxonomy from entity and relation type definitions, enforcing:
//   - every definition must carry a non-empty type name.
//   - type names must be unique within their kind (entity names and relation
//     names live in separate namespaces).
//
// Short codes default to the type name when absent.
func New(entities []EntityType, relations []RelationType) (*Taxonomy, error) {
	t := &Taxonomy{
		entities:       make([]EntityType, 0, len(entities)),
		relations:      make([]RelationType, 0, len(relations)),
		entityByName:   make(map[string]EntityType, len(entities)),
		relationByName: make(map[string]RelationType, len(relations)),
	}

	for i, et := range entities {
		if et.Type == "" {
			return nil, errors.New(errors.ErrCodeTaxonomyMalformed,
				fmt.Sprintf("entity type %d: missing type name", i))
		}
		if _, dup := t.entityByName[et.Type]; dup {
			return nil, errors.New(errors.ErrCodeTaxonomyDuplicateType,
				fmt.Sprintf("entity type %q declared more than once", et.Type))
		}
		if et.Short == "" {
			et.Short = et.Type
		}
		t.entities = append(t.entities, et)
		t.entityByName[et.Type] = et
	}

	for i, rt := range relations {
		if rt.Type == "" {
			return nil, errors.New(errors.ErrCodeTaxonomyMalformed,
				fmt.Sprintf("relation type %d: missing type name", i))
		}
		if _, dup := t.relationByName[rt.Type]; dup {
			return nil, errors.New(errors.ErrCodeTaxonomyDuplicateType,
				fmt.Sprintf("relation type %q declared more than once", rt.Type))
		}
		if rt.Short == "" {
			rt.Short = rt.Type
		}
		t.relations = append(t.relations, rt)
		t.relationByName[rt.Type] = rt
	}

	return t, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Lookup
// ─────────────────────────────────────────────────────────────────────────────

// EntityType returns the definition for the named entity type.
func (t *Taxonomy) EntityType(name string) (EntityType, bool) {
	et, ok := t.entityByName[name]
	return et, ok
}

// RelationType returns the definition for the named relation type.
func (t *Taxonomy) RelationType(name string) (RelationType, bool) {
	rt, ok := t.relationByName[name]
	return rt, ok
}

// HasEntityType reports whether the named entity type is declared.
func (t *Taxonomy) HasEntityType(name string) bool {
	_, ok := t.entityByName[name]
	return ok
}

// HasRelationType reports whether the named relation type is declared.
func (t *Taxonomy) HasRelationType(name string) bool {
	_, ok := t.relationByName[name]
	return ok
}

// IsSymmetric reports whether the named relation type is symmetric. Unknown
// types are not symmetric.
func (t *Taxonomy) IsSymmetric(name string) bool {
	rt, ok := t.relationByName[name]
	return ok && rt.Symmetric
}

// EntityTypes returns the entity definitions in declaration order.
func (t *Taxonomy) EntityTypes() []EntityType {
	return append([]EntityType(nil), t.entities...)
}

// RelationTypes returns the relation definitions in declaration order.
func (t *Taxonomy) RelationTypes() []RelationType {
	return append([]RelationType(nil), t.relations...)
}

// EntityTypeCount returns the number of declared entity types.
func (t *Taxonomy) EntityTypeCount() int { return len(t.entities) }

// RelationTypeCount returns the number of declared relation types.
func (t *Taxonomy) RelationTypeCount() int { return len(t.relations) }
