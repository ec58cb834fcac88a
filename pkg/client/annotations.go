package client

import (
	"context"
	"net/url"
)

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

// MergeOutcome reports an automatic annotation pass. When Preview is true
// nothing was persisted and the counts describe what a commit would produce.
type MergeOutcome struct {
	DocumentID string      `json:"document_id"`
	Preview    bool        `json:"preview"`
	Entities   int         `json:"entities"`
	Relations  int         `json:"relations"`
	Report     MergeReport `json:"report"`
}

// MergeReport describes what a merge pass accepted and dropped.
type MergeReport struct {
	Strict            bool              `json:"strict"`
	AcceptedEntities  int               `json:"accepted_entities"`
	AcceptedRelations int               `json:"accepted_relations"`
	DroppedEntities   []DroppedEntity   `json:"dropped_entities,omitempty"`
	DroppedRelations  []DroppedRelation `json:"dropped_relations,omitempty"`
}

// DroppedEntity is a candidate the merge policy rejected.
type DroppedEntity struct {
	Entity       Entity  `json:"entity"`
	Reason       string  `json:"reason"`
	ConflictWith *Entity `json:"conflict_with,omitempty"`
}

// DroppedRelation is a relation candidate the merge policy rejected.
type DroppedRelation struct {
	Relation Relation `json:"relation"`
	Reason   string   `json:"reason"`
}

// EntityRemoval reports an entity deletion and its relation cascade.
type EntityRemoval struct {
	EntityID         string `json:"entity_id"`
	RemovedRelations int    `json:"removed_relations"`
}

// AddEntityRequest places a manual entity span on a document.
type AddEntityRequest struct {
	Type  string `json:"type"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// UpdateEntityRequest rewrites an entity's type and span.
type UpdateEntityRequest struct {
	Type  string `json:"type"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// AddRelationRequest links two existing entities.
type AddRelationRequest struct {
	Type   string `json:"type"`
	HeadID string `json:"head_id"`
	TailID string `json:"tail_id"`
}

// ---------------------------------------------------------------------------
// Sub-client
// ---------------------------------------------------------------------------

// AnnotationsClient operates on one document's annotation set.
type AnnotationsClient struct {
	client *Client
}

// AutoAnnotate runs the gazetteer matcher over a document and merges the
// candidates into the stored set. With preview set, the outcome is computed
// without persisting.
// POST /api/v1/documents/{documentID}/annotate
func (ac *AnnotationsClient) AutoAnnotate(ctx context.Context, documentID string, preview bool) (*MergeOutcome, error) {
	if documentID == "" {
		return nil, invalidArg("documentID is required")
	}
	body := struct {
		Preview bool `json:"preview"`
	}{Preview: preview}

	var outcome MergeOutcome
	if err := ac.client.post(ctx, "/api/v1/documents/"+url.PathEscape(documentID)+"/annotate", body, &outcome); err != nil {
		return nil, err
	}
	return &outcome, nil
}

// AddEntity records a manual entity annotation.
// POST /api/v1/documents/{documentID}/entities
func (ac *AnnotationsClient) AddEntity(ctx context.Context, documentID string, req *AddEntityRequest) (*Entity, error) {
	if documentID == "" {
		return nil, invalidArg("documentID is required")
	}
	if req == nil || req.Type == "" {
		return nil, invalidArg("entity type is required")
	}
	var entity Entity
	if err := ac.client.post(ctx, "/api/v1/documents/"+url.PathEscape(documentID)+"/entities", req, &entity); err != nil {
		return nil, err
	}
	return &entity, nil
}

// UpdateEntity rewrites an existing entity's type and span.
// PUT /api/v1/documents/{documentID}/entities/{entityID}
func (ac *AnnotationsClient) UpdateEntity(ctx context.Context, documentID, entityID string, req *UpdateEntityRequest) (*Entity, error) {
	if documentID == "" || entityID == "" {
		return nil, invalidArg("documentID and entityID are required")
	}
	if req == nil || req.Type == "" {
		return nil, invalidArg("entity type is required")
	}
	path := "/api/v1/documents/" + url.PathEscape(documentID) + "/entities/" + url.PathEscape(entityID)
	var entity Entity
	if err := ac.client.put(ctx, path, req, &entity); err != nil {
		return nil, err
	}
	return &entity, nil
}

// DeleteEntity removes an entity and every relation touching it. The reply
// reports the cascade size.
// DELETE /api/v1/documents/{documentID}/entities/{entityID}
func (ac *AnnotationsClient) DeleteEntity(ctx context.Context, documentID, entityID string) (*EntityRemoval, error) {
	if documentID == "" || entityID == "" {
		return nil, invalidArg("documentID and entityID are required")
	}
	path := "/api/v1/documents/" + url.PathEscape(documentID) + "/entities/" + url.PathEscape(entityID)
	var removal EntityRemoval
	if err := ac.client.delete(ctx, path, &removal); err != nil {
		return nil, err
	}
	return &removal, nil
}

// AddRelation links two existing entities of the document.
// POST /api/v1/documents/{documentID}/relations
func (ac *AnnotationsClient) AddRelation(ctx context.Context, documentID string, req *AddRelationRequest) (*Relation, error) {
	if documentID == "" {
		return nil, invalidArg("documentID is required")
	}
	if req == nil || req.Type == "" || req.HeadID == "" || req.TailID == "" {
		return nil, invalidArg("relation type, head_id, and tail_id are required")
	}
	var relation Relation
	if err := ac.client.post(ctx, "/api/v1/documents/"+url.PathEscape(documentID)+"/relations", req, &relation); err != nil {
		return nil, err
	}
	return &relation, nil
}

// DeleteRelation removes a relation, leaving its endpoints in place.
// DELETE /api/v1/documents/{documentID}/relations/{relationID}
func (ac *AnnotationsClient) DeleteRelation(ctx context.Context, documentID, relationID string) error {
	if documentID == "" || relationID == "" {
		return invalidArg("documentID and relationID are required")
	}
	path := "/api/v1/documents/" + url.PathEscape(documentID) + "/relations/" + url.PathEscape(relationID)
	return ac.client.delete(ctx, path, nil)
}

// Undo restores the annotation set to its state before the last mutation and
// returns the restored document.
// POST /api/v1/documents/{documentID}/undo
func (ac *AnnotationsClient) Undo(ctx context.Context, documentID string) (*DocumentDetail, error) {
	if documentID == "" {
		return nil, invalidArg("documentID is required")
	}
	var detail DocumentDetail
	if err := ac.client.post(ctx, "/api/v1/documents/"+url.PathEscape(documentID)+"/undo", nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}
