package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/spanmark/spanmark/internal/application/annotate"
)

// AnnotationHandler serves annotation mutations on a document: automatic
// annotation runs, manual entity and relation edits, and undo.
type AnnotationHandler struct {
	svc annotate.Service
}

// NewAnnotationHandler creates an AnnotationHandler backed by the
// annotation service.
func NewAnnotationHandler(svc annotate.Service) *AnnotationHandler {
	return &AnnotationHandler{svc: svc}
}

// AutoAnnotate handles POST /api/v1/documents/:documentID/annotate.  With
// {"preview": true} in the body the merge report is returned without
// persisting anything.
func (h *AnnotationHandler) AutoAnnotate(c *gin.Context) {
	id, ok := pathID(c, "documentID")
	if !ok {
		return
	}

	var body struct {
		Preview bool `json:"preview"`
	}
	// The body is optional; an empty request runs a committing pass.
	if c.Request.ContentLength > 0 {
		if !bindJSON(c, &body) {
			return
		}
	}

	outcome, err := h.svc.AutoAnnotate(c.Request.Context(), &annotate.AutoAnnotateInput{
		DocumentID: id,
		Preview:    body.Preview,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, outcome)
}

// AddEntity handles POST /api/v1/documents/:documentID/entities.
func (h *AnnotationHandler) AddEntity(c *gin.Context) {
	id, ok := pathID(c, "documentID")
	if !ok {
		return
	}

	var input annotate.AddEntityInput
	if !bindJSON(c, &input) {
		return
	}
	input.DocumentID = id

	entity, err := h.svc.AddEntity(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, entity)
}

// UpdateEntity handles PUT /api/v1/documents/:documentID/entities/:entityID.
func (h *AnnotationHandler) UpdateEntity(c *gin.Context) {
	docID, ok := pathID(c, "documentID")
	if !ok {
		return
	}
	entityID, ok := pathID(c, "entityID")
	if !ok {
		return
	}

	var input annotate.UpdateEntityInput
	if !bindJSON(c, &input) {
		return
	}
	input.DocumentID = docID
	input.EntityID = entityID

	entity, err := h.svc.UpdateEntity(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, entity)
}

// DeleteEntity handles DELETE /api/v1/documents/:documentID/entities/:entityID.
// The reply reports how many relations were cascaded away with the entity.
func (h *AnnotationHandler) DeleteEntity(c *gin.Context) {
	docID, ok := pathID(c, "documentID")
	if !ok {
		return
	}
	entityID, ok := pathID(c, "entityID")
	if !ok {
		return
	}

	result, err := h.svc.DeleteEntity(c.Request.Context(), docID, entityID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}

// AddRelation handles POST /api/v1/documents/:documentID/relations.
func (h *AnnotationHandler) AddRelation(c *gin.Context) {
	id, ok := pathID(c, "documentID")
	if !ok {
		return
	}

	var input annotate.AddRelationInput
	if !bindJSON(c, &input) {
		return
	}
	input.DocumentID = id

	relation, err := h.svc.AddRelation(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, relation)
}

// DeleteRelation handles DELETE /api/v1/documents/:documentID/relations/:relationID.
func (h *AnnotationHandler) DeleteRelation(c *gin.Context) {
	docID, ok := pathID(c, "documentID")
	if !ok {
		return
	}
	relationID, ok := pathID(c, "relationID")
	if !ok {
		return
	}

	if err := h.svc.DeleteRelation(c.Request.Context(), docID, relationID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Undo handles POST /api/v1/documents/:documentID/undo and returns the
// restored document detail.
func (h *AnnotationHandler) Undo(c *gin.Context) {
	id, ok := pathID(c, "documentID")
	if !ok {
		return
	}

	doc, err := h.svc.Undo(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, doc)
}
