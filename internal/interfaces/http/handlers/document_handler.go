package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/spanmark/spanmark/internal/application/annotate"
	"github.com/spanmark/spanmark/pkg/types/common"
)

// DocumentHandler serves document import, retrieval, and removal.
type DocumentHandler struct {
	svc annotate.Service
}

// NewDocumentHandler creates a DocumentHandler backed by the annotation
// service.
func NewDocumentHandler(svc annotate.Service) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

// Import handles POST /api/v1/documents.
func (h *DocumentHandler) Import(c *gin.Context) {
	var input annotate.ImportDocumentInput
	if !bindJSON(c, &input) {
		return
	}

	doc, err := h.svc.ImportDocument(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, doc)
}

// Get handles GET /api/v1/documents/:documentID.  The reply carries the
// full text, the annotation set, and the undo depth.
func (h *DocumentHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "documentID")
	if !ok {
		return
	}

	doc, err := h.svc.GetDocument(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, doc)
}

// List handles GET /api/v1/documents.
func (h *DocumentHandler) List(c *gin.Context) {
	page, pageSize := parsePagination(c)

	list, err := h.svc.ListDocuments(c.Request.Context(), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	respondPage(c, list.Documents, common.Pagination{
		Page:     list.Page,
		PageSize: list.PageSize,
		Total:    list.Total,
	})
}

// Chunks handles GET /api/v1/documents/:documentID/chunks.
func (h *DocumentHandler) Chunks(c *gin.Context) {
	id, ok := pathID(c, "documentID")
	if !ok {
		return
	}

	chunks, err := h.svc.ListChunks(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, chunks)
}

// Delete handles DELETE /api/v1/documents/:documentID.
func (h *DocumentHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "documentID")
	if !ok {
		return
	}

	if err := h.svc.DeleteDocument(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
