package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/spanmark/spanmark/internal/application/search"
)

// SearchHandler serves entity mention search and index rebuilds.
type SearchHandler struct {
	svc search.Service
}

// NewSearchHandler creates a SearchHandler backed by the search service.
func NewSearchHandler(svc search.Service) *SearchHandler {
	return &SearchHandler{svc: svc}
}

// Entities handles GET /api/v1/search/entities.  Query parameters: q for
// the surface text, type for the entity type, document_id to scope to one
// document, plus page and page_size.
func (h *SearchHandler) Entities(c *gin.Context) {
	page, pageSize := parsePagination(c)

	result, err := h.svc.Search(c.Request.Context(), &search.SearchInput{
		Surface:    c.Query("q"),
		Type:       c.Query("type"),
		DocumentID: c.Query("document_id"),
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}

// Reindex handles POST /api/v1/search/reindex.  With {"document_id": ...}
// in the body only that document is rebuilt; otherwise the whole corpus is.
func (h *SearchHandler) Reindex(c *gin.Context) {
	var body struct {
		DocumentID string `json:"document_id"`
	}
	if c.Request.ContentLength > 0 {
		if !bindJSON(c, &body) {
			return
		}
	}

	var (
		result *search.ReindexDTO
		err    error
	)
	if body.DocumentID != "" {
		result, err = h.svc.Reindex(c.Request.Context(), body.DocumentID)
	} else {
		result, err = h.svc.ReindexAll(c.Request.Context())
	}
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}
