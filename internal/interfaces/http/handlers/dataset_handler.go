package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/spanmark/spanmark/internal/application/dataset"
)

// DatasetHandler serves dataset exports, file splits, raw builds, imports,
// and artifact publication.
type DatasetHandler struct {
	svc dataset.Service
}

// NewDatasetHandler creates a DatasetHandler backed by the dataset service.
func NewDatasetHandler(svc dataset.Service) *DatasetHandler {
	return &DatasetHandler{svc: svc}
}

// Export handles POST /api/v1/datasets/export.
func (h *DatasetHandler) Export(c *gin.Context) {
	var input dataset.ExportInput
	if !bindJSON(c, &input) {
		return
	}

	result, err := h.svc.Export(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, result)
}

// Split handles POST /api/v1/datasets/split.
func (h *DatasetHandler) Split(c *gin.Context) {
	var input dataset.SplitFileInput
	if !bindJSON(c, &input) {
		return
	}

	result, err := h.svc.SplitFile(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}

// BuildRaw handles POST /api/v1/datasets/build-raw.
func (h *DatasetHandler) BuildRaw(c *gin.Context) {
	var input dataset.BuildRawInput
	if !bindJSON(c, &input) {
		return
	}

	result, err := h.svc.BuildRaw(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}

// Import handles POST /api/v1/datasets/import.
func (h *DatasetHandler) Import(c *gin.Context) {
	var input dataset.ImportInput
	if !bindJSON(c, &input) {
		return
	}

	result, err := h.svc.Import(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, result)
}

// Publish handles POST /api/v1/datasets/publish.
func (h *DatasetHandler) Publish(c *gin.Context) {
	var input dataset.PublishInput
	if !bindJSON(c, &input) {
		return
	}

	result, err := h.svc.Publish(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}
