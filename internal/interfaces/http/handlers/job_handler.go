package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/spanmark/spanmark/internal/application/training"
	"github.com/spanmark/spanmark/pkg/types/common"
)

// JobHandler serves training and prediction job submission, inspection, and
// cancellation.
type JobHandler struct {
	svc training.Service
}

// NewJobHandler creates a JobHandler backed by the training service.
func NewJobHandler(svc training.Service) *JobHandler {
	return &JobHandler{svc: svc}
}

// Submit handles POST /api/v1/jobs.  The job runs asynchronously; the reply
// is the pending job record.
func (h *JobHandler) Submit(c *gin.Context) {
	var input training.SubmitInput
	if !bindJSON(c, &input) {
		return
	}

	job, err := h.svc.Submit(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusAccepted, job)
}

// Get handles GET /api/v1/jobs/:jobID.
func (h *JobHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "jobID")
	if !ok {
		return
	}

	job, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, job)
}

// List handles GET /api/v1/jobs.  Repeating the state parameter filters by
// job state.
func (h *JobHandler) List(c *gin.Context) {
	page, pageSize := parsePagination(c)

	list, err := h.svc.List(c.Request.Context(), &training.ListInput{
		States:   c.QueryArray("state"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondPage(c, list.Jobs, common.Pagination{
		Page:     list.Page,
		PageSize: list.PageSize,
		Total:    list.Total,
	})
}

// Cancel handles POST /api/v1/jobs/:jobID/cancel and returns the job as it
// stood when the cancellation was accepted.
func (h *JobHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c, "jobID")
	if !ok {
		return
	}

	job, err := h.svc.Cancel(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, job)
}
