// Package handlers implements the REST handlers behind /api/v1.  Handlers
// parse transport concerns, delegate to the application services, and wrap
// every reply in the standard response envelope.
package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/spanmark/spanmark/internal/interfaces/http/middleware"
	"github.com/spanmark/spanmark/pkg/errors"
	"github.com/spanmark/spanmark/pkg/types/common"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// respond writes a success envelope with the request ID attached.
func respond[T any](c *gin.Context, status int, data T) {
	resp := common.NewSuccessResponse(data)
	resp.RequestID = middleware.RequestIDFrom(c)
	c.JSON(status, resp)
}

// respondPage writes a paginated success envelope.
func respondPage[T any](c *gin.Context, data T, p common.Pagination) {
	resp := common.NewPaginatedResponse(data, p)
	resp.RequestID = middleware.RequestIDFrom(c)
	c.JSON(http.StatusOK, resp)
}

// respondError maps an error onto the envelope.  Errors that are not
// AppErrors are masked as 500 so internals never reach clients.
func respondError(c *gin.Context, err error) {
	appErr, ok := errors.AsAppError(err)
	if !ok {
		appErr = errors.New(errors.ErrCodeInternal, errors.DefaultMessageForCode(errors.ErrCodeInternal))
	}

	resp := common.NewErrorResponse(appErr.Code.String(), appErr.Message)
	resp.RequestID = middleware.RequestIDFrom(c)
	c.AbortWithStatusJSON(errors.HTTPStatusForCode(appErr.Code), resp)
}

// bindJSON decodes the request body into dst, reporting malformed JSON as
// a bad request.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, errors.Wrap(err, errors.ErrCodeBadRequest, "malformed request body"))
		return false
	}
	return true
}

// pathID returns the named path parameter, rejecting blanks.
func pathID(c *gin.Context, name string) (string, bool) {
	id := strings.TrimSpace(c.Param(name))
	if id == "" {
		respondError(c, errors.Newf(errors.ErrCodeBadRequest, "missing %s path parameter", name))
		return "", false
	}
	return id, true
}

// parsePagination reads the page and page_size query parameters with
// defaults and caps.
func parsePagination(c *gin.Context) (page, pageSize int) {
	page = queryInt(c, "page", 1)
	if page < 1 {
		page = 1
	}
	pageSize = queryInt(c, "page_size", defaultPageSize)
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
