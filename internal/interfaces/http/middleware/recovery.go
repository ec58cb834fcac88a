package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/logging"
	"github.com/spanmark/spanmark/pkg/errors"
	"github.com/spanmark/spanmark/pkg/types/common"
)

// Recovery returns middleware that converts handler panics into 500
// responses.  The panic value and stack are logged; the client sees only
// the generic internal-error envelope.
func Recovery(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("HTTP handler panicked",
					logging.Any("panic", rec),
					logging.String("method", c.Request.Method),
					logging.String("path", c.Request.URL.Path),
					logging.String("request_id", RequestIDFrom(c)),
					logging.String("stack", string(debug.Stack())),
				)

				resp := common.NewErrorResponse(
					errors.ErrCodeInternal.String(),
					errors.DefaultMessageForCode(errors.ErrCodeInternal),
				)
				resp.RequestID = RequestIDFrom(c)
				c.AbortWithStatusJSON(http.StatusInternalServerError, resp)
			}
		}()

		c.Next()
	}
}
