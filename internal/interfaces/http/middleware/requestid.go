// Package middleware provides the HTTP middleware chain: request
// identification, structured request logging, panic recovery, CORS, and
// rate limiting.  Each middleware is a plain gin.HandlerFunc built from an
// explicit config struct so the router assembles the chain without hidden
// defaults.
package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/spanmark/spanmark/pkg/types/common"
)

// HeaderRequestID is the header the request ID is read from and echoed to.
const HeaderRequestID = "X-Request-ID"

// RequestID assigns every request an ID.  An inbound X-Request-ID is
// propagated; otherwise a fresh UUID is generated.  The ID lands on the gin
// context, the request context, and the response header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}

		c.Set(string(common.ContextKeyRequestID), id)
		ctx := context.WithValue(c.Request.Context(), common.ContextKeyRequestID, id)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set(HeaderRequestID, id)

		c.Next()
	}
}

// RequestIDFrom returns the ID assigned by RequestID, or "" when the
// middleware did not run.
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(string(common.ContextKeyRequestID))
}
