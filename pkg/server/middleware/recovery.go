package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/milan604/feedclient/pkg/logger"
	"github.com/milan604/feedclient/pkg/response"
)

// RecoveryMiddleware turns a handler panic into a logged 500.
func RecoveryMiddleware(l logger.LogManager) gin.HandlerFunc {
	if l == nil {
		l = logger.NewNop()
	}
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				l.With("log_type", "panic", "path", c.Request.URL.Path).
					ErrorFCtx(c.Request.Context(), "panic recovered: %v\n%s", r, debug.Stack())
				response.Detail(c, http.StatusInternalServerError, "A server error occurred.")
			}
		}()
		c.Next()
	}
}
