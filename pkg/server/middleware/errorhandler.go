package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/milan604/feedclient/pkg/response"
)

// ErrorHandlerMiddleware writes the last error a handler attached with c.Error, unless the
// handler already wrote a response.
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		last := c.Errors.Last()
		if last == nil || last.Err == nil {
			return
		}
		response.HandleError(c, last.Err)
	}
}
