package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/milan604/feedclient/pkg/logger"
)

const loggerKey = "feedclient_logger"

// AppLoggerMiddleware injects a request-scoped logger into gin.Context.
func AppLoggerMiddleware(l logger.LogManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLogger := l.With("log_type", "application", "route", c.FullPath())
		c.Set(loggerKey, reqLogger)
		c.Next()
	}
}

// GetLogger retrieves the request-scoped logger, or a no-op logger outside the middleware chain.
func GetLogger(c *gin.Context) logger.LogManager {
	if val, ok := c.Get(loggerKey); ok {
		if lm, yes := val.(logger.LogManager); yes {
			return lm
		}
	}
	return logger.NewNop()
}

// AccessLoggerMiddleware logs each request after completion.
func AccessLoggerMiddleware(l logger.LogManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []any{
			"log_type", "access",
			"ip", c.ClientIP(),
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"size", c.Writer.Size(),
		}
		for _, p := range c.Params {
			fields = append(fields, "param_"+p.Key, p.Value)
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		entry := l.With(fields...)
		ctx := c.Request.Context()
		switch {
		case status >= 500:
			entry.ErrorFCtx(ctx, "%s %s", c.Request.Method, c.Request.URL.Path)
		case status >= 400:
			entry.WarnFCtx(ctx, "%s %s", c.Request.Method, c.Request.URL.Path)
		default:
			entry.InfoFCtx(ctx, "%s %s", c.Request.Method, c.Request.URL.Path)
		}
	}
}
