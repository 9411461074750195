package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"alert-engine/internal/logging"
)

// RequestLoggingMiddleware logs one line per request with the caller address,
// response status and latency.
func RequestLoggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()
		logger.Infof("%s %s from %s: %d in %v",
			c.Request.Method, path, c.ClientIP(), c.Writer.Status(), time.Since(start))
	}
}
