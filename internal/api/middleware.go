package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"poll-service/pkg/zap"
)

// RequestLogger logs every REST request with latency and status.
func RequestLogger(log zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Infof("%s %s -> %d (%s)",
			c.Request.Method,
			c.Request.URL.Path,
			c.Writer.Status(),
			time.Since(start),
		)
	}
}
