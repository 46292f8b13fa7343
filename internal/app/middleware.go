package app

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Meesho/BharatMLStack/proxy-pool/pkg/metric"
)

func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metric.ObserveAPIRequest(
			path,
			c.Request.Method,
			c.Writer.Status(),
			time.Since(start),
		)
	}
}
