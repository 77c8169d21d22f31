package web

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yuechangmingzou/trendguard/internal/metrics"
)

// metricsMiddleware 按路由模板记录请求数和耗时，未匹配路由归为"unmatched"
func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(path, c.Writer.Status(), time.Since(start))
	}
}
