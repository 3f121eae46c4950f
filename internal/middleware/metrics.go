package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/classpulse/classpulse-api/internal/service"
)

// Metrics records a latency observation for every request. The route
// template is used as the label so /students/:id stays one series instead
// of one per student.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			// Unmatched paths (404s) have no template.
			route = c.Request.URL.Path
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
