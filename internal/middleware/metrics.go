package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-adp-assessments/internal/service"
)

// Route groups reported as the surface label.
const (
	SurfacePage  = "page"
	SurfaceAPI   = "api"
	SurfaceMedia = "media"
	SurfaceOps   = "ops"
)

// unmatchedPath labels requests no route matched, keeping path cardinality bounded.
const unmatchedPath = "unmatched"

// Metrics observes every request labelled by route group and route template.
func Metrics(metricsSvc *service.MetricsService, apiPrefix string) gin.HandlerFunc {
	apiPrefix = strings.TrimRight(apiPrefix, "/")
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = unmatchedPath
		}
		metricsSvc.ObserveHTTPRequest(Surface(c.Request.URL.Path, apiPrefix), c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

// Surface classifies a request path into a route group.
func Surface(path, apiPrefix string) string {
	switch {
	case apiPrefix != "" && (path == apiPrefix || strings.HasPrefix(path, apiPrefix+"/")):
		return SurfaceAPI
	case strings.HasPrefix(path, "/teacher/"), path == "/teacher", path == LoginPath, path == "/logout", path == "/":
		return SurfacePage
	case strings.HasPrefix(path, "/media/"):
		return SurfaceMedia
	default:
		return SurfaceOps
	}
}
