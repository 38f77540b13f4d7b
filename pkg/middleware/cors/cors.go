package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	allowedMethods = "GET, POST, OPTIONS"
	allowedHeaders = "Authorization, Content-Type, X-Request-ID"
)

// New returns CORS middleware for the bearer-token API. An empty list keeps the
// API same-origin; "*" opens it to any origin. Credentials are never allowed
// since callers authenticate with a header, not cookies.
func New(allowedOrigins []string) gin.HandlerFunc {
	wildcard := false
	originSet := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		switch origin {
		case "":
		case "*":
			wildcard = true
		default:
			originSet[origin] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		header := c.Writer.Header()
		header.Add("Vary", "Origin")

		origin := c.GetHeader("Origin")
		if origin != "" {
			switch {
			case wildcard:
				header.Set("Access-Control-Allow-Origin", "*")
			case hasOrigin(originSet, origin):
				header.Set("Access-Control-Allow-Origin", origin)
			}
			if header.Get("Access-Control-Allow-Origin") != "" {
				header.Set("Access-Control-Allow-Headers", allowedHeaders)
				header.Set("Access-Control-Allow-Methods", allowedMethods)
				header.Set("Access-Control-Max-Age", "600")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func hasOrigin(originSet map[string]struct{}, origin string) bool {
	_, ok := originSet[strings.TrimRight(origin, "/")]
	return ok
}
