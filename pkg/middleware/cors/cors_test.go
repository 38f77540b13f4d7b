package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serve(origins []string, method, origin string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api/v1", New(origins))
	api.GET("/assessments", func(c *gin.Context) { c.Status(http.StatusOK) })
	api.OPTIONS("/*path", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(method, "/api/v1/assessments", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestEmptyListKeepsSameOrigin(t *testing.T) {
	w := serve(nil, http.MethodGet, "https://evil.example")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestListedOriginIsReflected(t *testing.T) {
	origins := []string{"https://portal.sch.id/"}

	w := serve(origins, http.MethodGet, "https://portal.sch.id")
	assert.Equal(t, "https://portal.sch.id", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))

	w = serve(origins, http.MethodGet, "https://other.example")
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestWildcardNeverAllowsCredentials(t *testing.T) {
	w := serve([]string{"*"}, http.MethodOptions, "https://any.example")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.NotContains(t, w.Header().Get("Access-Control-Allow-Methods"), "DELETE")
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}
