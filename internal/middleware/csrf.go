package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/sma-adp-assessments/pkg/errors"
	"github.com/noah-isme/sma-adp-assessments/pkg/session"
)

const (
	csrfField  = "csrf_token"
	csrfHeader = "X-CSRF-Token"
)

// CSRF rejects state-changing requests whose token does not match the session.
// Pages get a flash and are sent back to the form; scripts get a JSON error.
func CSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		token := c.GetHeader(csrfHeader)
		if token == "" {
			token = c.PostForm(csrfField)
		}
		if session.ValidCSRF(c, token) {
			c.Next()
			return
		}

		if !wantsJSON(c) {
			session.AddFlash(c, session.FlashError, appErrors.ErrInvalidRequest.Message)
		}
		deny(c, appErrors.ErrInvalidRequest, c.Request.URL.Path)
	}
}
