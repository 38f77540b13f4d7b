package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-assessments/internal/models"
	appErrors "github.com/noah-isme/sma-adp-assessments/pkg/errors"
	"github.com/noah-isme/sma-adp-assessments/pkg/response"
	"github.com/noah-isme/sma-adp-assessments/pkg/session"
)

// Context keys holding the request scope built for a teacher.
const (
	ContextScopeKey    = "teacherScope"
	ContextSemesterKey = "activeSemester"
)

// LoginPath is where unauthenticated page requests are sent.
const LoginPath = "/login"

type scopeResolver interface {
	Resolve(ctx context.Context, userID, requestedSemester string) (models.TeacherScope, *models.Semester, error)
}

// RequireTeacher guards the session-backed pages. It resolves the teacher and the
// active semester (the `semester` query parameter, else the session choice, else
// the current semester) on every request and stores them on the context.
func RequireTeacher(resolver scopeResolver, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		userID := session.UserID(c)
		if userID == "" || models.UserRole(session.Role(c)) != models.RoleTeacher {
			deny(c, appErrors.ErrUnauthorized, LoginPath)
			return
		}

		requested := strings.TrimSpace(c.Query("semester"))
		remembered := session.SelectedSemester(c)
		if requested == "" {
			requested = remembered
		}

		scope, semester, err := resolver.Resolve(c.Request.Context(), userID, requested)
		if err != nil {
			appErr := appErrors.FromError(err)
			if wantsJSON(c) {
				logger.Warn("resolve teacher scope", zap.String("user_id", userID), zap.Error(err))
				response.Error(c, appErr)
				c.Abort()
				return
			}
			// Only a missing teacher or semester ends the session.
			if appErr.Status >= http.StatusInternalServerError {
				logger.Error("resolve teacher scope", zap.String("user_id", userID), zap.Error(err))
				c.String(appErr.Status, appErrors.UserMessage(appErr))
				c.Abort()
				return
			}
			logger.Warn("resolve teacher scope", zap.String("user_id", userID), zap.Error(err))
			_ = session.Reset(c, session.FlashError, appErrors.UserMessage(appErr))
			c.Redirect(http.StatusSeeOther, LoginPath)
			c.Abort()
			return
		}
		if semester.ID != remembered {
			if err := session.SetSelectedSemester(c, semester.ID); err != nil {
				logger.Warn("remember semester", zap.Error(err))
			}
		}

		scope.CSRFToken = session.CSRFToken(c)
		scope.IPAddress = c.ClientIP()
		c.Set(ContextScopeKey, scope)
		c.Set(ContextSemesterKey, semester)
		c.Next()
	}
}

// Scope returns the teacher scope stored by RequireTeacher or TokenScope.
func Scope(c *gin.Context) (models.TeacherScope, bool) {
	value, exists := c.Get(ContextScopeKey)
	if !exists {
		return models.TeacherScope{}, false
	}
	scope, ok := value.(models.TeacherScope)
	return scope, ok
}

// ActiveSemester returns the semester the request is scoped to.
func ActiveSemester(c *gin.Context) *models.Semester {
	value, exists := c.Get(ContextSemesterKey)
	if !exists {
		return nil
	}
	semester, _ := value.(*models.Semester)
	return semester
}

func deny(c *gin.Context, err *appErrors.Error, redirect string) {
	if wantsJSON(c) {
		response.Error(c, err)
		c.Abort()
		return
	}
	c.Redirect(http.StatusSeeOther, redirect)
	c.Abort()
}

// wantsJSON reports whether the caller is a script rather than a page navigation.
func wantsJSON(c *gin.Context) bool {
	if c.GetHeader("X-Requested-With") == "XMLHttpRequest" {
		return true
	}
	return strings.Contains(c.GetHeader("Accept"), "application/json")
}
