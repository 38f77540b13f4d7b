package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-assessments/internal/models"
	appErrors "github.com/noah-isme/sma-adp-assessments/pkg/errors"
	"github.com/noah-isme/sma-adp-assessments/pkg/response"
	"github.com/noah-isme/sma-adp-assessments/pkg/session"
)

// HomePath is where a signed-in teacher lands.
const HomePath = "/teacher/assessments"

type authService interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.User, error)
	Logout(ctx context.Context, scope models.TeacherScope)
	IssueToken(ctx context.Context, req models.LoginRequest) (*models.TokenResponse, error)
}

// AuthHandler serves the login page and the API token endpoint.
type AuthHandler struct {
	pages
	service authService
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc authService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{pages: newPages(nil, logger), service: svc}
}

// LoginPage renders the sign-in form.
func (h *AuthHandler) LoginPage(c *gin.Context) {
	if session.UserID(c) != "" && models.UserRole(session.Role(c)) == models.RoleTeacher {
		c.Redirect(http.StatusSeeOther, HomePath)
		return
	}
	h.render(c, "login.tmpl", "", "Sign in", gin.H{"Email": ""}, nil)
}

// Login checks the posted credentials and starts a page session.
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		h.fail(c, appErrors.Clone(appErrors.ErrValidation, "Please enter your email and password."), "/login")
		return
	}
	req.IP = c.ClientIP()

	user, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err, "/login")
		return
	}
	if err := session.Login(c, user.ID, string(user.Role), user.FullName); err != nil {
		h.fail(c, appErrors.Internal(err, "failed to start session"), "/login")
		return
	}
	h.redirect(c, HomePath, session.FlashSuccess, "Welcome back, "+user.FullName+".")
}

// Logout ends the page session.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.service.Logout(c.Request.Context(), models.TeacherScope{UserID: session.UserID(c), IPAddress: c.ClientIP()})
	if err := session.Reset(c, session.FlashSuccess, "You have been signed out."); err != nil {
		h.logger.Warn("reset session", zap.Error(err))
	}
	c.Redirect(http.StatusSeeOther, "/login")
}

// Token godoc
// @Summary Issue an API token
// @Description Exchange teacher credentials for a bearer token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /auth/token [post]
func (h *AuthHandler) Token(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}
	req.IP = c.ClientIP()

	res, err := h.service.IssueToken(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res)
}
