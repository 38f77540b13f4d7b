package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-adp-assessments/internal/middleware"
)

// Handlers groups every route handler.
type Handlers struct {
	Auth        *AuthHandler
	Assessments *AssessmentHandler
	Questions   *QuestionHandler
	Bank        *QuestionBankHandler
	Results     *ResultHandler
	Reports     *ReportHandler
	Images      *ImageHandler
	Metrics     *MetricsHandler
}

// RouteConfig carries the middleware chains built from configuration.
type RouteConfig struct {
	APIPrefix    string
	Session      gin.HandlerFunc
	TeacherGuard gin.HandlerFunc
	APIGuard     []gin.HandlerFunc
	CORS         gin.HandlerFunc
	Docs         gin.HandlerFunc
}

// RegisterRoutes mounts the pages, the JSON API and the ops endpoints.
func RegisterRoutes(r *gin.Engine, h Handlers, cfg RouteConfig) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)
	if cfg.Docs != nil {
		r.GET("/docs/*any", cfg.Docs)
	}

	web := r.Group("/", cfg.Session)
	web.GET("/", func(c *gin.Context) { c.Redirect(http.StatusFound, HomePath) })
	web.GET("/login", h.Auth.LoginPage)
	web.POST("/login", middleware.CSRF(), h.Auth.Login)
	web.POST("/logout", middleware.CSRF(), h.Auth.Logout)
	web.GET("/media/:token", cfg.TeacherGuard, h.Images.Serve)

	teacher := web.Group("/teacher", cfg.TeacherGuard, middleware.CSRF())
	{
		teacher.GET("/assessments", h.Assessments.List)
		teacher.POST("/assessments", h.Assessments.Action)
		teacher.GET("/assessments/new", h.Assessments.New)
		teacher.POST("/assessments/new", h.Assessments.Create)
		teacher.GET("/assessments/edit", h.Assessments.Edit)
		teacher.POST("/assessments/edit", h.Assessments.Update)

		teacher.GET("/questions", h.Questions.Page)
		teacher.POST("/questions", h.Questions.Action)

		teacher.GET("/question-bank", h.Bank.Page)
		teacher.POST("/question-bank", h.Bank.Action)

		teacher.GET("/results", h.Results.Page)
		teacher.POST("/results", h.Results.Record)

		teacher.GET("/reports", h.Reports.Page)

		teacher.POST("/images", h.Images.Upload)
	}

	api := r.Group(cfg.APIPrefix)
	if cfg.CORS != nil {
		api.Use(cfg.CORS)
	}
	api.OPTIONS("/*path", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	api.POST("/auth/token", h.Auth.Token)

	secured := api.Group("", cfg.APIGuard...)
	{
		secured.GET("/assessments", h.Assessments.APIList)
		secured.GET("/reports/class", h.Reports.APIClassReport)
	}
}
