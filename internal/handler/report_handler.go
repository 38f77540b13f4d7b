package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-assessments/internal/dto"
	"github.com/noah-isme/sma-adp-assessments/internal/models"
	"github.com/noah-isme/sma-adp-assessments/internal/service"
	appErrors "github.com/noah-isme/sma-adp-assessments/pkg/errors"
	"github.com/noah-isme/sma-adp-assessments/pkg/response"
)

type reportService interface {
	View(ctx context.Context, scope models.TeacherScope, q dto.ReportQuery) (*models.ReportView, error)
	ClassReport(ctx context.Context, scope models.TeacherScope, classID, subjectID string) (*models.ClassReport, error)
	Export(ctx context.Context, scope models.TeacherScope, q dto.ReportQuery) (*service.ReportExport, error)
}

// ReportHandler serves the reports page, its exports and the report API.
type ReportHandler struct {
	pages
	service reportService
}

// NewReportHandler constructs the handler.
func NewReportHandler(svc reportService, semesters semesterLister, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{pages: newPages(semesters, logger), service: svc}
}

type reportPageView struct {
	Query dto.ReportQuery
	View  *models.ReportView
}

// Page renders the selected report, or streams it when `export` is set.
func (h *ReportHandler) Page(c *gin.Context) {
	sc := scope(c)
	ctx := c.Request.Context()

	var q dto.ReportQuery
	_ = c.ShouldBindQuery(&q)

	if q.Export != "" {
		h.export(c, sc, q)
		return
	}

	view, err := h.service.View(ctx, sc, q)
	if err != nil {
		h.render(c, "reports.tmpl", "reports", "Reports", reportPageView{Query: q, View: &models.ReportView{Type: models.ReportClass}}, err)
		return
	}
	h.render(c, "reports.tmpl", "reports", "Reports", reportPageView{Query: q, View: view}, nil)
}

func (h *ReportHandler) export(c *gin.Context, sc models.TeacherScope, q dto.ReportQuery) {
	out, err := h.service.Export(c.Request.Context(), sc, q)
	if err != nil {
		back := url.Values{"class": {q.ClassID}, "subject": {q.SubjectID}}
		h.fail(c, err, "/teacher/reports?"+back.Encode())
		return
	}
	c.Header("Content-Type", out.ContentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", out.Filename))
	c.Header("Cache-Control", "no-store")
	c.Status(http.StatusOK)
	if _, err := out.WriteTo(c.Writer); err != nil {
		h.logger.Error("write report export", zap.String("format", out.Format), zap.Error(err))
	}
}

// APIClassReport godoc
// @Summary Class report
// @Description Student by assessment matrix with totals and class statistics for one class and subject.
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param class query string true "Class ID"
// @Param subject query string true "Subject ID"
// @Param semester query string false "Semester ID (defaults to current)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /reports/class [get]
func (h *ReportHandler) APIClassReport(c *gin.Context) {
	classID, subjectID := c.Query("class"), c.Query("subject")
	if classID == "" || subjectID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "class and subject are required"))
		return
	}
	report, err := h.service.ClassReport(c.Request.Context(), scope(c), classID, subjectID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report)
}
