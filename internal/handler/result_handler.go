package handler

import (
	"context"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-assessments/internal/dto"
	"github.com/noah-isme/sma-adp-assessments/internal/models"
	"github.com/noah-isme/sma-adp-assessments/pkg/session"
)

const resultsPath = "/teacher/results"

type resultService interface {
	GradingSheet(ctx context.Context, scope models.TeacherScope, assessmentID string) (*models.GradingSheet, error)
	Record(ctx context.Context, scope models.TeacherScope, form dto.ResultForm) (*models.Result, error)
}

// ResultHandler serves grade entry.
type ResultHandler struct {
	pages
	service     resultService
	assessments assessmentLister
}

// NewResultHandler constructs the handler.
func NewResultHandler(svc resultService, assessments assessmentLister, semesters semesterLister, logger *zap.Logger) *ResultHandler {
	return &ResultHandler{pages: newPages(semesters, logger), service: svc, assessments: assessments}
}

type resultPageView struct {
	Listing *models.AssessmentListing
	Sheet   *models.GradingSheet
}

// Page shows the assessment picker, or the grading sheet once one is chosen.
func (h *ResultHandler) Page(c *gin.Context) {
	sc := scope(c)
	ctx := c.Request.Context()

	assessmentID := c.Query("assessment")
	if assessmentID == "" {
		listing, err := h.assessments.List(ctx, sc)
		if err != nil {
			h.render(c, "results.tmpl", "results", "Results", resultPageView{Listing: &models.AssessmentListing{}}, err)
			return
		}
		h.render(c, "results.tmpl", "results", "Results", resultPageView{Listing: listing}, nil)
		return
	}

	sheet, err := h.service.GradingSheet(ctx, sc, assessmentID)
	if err != nil {
		h.fail(c, err, resultsPath)
		return
	}
	h.render(c, "results.tmpl", "results", "Results: "+sheet.Assessment.Title, resultPageView{Sheet: sheet}, nil)
}

// Record saves one student's grade.
func (h *ResultHandler) Record(c *gin.Context) {
	var form dto.ResultForm
	_ = c.ShouldBind(&form)
	// An empty score input binds as 0; treat it as missing.
	if strings.TrimSpace(c.PostForm("score")) == "" {
		form.Score = nil
	}
	back := resultsPath + "?assessment=" + url.QueryEscape(form.AssessmentID)

	if _, err := h.service.Record(c.Request.Context(), scope(c), form); err != nil {
		h.fail(c, err, back)
		return
	}
	h.redirect(c, back, session.FlashSuccess, "Result saved successfully.")
}
