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
	appErrors "github.com/noah-isme/sma-adp-assessments/pkg/errors"
	"github.com/noah-isme/sma-adp-assessments/pkg/response"
	"github.com/noah-isme/sma-adp-assessments/pkg/session"
)

type assessmentService interface {
	List(ctx context.Context, scope models.TeacherScope) (*models.AssessmentListing, error)
	FormOptions(ctx context.Context, scope models.TeacherScope) (*dto.AssessmentFormOptions, error)
	Get(ctx context.Context, scope models.TeacherScope, id string) (*models.AssessmentDetail, error)
	Create(ctx context.Context, scope models.TeacherScope, form dto.AssessmentForm) (*models.Assessment, error)
	Update(ctx context.Context, scope models.TeacherScope, form dto.AssessmentForm) (bool, error)
	UpdateStatus(ctx context.Context, scope models.TeacherScope, form dto.StatusForm) (bool, error)
	DeleteFromClass(ctx context.Context, scope models.TeacherScope, form dto.DeleteFromClassForm) (bool, error)
	Delete(ctx context.Context, scope models.TeacherScope, form dto.DeleteAssessmentForm) error
}

// AssessmentHandler serves the assessment list, create and edit pages.
type AssessmentHandler struct {
	pages
	service assessmentService
}

// NewAssessmentHandler constructs the handler.
func NewAssessmentHandler(svc assessmentService, semesters semesterLister, logger *zap.Logger) *AssessmentHandler {
	return &AssessmentHandler{pages: newPages(semesters, logger), service: svc}
}

// assessmentFormView feeds assessment_form.tmpl.
type assessmentFormView struct {
	Mode        string
	Form        dto.AssessmentForm
	Options     *dto.AssessmentFormOptions
	Selected    map[string]bool
	PairsLocked bool
	Detail      *models.AssessmentDetail
}

// List expires overdue assessments and renders the grouped list.
func (h *AssessmentHandler) List(c *gin.Context) {
	sc := scope(c)
	listing, err := h.service.List(c.Request.Context(), sc)
	if err != nil {
		h.render(c, "assessments.tmpl", "assessments", "Assessments", &models.AssessmentListing{}, err)
		return
	}
	if listing.Expired > 0 {
		session.AddFlash(c, session.FlashSuccess, fmt.Sprintf("%d expired assessments were automatically marked as completed.", listing.Expired))
	}
	h.render(c, "assessments.tmpl", "assessments", "Assessments", listing, nil)
}

// Action handles the list page buttons selected by the `action` field.
func (h *AssessmentHandler) Action(c *gin.Context) {
	sc := scope(c)
	ctx := c.Request.Context()

	switch c.PostForm("action") {
	case dto.ActionUpdateStatus:
		var form dto.StatusForm
		_ = c.ShouldBind(&form)
		changed, err := h.service.UpdateStatus(ctx, sc, form)
		if err != nil {
			h.fail(c, err, HomePath)
			return
		}
		msg := "Assessment status is unchanged."
		if changed {
			msg = "Assessment status updated successfully."
		}
		h.redirect(c, HomePath, session.FlashSuccess, msg)
	case dto.ActionDeleteFromClass:
		var form dto.DeleteFromClassForm
		_ = c.ShouldBind(&form)
		deletedAll, err := h.service.DeleteFromClass(ctx, sc, form)
		if err != nil {
			h.fail(c, err, HomePath)
			return
		}
		msg := "Assessment removed from the selected class."
		if deletedAll {
			msg = "Assessment deleted completely as it is no longer assigned to any class."
		}
		h.redirect(c, HomePath, session.FlashSuccess, msg)
	case dto.ActionDelete:
		var form dto.DeleteAssessmentForm
		_ = c.ShouldBind(&form)
		if err := h.service.Delete(ctx, sc, form); err != nil {
			h.fail(c, err, HomePath)
			return
		}
		h.redirect(c, HomePath, session.FlashSuccess, "Assessment deleted successfully.")
	default:
		h.fail(c, appErrors.ErrInvalidRequest, HomePath)
	}
}

// New renders an empty create form.
func (h *AssessmentHandler) New(c *gin.Context) {
	sc := scope(c)
	opts, err := h.service.FormOptions(c.Request.Context(), sc)
	if err != nil {
		h.fail(c, err, HomePath)
		return
	}
	form := dto.AssessmentForm{SemesterID: sc.SemesterID}
	h.render(c, "assessment_form.tmpl", "assessments", "New assessment", assessmentFormView{
		Mode:     dto.ActionCreate,
		Form:     form,
		Options:  opts,
		Selected: map[string]bool{},
	}, nil)
}

// Create inserts the posted assessment and continues to its questions.
func (h *AssessmentHandler) Create(c *gin.Context) {
	var form dto.AssessmentForm
	if err := c.ShouldBind(&form); err != nil {
		h.fail(c, appErrors.Clone(appErrors.ErrValidation, "Please check the form and try again."), "/teacher/assessments/new")
		return
	}
	created, err := h.service.Create(c.Request.Context(), scope(c), form)
	if err != nil {
		h.fail(c, err, "/teacher/assessments/new")
		return
	}
	h.redirect(c, questionsURL(created.ID), session.FlashSuccess, "Assessment created successfully. You can now add questions.")
}

// Edit renders the edit form for an owned assessment.
func (h *AssessmentHandler) Edit(c *gin.Context) {
	sc := scope(c)
	ctx := c.Request.Context()
	id := c.Query("id")
	if id == "" {
		h.fail(c, appErrors.Clone(appErrors.ErrValidation, "Please select an assessment."), HomePath)
		return
	}
	detail, err := h.service.Get(ctx, sc, id)
	if err != nil {
		h.fail(c, err, HomePath)
		return
	}
	opts, err := h.service.FormOptions(ctx, sc)
	if err != nil {
		h.fail(c, err, HomePath)
		return
	}
	form := formFromDetail(detail)
	selected := make(map[string]bool, len(detail.Pairs))
	for _, p := range detail.Pairs {
		selected[p.Key()] = true
	}
	h.render(c, "assessment_form.tmpl", "assessments", "Edit assessment", assessmentFormView{
		Mode:        dto.ActionEdit,
		Form:        form,
		Options:     opts,
		Selected:    selected,
		PairsLocked: detail.HasAttempts && !detail.ResetEditMode,
		Detail:      detail,
	}, nil)
}

// Update saves the edit form.
func (h *AssessmentHandler) Update(c *gin.Context) {
	var form dto.AssessmentForm
	if err := c.ShouldBind(&form); err != nil {
		h.fail(c, appErrors.Clone(appErrors.ErrValidation, "Please check the form and try again."), HomePath)
		return
	}
	back := "/teacher/assessments/edit?id=" + url.QueryEscape(form.ID)
	changed, err := h.service.Update(c.Request.Context(), scope(c), form)
	if err != nil {
		h.fail(c, err, back)
		return
	}
	if !changed {
		h.redirect(c, back, session.FlashSuccess, "No changes were made.")
		return
	}
	h.redirect(c, HomePath, session.FlashSuccess, "Assessment updated successfully.")
}

// APIList godoc
// @Summary List assessments
// @Description Lists the teacher's assessments for a semester, grouped by class and subject. Overdue assessments are marked completed first.
// @Tags Assessments
// @Produce json
// @Security BearerAuth
// @Param semester query string false "Semester ID (defaults to current)"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /assessments [get]
func (h *AssessmentHandler) APIList(c *gin.Context) {
	listing, err := h.service.List(c.Request.Context(), scope(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, listing.Groups, map[string]interface{}{"expired": listing.Expired})
}

func questionsURL(assessmentID string) string {
	return "/teacher/questions?id=" + url.QueryEscape(assessmentID)
}

func formFromDetail(d *models.AssessmentDetail) dto.AssessmentForm {
	form := dto.AssessmentForm{
		ID:                  d.ID,
		Version:             d.Version,
		Title:               d.Title,
		AssessmentDate:      d.AssessmentDate.Format("2006-01-02"),
		SemesterID:          d.SemesterID,
		AssessmentTypeID:    d.AssessmentTypeID,
		AllowLateSubmission: d.AllowLateSubmission,
		LateSubmissionDays:  d.LateSubmissionDays,
		ShuffleQuestions:    d.ShuffleQuestions,
		ShuffleOptions:      d.ShuffleOptions,
		UseQuestionLimit:    d.UseQuestionLimit,
	}
	if d.Description != nil {
		form.Description = *d.Description
	}
	if d.StartTime != nil {
		form.StartTime = trimSeconds(*d.StartTime)
	}
	if d.EndTime != nil {
		form.EndTime = trimSeconds(*d.EndTime)
	}
	if d.DurationMinutes != nil {
		form.DurationMinutes = *d.DurationMinutes
	}
	if d.QuestionsToAnswer != nil {
		form.QuestionsToAnswer = *d.QuestionsToAnswer
	}
	for _, p := range d.Pairs {
		form.ClassSubjects = append(form.ClassSubjects, p.Key())
	}
	return form
}

// trimSeconds turns a stored "15:04:05" into the "15:04" the time input posts.
func trimSeconds(t string) string {
	if len(t) == len("15:04:05") {
		return t[:5]
	}
	return t
}
