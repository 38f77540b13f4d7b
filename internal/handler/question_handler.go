package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-assessments/internal/dto"
	"github.com/noah-isme/sma-adp-assessments/internal/models"
	appErrors "github.com/noah-isme/sma-adp-assessments/pkg/errors"
	"github.com/noah-isme/sma-adp-assessments/pkg/session"
)

type questionService interface {
	Page(ctx context.Context, scope models.TeacherScope, assessmentID string) (*models.QuestionPage, error)
	Get(ctx context.Context, scope models.TeacherScope, questionID string) (*models.Question, error)
	Create(ctx context.Context, scope models.TeacherScope, form dto.QuestionForm) (*models.Question, error)
	Update(ctx context.Context, scope models.TeacherScope, form dto.QuestionForm) (*models.Question, error)
	Delete(ctx context.Context, scope models.TeacherScope, form dto.DeleteQuestionForm) (string, error)
}

type imageURLSigner interface {
	URL(ctx context.Context, imageID string) (*models.UploadedImage, error)
}

// QuestionHandler serves the per-assessment question page.
type QuestionHandler struct {
	pages
	service questionService
	images  imageURLSigner
}

// NewQuestionHandler constructs the handler.
func NewQuestionHandler(svc questionService, images imageURLSigner, semesters semesterLister, logger *zap.Logger) *QuestionHandler {
	return &QuestionHandler{pages: newPages(semesters, logger), service: svc, images: images}
}

type questionPageView struct {
	*models.QuestionPage
	Images  map[string]string
	Editing *models.Question
	Form    models.QuestionBody
}

// Page lists an assessment's questions with the add or edit form.
func (h *QuestionHandler) Page(c *gin.Context) {
	sc := scope(c)
	ctx := c.Request.Context()
	assessmentID := c.Query("id")
	if assessmentID == "" {
		h.fail(c, appErrors.Clone(appErrors.ErrValidation, "Please select an assessment."), HomePath)
		return
	}
	page, err := h.service.Page(ctx, sc, assessmentID)
	if err != nil {
		h.fail(c, err, HomePath)
		return
	}

	view := questionPageView{QuestionPage: page, Images: h.imageURLs(c, page.Questions)}
	if editID := c.Query("edit"); editID != "" {
		q, err := h.service.Get(ctx, sc, editID)
		if err != nil || q.AssessmentID != assessmentID {
			if err == nil {
				err = appErrors.Clone(appErrors.ErrNotFound, "Question not found.")
			}
			h.fail(c, err, questionsURL(assessmentID))
			return
		}
		view.Editing = q
		view.Form = q.QuestionBody
	}
	h.render(c, "questions.tmpl", "assessments", "Questions: "+page.Assessment.Title, view, nil)
}

// Action creates, edits or deletes a question depending on `action`.
func (h *QuestionHandler) Action(c *gin.Context) {
	sc := scope(c)
	ctx := c.Request.Context()
	back := questionsURL(c.PostForm("assessment_id"))

	switch c.PostForm("action") {
	case dto.ActionCreate:
		form, ok := h.bindQuestion(c, back)
		if !ok {
			return
		}
		if _, err := h.service.Create(ctx, sc, form); err != nil {
			h.fail(c, err, back)
			return
		}
		h.redirect(c, back, session.FlashSuccess, "Question added successfully.")
	case dto.ActionEdit:
		form, ok := h.bindQuestion(c, back)
		if !ok {
			return
		}
		if _, err := h.service.Update(ctx, sc, form); err != nil {
			h.fail(c, err, back+"&edit="+form.QuestionID)
			return
		}
		h.redirect(c, back, session.FlashSuccess, "Question updated successfully.")
	case dto.ActionDelete:
		var form dto.DeleteQuestionForm
		_ = c.ShouldBind(&form)
		assessmentID, err := h.service.Delete(ctx, sc, form)
		if err != nil {
			h.fail(c, err, back)
			return
		}
		h.redirect(c, questionsURL(assessmentID), session.FlashSuccess, "Question deleted successfully.")
	default:
		h.fail(c, appErrors.ErrInvalidRequest, back)
	}
}

func (h *QuestionHandler) bindQuestion(c *gin.Context, back string) (dto.QuestionForm, bool) {
	var form dto.QuestionForm
	if err := c.ShouldBind(&form); err != nil {
		h.fail(c, appErrors.Clone(appErrors.ErrValidation, "Please check the question form and try again."), back)
		return form, false
	}
	return form, true
}

func (h *QuestionHandler) imageURLs(c *gin.Context, questions []models.Question) map[string]string {
	urls := make(map[string]string)
	if h.images == nil {
		return urls
	}
	for _, q := range questions {
		if q.ImageID == nil {
			continue
		}
		img, err := h.images.URL(c.Request.Context(), *q.ImageID)
		if err != nil {
			h.logger.Warn("sign question image", zap.String("question_id", q.ID), zap.Error(err))
			continue
		}
		urls[q.ID] = img.URL
	}
	return urls
}
