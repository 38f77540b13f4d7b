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

const bankPath = "/teacher/question-bank"

type questionBankService interface {
	List(ctx context.Context, scope models.TeacherScope) ([]models.BankQuestion, error)
	Get(ctx context.Context, scope models.TeacherScope, id string) (*models.BankQuestion, error)
	Create(ctx context.Context, scope models.TeacherScope, form dto.BankQuestionForm) (*models.BankQuestion, error)
	Update(ctx context.Context, scope models.TeacherScope, form dto.BankQuestionForm) (*models.BankQuestion, error)
	Delete(ctx context.Context, scope models.TeacherScope, form dto.DeleteBankQuestionForm) error
	Import(ctx context.Context, scope models.TeacherScope, form dto.ImportBankQuestionForm) (*models.Question, error)
}

type assessmentLister interface {
	List(ctx context.Context, scope models.TeacherScope) (*models.AssessmentListing, error)
}

// QuestionBankHandler serves the teacher's reusable question templates.
type QuestionBankHandler struct {
	pages
	service     questionBankService
	assessments assessmentLister
}

// NewQuestionBankHandler constructs the handler.
func NewQuestionBankHandler(svc questionBankService, assessments assessmentLister, semesters semesterLister, logger *zap.Logger) *QuestionBankHandler {
	return &QuestionBankHandler{pages: newPages(semesters, logger), service: svc, assessments: assessments}
}

type bankPageView struct {
	Items   []models.BankQuestion
	Editing *models.BankQuestion
	Form    models.QuestionBody
	Targets []models.AssessmentSummary
}

// Page lists the bank with the add or edit form and the import targets.
func (h *QuestionBankHandler) Page(c *gin.Context) {
	sc := scope(c)
	ctx := c.Request.Context()

	view := bankPageView{}
	items, err := h.service.List(ctx, sc)
	if err != nil {
		h.render(c, "question_bank.tmpl", "bank", "Question bank", view, err)
		return
	}
	view.Items = items

	if editID := c.Query("edit"); editID != "" {
		item, err := h.service.Get(ctx, sc, editID)
		if err != nil {
			h.fail(c, err, bankPath)
			return
		}
		view.Editing = item
		view.Form = item.QuestionBody
	}

	listing, err := h.assessments.List(ctx, sc)
	if err != nil {
		h.logger.Warn("load import targets", zap.Error(err))
	} else {
		view.Targets = pendingTargets(listing)
	}
	h.render(c, "question_bank.tmpl", "bank", "Question bank", view, nil)
}

// Action creates, edits, deletes or imports a bank entry depending on `action`.
func (h *QuestionBankHandler) Action(c *gin.Context) {
	sc := scope(c)
	ctx := c.Request.Context()

	switch c.PostForm("action") {
	case dto.ActionCreate, dto.ActionEdit:
		var form dto.BankQuestionForm
		if err := c.ShouldBind(&form); err != nil {
			h.fail(c, appErrors.Clone(appErrors.ErrValidation, "Please check the question form and try again."), bankPath)
			return
		}
		if c.PostForm("action") == dto.ActionCreate {
			if _, err := h.service.Create(ctx, sc, form); err != nil {
				h.fail(c, err, bankPath)
				return
			}
			h.redirect(c, bankPath, session.FlashSuccess, "Question saved to your bank.")
			return
		}
		if _, err := h.service.Update(ctx, sc, form); err != nil {
			h.fail(c, err, bankPath+"?edit="+form.BankQuestionID)
			return
		}
		h.redirect(c, bankPath, session.FlashSuccess, "Bank question updated successfully.")
	case dto.ActionDelete:
		var form dto.DeleteBankQuestionForm
		_ = c.ShouldBind(&form)
		if err := h.service.Delete(ctx, sc, form); err != nil {
			h.fail(c, err, bankPath)
			return
		}
		h.redirect(c, bankPath, session.FlashSuccess, "Bank question deleted successfully.")
	case dto.ActionImport:
		var form dto.ImportBankQuestionForm
		_ = c.ShouldBind(&form)
		if _, err := h.service.Import(ctx, sc, form); err != nil {
			h.fail(c, err, bankPath)
			return
		}
		h.redirect(c, questionsURL(form.AssessmentID), session.FlashSuccess, "Question imported successfully.")
	default:
		h.fail(c, appErrors.ErrInvalidRequest, bankPath)
	}
}

// pendingTargets flattens the listing to distinct pending assessments.
func pendingTargets(listing *models.AssessmentListing) []models.AssessmentSummary {
	seen := make(map[string]struct{})
	var out []models.AssessmentSummary
	for _, g := range listing.Groups {
		for _, a := range g.Assessments {
			if a.Status != models.AssessmentPending {
				continue
			}
			if _, dup := seen[a.ID]; dup {
				continue
			}
			seen[a.ID] = struct{}{}
			out = append(out, a)
		}
	}
	return out
}
