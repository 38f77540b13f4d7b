package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-assessments/internal/dto"
	"github.com/noah-isme/sma-adp-assessments/internal/models"
	appErrors "github.com/noah-isme/sma-adp-assessments/pkg/errors"
)

type resultRepository interface {
	Upsert(ctx context.Context, result *models.Result) error
	GradingRows(ctx context.Context, teacherID, semesterID, assessmentID string) ([]models.GradingRow, error)
}

type questionLister interface {
	ListByAssessment(ctx context.Context, assessmentID string) ([]models.Question, error)
}

// ResultService handles grade entry.
type ResultService struct {
	repo        resultRepository
	assessments assessmentDetailReader
	questions   questionLister
	access      *AccessService
	reports     reportCache
	activity    activityRecorder
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewResultService constructs a ResultService.
func NewResultService(repo resultRepository, assessments assessmentDetailReader, questions questionLister, access *AccessService, cache cacheInvalidator, activity activityRecorder, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ResultService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if activity == nil {
		activity = noopActivity{}
	}
	return &ResultService{
		repo:        repo,
		assessments: assessments,
		questions:   questions,
		access:      access,
		reports:     reportCache{cache: cache, pairs: assessments, logger: logger},
		activity:    activity,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
	}
}

// GradingSheet lists the roster of an owned assessment with existing results.
func (s *ResultService) GradingSheet(ctx context.Context, scope models.TeacherScope, assessmentID string) (*models.GradingSheet, error) {
	if strings.TrimSpace(assessmentID) == "" {
		return nil, invalid("Please select an assessment.")
	}
	if err := s.access.RequireAssessment(ctx, scope, assessmentID, false); err != nil {
		return nil, err
	}
	detail, err := s.assessments.FindDetail(ctx, assessmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Assessment not found.")
		}
		return nil, appErrors.Internal(err, "failed to load assessment")
	}
	if detail.Pairs, err = s.assessments.ListPairs(ctx, assessmentID); err != nil {
		return nil, appErrors.Internal(err, "failed to load assessment classes")
	}
	questions, err := s.questions.ListByAssessment(ctx, assessmentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list questions")
	}
	rows, err := s.repo.GradingRows(ctx, scope.TeacherID, scope.SemesterID, assessmentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list students")
	}

	sheet := &models.GradingSheet{Assessment: *detail, Rows: rows}
	for _, q := range questions {
		sheet.TotalMaxScore += q.MaxScore
	}
	return sheet, nil
}

// Record stores a student's grade, replacing any earlier one.
func (s *ResultService) Record(ctx context.Context, scope models.TeacherScope, form dto.ResultForm) (*models.Result, error) {
	form.Feedback = strings.TrimSpace(form.Feedback)
	if err := s.validator.Struct(form); err != nil {
		return nil, validationError(err)
	}
	if form.Score == nil {
		return nil, invalid("Score is required.")
	}
	if *form.Score < 0 || *form.Score > 100 {
		return nil, invalid("Score must be between 0 and 100.")
	}
	status := models.ResultStatus(form.Status)
	switch status {
	case "":
		status = models.ResultCompleted
	case models.ResultCompleted, models.ResultPending:
	default:
		return nil, invalid("Invalid result status.")
	}

	if err := s.access.RequireAssessment(ctx, scope, form.AssessmentID, false); err != nil {
		return nil, err
	}
	if err := s.access.RequireStudent(ctx, scope, form.AssessmentID, form.StudentID); err != nil {
		return nil, err
	}

	result := &models.Result{
		AssessmentID: form.AssessmentID,
		StudentID:    form.StudentID,
		Score:        *form.Score,
		Status:       status,
	}
	if form.Feedback != "" {
		feedback := form.Feedback
		result.Feedback = &feedback
	}
	if err := s.repo.Upsert(ctx, result); err != nil {
		return nil, appErrors.Internal(err, "failed to save result")
	}
	s.metrics.RecordResult()
	s.reports.clearAssessment(ctx, form.AssessmentID)
	s.activity.Record(ctx, scope, models.ActivityResultRecord, "result", result.ID, map[string]interface{}{
		"assessment_id": form.AssessmentID,
		"student_id":    form.StudentID,
		"score":         result.Score,
	})
	return result, nil
}
