package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-assessments/internal/dto"
	"github.com/noah-isme/sma-adp-assessments/internal/models"
	"github.com/noah-isme/sma-adp-assessments/internal/repository"
	appErrors "github.com/noah-isme/sma-adp-assessments/pkg/errors"
)

type assessmentRepository interface {
	ExpireOverdue(ctx context.Context, teacherID, semesterID, now string) (int64, error)
	ListForTeacher(ctx context.Context, teacherID, semesterID string) ([]models.AssessmentSummary, error)
	FindDetail(ctx context.Context, id string) (*models.AssessmentDetail, error)
	ListPairs(ctx context.Context, assessmentID string) ([]models.ClassSubjectPair, error)
	HasAttempts(ctx context.Context, assessmentID string) (bool, error)
	Create(ctx context.Context, assessment *models.Assessment, pairs []models.ClassSubjectPair) error
	Update(ctx context.Context, assessment *models.Assessment, pairs []models.ClassSubjectPair) error
	UpdateStatus(ctx context.Context, id string, status models.AssessmentStatus) error
	DeleteFromClass(ctx context.Context, assessmentID, classID, subjectID string) (bool, error)
	Delete(ctx context.Context, id string) error
}

type assessmentTypeReader interface {
	ListAssessmentTypes(ctx context.Context) ([]models.AssessmentType, error)
	AssessmentTypeExists(ctx context.Context, id string) (bool, error)
}

// AssessmentService owns the assessment lifecycle: listing with auto-expiry,
// create, edit, status changes and deletion.
type AssessmentService struct {
	repo      assessmentRepository
	types     assessmentTypeReader
	access    *AccessService
	reports   reportCache
	activity  activityRecorder
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	loc       *time.Location
	now       func() time.Time
}

// NewAssessmentService constructs an AssessmentService.
func NewAssessmentService(repo assessmentRepository, types assessmentTypeReader, access *AccessService, cache cacheInvalidator, activity activityRecorder, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, loc *time.Location) *AssessmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if activity == nil {
		activity = noopActivity{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &AssessmentService{
		repo:      repo,
		types:     types,
		access:    access,
		reports:   reportCache{cache: cache, pairs: repo, logger: logger},
		activity:  activity,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		loc:       loc,
		now:       time.Now,
	}
}

// List expires overdue assessments, then returns the teacher's assessments for
// the scope's semester grouped by class/subject.
func (s *AssessmentService) List(ctx context.Context, scope models.TeacherScope) (*models.AssessmentListing, error) {
	listing := &models.AssessmentListing{}
	listing.Expired = s.expireOverdue(ctx, scope)

	rows, err := s.repo.ListForTeacher(ctx, scope.TeacherID, scope.SemesterID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list assessments")
	}

	index := make(map[string]int)
	for _, row := range rows {
		pair := models.ClassSubjectPair{ClassID: row.ClassID, SubjectID: row.SubjectID, ClassName: row.ClassName, SubjectName: row.SubjectName}
		i, ok := index[pair.Key()]
		if !ok {
			i = len(listing.Groups)
			index[pair.Key()] = i
			listing.Groups = append(listing.Groups, models.AssessmentGroup{Pair: pair})
		}
		listing.Groups[i].Assessments = append(listing.Groups[i].Assessments, row)
	}
	return listing, nil
}

// expireOverdue is best effort: failures are logged and reported as zero.
func (s *AssessmentService) expireOverdue(ctx context.Context, scope models.TeacherScope) int64 {
	now := s.now().In(s.loc).Format("2006-01-02 15:04:05")
	expired, err := s.repo.ExpireOverdue(ctx, scope.TeacherID, scope.SemesterID, now)
	if err != nil {
		s.logger.Warn("auto-expiry failed", zap.String("teacher_id", scope.TeacherID), zap.Error(err))
		return 0
	}
	if expired > 0 {
		s.logger.Info("expired assessments marked completed",
			zap.String("teacher_id", scope.TeacherID),
			zap.String("semester_id", scope.SemesterID),
			zap.Int64("count", expired))
		s.metrics.RecordExpired(expired)
		if pairs, err := s.access.Pairs(ctx, scope, scope.SemesterID); err != nil {
			s.logger.Warn("list pairs for cache invalidation", zap.String("teacher_id", scope.TeacherID), zap.Error(err))
		} else {
			s.reports.clearPairs(ctx, pairs...)
		}
		s.activity.Record(ctx, scope, models.ActivityAssessmentExpire, "assessment", "", map[string]interface{}{"count": expired})
	}
	return expired
}

// FormOptions loads the selectable semesters, types and class/subject pairs.
func (s *AssessmentService) FormOptions(ctx context.Context, scope models.TeacherScope) (*dto.AssessmentFormOptions, error) {
	semesters, err := s.access.Semesters(ctx)
	if err != nil {
		return nil, err
	}
	types, err := s.types.ListAssessmentTypes(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list assessment types")
	}
	pairs, err := s.access.Pairs(ctx, scope, scope.SemesterID)
	if err != nil {
		return nil, err
	}
	return &dto.AssessmentFormOptions{Semesters: semesters, AssessmentTypes: types, Pairs: pairs}, nil
}

// Get loads an owned assessment with its pairs and attempt state.
func (s *AssessmentService) Get(ctx context.Context, scope models.TeacherScope, id string) (*models.AssessmentDetail, error) {
	if err := s.access.RequireAssessment(ctx, scope, id, false); err != nil {
		return nil, err
	}
	return s.loadDetail(ctx, id)
}

func (s *AssessmentService) loadDetail(ctx context.Context, id string) (*models.AssessmentDetail, error) {
	detail, err := s.repo.FindDetail(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Assessment not found.")
		}
		return nil, appErrors.Internal(err, "failed to load assessment")
	}
	if detail.Pairs, err = s.repo.ListPairs(ctx, id); err != nil {
		return nil, appErrors.Internal(err, "failed to load assessment classes")
	}
	if detail.HasAttempts, err = s.repo.HasAttempts(ctx, id); err != nil {
		return nil, appErrors.Internal(err, "failed to check assessment attempts")
	}
	return detail, nil
}

// Create validates the form and inserts a pending assessment with its pairs.
func (s *AssessmentService) Create(ctx context.Context, scope models.TeacherScope, form dto.AssessmentForm) (*models.Assessment, error) {
	assessment, err := s.buildAssessment(ctx, form)
	if err != nil {
		return nil, err
	}
	pairs, err := s.access.RequirePairs(ctx, scope, form.SemesterID, form.Pairs())
	if err != nil {
		return nil, err
	}

	assessment.Status = models.AssessmentPending
	assessment.CreatedBy = scope.TeacherID
	if err := s.repo.Create(ctx, assessment, pairs); err != nil {
		return nil, appErrors.Internal(err, "failed to create assessment")
	}
	s.reports.clearPairs(ctx, pairs...)

	s.activity.Record(ctx, scope, models.ActivityAssessmentCreate, "assessment", assessment.ID, map[string]interface{}{
		"title": assessment.Title,
		"pairs": len(pairs),
	})
	return assessment, nil
}

// Update applies the edit form. Class/subject associations are checked against
// the scope's semester and are frozen once students have attempted the
// assessment, unless edit mode is on. It reports false when nothing changed.
func (s *AssessmentService) Update(ctx context.Context, scope models.TeacherScope, form dto.AssessmentForm) (bool, error) {
	if strings.TrimSpace(form.ID) == "" {
		return false, invalid("Assessment id is required.")
	}
	if err := s.access.RequireAssessment(ctx, scope, form.ID, false); err != nil {
		return false, err
	}
	current, err := s.loadDetail(ctx, form.ID)
	if err != nil {
		return false, err
	}
	if !current.Editable() {
		return false, appErrors.Clone(appErrors.ErrForbidden, "This assessment is completed and can no longer be edited.")
	}
	if form.Version != 0 && form.Version != current.Version {
		return false, appErrors.Clone(appErrors.ErrConflict, msgStaleVersion)
	}

	updated, err := s.buildAssessment(ctx, form)
	if err != nil {
		return false, err
	}
	pairs, err := s.access.RequirePairs(ctx, scope, scope.SemesterID, form.Pairs())
	if err != nil {
		return false, err
	}

	pairsChanged := !models.SamePairs(current.Pairs, pairs)
	if pairsChanged && current.HasAttempts && !current.ResetEditMode {
		return false, appErrors.Clone(appErrors.ErrConflict, "Cannot modify class assignments as students have already started this assessment.")
	}
	if !pairsChanged && sameAssessment(current.Assessment, *updated) {
		return false, nil
	}

	updated.ID = current.ID
	updated.Version = current.Version
	var newPairs []models.ClassSubjectPair
	if pairsChanged {
		newPairs = pairs
	}
	if err := s.repo.Update(ctx, updated, newPairs); err != nil {
		if errors.Is(err, repository.ErrStaleVersion) {
			return false, appErrors.Clone(appErrors.ErrConflict, msgStaleVersion)
		}
		return false, appErrors.Internal(err, "failed to update assessment")
	}

	touched := append([]models.ClassSubjectPair(nil), current.Pairs...)
	s.reports.clearPairs(ctx, append(touched, pairs...)...)
	s.activity.Record(ctx, scope, models.ActivityAssessmentUpdate, "assessment", current.ID, map[string]interface{}{
		"pairs_changed": pairsChanged,
	})
	return true, nil
}

// UpdateStatus moves an owned assessment along pending -> completed -> archived.
// Setting the current status again is a no-op and reports false.
func (s *AssessmentService) UpdateStatus(ctx context.Context, scope models.TeacherScope, form dto.StatusForm) (bool, error) {
	if err := s.validator.Struct(form); err != nil {
		return false, validationError(err)
	}
	next := models.AssessmentStatus(form.Status)
	if !next.Valid() {
		return false, invalid("Invalid status.")
	}
	if err := s.access.RequireAssessment(ctx, scope, form.AssessmentID, false); err != nil {
		return false, err
	}
	current, err := s.repo.FindDetail(ctx, form.AssessmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, appErrors.Clone(appErrors.ErrNotFound, "Assessment not found.")
		}
		return false, appErrors.Internal(err, "failed to load assessment")
	}
	if current.Status == next {
		return false, nil
	}
	if !current.Status.CanTransition(next) {
		return false, invalid("Invalid status transition.")
	}
	if err := s.repo.UpdateStatus(ctx, form.AssessmentID, next); err != nil {
		return false, appErrors.Internal(err, "failed to update assessment status")
	}
	s.reports.clearAssessment(ctx, form.AssessmentID)
	s.activity.Record(ctx, scope, models.ActivityAssessmentStatus, "assessment", form.AssessmentID, map[string]interface{}{
		"from": current.Status,
		"to":   next,
	})
	return true, nil
}

// DeleteFromClass removes one pending class/subject association. It reports true
// when that was the last association and the whole assessment went with it.
func (s *AssessmentService) DeleteFromClass(ctx context.Context, scope models.TeacherScope, form dto.DeleteFromClassForm) (bool, error) {
	if err := s.validator.Struct(form); err != nil {
		return false, validationError(err)
	}
	if err := s.access.RequireAssessmentPair(ctx, scope, form.AssessmentID, form.ClassID, form.SubjectID, true); err != nil {
		return false, err
	}
	deletedAll, err := s.repo.DeleteFromClass(ctx, form.AssessmentID, form.ClassID, form.SubjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, appErrors.Clone(appErrors.ErrForbidden, msgNotAuthorized)
		}
		return false, appErrors.Internal(err, "failed to remove assessment from class")
	}
	s.reports.clearPairs(ctx, models.ClassSubjectPair{ClassID: form.ClassID, SubjectID: form.SubjectID})

	action := models.ActivityAssessmentUnassign
	if deletedAll {
		action = models.ActivityAssessmentDelete
	}
	s.activity.Record(ctx, scope, action, "assessment", form.AssessmentID, map[string]interface{}{
		"class_id":   form.ClassID,
		"subject_id": form.SubjectID,
	})
	return deletedAll, nil
}

// Delete removes a pending owned assessment from every class.
func (s *AssessmentService) Delete(ctx context.Context, scope models.TeacherScope, form dto.DeleteAssessmentForm) error {
	if err := s.validator.Struct(form); err != nil {
		return validationError(err)
	}
	if err := s.access.RequireAssessment(ctx, scope, form.AssessmentID, true); err != nil {
		return err
	}
	pairs, err := s.repo.ListPairs(ctx, form.AssessmentID)
	if err != nil {
		return appErrors.Internal(err, "failed to load assessment classes")
	}
	if err := s.repo.Delete(ctx, form.AssessmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrForbidden, msgAssessmentUnavailable)
		}
		return appErrors.Internal(err, "failed to delete assessment")
	}
	s.reports.clearPairs(ctx, pairs...)
	s.activity.Record(ctx, scope, models.ActivityAssessmentDelete, "assessment", form.AssessmentID, nil)
	return nil
}

// buildAssessment validates the scalar fields of the form and converts them.
func (s *AssessmentService) buildAssessment(ctx context.Context, form dto.AssessmentForm) (*models.Assessment, error) {
	form.Title = strings.TrimSpace(form.Title)
	if err := s.validator.Struct(form); err != nil {
		return nil, validationError(err)
	}
	if _, err := s.access.RequireSemester(ctx, form.SemesterID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(form.AssessmentTypeID) == "" {
		return nil, invalid("Please select an assessment type.")
	}
	exists, err := s.types.AssessmentTypeExists(ctx, form.AssessmentTypeID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check assessment type")
	}
	if !exists {
		return nil, invalid("Selected assessment type does not exist.")
	}

	date, err := time.Parse("2006-01-02", form.AssessmentDate)
	if err != nil {
		return nil, invalid("Assessment date has an invalid format.")
	}
	a := &models.Assessment{
		Title:               form.Title,
		AssessmentDate:      date,
		SemesterID:          form.SemesterID,
		AssessmentTypeID:    form.AssessmentTypeID,
		AllowLateSubmission: form.AllowLateSubmission,
		ShuffleQuestions:    form.ShuffleQuestions,
		ShuffleOptions:      form.ShuffleOptions,
		UseQuestionLimit:    form.UseQuestionLimit,
	}
	if desc := strings.TrimSpace(form.Description); desc != "" {
		a.Description = &desc
	}
	if form.AllowLateSubmission {
		a.LateSubmissionDays = form.LateSubmissionDays
	}
	if form.StartTime != "" {
		start := form.StartTime
		a.StartTime = &start
	}
	if form.EndTime != "" {
		end := form.EndTime
		a.EndTime = &end
	}
	if a.StartTime != nil && a.EndTime != nil {
		window, err := minutesBetween(*a.StartTime, *a.EndTime)
		if err != nil {
			return nil, invalid("Start and end times have an invalid format.")
		}
		if window <= 0 {
			return nil, invalid("End time must be after start time.")
		}
		if form.DurationMinutes > window {
			return nil, invalid("Duration cannot exceed the time between start and end times.")
		}
	}
	if form.DurationMinutes > 0 {
		d := form.DurationMinutes
		a.DurationMinutes = &d
	}
	if form.UseQuestionLimit {
		if form.QuestionsToAnswer < 1 {
			return nil, invalid("Number of questions to answer must be at least 1.")
		}
		n := form.QuestionsToAnswer
		a.QuestionsToAnswer = &n
	}
	return a, nil
}

func minutesBetween(start, end string) (int, error) {
	s, err := time.Parse("15:04", start)
	if err != nil {
		return 0, err
	}
	e, err := time.Parse("15:04", end)
	if err != nil {
		return 0, err
	}
	return int(e.Sub(s).Minutes()), nil
}

// sameAssessment compares the fields the edit form controls.
func sameAssessment(a, b models.Assessment) bool {
	return a.Title == b.Title &&
		equalStringPtr(a.Description, b.Description) &&
		a.AssessmentDate.Format("2006-01-02") == b.AssessmentDate.Format("2006-01-02") &&
		equalStringPtr(a.StartTime, b.StartTime) &&
		equalStringPtr(a.EndTime, b.EndTime) &&
		equalIntPtr(a.DurationMinutes, b.DurationMinutes) &&
		a.SemesterID == b.SemesterID &&
		a.AssessmentTypeID == b.AssessmentTypeID &&
		a.AllowLateSubmission == b.AllowLateSubmission &&
		a.LateSubmissionDays == b.LateSubmissionDays &&
		a.ShuffleQuestions == b.ShuffleQuestions &&
		a.ShuffleOptions == b.ShuffleOptions &&
		a.UseQuestionLimit == b.UseQuestionLimit &&
		equalIntPtr(a.QuestionsToAnswer, b.QuestionsToAnswer)
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
