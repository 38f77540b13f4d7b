package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-assessments/internal/models"
	"github.com/noah-isme/sma-adp-assessments/pkg/events"
)

type activityPublisher interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
}

type activityStore interface {
	Insert(ctx context.Context, entry *models.ActivityLog) error
}

// activityRecorder is what the domain services depend on.
type activityRecorder interface {
	Record(ctx context.Context, scope models.TeacherScope, action, resource, resourceID string, details map[string]interface{})
}

type noopActivity struct{}

func (noopActivity) Record(context.Context, models.TeacherScope, string, string, string, map[string]interface{}) {
}

// ActivityService publishes teacher actions on the event bus and persists them
// from the subscriber side.
type ActivityService struct {
	publisher activityPublisher
	store     activityStore
	logger    *zap.Logger
	now       func() time.Time
}

// NewActivityService constructs an ActivityService.
func NewActivityService(publisher activityPublisher, store activityStore, logger *zap.Logger) *ActivityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityService{publisher: publisher, store: store, logger: logger, now: time.Now}
}

// Record publishes an activity event. Failures are logged and never reach the caller.
func (s *ActivityService) Record(ctx context.Context, scope models.TeacherScope, action, resource, resourceID string, details map[string]interface{}) {
	if s == nil || s.publisher == nil {
		return
	}
	event := models.ActivityEvent{
		UserID:     scope.UserID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Details:    details,
		IPAddress:  scope.IPAddress,
		OccurredAt: s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, events.TopicActivity, event); err != nil {
		s.logger.Warn("failed to publish activity", zap.String("action", action), zap.Error(err))
	}
}

// Persist decodes a published activity event and stores it. It is registered as
// the activity topic handler.
func (s *ActivityService) Persist(ctx context.Context, payload []byte) error {
	var event models.ActivityEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("decode activity event: %w", err)
	}
	entry := &models.ActivityLog{
		Action:    event.Action,
		Resource:  event.Resource,
		IPAddress: event.IPAddress,
		CreatedAt: event.OccurredAt,
	}
	if event.UserID != "" {
		entry.UserID = &event.UserID
	}
	if event.ResourceID != "" {
		entry.ResourceID = &event.ResourceID
	}
	if len(event.Details) > 0 {
		raw, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("encode activity details: %w", err)
		}
		entry.Details = raw
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	return s.store.Insert(ctx, entry)
}
