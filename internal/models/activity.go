package models

import (
	"encoding/json"
	"time"
)

// Activity actions recorded for teacher operations.
const (
	ActivityLogin              = "LOGIN"
	ActivityLogout             = "LOGOUT"
	ActivityAssessmentCreate   = "ASSESSMENT_CREATE"
	ActivityAssessmentUpdate   = "ASSESSMENT_UPDATE"
	ActivityAssessmentStatus   = "ASSESSMENT_STATUS"
	ActivityAssessmentDelete   = "ASSESSMENT_DELETE"
	ActivityAssessmentUnassign = "ASSESSMENT_UNASSIGN"
	ActivityAssessmentExpire   = "ASSESSMENT_EXPIRE"
	ActivityQuestionCreate     = "QUESTION_CREATE"
	ActivityQuestionUpdate     = "QUESTION_UPDATE"
	ActivityQuestionDelete     = "QUESTION_DELETE"
	ActivityBankCreate         = "BANK_QUESTION_CREATE"
	ActivityBankUpdate         = "BANK_QUESTION_UPDATE"
	ActivityBankDelete         = "BANK_QUESTION_DELETE"
	ActivityBankImport         = "BANK_QUESTION_IMPORT"
	ActivityResultRecord       = "RESULT_RECORD"
	ActivityImageUpload        = "IMAGE_UPLOAD"
)

// ActivityLog is a persisted trail entry.
type ActivityLog struct {
	ID         string          `db:"id" json:"id"`
	UserID     *string         `db:"user_id" json:"user_id,omitempty"`
	Action     string          `db:"action" json:"action"`
	Resource   string          `db:"resource" json:"resource"`
	ResourceID *string         `db:"resource_id" json:"resource_id,omitempty"`
	Details    json.RawMessage `db:"details" json:"details,omitempty"`
	IPAddress  string          `db:"ip_address" json:"ip_address"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// ActivityEvent is the bus payload published by services.
type ActivityEvent struct {
	UserID     string                 `json:"user_id"`
	Action     string                 `json:"action"`
	Resource   string                 `json:"resource"`
	ResourceID string                 `json:"resource_id"`
	Details    map[string]interface{} `json:"details,omitempty"`
	IPAddress  string                 `json:"ip_address"`
	OccurredAt time.Time              `json:"occurred_at"`
}
