package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	AnalyticsEventPaymentAttempt = "payment_attempt"
	AnalyticsEventPaymentFailed  = "payment_failed"
	AnalyticsEventStepView       = "step_view"
	AnalyticsEventStepComplete   = "step_complete"
	AnalyticsEventFieldError     = "field_error"
)

type AnalyticsEvent struct {
	ID         string            `gorm:"primaryKey;size:36" json:"id"`
	SessionID  string            `gorm:"size:36;not null;index" json:"session_id"`
	EventType  string            `gorm:"not null;index" json:"event_type"`
	Category   string            `gorm:"not null;default:''" json:"category,omitempty"`
	StepNumber *int              `json:"step_number,omitempty"`
	FieldName  string            `gorm:"not null;default:''" json:"field_name,omitempty"`
	DurationMS *int64            `gorm:"column:duration_ms" json:"duration_ms,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	IPAddress  string            `gorm:"not null;default:''" json:"-"`
	UserAgent  string            `gorm:"not null;default:''" json:"-"`
	CreatedAt  time.Time         `gorm:"not null;index" json:"created_at"`
}

func (AnalyticsEvent) TableName() string {
	return "onboarding_analytics"
}
