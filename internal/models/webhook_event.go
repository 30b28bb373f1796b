package models

import "time"

const (
	WebhookEventStatusProcessing = "processing"
	WebhookEventStatusCompleted  = "completed"
	WebhookEventStatusFailed     = "failed"
)

// BillingWebhookEvent records every verified provider event so redeliveries are acknowledged
// without being processed twice.
type BillingWebhookEvent struct {
	EventID      string    `gorm:"primaryKey"`
	EventType    string    `gorm:"not null;index"`
	Status       string    `gorm:"not null;default:processing"`
	ErrorMessage string    `gorm:"not null;default:''"`
	ReceivedAt   time.Time `gorm:"not null"`
	CompletedAt  *time.Time
}

func (BillingWebhookEvent) TableName() string {
	return "billing_webhook_events"
}
