package db

import (
	"context"
	"time"

	"github.com/terraincognita07/whiteboar/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WebhookEventRepository struct {
	database *gorm.DB
}

func NewWebhookEventRepository(database *gorm.DB) *WebhookEventRepository {
	return &WebhookEventRepository{database: database}
}

// Claim records the event as processing. It returns false when the event was already
// completed or is being processed, and true when the caller should process it. Failed
// events are acknowledged to the provider, so they only come back when an operator resends
// them from the dashboard or replays them; that redelivery re-claims the event.
func (repo *WebhookEventRepository) Claim(ctx context.Context, eventID string, eventType string, now time.Time) (bool, error) {
	inserted := repo.database.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.BillingWebhookEvent{
			EventID:    eventID,
			EventType:  eventType,
			Status:     models.WebhookEventStatusProcessing,
			ReceivedAt: now,
		})
	if inserted.Error != nil {
		return false, inserted.Error
	}
	if inserted.RowsAffected > 0 {
		return true, nil
	}

	retried := repo.database.WithContext(ctx).
		Model(&models.BillingWebhookEvent{}).
		Where("event_id = ? AND status = ?", eventID, models.WebhookEventStatusFailed).
		Updates(map[string]any{
			"status":        models.WebhookEventStatusProcessing,
			"error_message": "",
			"received_at":   now,
		})
	if retried.Error != nil {
		return false, retried.Error
	}
	return retried.RowsAffected > 0, nil
}

func (repo *WebhookEventRepository) MarkCompleted(ctx context.Context, eventID string, now time.Time) error {
	return repo.database.WithContext(ctx).
		Model(&models.BillingWebhookEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]any{
			"status":       models.WebhookEventStatusCompleted,
			"completed_at": now,
		}).Error
}

func (repo *WebhookEventRepository) MarkFailed(ctx context.Context, eventID string, message string, now time.Time) error {
	return repo.database.WithContext(ctx).
		Model(&models.BillingWebhookEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]any{
			"status":        models.WebhookEventStatusFailed,
			"error_message": message,
			"completed_at":  now,
		}).Error
}

func (repo *WebhookEventRepository) FindByEventID(ctx context.Context, eventID string) (models.BillingWebhookEvent, error) {
	var event models.BillingWebhookEvent
	if err := repo.database.WithContext(ctx).Where("event_id = ?", eventID).First(&event).Error; err != nil {
		return models.BillingWebhookEvent{}, err
	}
	return event, nil
}
