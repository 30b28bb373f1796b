package db

import (
	"context"
	"time"

	"github.com/terraincognita07/whiteboar/internal/models"
	"gorm.io/gorm"
)

type AnalyticsRepository struct {
	database *gorm.DB
}

func NewAnalyticsRepository(database *gorm.DB) *AnalyticsRepository {
	return &AnalyticsRepository{database: database}
}

func (repo *AnalyticsRepository) Create(ctx context.Context, event *models.AnalyticsEvent) error {
	return repo.database.WithContext(ctx).Create(event).Error
}

func (repo *AnalyticsRepository) CountBySessionAndTypeSince(ctx context.Context, sessionID string, eventType string, since time.Time) (int64, error) {
	var count int64
	if err := repo.database.WithContext(ctx).
		Model(&models.AnalyticsEvent{}).
		Where("session_id = ? AND event_type = ? AND created_at >= ?", sessionID, eventType, since).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
