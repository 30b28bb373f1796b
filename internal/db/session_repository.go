package db

import (
	"context"

	"github.com/terraincognita07/whiteboar/internal/models"
	"gorm.io/gorm"
)

type SessionRepository struct {
	database *gorm.DB
}

func NewSessionRepository(database *gorm.DB) *SessionRepository {
	return &SessionRepository{database: database}
}

func (repo *SessionRepository) Create(ctx context.Context, session *models.OnboardingSession) error {
	return repo.database.WithContext(ctx).Create(session).Error
}

func (repo *SessionRepository) FindByID(ctx context.Context, sessionID string) (models.OnboardingSession, error) {
	var session models.OnboardingSession
	if err := repo.database.WithContext(ctx).Where("id = ?", sessionID).First(&session).Error; err != nil {
		return models.OnboardingSession{}, err
	}
	return session, nil
}

// UpdateWithVersion applies updates only when the stored version still equals
// expectedVersion, and bumps the version on success.
func (repo *SessionRepository) UpdateWithVersion(ctx context.Context, sessionID string, expectedVersion int64, updates map[string]any) error {
	result := repo.database.WithContext(ctx).
		Model(&models.OnboardingSession{}).
		Where("id = ? AND version = ?", sessionID, expectedVersion).
		Updates(versionedUpdates(updates))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

type CleanupResult struct {
	SessionsDeleted    int64
	SubmissionsDeleted int64
	AnalyticsDeleted   int64
}

// DeleteCascade removes a session together with its submission and analytics rows.
func (repo *SessionRepository) DeleteCascade(ctx context.Context, sessionID string) (CleanupResult, error) {
	result := CleanupResult{}
	err := repo.database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		analytics := tx.Where("session_id = ?", sessionID).Delete(&models.AnalyticsEvent{})
		if analytics.Error != nil {
			return analytics.Error
		}
		result.AnalyticsDeleted = analytics.RowsAffected

		submissions := tx.Where("session_id = ?", sessionID).Delete(&models.OnboardingSubmission{})
		if submissions.Error != nil {
			return submissions.Error
		}
		result.SubmissionsDeleted = submissions.RowsAffected

		sessions := tx.Where("id = ?", sessionID).Delete(&models.OnboardingSession{})
		if sessions.Error != nil {
			return sessions.Error
		}
		result.SessionsDeleted = sessions.RowsAffected
		return nil
	})
	if err != nil {
		return CleanupResult{}, err
	}
	return result, nil
}
