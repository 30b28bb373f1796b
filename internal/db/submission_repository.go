package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/terraincognita07/whiteboar/internal/models"
	"gorm.io/gorm"
)

type SubmissionRepository struct {
	database *gorm.DB
}

func NewSubmissionRepository(database *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{database: database}
}

// CreateForSession inserts the submission and links it on the session in one transaction.
// The link only succeeds while the session is still at expectedSessionVersion.
func (repo *SubmissionRepository) CreateForSession(ctx context.Context, submission *models.OnboardingSubmission, expectedSessionVersion int64, now time.Time) error {
	return repo.database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(submission).Error; err != nil {
			return err
		}

		result := tx.Model(&models.OnboardingSession{}).
			Where("id = ? AND version = ? AND submission_id IS NULL", submission.SessionID, expectedSessionVersion).
			Updates(versionedUpdates(map[string]any{
				"submission_id": submission.ID,
				"last_activity": now,
				"updated_at":    now,
			}))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrVersionConflict
		}
		return nil
	})
}

func (repo *SubmissionRepository) FindByID(ctx context.Context, submissionID string) (models.OnboardingSubmission, error) {
	var submission models.OnboardingSubmission
	if err := repo.database.WithContext(ctx).Where("id = ?", submissionID).First(&submission).Error; err != nil {
		return models.OnboardingSubmission{}, err
	}
	return submission, nil
}

func (repo *SubmissionRepository) FindBySessionID(ctx context.Context, sessionID string) (models.OnboardingSubmission, error) {
	var submission models.OnboardingSubmission
	if err := repo.database.WithContext(ctx).Where("session_id = ?", sessionID).First(&submission).Error; err != nil {
		return models.OnboardingSubmission{}, err
	}
	return submission, nil
}

type BillingReference struct {
	ScheduleID     string
	SubscriptionID string
	CustomerID     string
}

// FindByBillingReference tries the schedule id, then the subscription id, then the customer
// id. The customer lookup returns the most recent submission for that customer.
func (repo *SubmissionRepository) FindByBillingReference(ctx context.Context, reference BillingReference) (models.OnboardingSubmission, error) {
	lookups := []struct {
		column string
		value  string
	}{
		{column: "stripe_subscription_schedule_id", value: reference.ScheduleID},
		{column: "stripe_subscription_id", value: reference.SubscriptionID},
		{column: "stripe_customer_id", value: reference.CustomerID},
	}

	for _, lookup := range lookups {
		if strings.TrimSpace(lookup.value) == "" {
			continue
		}

		var submission models.OnboardingSubmission
		err := repo.database.WithContext(ctx).
			Where(lookup.column+" = ?", lookup.value).
			Order("created_at DESC").
			First(&submission).Error
		if err == nil {
			return submission, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return models.OnboardingSubmission{}, err
		}
	}
	return models.OnboardingSubmission{}, gorm.ErrRecordNotFound
}

func (repo *SubmissionRepository) UpdateWithVersion(ctx context.Context, submissionID string, expectedVersion int64, updates map[string]any) error {
	result := repo.database.WithContext(ctx).
		Model(&models.OnboardingSubmission{}).
		Where("id = ? AND version = ?", submissionID, expectedVersion).
		Updates(versionedUpdates(updates))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}
