package db

import (
	"errors"

	"gorm.io/gorm"
)

// ErrVersionConflict is returned by compare-and-swap updates when the row changed since it
// was read.
var ErrVersionConflict = errors.New("row version conflict")

type Repositories struct {
	Sessions      *SessionRepository
	Submissions   *SubmissionRepository
	WebhookEvents *WebhookEventRepository
	Analytics     *AnalyticsRepository
}

func NewRepositories(database *gorm.DB) *Repositories {
	return &Repositories{
		Sessions:      NewSessionRepository(database),
		Submissions:   NewSubmissionRepository(database),
		WebhookEvents: NewWebhookEventRepository(database),
		Analytics:     NewAnalyticsRepository(database),
	}
}

func versionedUpdates(updates map[string]any) map[string]any {
	next := make(map[string]any, len(updates)+1)
	for key, value := range updates {
		next[key] = value
	}
	next["version"] = gorm.Expr("version + 1")
	return next
}
