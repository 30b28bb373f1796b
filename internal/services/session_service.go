package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/terraincognita07/whiteboar/internal/db"
	"github.com/terraincognita07/whiteboar/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	maxCompareAndSwapAttempts = 5
	maxIPAddressLength        = 64
	maxUserAgentLength        = 512
)

type SessionRepository interface {
	Create(ctx context.Context, session *models.OnboardingSession) error
	FindByID(ctx context.Context, sessionID string) (models.OnboardingSession, error)
	UpdateWithVersion(ctx context.Context, sessionID string, expectedVersion int64, updates map[string]any) error
}

type SessionService struct {
	sessions SessionRepository
	now      func() time.Time
}

type CreateSessionInput struct {
	Email     string
	Locale    string
	IPAddress string
	UserAgent string
}

// SessionPatch carries the fields a client may change directly. Nil fields are left alone.
type SessionPatch struct {
	CurrentStep   *int
	Locale        *string
	EmailVerified *bool
}

func NewSessionService(sessions SessionRepository) *SessionService {
	return &SessionService{sessions: sessions, now: time.Now}
}

func (service *SessionService) CreateSession(ctx context.Context, input CreateSessionInput) (models.OnboardingSession, error) {
	locale := NormalizeLocale(input.Locale)
	if locale == "" {
		return models.OnboardingSession{}, ErrInvalidLocale
	}
	email := NormalizeEmail(input.Email)
	if email == "" {
		return models.OnboardingSession{}, ErrInvalidEmail
	}

	now := service.now().UTC()
	session := models.OnboardingSession{
		ID:           uuid.NewString(),
		Email:        email,
		Locale:       locale,
		CurrentStep:  models.MinOnboardingStep,
		FormData:     datatypes.JSONMap{},
		IPAddress:    truncate(strings.TrimSpace(input.IPAddress), maxIPAddressLength),
		UserAgent:    truncate(strings.TrimSpace(input.UserAgent), maxUserAgentLength),
		ExpiresAt:    now.Add(models.SessionTTL),
		LastActivity: now,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := service.sessions.Create(ctx, &session); err != nil {
		return models.OnboardingSession{}, fmt.Errorf("create onboarding session: %w", err)
	}
	return session, nil
}

func (service *SessionService) LoadSession(ctx context.Context, sessionID string) (models.OnboardingSession, error) {
	return loadActiveSession(ctx, service.sessions, sessionID, service.now())
}

func (service *SessionService) UpdateStep(ctx context.Context, sessionID string, step int) (models.OnboardingSession, error) {
	if !IsValidOnboardingStep(step) {
		return models.OnboardingSession{}, ErrInvalidStep
	}
	return mutateSession(ctx, service.sessions, service.now, sessionID, func(models.OnboardingSession, time.Time) (map[string]any, error) {
		return map[string]any{"current_step": step}, nil
	})
}

func (service *SessionService) UpdateSession(ctx context.Context, sessionID string, patch SessionPatch) (models.OnboardingSession, error) {
	updates := map[string]any{}
	if patch.CurrentStep != nil {
		if !IsValidOnboardingStep(*patch.CurrentStep) {
			return models.OnboardingSession{}, ErrInvalidStep
		}
		updates["current_step"] = *patch.CurrentStep
	}
	if patch.Locale != nil {
		locale := NormalizeLocale(*patch.Locale)
		if locale == "" {
			return models.OnboardingSession{}, ErrInvalidLocale
		}
		updates["locale"] = locale
	}
	if patch.EmailVerified != nil {
		updates["email_verified"] = *patch.EmailVerified
	}
	if len(updates) == 0 {
		return models.OnboardingSession{}, ErrEmptySessionPatch
	}

	return mutateSession(ctx, service.sessions, service.now, sessionID, func(models.OnboardingSession, time.Time) (map[string]any, error) {
		return cloneUpdates(updates), nil
	})
}

// SaveFormData validates the partial payload and merges its top-level keys over the stored
// form data. Nested objects are replaced, not merged.
func (service *SessionService) SaveFormData(ctx context.Context, sessionID string, partial map[string]any) (models.OnboardingSession, error) {
	if err := ValidateFormData(partial); err != nil {
		return models.OnboardingSession{}, err
	}

	return mutateSession(ctx, service.sessions, service.now, sessionID, func(session models.OnboardingSession, _ time.Time) (map[string]any, error) {
		return map[string]any{"form_data": MergeFormData(session.FormData, partial)}, nil
	})
}

func IsValidOnboardingStep(step int) bool {
	return step >= models.MinOnboardingStep && step <= models.MaxOnboardingStep
}

func MergeFormData(existing map[string]any, partial map[string]any) datatypes.JSONMap {
	merged := make(datatypes.JSONMap, len(existing)+len(partial))
	for key, value := range existing {
		merged[key] = value
	}
	for key, value := range partial {
		merged[key] = value
	}
	return merged
}

func loadActiveSession(ctx context.Context, sessions SessionRepository, sessionID string, now time.Time) (models.OnboardingSession, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return models.OnboardingSession{}, ErrSessionIDRequired
	}

	session, err := sessions.FindByID(ctx, sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.OnboardingSession{}, ErrSessionNotFound
	}
	if err != nil {
		return models.OnboardingSession{}, fmt.Errorf("load onboarding session: %w", err)
	}
	if session.IsExpired(now) {
		return models.OnboardingSession{}, ErrSessionExpired
	}
	return session, nil
}

// sessionMutation builds the column updates for one compare-and-swap attempt. Returning
// updates together with an error persists the updates and then reports the error, which
// lets a failed verification still record the attempt.
type sessionMutation func(session models.OnboardingSession, now time.Time) (map[string]any, error)

func mutateSession(ctx context.Context, sessions SessionRepository, clock func() time.Time, sessionID string, mutation sessionMutation) (models.OnboardingSession, error) {
	for attempt := 0; attempt < maxCompareAndSwapAttempts; attempt++ {
		now := clock().UTC()
		session, err := loadActiveSession(ctx, sessions, sessionID, now)
		if err != nil {
			return models.OnboardingSession{}, err
		}

		updates, mutationErr := mutation(session, now)
		if updates == nil {
			return session, mutationErr
		}
		updates["last_activity"] = now
		updates["updated_at"] = now

		err = sessions.UpdateWithVersion(ctx, session.ID, session.Version, updates)
		if errors.Is(err, db.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return models.OnboardingSession{}, fmt.Errorf("update onboarding session: %w", err)
		}

		updated, err := sessions.FindByID(ctx, session.ID)
		if err != nil {
			return models.OnboardingSession{}, fmt.Errorf("reload onboarding session: %w", err)
		}
		return updated, mutationErr
	}
	return models.OnboardingSession{}, ErrConcurrentUpdate
}

func cloneUpdates(updates map[string]any) map[string]any {
	cloned := make(map[string]any, len(updates))
	for key, value := range updates {
		cloned[key] = value
	}
	return cloned
}

func truncate(value string, maxLength int) string {
	if len(value) <= maxLength {
		return value
	}
	return value[:maxLength]
}
