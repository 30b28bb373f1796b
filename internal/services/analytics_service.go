package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/terraincognita07/whiteboar/internal/models"
	"gorm.io/datatypes"
)

const (
	maxAnalyticsEventTypeLength = 64
	maxAnalyticsFieldLength     = 128
)

var ErrInvalidAnalyticsEvent = fmt.Errorf("%w: invalid analytics event", ErrValidation)

type AnalyticsRepository interface {
	Create(ctx context.Context, event *models.AnalyticsEvent) error
	CountBySessionAndTypeSince(ctx context.Context, sessionID string, eventType string, since time.Time) (int64, error)
}

type AnalyticsService struct {
	events AnalyticsRepository
	now    func() time.Time
}

type TrackEventInput struct {
	SessionID  string
	EventType  string
	Category   string
	StepNumber *int
	FieldName  string
	DurationMS *int64
	Metadata   map[string]any
	IPAddress  string
	UserAgent  string
}

func NewAnalyticsService(events AnalyticsRepository) *AnalyticsService {
	return &AnalyticsService{events: events, now: time.Now}
}

func (service *AnalyticsService) Track(ctx context.Context, input TrackEventInput) (models.AnalyticsEvent, error) {
	sessionID := strings.TrimSpace(input.SessionID)
	eventType := strings.TrimSpace(input.EventType)
	if sessionID == "" || eventType == "" || len(eventType) > maxAnalyticsEventTypeLength {
		return models.AnalyticsEvent{}, ErrInvalidAnalyticsEvent
	}
	if input.StepNumber != nil && !IsValidOnboardingStep(*input.StepNumber) {
		return models.AnalyticsEvent{}, ErrInvalidStep
	}
	if input.DurationMS != nil && *input.DurationMS < 0 {
		return models.AnalyticsEvent{}, ErrInvalidAnalyticsEvent
	}

	metadata := datatypes.JSONMap{}
	for key, value := range input.Metadata {
		metadata[key] = value
	}

	event := models.AnalyticsEvent{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		EventType:  eventType,
		Category:   truncate(strings.TrimSpace(input.Category), maxAnalyticsFieldLength),
		StepNumber: input.StepNumber,
		FieldName:  truncate(strings.TrimSpace(input.FieldName), maxAnalyticsFieldLength),
		DurationMS: input.DurationMS,
		Metadata:   metadata,
		IPAddress:  truncate(strings.TrimSpace(input.IPAddress), maxIPAddressLength),
		UserAgent:  truncate(strings.TrimSpace(input.UserAgent), maxUserAgentLength),
		CreatedAt:  service.now().UTC(),
	}
	if err := service.events.Create(ctx, &event); err != nil {
		return models.AnalyticsEvent{}, fmt.Errorf("record analytics event: %w", err)
	}
	return event, nil
}

// CountRecent counts events of one type recorded for the session inside the trailing window.
func (service *AnalyticsService) CountRecent(ctx context.Context, sessionID string, eventType string, window time.Duration) (int64, error) {
	since := service.now().UTC().Add(-window)
	count, err := service.events.CountBySessionAndTypeSince(ctx, sessionID, eventType, since)
	if err != nil {
		return 0, fmt.Errorf("count analytics events: %w", err)
	}
	return count, nil
}
