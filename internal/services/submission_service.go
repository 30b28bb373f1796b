package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/terraincognita07/whiteboar/internal/db"
	"github.com/terraincognita07/whiteboar/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	DefaultOnboardingPaymentAmount = 4000
	DefaultCurrency                = "eur"
	PaymentStatusWindow            = 24 * time.Hour

	PaymentStatusPending   = "pending"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"

	// Card details are not delivered with payment webhooks.
	placeholderCardLast4 = "0000"
)

var cardLast4Pattern = regexp.MustCompile(`^\d{4}$`)

type SubmissionRepository interface {
	CreateForSession(ctx context.Context, submission *models.OnboardingSubmission, expectedSessionVersion int64, now time.Time) error
	FindByID(ctx context.Context, submissionID string) (models.OnboardingSubmission, error)
	FindBySessionID(ctx context.Context, sessionID string) (models.OnboardingSubmission, error)
	FindByBillingReference(ctx context.Context, reference db.BillingReference) (models.OnboardingSubmission, error)
	UpdateWithVersion(ctx context.Context, submissionID string, expectedVersion int64, updates map[string]any) error
}

type PaymentSettings struct {
	OnboardingAmount int64
	Currency         string
}

type SubmissionService struct {
	sessions    SessionRepository
	submissions SubmissionRepository
	billing     BillingGateway
	publisher   EventPublisher
	payments    PaymentSettings
	now         func() time.Time
}

type SubmissionStatus struct {
	SubmissionID string `json:"submissionId,omitempty"`
	Status       string `json:"status"`
}

type CompletePaymentInput struct {
	SubmissionID    string
	PaymentIntentID string
	CardLast4       string
}

// PaymentDetails are written on the submission when it becomes paid.
type PaymentDetails struct {
	TransactionID string
	CardLast4     string
	Amount        int64
	Currency      string
}

type PaymentStatusResult struct {
	Status      string     `json:"status"`
	PaidAt      *time.Time `json:"paidAt,omitempty"`
	Transaction string     `json:"transactionId,omitempty"`
}

func NewSubmissionService(sessions SessionRepository, submissions SubmissionRepository, billing BillingGateway, publisher EventPublisher, payments PaymentSettings) *SubmissionService {
	if payments.OnboardingAmount <= 0 {
		payments.OnboardingAmount = DefaultOnboardingPaymentAmount
	}
	payments.Currency = strings.ToLower(strings.TrimSpace(payments.Currency))
	if payments.Currency == "" {
		payments.Currency = DefaultCurrency
	}
	return &SubmissionService{
		sessions:    sessions,
		submissions: submissions,
		billing:     billing,
		publisher:   publisher,
		payments:    payments,
		now:         time.Now,
	}
}

// Submit snapshots the session's form data into a submission and links it on the session.
// A session gets at most one submission.
func (service *SubmissionService) Submit(ctx context.Context, sessionID string) (models.OnboardingSubmission, error) {
	for attempt := 0; attempt < maxCompareAndSwapAttempts; attempt++ {
		now := service.now().UTC()
		session, err := loadActiveSession(ctx, service.sessions, sessionID, now)
		if err != nil {
			return models.OnboardingSubmission{}, err
		}
		if session.SubmissionID != nil {
			return models.OnboardingSubmission{}, ErrSubmissionExists
		}
		if exists, err := service.hasSubmission(ctx, session.ID); err != nil {
			return models.OnboardingSubmission{}, err
		} else if exists {
			return models.OnboardingSubmission{}, ErrSubmissionExists
		}

		businessName := formDataString(session.FormData, "businessName", "step3.businessName")
		if businessName == "" {
			return models.OnboardingSubmission{}, ErrBusinessNameRequired
		}
		email := formDataString(session.FormData, "email", "businessEmail", "step3.businessEmail")
		if email == "" {
			email = session.Email
		}

		completionSeconds := int64(now.Sub(session.CreatedAt).Seconds())
		if completionSeconds < 0 {
			completionSeconds = 0
		}
		submission := models.OnboardingSubmission{
			ID:                    uuid.NewString(),
			SessionID:             session.ID,
			Email:                 email,
			BusinessName:          businessName,
			FormData:              MergeFormData(session.FormData, nil),
			Status:                models.SubmissionStatusSubmitted,
			CompletionTimeSeconds: completionSeconds,
			Version:               1,
			CreatedAt:             now,
			UpdatedAt:             now,
		}

		err = service.submissions.CreateForSession(ctx, &submission, session.Version, now)
		if errors.Is(err, db.ErrVersionConflict) {
			continue
		}
		if err != nil {
			if exists, lookupErr := service.hasSubmission(ctx, session.ID); lookupErr == nil && exists {
				return models.OnboardingSubmission{}, ErrSubmissionExists
			}
			return models.OnboardingSubmission{}, fmt.Errorf("create submission: %w", err)
		}

		log.Info().
			Str("session_id", session.ID).
			Str("submission_id", submission.ID).
			Int64("completion_time_seconds", completionSeconds).
			Msg("onboarding submitted")
		return submission, nil
	}
	return models.OnboardingSubmission{}, ErrConcurrentUpdate
}

func (service *SubmissionService) Get(ctx context.Context, submissionID string) (models.OnboardingSubmission, error) {
	return loadSubmission(ctx, service.submissions, submissionID, ErrSubmissionNotFound)
}

func (service *SubmissionService) StatusBySession(ctx context.Context, sessionID string) (SubmissionStatus, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return SubmissionStatus{}, ErrSessionIDRequired
	}

	submission, err := service.submissions.FindBySessionID(ctx, sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SubmissionStatus{Status: models.SubmissionStatusDraft}, nil
	}
	if err != nil {
		return SubmissionStatus{}, fmt.Errorf("load submission status: %w", err)
	}
	return SubmissionStatus{SubmissionID: submission.ID, Status: submission.Status}, nil
}

func (service *SubmissionService) CreatePaymentIntent(ctx context.Context, submissionID string) (PaymentIntent, error) {
	submission, err := loadSubmission(ctx, service.submissions, submissionID, ErrSubmissionNotFound)
	if err != nil {
		return PaymentIntent{}, err
	}
	if submission.IsPaid() {
		return PaymentIntent{}, ErrPaymentAlreadyComplete
	}

	intent, err := service.billing.CreatePaymentIntent(ctx, PaymentIntentRequest{
		Amount:      service.payments.OnboardingAmount,
		Currency:    service.payments.Currency,
		Description: "WhiteBoar onboarding",
		Metadata: map[string]string{
			"submission_id": submission.ID,
			"session_id":    submission.SessionID,
		},
	})
	if err != nil {
		return PaymentIntent{}, upstreamError("create payment intent", err)
	}

	log.Info().
		Str("submission_id", submission.ID).
		Str("payment_intent_id", intent.ID).
		Int64("amount", intent.Amount).
		Msg("payment intent created")
	return intent, nil
}

// CompletePayment trusts the client only for the card digits. The payment itself is
// confirmed against the billing provider before the submission is marked paid.
func (service *SubmissionService) CompletePayment(ctx context.Context, input CompletePaymentInput) (models.OnboardingSubmission, error) {
	cardLast4 := strings.TrimSpace(input.CardLast4)
	if !cardLast4Pattern.MatchString(cardLast4) {
		return models.OnboardingSubmission{}, ErrInvalidCardLast4
	}
	paymentIntentID := strings.TrimSpace(input.PaymentIntentID)
	if paymentIntentID == "" {
		return models.OnboardingSubmission{}, ErrPaymentNotConfirmed
	}

	submission, err := loadSubmission(ctx, service.submissions, input.SubmissionID, ErrSubmissionNotFound)
	if err != nil {
		return models.OnboardingSubmission{}, err
	}
	if submission.IsPaid() {
		if submission.PaymentTransactionID == paymentIntentID {
			return submission, nil
		}
		return models.OnboardingSubmission{}, ErrPaymentAlreadyComplete
	}

	intent, err := service.billing.RetrievePaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return models.OnboardingSubmission{}, upstreamError("retrieve payment intent", err)
	}
	if intent.Status != PaymentIntentStatusSucceeded || intent.Metadata["submission_id"] != submission.ID {
		log.Warn().
			Str("submission_id", submission.ID).
			Str("payment_intent_id", paymentIntentID).
			Str("intent_status", intent.Status).
			Msg("payment completion rejected")
		return models.OnboardingSubmission{}, ErrPaymentNotConfirmed
	}

	return service.MarkPaid(ctx, submission.ID, PaymentDetails{
		TransactionID: intent.ID,
		CardLast4:     cardLast4,
		Amount:        intent.Amount,
		Currency:      intent.Currency,
	})
}

func (service *SubmissionService) PaymentStatus(ctx context.Context, submissionID string) (PaymentStatusResult, error) {
	submission, err := loadSubmission(ctx, service.submissions, submissionID, ErrSubmissionNotFound)
	if err != nil {
		return PaymentStatusResult{}, err
	}
	if service.now().Sub(submission.CreatedAt) > PaymentStatusWindow {
		return PaymentStatusResult{}, ErrPaymentStatusExpired
	}

	switch submission.Status {
	case models.SubmissionStatusPaid:
		return PaymentStatusResult{
			Status:      PaymentStatusSucceeded,
			PaidAt:      submission.PaymentCompletedAt,
			Transaction: submission.PaymentTransactionID,
		}, nil
	case models.SubmissionStatusFailed:
		return PaymentStatusResult{Status: PaymentStatusFailed}, nil
	default:
		return PaymentStatusResult{Status: PaymentStatusPending}, nil
	}
}

// MarkPaid moves the submission to paid. Marking an already paid submission is a no-op that
// returns the stored row unchanged.
func (service *SubmissionService) MarkPaid(ctx context.Context, submissionID string, details PaymentDetails) (models.OnboardingSubmission, error) {
	var transitioned bool
	submission, err := mutateSubmission(ctx, service.submissions, submissionID, func(submission models.OnboardingSubmission) (map[string]any, error) {
		if submission.IsPaid() {
			return nil, nil
		}
		if !models.CanTransitionSubmissionStatus(submission.Status, models.SubmissionStatusPaid) {
			return nil, ErrInvalidStatusTransition
		}

		now := service.now().UTC()
		updates := map[string]any{
			"status":                 models.SubmissionStatusPaid,
			"payment_transaction_id": details.TransactionID,
			"payment_completed_at":   now,
			"payment_card_last4":     details.CardLast4,
			"updated_at":             now,
		}
		if details.Amount > 0 {
			updates["payment_amount"] = details.Amount
		}
		if currency := strings.ToLower(strings.TrimSpace(details.Currency)); currency != "" {
			updates["payment_currency"] = currency
		}
		transitioned = true
		return updates, nil
	})
	if err != nil {
		return models.OnboardingSubmission{}, err
	}

	if transitioned {
		log.Info().
			Str("submission_id", submission.ID).
			Str("transaction_id", details.TransactionID).
			Msg("submission marked paid")
		publishEvent(ctx, service.publisher, "payment.succeeded", submission.ID, map[string]any{
			"submission_id":  submission.ID,
			"session_id":     submission.SessionID,
			"transaction_id": details.TransactionID,
			"amount":         details.Amount,
			"currency":       details.Currency,
		})
	}
	return submission, nil
}

func (service *SubmissionService) hasSubmission(ctx context.Context, sessionID string) (bool, error) {
	_, err := service.submissions.FindBySessionID(ctx, sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load session submission: %w", err)
	}
	return true, nil
}

func loadSubmission(ctx context.Context, submissions SubmissionRepository, submissionID string, notFound error) (models.OnboardingSubmission, error) {
	submissionID = strings.TrimSpace(submissionID)
	if submissionID == "" {
		return models.OnboardingSubmission{}, notFound
	}

	submission, err := submissions.FindByID(ctx, submissionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.OnboardingSubmission{}, notFound
	}
	if err != nil {
		return models.OnboardingSubmission{}, fmt.Errorf("load submission: %w", err)
	}
	return submission, nil
}

// submissionMutation returns nil updates to leave the row untouched.
type submissionMutation func(submission models.OnboardingSubmission) (map[string]any, error)

func mutateSubmission(ctx context.Context, submissions SubmissionRepository, submissionID string, mutation submissionMutation) (models.OnboardingSubmission, error) {
	for attempt := 0; attempt < maxCompareAndSwapAttempts; attempt++ {
		submission, err := loadSubmission(ctx, submissions, submissionID, ErrSubmissionNotFound)
		if err != nil {
			return models.OnboardingSubmission{}, err
		}

		updates, err := mutation(submission)
		if err != nil {
			return models.OnboardingSubmission{}, err
		}
		if updates == nil {
			return submission, nil
		}

		err = submissions.UpdateWithVersion(ctx, submission.ID, submission.Version, updates)
		if errors.Is(err, db.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return models.OnboardingSubmission{}, fmt.Errorf("update submission: %w", err)
		}
		return loadSubmission(ctx, submissions, submission.ID, ErrSubmissionNotFound)
	}
	return models.OnboardingSubmission{}, ErrConcurrentUpdate
}

// formDataString returns the first non-empty string found under the given keys. A dotted key
// such as "step3.businessName" reads from a nested object.
func formDataString(formData datatypes.JSONMap, keys ...string) string {
	for _, key := range keys {
		var value any
		if prefix, field, nested := strings.Cut(key, "."); nested {
			object, ok := formData[prefix].(map[string]any)
			if !ok {
				continue
			}
			value = object[field]
		} else {
			value = formData[key]
		}
		if text, ok := value.(string); ok && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text)
		}
	}
	return ""
}
