package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/terraincognita07/whiteboar/internal/db"
	"github.com/terraincognita07/whiteboar/internal/models"
	"gorm.io/gorm"
)

const (
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
	EventPaymentIntentFailed    = "payment_intent.payment_failed"
	EventInvoicePaid            = "invoice.paid"
	EventInvoicePaymentSuccess  = "invoice.payment_succeeded"
	EventSubscriptionCreated    = "customer.subscription.created"
	EventSubscriptionUpdated    = "customer.subscription.updated"
	EventSubscriptionDeleted    = "customer.subscription.deleted"
	EventScheduleCompleted      = "subscription_schedule.completed"
	EventScheduleCanceled       = "subscription_schedule.canceled"
	EventScheduleReleased       = "subscription_schedule.released"
	EventChargeRefunded         = "charge.refunded"

	maxWebhookErrorLength = 1000
)

type WebhookEventRepository interface {
	Claim(ctx context.Context, eventID string, eventType string, now time.Time) (bool, error)
	MarkCompleted(ctx context.Context, eventID string, now time.Time) error
	MarkFailed(ctx context.Context, eventID string, message string, now time.Time) error
}

type WebhookOutcome struct {
	EventID   string `json:"eventId"`
	EventType string `json:"eventType"`
	Duplicate bool   `json:"duplicate"`
	Handled   bool   `json:"handled"`
}

type WebhookService struct {
	billing     BillingGateway
	events      WebhookEventRepository
	submissions SubmissionRepository
	payments    *SubmissionService
	analytics   *AnalyticsService
	publisher   EventPublisher
	now         func() time.Time
}

func NewWebhookService(billing BillingGateway, events WebhookEventRepository, submissions SubmissionRepository, payments *SubmissionService, analytics *AnalyticsService, publisher EventPublisher) *WebhookService {
	return &WebhookService{
		billing:     billing,
		events:      events,
		submissions: submissions,
		payments:    payments,
		analytics:   analytics,
		publisher:   publisher,
		now:         time.Now,
	}
}

// HandleEvent verifies and applies one billing webhook delivery. Only a bad signature is
// returned as an error; anything that goes wrong afterwards is logged, recorded on the event
// row and acknowledged so the provider does not retry forever.
func (service *WebhookService) HandleEvent(ctx context.Context, payload []byte, signatureHeader string) (WebhookOutcome, error) {
	event, err := service.billing.ParseWebhookEvent(payload, signatureHeader)
	if err != nil {
		log.Warn().Err(err).Msg("webhook signature verification failed")
		return WebhookOutcome{}, ErrWebhookSignature
	}

	outcome := WebhookOutcome{EventID: event.ID, EventType: event.Type}
	claimed, err := service.events.Claim(ctx, event.ID, event.Type, service.now().UTC())
	if err != nil {
		log.Error().Err(err).Str("event_id", event.ID).Msg("claim webhook event")
		return outcome, nil
	}
	if !claimed {
		log.Info().Str("event_id", event.ID).Str("event_type", event.Type).Msg("duplicate webhook event")
		outcome.Duplicate = true
		return outcome, nil
	}

	handled, err := service.dispatch(ctx, event)
	if err != nil {
		log.Error().Err(err).Str("event_id", event.ID).Str("event_type", event.Type).Msg("process webhook event")
		if markErr := service.events.MarkFailed(ctx, event.ID, truncate(err.Error(), maxWebhookErrorLength), service.now().UTC()); markErr != nil {
			log.Error().Err(markErr).Str("event_id", event.ID).Msg("record webhook failure")
		}
		return outcome, nil
	}

	outcome.Handled = handled
	if err := service.events.MarkCompleted(ctx, event.ID, service.now().UTC()); err != nil {
		log.Error().Err(err).Str("event_id", event.ID).Msg("record webhook completion")
	}
	return outcome, nil
}

func (service *WebhookService) dispatch(ctx context.Context, event BillingEvent) (bool, error) {
	switch event.Type {
	case EventPaymentIntentSucceeded:
		return service.handlePaymentSucceeded(ctx, event.PaymentIntent)
	case EventPaymentIntentFailed:
		return service.handlePaymentFailed(ctx, event.PaymentIntent)
	case EventInvoicePaid, EventInvoicePaymentSuccess:
		return service.handleInvoicePaid(ctx, event.Invoice)
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		return service.handleSubscriptionChange(ctx, event.Type, event.Subscription)
	case EventScheduleCompleted, EventScheduleCanceled, EventScheduleReleased:
		return service.handleScheduleChange(ctx, event.Type, event.Schedule)
	case EventChargeRefunded:
		return service.handleChargeRefunded(ctx, event.Charge)
	default:
		log.Debug().Str("event_type", event.Type).Msg("ignoring webhook event type")
		return false, nil
	}
}

func (service *WebhookService) handlePaymentSucceeded(ctx context.Context, intent *PaymentIntent) (bool, error) {
	if intent == nil {
		return false, errors.New("payment intent payload missing")
	}
	submissionID := intent.Metadata["submission_id"]
	if submissionID == "" {
		log.Info().Str("payment_intent_id", intent.ID).Msg("payment intent without submission id")
		return false, nil
	}

	_, err := service.payments.MarkPaid(ctx, submissionID, PaymentDetails{
		TransactionID: intent.ID,
		CardLast4:     placeholderCardLast4,
		Amount:        intent.Amount,
		Currency:      intent.Currency,
	})
	if errors.Is(err, ErrSubmissionNotFound) {
		log.Warn().Str("submission_id", submissionID).Msg("payment for unknown submission")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (service *WebhookService) handlePaymentFailed(ctx context.Context, intent *PaymentIntent) (bool, error) {
	if intent == nil {
		return false, errors.New("payment intent payload missing")
	}
	submissionID := intent.Metadata["submission_id"]
	log.Warn().
		Str("payment_intent_id", intent.ID).
		Str("submission_id", submissionID).
		Msg("payment failed")

	if submissionID != "" && service.analytics != nil {
		if submission, err := loadSubmission(ctx, service.submissions, submissionID, ErrSubmissionNotFound); err == nil {
			_, trackErr := service.analytics.Track(ctx, TrackEventInput{
				SessionID: submission.SessionID,
				EventType: models.AnalyticsEventPaymentFailed,
				Category:  "payment",
				Metadata: map[string]any{
					"submission_id":     submissionID,
					"payment_intent_id": intent.ID,
				},
			})
			if trackErr != nil {
				log.Warn().Err(trackErr).Str("submission_id", submissionID).Msg("record payment failure")
			}
		}
	}

	publishEvent(ctx, service.publisher, "payment.failed", submissionID, map[string]any{
		"submission_id":     submissionID,
		"payment_intent_id": intent.ID,
		"amount":            intent.Amount,
		"currency":          intent.Currency,
	})
	return true, nil
}

func (service *WebhookService) handleInvoicePaid(ctx context.Context, invoice *InvoiceEvent) (bool, error) {
	if invoice == nil {
		return false, errors.New("invoice payload missing")
	}

	submission, found, err := service.findSubmission(ctx, invoice.Metadata["submission_id"], db.BillingReference{
		SubscriptionID: invoice.SubscriptionID,
		CustomerID:     invoice.CustomerID,
	})
	if err != nil || !found {
		return false, err
	}

	transactionID := invoice.PaymentIntentID
	if transactionID == "" {
		transactionID = invoice.ID
	}
	if _, err := service.payments.MarkPaid(ctx, submission.ID, PaymentDetails{
		TransactionID: transactionID,
		CardLast4:     placeholderCardLast4,
		Amount:        invoice.AmountPaid,
		Currency:      invoice.Currency,
	}); err != nil {
		return false, err
	}
	return true, nil
}

func (service *WebhookService) handleSubscriptionChange(ctx context.Context, eventType string, subscription *SubscriptionEvent) (bool, error) {
	if subscription == nil {
		return false, errors.New("subscription payload missing")
	}

	submission, found, err := service.findSubmission(ctx, subscription.Metadata["submission_id"], db.BillingReference{
		ScheduleID:     subscription.ScheduleID,
		SubscriptionID: subscription.ID,
		CustomerID:     subscription.CustomerID,
	})
	if err != nil || !found {
		return false, err
	}

	_, err = mutateSubmission(ctx, service.submissions, submission.ID, func(current models.OnboardingSubmission) (map[string]any, error) {
		updates := map[string]any{
			"stripe_subscription_status": subscription.Status,
			"updated_at":                 service.now().UTC(),
		}
		if current.StripeSubscriptionID == "" {
			updates["stripe_subscription_id"] = subscription.ID
		}
		if current.StripeCustomerID == "" && subscription.CustomerID != "" {
			updates["stripe_customer_id"] = subscription.CustomerID
		}
		return updates, nil
	})
	if err != nil {
		return false, err
	}

	log.Info().
		Str("submission_id", submission.ID).
		Str("subscription_id", subscription.ID).
		Str("status", subscription.Status).
		Msg("subscription status updated")
	publishEvent(ctx, service.publisher, "subscription.updated", submission.ID, map[string]any{
		"submission_id":   submission.ID,
		"subscription_id": subscription.ID,
		"status":          subscription.Status,
		"event_type":      eventType,
	})
	return true, nil
}

func (service *WebhookService) handleScheduleChange(ctx context.Context, eventType string, schedule *ScheduleEvent) (bool, error) {
	if schedule == nil {
		return false, errors.New("subscription schedule payload missing")
	}

	log.Info().
		Str("schedule_id", schedule.ID).
		Str("status", schedule.Status).
		Str("event_type", eventType).
		Msg("subscription schedule changed")
	publishEvent(ctx, service.publisher, "subscription.schedule_changed", schedule.Metadata["submission_id"], map[string]any{
		"schedule_id":     schedule.ID,
		"subscription_id": schedule.SubscriptionID,
		"status":          schedule.Status,
		"event_type":      eventType,
	})
	return true, nil
}

func (service *WebhookService) handleChargeRefunded(ctx context.Context, charge *ChargeEvent) (bool, error) {
	if charge == nil {
		return false, errors.New("charge payload missing")
	}

	log.Warn().
		Str("charge_id", charge.ID).
		Str("payment_intent_id", charge.PaymentIntentID).
		Int64("amount_refunded", charge.AmountRefunded).
		Msg("charge refunded")
	publishEvent(ctx, service.publisher, "payment.refunded", charge.PaymentIntentID, map[string]any{
		"charge_id":         charge.ID,
		"payment_intent_id": charge.PaymentIntentID,
		"customer_id":       charge.CustomerID,
		"amount_refunded":   charge.AmountRefunded,
		"currency":          charge.Currency,
	})
	return true, nil
}

// findSubmission prefers the submission id carried in metadata and falls back to the stored
// billing ids.
func (service *WebhookService) findSubmission(ctx context.Context, submissionID string, reference db.BillingReference) (models.OnboardingSubmission, bool, error) {
	if submissionID != "" {
		submission, err := loadSubmission(ctx, service.submissions, submissionID, ErrSubmissionNotFound)
		if err == nil {
			return submission, true, nil
		}
		if !errors.Is(err, ErrSubmissionNotFound) {
			return models.OnboardingSubmission{}, false, err
		}
	}

	submission, err := service.submissions.FindByBillingReference(ctx, reference)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warn().
			Str("subscription_id", reference.SubscriptionID).
			Str("customer_id", reference.CustomerID).
			Msg("no submission for billing event")
		return models.OnboardingSubmission{}, false, nil
	}
	if err != nil {
		return models.OnboardingSubmission{}, false, fmt.Errorf("find submission by billing reference: %w", err)
	}
	return submission, true, nil
}
