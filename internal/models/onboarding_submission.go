package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	SubmissionStatusDraft     = "draft"
	SubmissionStatusSubmitted = "submitted"
	SubmissionStatusFailed    = "failed"
	SubmissionStatusPaid      = "paid"
)

var submissionStatusRank = map[string]int{
	SubmissionStatusDraft:     0,
	SubmissionStatusSubmitted: 1,
	SubmissionStatusFailed:    2,
	SubmissionStatusPaid:      3,
}

type OnboardingSubmission struct {
	ID                           string            `gorm:"primaryKey;size:36" json:"id"`
	SessionID                    string            `gorm:"size:36;not null;uniqueIndex" json:"session_id"`
	Email                        string            `gorm:"not null;default:''" json:"email"`
	BusinessName                 string            `gorm:"not null;default:''" json:"business_name"`
	FormData                     datatypes.JSONMap `json:"form_data"`
	Status                       string            `gorm:"not null;default:submitted;index" json:"status"`
	CompletionTimeSeconds        int64             `gorm:"not null;default:0" json:"completion_time_seconds"`
	PaymentTransactionID         string            `gorm:"not null;default:''" json:"payment_transaction_id,omitempty"`
	PaymentCompletedAt           *time.Time        `json:"payment_completed_at,omitempty"`
	PaymentCardLast4             string            `gorm:"column:payment_card_last4;not null;default:''" json:"payment_card_last4,omitempty"`
	PaymentAmount                int64             `gorm:"not null;default:0" json:"payment_amount,omitempty"`
	PaymentCurrency              string            `gorm:"not null;default:''" json:"payment_currency,omitempty"`
	StripeCustomerID             string            `gorm:"not null;default:'';index" json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID         string            `gorm:"not null;default:'';index" json:"stripe_subscription_id,omitempty"`
	StripeSubscriptionScheduleID string            `gorm:"not null;default:'';index" json:"stripe_subscription_schedule_id,omitempty"`
	StripeSubscriptionStatus     string            `gorm:"not null;default:''" json:"stripe_subscription_status,omitempty"`
	StripeCouponID               string            `gorm:"not null;default:''" json:"-"`
	CheckoutClaim                string            `gorm:"size:36;not null;default:''" json:"-"`
	CheckoutClaimedAt            *time.Time        `json:"-"`
	Version                      int64             `gorm:"not null;default:1" json:"-"`
	CreatedAt                    time.Time         `json:"created_at"`
	UpdatedAt                    time.Time         `json:"updated_at"`
}

func (OnboardingSubmission) TableName() string {
	return "onboarding_submissions"
}

func (submission OnboardingSubmission) IsPaid() bool {
	return submission.Status == SubmissionStatusPaid
}

// CanTransitionSubmissionStatus reports whether moving from one status to another keeps the
// status rank monotonic. Paid is terminal.
func CanTransitionSubmissionStatus(from string, to string) bool {
	fromRank, fromKnown := submissionStatusRank[from]
	toRank, toKnown := submissionStatusRank[to]
	if !fromKnown || !toKnown {
		return false
	}
	if from == SubmissionStatusPaid {
		return false
	}
	return toRank > fromRank
}

func IsKnownSubmissionStatus(status string) bool {
	_, ok := submissionStatusRank[status]
	return ok
}
