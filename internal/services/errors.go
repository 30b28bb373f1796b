package services

import (
	"errors"
	"fmt"
)

// Error kinds. Every service error wraps exactly one of these so the HTTP layer can pick a
// status code with errors.Is.
var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrExpired     = errors.New("expired")
	ErrConflict    = errors.New("conflict")
	ErrAuthFailure = errors.New("authentication failed")
	ErrRateLimited = errors.New("rate limited")
	ErrUpstream    = errors.New("upstream failure")
)

var (
	ErrInvalidLocale           = fmt.Errorf("%w: invalid locale", ErrValidation)
	ErrInvalidEmail            = fmt.Errorf("%w: invalid email", ErrValidation)
	ErrInvalidStep             = fmt.Errorf("%w: step must be between 1 and 13", ErrValidation)
	ErrInvalidFormData         = fmt.Errorf("%w: invalid form data", ErrValidation)
	ErrSessionIDRequired       = fmt.Errorf("%w: session id is required", ErrValidation)
	ErrEmptySessionPatch       = fmt.Errorf("%w: no fields to update", ErrValidation)
	ErrSessionNotFound         = fmt.Errorf("%w: onboarding session", ErrNotFound)
	ErrSessionExpired          = fmt.Errorf("%w: onboarding session", ErrExpired)
	ErrConcurrentUpdate        = fmt.Errorf("%w: concurrent update", ErrConflict)
	ErrEmailAlreadyVerified    = fmt.Errorf("%w: email already verified", ErrConflict)
	ErrVerificationLocked      = fmt.Errorf("%w: verification locked", ErrRateLimited)
	ErrVerificationNotIssued   = fmt.Errorf("%w: no verification code issued", ErrValidation)
	ErrVerificationExpired     = fmt.Errorf("%w: verification code", ErrExpired)
	ErrVerificationMismatch    = fmt.Errorf("%w: verification code mismatch", ErrValidation)
	ErrSubmissionNotFound      = fmt.Errorf("%w: submission", ErrNotFound)
	ErrInvalidSubmissionID     = fmt.Errorf("%w: invalid submission id", ErrNotFound)
	ErrSubmissionExists        = fmt.Errorf("%w: submission already exists", ErrConflict)
	ErrInvalidStatusTransition = fmt.Errorf("%w: submission status cannot move backwards", ErrConflict)
	ErrBusinessNameRequired    = fmt.Errorf("%w: business name is required", ErrValidation)
	ErrPaymentAlreadyComplete  = fmt.Errorf("%w: payment already completed", ErrConflict)
	ErrMissingCustomerEmail    = fmt.Errorf("%w: missing customer email", ErrValidation)
	ErrInvalidLanguageCode     = fmt.Errorf("%w: invalid language code", ErrValidation)
	ErrPaymentRateLimited      = fmt.Errorf("%w: too many payment attempts", ErrRateLimited)
	ErrCheckoutInProgress      = fmt.Errorf("%w: checkout already in progress", ErrConflict)
	ErrCheckoutMismatch        = fmt.Errorf("%w: checkout differs from the started subscription", ErrConflict)
	ErrInvalidDiscountCode     = fmt.Errorf("%w: invalid discount code", ErrValidation)
	ErrInvalidCardLast4        = fmt.Errorf("%w: card last4 must be 4 digits", ErrValidation)
	ErrPaymentNotConfirmed     = fmt.Errorf("%w: payment not confirmed", ErrValidation)
	ErrPaymentStatusExpired    = fmt.Errorf("%w: payment status", ErrExpired)
	ErrCSRFTokenInvalid        = fmt.Errorf("%w: csrf token", ErrAuthFailure)
	ErrWebhookSignature        = fmt.Errorf("%w: webhook signature", ErrAuthFailure)
	ErrBillingUnavailable      = fmt.Errorf("%w: billing provider", ErrUpstream)
)

// FieldError names the payload field that failed validation.
type FieldError struct {
	Field  string
	Reason string
}

func (err *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", err.Field, err.Reason)
}

func (err *FieldError) Unwrap() error {
	return ErrInvalidFormData
}

func newFieldError(field string, reason string) error {
	return &FieldError{Field: field, Reason: reason}
}

// upstreamError keeps the provider cause for logs while classifying it as ErrUpstream.
func upstreamError(operation string, cause error) error {
	return fmt.Errorf("%s: %w", operation, errors.Join(ErrBillingUnavailable, cause))
}
