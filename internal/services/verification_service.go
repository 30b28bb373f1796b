package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/terraincognita07/whiteboar/internal/models"
	"github.com/terraincognita07/whiteboar/internal/security"
	"golang.org/x/crypto/bcrypt"
)

const (
	VerificationCodeLength     = 6
	MaxVerificationAttempts    = 5
	VerificationLockout        = 15 * time.Minute
	DefaultVerificationCodeTTL = 60 * time.Second
)

// LockedError reports a verification lockout together with its expiry.
type LockedError struct {
	LockedUntil time.Time
}

func (err *LockedError) Error() string {
	return fmt.Sprintf("verification locked until %s", err.LockedUntil.UTC().Format(time.RFC3339))
}

func (err *LockedError) Unwrap() error {
	return ErrVerificationLocked
}

type VerificationResult struct {
	Verified          bool       `json:"verified"`
	AttemptsRemaining int        `json:"attempts_remaining"`
	LockedUntil       *time.Time `json:"locked_until,omitempty"`
}

type IssuedCode struct {
	Code      string
	ExpiresAt time.Time
}

// CodeNotifier delivers a freshly issued code to the session's email address.
type CodeNotifier interface {
	SendVerificationCode(ctx context.Context, session models.OnboardingSession, code string) error
}

type VerificationService struct {
	sessions   SessionRepository
	notifier   CodeNotifier
	codeTTL    time.Duration
	hashCost   int
	now        func() time.Time
	randomCode func() (string, error)
}

func NewVerificationService(sessions SessionRepository, notifier CodeNotifier, codeTTL time.Duration) *VerificationService {
	if codeTTL <= 0 {
		codeTTL = DefaultVerificationCodeTTL
	}
	return &VerificationService{
		sessions:   sessions,
		notifier:   notifier,
		codeTTL:    codeTTL,
		hashCost:   bcrypt.DefaultCost,
		now:        time.Now,
		randomCode: GenerateVerificationCode,
	}
}

func GenerateVerificationCode() (string, error) {
	return security.NumericCode(VerificationCodeLength)
}

// IssueCode stores a new hashed code on the session, resets the attempt counter and clears
// an expired lock. It fails while a lock is active.
func (service *VerificationService) IssueCode(ctx context.Context, sessionID string) (IssuedCode, error) {
	issued := IssuedCode{}
	session, err := mutateSession(ctx, service.sessions, service.now, sessionID, func(session models.OnboardingSession, now time.Time) (map[string]any, error) {
		if session.EmailVerified {
			return nil, ErrEmailAlreadyVerified
		}
		if session.IsVerificationLocked(now) {
			return nil, &LockedError{LockedUntil: *session.VerificationLockedUntil}
		}

		code, err := service.randomCode()
		if err != nil {
			return nil, fmt.Errorf("generate verification code: %w", err)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(code), service.hashCost)
		if err != nil {
			return nil, fmt.Errorf("hash verification code: %w", err)
		}

		issued = IssuedCode{Code: code, ExpiresAt: now.Add(service.codeTTL)}
		return map[string]any{
			"verification_code_hash":      string(hash),
			"verification_code_issued_at": now,
			"verification_attempts":       0,
			"verification_locked_until":   nil,
		}, nil
	})
	if err != nil {
		return IssuedCode{}, err
	}

	if service.notifier != nil {
		if err := service.notifier.SendVerificationCode(ctx, session, issued.Code); err != nil {
			return IssuedCode{}, fmt.Errorf("send verification code: %w", err)
		}
	}
	return issued, nil
}

// VerifyCode checks a submitted code. The returned result is populated on every call so the
// caller can show the remaining attempts or the lock expiry.
func (service *VerificationService) VerifyCode(ctx context.Context, sessionID string, submittedCode string) (VerificationResult, error) {
	result := VerificationResult{}
	submittedCode = strings.TrimSpace(submittedCode)

	_, err := mutateSession(ctx, service.sessions, service.now, sessionID, func(session models.OnboardingSession, now time.Time) (map[string]any, error) {
		result = VerificationResult{
			Verified:          session.EmailVerified,
			AttemptsRemaining: remainingAttempts(session.VerificationAttempts),
		}

		if session.EmailVerified {
			return nil, ErrEmailAlreadyVerified
		}
		if session.IsVerificationLocked(now) {
			lockedUntil := *session.VerificationLockedUntil
			result.AttemptsRemaining = 0
			result.LockedUntil = &lockedUntil
			return nil, &LockedError{LockedUntil: lockedUntil}
		}
		if session.VerificationCodeHash == "" || session.VerificationCodeIssuedAt == nil {
			return nil, ErrVerificationNotIssued
		}
		if now.After(session.VerificationCodeIssuedAt.Add(service.codeTTL)) {
			return nil, ErrVerificationExpired
		}

		compareErr := bcrypt.CompareHashAndPassword([]byte(session.VerificationCodeHash), []byte(submittedCode))
		if compareErr == nil {
			result = VerificationResult{Verified: true, AttemptsRemaining: MaxVerificationAttempts}
			return map[string]any{
				"email_verified":              true,
				"verification_code_hash":      "",
				"verification_code_issued_at": nil,
				"verification_attempts":       0,
				"verification_locked_until":   nil,
			}, nil
		}
		if !errors.Is(compareErr, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, fmt.Errorf("compare verification code: %w", compareErr)
		}

		attempts := session.VerificationAttempts + 1
		result.AttemptsRemaining = remainingAttempts(attempts)
		if attempts >= MaxVerificationAttempts {
			lockedUntil := now.Add(VerificationLockout)
			result.LockedUntil = &lockedUntil
			return map[string]any{
				"verification_attempts":       attempts,
				"verification_locked_until":   lockedUntil,
				"verification_code_hash":      "",
				"verification_code_issued_at": nil,
			}, &LockedError{LockedUntil: lockedUntil}
		}
		return map[string]any{"verification_attempts": attempts}, ErrVerificationMismatch
	})
	if err != nil {
		return result, err
	}

	log.Info().Str("session_id", sessionID).Msg("onboarding email verified")
	return result, nil
}

func remainingAttempts(attempts int) int {
	remaining := MaxVerificationAttempts - attempts
	if remaining < 0 {
		return 0
	}
	return remaining
}
