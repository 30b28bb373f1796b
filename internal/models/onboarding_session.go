package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	LocaleEN = "en"
	LocaleIT = "it"

	MinOnboardingStep = 1
	MaxOnboardingStep = 13

	SessionTTL = 7 * 24 * time.Hour
)

type OnboardingSession struct {
	ID                       string            `gorm:"primaryKey;size:36" json:"id"`
	Email                    string            `gorm:"not null;index" json:"email"`
	Locale                   string            `gorm:"not null;default:en" json:"locale"`
	CurrentStep              int               `gorm:"not null;default:1" json:"current_step"`
	FormData                 datatypes.JSONMap `json:"form_data"`
	VerificationCodeHash     string            `gorm:"not null;default:''" json:"-"`
	VerificationCodeIssuedAt *time.Time        `json:"-"`
	VerificationAttempts     int               `gorm:"not null;default:0" json:"verification_attempts"`
	VerificationLockedUntil  *time.Time        `json:"verification_locked_until,omitempty"`
	EmailVerified            bool              `gorm:"not null;default:false" json:"email_verified"`
	SubmissionID             *string           `gorm:"size:36" json:"submission_id,omitempty"`
	IPAddress                string            `gorm:"not null;default:''" json:"ip_address,omitempty"`
	UserAgent                string            `gorm:"not null;default:''" json:"user_agent,omitempty"`
	ExpiresAt                time.Time         `gorm:"not null;index" json:"expires_at"`
	LastActivity             time.Time         `gorm:"not null" json:"last_activity"`
	Version                  int64             `gorm:"not null;default:1" json:"-"`
	CreatedAt                time.Time         `json:"created_at"`
	UpdatedAt                time.Time         `json:"updated_at"`
}

func (OnboardingSession) TableName() string {
	return "onboarding_sessions"
}

func (session OnboardingSession) IsExpired(now time.Time) bool {
	return now.After(session.ExpiresAt)
}

func (session OnboardingSession) IsVerificationLocked(now time.Time) bool {
	return session.VerificationLockedUntil != nil && now.Before(*session.VerificationLockedUntil)
}
