package services

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/terraincognita07/whiteboar/internal/models"
)

// LogCodeNotifier stands in for email delivery. It records that a code was issued at Info.
// Outside production the code itself is logged at Debug so the flow can be exercised locally.
type LogCodeNotifier struct {
	RevealCodes bool
}

func (notifier LogCodeNotifier) SendVerificationCode(_ context.Context, session models.OnboardingSession, code string) error {
	log.Info().
		Str("session_id", session.ID).
		Str("locale", session.Locale).
		Msg("verification code issued")
	if notifier.RevealCodes {
		log.Debug().
			Str("session_id", session.ID).
			Str("code", code).
			Msg("verification code for local delivery")
	}
	return nil
}
