package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/terraincognita07/whiteboar/internal/services"
)

func (handler *Handler) SendVerificationCode(c *fiber.Ctx) error {
	input := sessionInput{}
	if err := parseBody(c, &input); err != nil {
		return handler.respondError(c, err)
	}

	issued, err := handler.verification.IssueCode(c.UserContext(), input.SessionID)
	if err != nil {
		var locked *services.LockedError
		if errors.As(err, &locked) {
			return handler.respondErrorWithData(c, err, fiber.Map{"lockedUntil": locked.LockedUntil})
		}
		return handler.respondError(c, err)
	}
	return respondData(c, fiber.StatusOK, fiber.Map{"sent": true, "expiresAt": issued.ExpiresAt})
}

// VerifyEmail reports attempts remaining and any lockout on failures as well as on success.
func (handler *Handler) VerifyEmail(c *fiber.Ctx) error {
	input := verifyEmailInput{}
	if err := parseBody(c, &input); err != nil {
		return handler.respondError(c, err)
	}

	result, err := handler.verification.VerifyCode(c.UserContext(), input.SessionID, input.Code)
	if err != nil {
		return handler.respondErrorWithData(c, err, result)
	}
	return respondData(c, fiber.StatusOK, result)
}
