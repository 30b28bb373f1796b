package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"github.com/terraincognita07/whiteboar/internal/services"
)

var (
	errInvalidRequest = fmt.Errorf("%w: malformed request", services.ErrValidation)
	errRouteNotFound  = fmt.Errorf("%w: route", services.ErrNotFound)
	errTooManyChecks  = fmt.Errorf("%w: too many discount checks", services.ErrRateLimited)
)

type errorCode struct {
	err  error
	code string
}

// errorCodes is matched in order, so specific errors come before the kind they wrap.
var errorCodes = []errorCode{
	{errInvalidRequest, "INVALID_REQUEST"},
	{errRouteNotFound, "NOT_FOUND"},
	{errTooManyChecks, "RATE_LIMIT_EXCEEDED"},
	{services.ErrInvalidLocale, "INVALID_LOCALE"},
	{services.ErrInvalidEmail, "INVALID_EMAIL"},
	{services.ErrInvalidStep, "INVALID_STEP"},
	{services.ErrInvalidFormData, "INVALID_FORM_DATA"},
	{services.ErrSessionIDRequired, "INVALID_REQUEST"},
	{services.ErrEmptySessionPatch, "INVALID_REQUEST"},
	{services.ErrSessionNotFound, "SESSION_NOT_FOUND"},
	{services.ErrSessionExpired, "SESSION_EXPIRED"},
	{services.ErrConcurrentUpdate, "CONCURRENT_UPDATE"},
	{services.ErrEmailAlreadyVerified, "EMAIL_ALREADY_VERIFIED"},
	{services.ErrVerificationLocked, "VERIFICATION_LOCKED"},
	{services.ErrVerificationNotIssued, "VERIFICATION_CODE_MISSING"},
	{services.ErrVerificationExpired, "VERIFICATION_CODE_EXPIRED"},
	{services.ErrVerificationMismatch, "VERIFICATION_CODE_INVALID"},
	{services.ErrSubmissionNotFound, "SUBMISSION_NOT_FOUND"},
	{services.ErrInvalidSubmissionID, "INVALID_SUBMISSION_ID"},
	{services.ErrSubmissionExists, "SUBMISSION_EXISTS"},
	{services.ErrInvalidStatusTransition, "INVALID_STATUS_TRANSITION"},
	{services.ErrBusinessNameRequired, "BUSINESS_NAME_REQUIRED"},
	{services.ErrPaymentAlreadyComplete, "PAYMENT_ALREADY_COMPLETED"},
	{services.ErrMissingCustomerEmail, "MISSING_CUSTOMER_EMAIL"},
	{services.ErrInvalidLanguageCode, "INVALID_LANGUAGE_CODE"},
	{services.ErrPaymentRateLimited, "RATE_LIMIT_EXCEEDED"},
	{services.ErrCheckoutInProgress, "CHECKOUT_IN_PROGRESS"},
	{services.ErrCheckoutMismatch, "CHECKOUT_MISMATCH"},
	{services.ErrInvalidDiscountCode, "INVALID_DISCOUNT_CODE"},
	{services.ErrInvalidCardLast4, "INVALID_CARD_LAST4"},
	{services.ErrPaymentNotConfirmed, "PAYMENT_NOT_CONFIRMED"},
	{services.ErrPaymentStatusExpired, "PAYMENT_STATUS_EXPIRED"},
	{services.ErrCSRFTokenInvalid, "CSRF_VALIDATION_FAILED"},
	{services.ErrWebhookSignature, "INVALID_SIGNATURE"},
	{services.ErrUpstream, "STRIPE_API_ERROR"},
	{services.ErrValidation, "VALIDATION_ERROR"},
	{services.ErrNotFound, "NOT_FOUND"},
	{services.ErrRateLimited, "RATE_LIMIT_EXCEEDED"},
}

func codeForError(err error) string {
	for _, candidate := range errorCodes {
		if errors.Is(err, candidate.err) {
			return candidate.code
		}
	}
	return "INTERNAL_ERROR"
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, services.ErrWebhookSignature):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrExpired):
		return fiber.StatusGone
	case errors.Is(err, services.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrAuthFailure):
		return fiber.StatusForbidden
	case errors.Is(err, services.ErrRateLimited):
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusInternalServerError
	}
}

func (handler *Handler) respondError(c *fiber.Ctx, err error) error {
	return handler.respondErrorWithData(c, err, nil)
}

// respondErrorWithData writes the error envelope. Server-side causes are logged and never
// echoed to the client.
func (handler *Handler) respondErrorWithData(c *fiber.Ctx, err error, data any) error {
	status := statusForError(err)
	code := codeForError(err)
	if status >= fiber.StatusInternalServerError {
		log.Error().Err(err).
			Str("code", code).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Msg("request failed")
	}

	body := fiber.Map{
		"code":    code,
		"message": handler.i18n.Translate(handler.currentLanguage(c), "error."+code),
	}
	var fieldErr *services.FieldError
	if errors.As(err, &fieldErr) {
		body["field"] = fieldErr.Field
	}

	payload := fiber.Map{"success": false, "error": body}
	if data != nil {
		payload["data"] = data
	}
	return c.Status(status).JSON(payload)
}

func respondData(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(fiber.Map{"success": true, "data": data})
}

func parseBody(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return errInvalidRequest
	}
	if err := c.BodyParser(out); err != nil {
		return errInvalidRequest
	}
	return nil
}

// clientIP is the peer address. Forwarding headers are honored only when the app is
// configured with a proxy header and the peer is a trusted proxy.
func clientIP(c *fiber.Ctx) string {
	if ip := strings.TrimSpace(c.IP()); ip != "" {
		return ip
	}
	return "unknown"
}

func csrfTokenFromRequest(c *fiber.Ctx, bodyToken string) string {
	if header := strings.TrimSpace(c.Get(csrfHeaderName)); header != "" {
		return header
	}
	return strings.TrimSpace(bodyToken)
}
