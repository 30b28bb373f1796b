package api

import "github.com/gofiber/fiber/v2"

const (
	contextLanguageKey = "current_language"
	csrfHeaderName     = "X-CSRF-Token"
	stripeSignatureKey = "Stripe-Signature"
)

func (handler *Handler) LanguageMiddleware(c *fiber.Ctx) error {
	c.Locals(contextLanguageKey, handler.i18n.DetectFromAcceptLanguage(c.Get(fiber.HeaderAcceptLanguage)))
	return c.Next()
}

func (handler *Handler) currentLanguage(c *fiber.Ctx) string {
	if language, ok := c.Locals(contextLanguageKey).(string); ok && language != "" {
		return language
	}
	return handler.i18n.DefaultLanguage()
}
