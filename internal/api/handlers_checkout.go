package api

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/terraincognita07/whiteboar/internal/services"
)

func (handler *Handler) CreateCheckoutSession(c *fiber.Ctx) error {
	input := checkoutInput{}
	if err := parseBody(c, &input); err != nil {
		return handler.respondError(c, err)
	}

	result, err := handler.checkout.CreateCheckoutSession(c.UserContext(), services.CheckoutRequest{
		SubmissionID: input.SubmissionID,
		Languages:    input.AdditionalLanguages,
		DiscountCode: input.DiscountCode,
		CSRFToken:    csrfTokenFromRequest(c, input.CSRFToken),
		IPAddress:    clientIP(c),
		UserAgent:    c.Get(fiber.HeaderUserAgent),
	})
	if err != nil {
		return handler.respondError(c, err)
	}
	return respondData(c, fiber.StatusOK, result)
}

func (handler *Handler) ValidateDiscount(c *fiber.Ctx) error {
	input := validateDiscountInput{}
	if err := parseBody(c, &input); err != nil {
		return handler.respondError(c, err)
	}
	code := strings.TrimSpace(input.DiscountCode)
	if code == "" {
		return handler.respondError(c, errInvalidRequest)
	}

	limiterKey := requestLimiterKey(c, "discount")
	now := time.Now()
	if handler.discountLimiter.blocked(limiterKey, now) {
		return handler.respondError(c, errTooManyChecks)
	}

	languages, err := services.NormalizeAddOnLanguageCodes(input.AdditionalLanguages)
	if err != nil {
		return handler.respondError(c, err)
	}

	coupon, err := handler.checkout.ValidateDiscountCode(c.UserContext(), code)
	if err != nil {
		return handler.respondError(c, err)
	}
	if coupon == nil {
		handler.discountLimiter.recordFailure(limiterKey, now)
		return handler.respondError(c, services.ErrInvalidDiscountCode)
	}
	handler.discountLimiter.clear(limiterKey)

	preview, err := handler.checkout.PreviewInvoice(c.UserContext(), coupon, len(languages))
	if err != nil {
		return handler.respondError(c, err)
	}
	return respondData(c, fiber.StatusOK, discountPayload(coupon, preview))
}

func (handler *Handler) PreviewInvoice(c *fiber.Ctx) error {
	input := previewInvoiceInput{}
	if err := parseBody(c, &input); err != nil {
		return handler.respondError(c, err)
	}

	result, err := handler.checkout.PreviewForSession(c.UserContext(), services.PreviewRequest{
		SessionID:    input.SessionID,
		Languages:    input.AdditionalLanguages,
		DiscountCode: input.DiscountCode,
		CSRFToken:    csrfTokenFromRequest(c, input.CSRFToken),
	})
	if err != nil {
		return handler.respondError(c, err)
	}

	data := fiber.Map{"preview": result.Preview}
	if result.Coupon != nil {
		data["code"] = result.Coupon.Code
		data["duration"] = result.Coupon.Duration
		data["durationInMonths"] = result.Coupon.DurationInMonths
	}
	if result.DiscountError != "" {
		data["discountError"] = handler.i18n.Translate(handler.currentLanguage(c), "error."+result.DiscountError)
	}
	return respondData(c, fiber.StatusOK, data)
}

func (handler *Handler) Prices(c *fiber.Ctx) error {
	prices, cached, err := handler.checkout.GetPrices(c.UserContext())
	if err != nil {
		return handler.respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": prices, "cached": cached})
}

func (handler *Handler) StripeConfig(c *fiber.Ctx) error {
	return respondData(c, fiber.StatusOK, fiber.Map{"publishableKey": handler.publishableKey})
}

func discountPayload(coupon *services.Coupon, preview services.InvoicePreview) fiber.Map {
	payload := fiber.Map{
		"code":             coupon.Code,
		"name":             coupon.Name,
		"amount":           preview.DiscountAmount,
		"duration":         coupon.Duration,
		"durationInMonths": coupon.DurationInMonths,
		"preview":          preview,
	}
	if coupon.AmountOff > 0 {
		payload["type"] = "fixed"
		payload["value"] = coupon.AmountOff
	} else {
		payload["type"] = "percentage"
		payload["value"] = coupon.PercentOff
	}
	return payload
}
