package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/terraincognita07/whiteboar/internal/services"
)

func (handler *Handler) CreatePaymentIntent(c *fiber.Ctx) error {
	input := paymentIntentInput{}
	if err := parseBody(c, &input); err != nil {
		return handler.respondError(c, err)
	}

	intent, err := handler.submissions.CreatePaymentIntent(c.UserContext(), input.SubmissionID)
	if err != nil {
		return handler.respondError(c, err)
	}
	return respondData(c, fiber.StatusCreated, fiber.Map{
		"clientSecret":    intent.ClientSecret,
		"paymentIntentId": intent.ID,
		"amount":          intent.Amount,
		"currency":        intent.Currency,
	})
}

func (handler *Handler) CompletePayment(c *fiber.Ctx) error {
	input := completePaymentInput{}
	if err := parseBody(c, &input); err != nil {
		return handler.respondError(c, err)
	}

	submission, err := handler.submissions.CompletePayment(c.UserContext(), services.CompletePaymentInput{
		SubmissionID:    input.SubmissionID,
		PaymentIntentID: input.PaymentIntentID,
		CardLast4:       input.CardLast4,
	})
	if err != nil {
		return handler.respondError(c, err)
	}
	return respondData(c, fiber.StatusOK, submission)
}

func (handler *Handler) PaymentStatus(c *fiber.Ctx) error {
	status, err := handler.submissions.PaymentStatus(c.UserContext(), c.Params("id"))
	if err != nil {
		return handler.respondError(c, err)
	}
	return respondData(c, fiber.StatusOK, status)
}

// Webhook acknowledges every verified event. Processing failures are recorded by the
// webhook service and never turned into a retry response.
func (handler *Handler) Webhook(c *fiber.Ctx) error {
	payload := append([]byte(nil), c.Body()...)
	outcome, err := handler.webhooks.HandleEvent(c.UserContext(), payload, c.Get(stripeSignatureKey))
	if err != nil {
		return handler.respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"received":  true,
		"eventId":   outcome.EventID,
		"duplicate": outcome.Duplicate,
	})
}
