package api

import "github.com/gofiber/fiber/v2"

func RegisterRoutes(app *fiber.App, handler *Handler) {
	api := app.Group("/api", handler.LanguageMiddleware)
	api.Get("/healthz", handler.Health)
	api.Get("/csrf-token", handler.IssueCSRFToken)

	onboarding := api.Group("/onboarding")
	onboarding.Post("/session", handler.CreateSession)
	onboarding.Get("/session/:id", handler.GetSession)
	onboarding.Patch("/session/:id", handler.UpdateSession)
	onboarding.Post("/save", handler.SaveFormData)
	onboarding.Post("/email/verify", handler.SendVerificationCode)
	onboarding.Post("/email/verify/confirm", handler.VerifyEmail)
	onboarding.Post("/verify-email", handler.VerifyEmail)
	onboarding.Post("/submit", handler.Submit)
	onboarding.Get("/status", handler.SubmissionStatus)
	onboarding.Get("/submission/:id", handler.GetSubmission)
	onboarding.Post("/analytics/track", handler.TrackEvent)

	payment := onboarding.Group("/payment")
	payment.Post("/intent", handler.CreatePaymentIntent)
	payment.Post("/complete", handler.CompletePayment)
	payment.Get("/status/:id", handler.PaymentStatus)
	payment.Post("/webhook", handler.Webhook)

	stripe := api.Group("/stripe")
	stripe.Post("/webhook", handler.Webhook)
	stripe.Post("/create-checkout-session", handler.CreateCheckoutSession)
	stripe.Post("/validate-discount", handler.ValidateDiscount)
	stripe.Post("/preview-invoice", handler.PreviewInvoice)
	stripe.Get("/prices", handler.Prices)
	stripe.Get("/config", handler.StripeConfig)

	if handler.allowTestRoutes {
		api.Post("/test/cleanup-session", handler.CleanupSession)
	}

	api.Use(handler.NotFound)
}
