package api

type createSessionInput struct {
	Locale string `json:"locale"`
	Email  string `json:"email"`
}

type updateSessionInput struct {
	CurrentStep   *int    `json:"current_step"`
	Locale        *string `json:"locale"`
	EmailVerified *bool   `json:"email_verified"`
}

type saveFormDataInput struct {
	SessionID string         `json:"sessionId"`
	FormData  map[string]any `json:"formData"`
}

type sessionInput struct {
	SessionID string `json:"sessionId"`
}

type verifyEmailInput struct {
	SessionID string `json:"sessionId"`
	Code      string `json:"code"`
}

type trackEventInput struct {
	SessionID  string         `json:"sessionId"`
	EventType  string         `json:"eventType"`
	Category   string         `json:"category"`
	StepNumber *int           `json:"stepNumber"`
	FieldName  string         `json:"fieldName"`
	DurationMS *int64         `json:"durationMs"`
	Metadata   map[string]any `json:"metadata"`
}

type paymentIntentInput struct {
	SubmissionID string `json:"submissionId"`
}

type completePaymentInput struct {
	SubmissionID    string `json:"submissionId"`
	PaymentIntentID string `json:"paymentIntentId"`
	CardLast4       string `json:"cardLast4"`
}

type checkoutInput struct {
	SubmissionID        string   `json:"submissionId"`
	AdditionalLanguages []string `json:"additionalLanguages"`
	DiscountCode        string   `json:"discountCode"`
	CSRFToken           string   `json:"csrfToken"`
}

type validateDiscountInput struct {
	DiscountCode        string   `json:"discountCode"`
	AdditionalLanguages []string `json:"additionalLanguages"`
}

type previewInvoiceInput struct {
	SessionID           string   `json:"sessionId"`
	AdditionalLanguages []string `json:"additionalLanguages"`
	DiscountCode        string   `json:"discountCode"`
	CSRFToken           string   `json:"csrfToken"`
}
