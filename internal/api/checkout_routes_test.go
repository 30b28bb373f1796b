package api

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/terraincognita07/whiteboar/internal/services"
)

func TestSubmitThenPreviewTwoAddOns(t *testing.T) {
	env := newTestApp(t, testAppOptions{})
	session, submission := env.submitBusiness(t)

	if submission.Status != "submitted" || submission.BusinessName != "Forno Bianco" {
		t.Fatalf("unexpected submission %#v", submission)
	}

	status := env.do(t, http.MethodGet, "/api/onboarding/status?session_id="+session.ID, nil, nil)
	if got := decodeData[services.SubmissionStatus](t, status); got.Status != "submitted" || got.SubmissionID != submission.ID {
		t.Fatalf("unexpected status %#v", got)
	}

	again := env.do(t, http.MethodPost, "/api/onboarding/submit", map[string]string{"sessionId": session.ID}, nil)
	env.expectError(t, again, http.StatusConflict, "SUBMISSION_EXISTS")

	noToken := env.do(t, http.MethodPost, "/api/stripe/preview-invoice", map[string]any{
		"sessionId":           session.ID,
		"additionalLanguages": []string{"de", "fr"},
	}, nil)
	env.expectError(t, noToken, http.StatusForbidden, "CSRF_VALIDATION_FAILED")

	preview := env.do(t, http.MethodPost, "/api/stripe/preview-invoice", map[string]any{
		"sessionId":           session.ID,
		"additionalLanguages": []string{"de", "fr"},
	}, map[string]string{csrfHeaderName: env.csrfToken(t, session.ID)})
	if preview.Status != http.StatusOK {
		t.Fatalf("expected preview 200, got %d (%s)", preview.Status, preview.Error.Code)
	}
	body := decodeData[struct {
		Preview services.InvoicePreview `json:"preview"`
	}](t, preview)
	if body.Preview.Subtotal != 18500 || body.Preview.DiscountAmount != 0 || body.Preview.Total != 18500 {
		t.Fatalf("unexpected preview %#v", body.Preview)
	}
}

func TestPreviewReportsUnusableDiscount(t *testing.T) {
	env := newTestApp(t, testAppOptions{})
	session := env.createSession(t)

	preview := env.do(t, http.MethodPost, "/api/stripe/preview-invoice", map[string]any{
		"sessionId":    session.ID,
		"discountCode": "NOPE",
		"csrfToken":    env.csrfToken(t, session.ID),
	}, nil)
	if preview.Status != http.StatusOK {
		t.Fatalf("expected preview 200, got %d (%s)", preview.Status, preview.Error.Code)
	}
	body := decodeData[map[string]any](t, preview)
	if body["discountError"] == nil || body["discountError"] == "" {
		t.Fatalf("expected a discount error, got %v", body)
	}
}

func TestCheckoutRoute(t *testing.T) {
	env := newTestApp(t, testAppOptions{})
	session, submission := env.submitBusiness(t)

	missing := env.do(t, http.MethodPost, "/api/stripe/create-checkout-session", map[string]any{"submissionId": "missing"}, nil)
	env.expectError(t, missing, http.StatusNotFound, "INVALID_SUBMISSION_ID")

	forged := env.do(t, http.MethodPost, "/api/stripe/create-checkout-session", map[string]any{
		"submissionId": submission.ID,
		"csrfToken":    "forged",
	}, nil)
	env.expectError(t, forged, http.StatusForbidden, "CSRF_VALIDATION_FAILED")
	if env.billing.callCount() != 0 {
		t.Fatalf("expected no billing calls before csrf passes, got %d", env.billing.callCount())
	}

	response := env.do(t, http.MethodPost, "/api/stripe/create-checkout-session", map[string]any{
		"submissionId":        submission.ID,
		"additionalLanguages": []string{"de"},
	}, map[string]string{csrfHeaderName: env.csrfToken(t, session.ID), "X-Forwarded-For": "198.51.100.4, 10.0.0.1"})
	if response.Status != http.StatusOK {
		t.Fatalf("expected checkout 200, got %d (%s)", response.Status, response.Error.Code)
	}
	result := decodeData[services.CheckoutResult](t, response)
	if !result.PaymentRequired || result.ClientSecret != "pi_api_secret" || result.TotalAmount != 11000 {
		t.Fatalf("unexpected checkout result %#v", result)
	}
	if result.SubscriptionID != "sub_api" || result.ScheduleID != "sub_sched_api" || result.CustomerID != "cus_api" {
		t.Fatalf("unexpected billing ids %#v", result)
	}

	stored := env.do(t, http.MethodGet, "/api/onboarding/submission/"+submission.ID, nil, nil)
	if body := decodeData[map[string]any](t, stored); body["stripe_subscription_id"] != "sub_api" {
		t.Fatalf("expected subscription id to be persisted, got %v", body)
	}
}

func TestCheckoutRejectsPaidSubmissionWithoutBillingCalls(t *testing.T) {
	env := newTestApp(t, testAppOptions{})
	session, submission := env.submitBusiness(t)
	env.payThroughWebhook(t, submission.ID, "pi_paid")

	before := env.billing.callCount()
	for attempt := 0; attempt < 2; attempt++ {
		response := env.do(t, http.MethodPost, "/api/stripe/create-checkout-session", map[string]any{
			"submissionId": submission.ID,
		}, map[string]string{csrfHeaderName: env.csrfToken(t, session.ID)})
		env.expectError(t, response, http.StatusConflict, "PAYMENT_ALREADY_COMPLETED")
	}
	if env.billing.callCount() != before {
		t.Fatalf("expected no billing calls for a paid submission, got %d new", env.billing.callCount()-before)
	}
}

func TestValidateDiscountRoute(t *testing.T) {
	env := newTestApp(t, testAppOptions{})
	env.billing.coupons["LAUNCH50"] = services.Coupon{ID: "LAUNCH50", Valid: true, PercentOff: 50, Duration: "repeating", DurationInMonths: 3}

	empty := env.do(t, http.MethodPost, "/api/stripe/validate-discount", map[string]string{"discountCode": "  "}, nil)
	env.expectError(t, empty, http.StatusBadRequest, "INVALID_REQUEST")

	valid := env.do(t, http.MethodPost, "/api/stripe/validate-discount", map[string]any{
		"discountCode":        "LAUNCH50",
		"additionalLanguages": []string{"es"},
	}, nil)
	if valid.Status != http.StatusOK {
		t.Fatalf("expected validate 200, got %d (%s)", valid.Status, valid.Error.Code)
	}
	body := decodeData[map[string]any](t, valid)
	if body["code"] != "LAUNCH50" || body["type"] != "percentage" || body["amount"] != float64(1750) {
		t.Fatalf("unexpected discount payload %v", body)
	}

	for attempt := 0; attempt < discountFailureLimit; attempt++ {
		// Rotating forwarding headers must not reset the failure count.
		headers := map[string]string{
			"X-Real-IP":       fmt.Sprintf("192.0.2.%d", attempt+1),
			"X-Forwarded-For": fmt.Sprintf("198.51.100.%d", attempt+1),
		}
		response := env.do(t, http.MethodPost, "/api/stripe/validate-discount", map[string]string{"discountCode": "GUESS"}, headers)
		env.expectError(t, response, http.StatusBadRequest, "INVALID_DISCOUNT_CODE")
	}
	limited := env.do(t, http.MethodPost, "/api/stripe/validate-discount", map[string]string{"discountCode": "LAUNCH50"}, map[string]string{"X-Forwarded-For": "203.0.113.99"})
	env.expectError(t, limited, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED")
}

func TestPricesRouteCaches(t *testing.T) {
	env := newTestApp(t, testAppOptions{})

	first := env.do(t, http.MethodGet, "/api/stripe/prices", nil, nil)
	if first.Status != http.StatusOK || first.Cached == nil || *first.Cached {
		t.Fatalf("expected uncached prices, got %d cached=%v", first.Status, first.Cached)
	}
	prices := decodeData[services.PriceList](t, first)
	if prices.BasePackage.Amount != 3500 || prices.LanguageAddOn.Amount != services.DefaultLanguageAddOnAmount {
		t.Fatalf("unexpected prices %#v", prices)
	}

	second := env.do(t, http.MethodGet, "/api/stripe/prices", nil, nil)
	if second.Cached == nil || !*second.Cached {
		t.Fatal("expected second price lookup to be served from cache")
	}
}

func TestCSRFTokenRequiresKnownSession(t *testing.T) {
	env := newTestApp(t, testAppOptions{})

	missing := env.do(t, http.MethodGet, "/api/csrf-token?sessionId=unknown", nil, nil)
	env.expectError(t, missing, http.StatusNotFound, "SESSION_NOT_FOUND")

	session := env.createSession(t)
	if token := env.csrfToken(t, session.ID); token == "" {
		t.Fatal("expected a csrf token")
	}
}

func TestStripeConfigExposesPublishableKey(t *testing.T) {
	env := newTestApp(t, testAppOptions{})

	response := env.do(t, http.MethodGet, "/api/stripe/config", nil, nil)
	if decodeData[map[string]string](t, response)["publishableKey"] != "pk_test_api" {
		t.Fatalf("unexpected stripe config %s", response.Data)
	}
}
