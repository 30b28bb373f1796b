package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/terraincognita07/whiteboar/internal/db"
	"github.com/terraincognita07/whiteboar/internal/i18n"
	"github.com/terraincognita07/whiteboar/internal/models"
	"github.com/terraincognita07/whiteboar/internal/services"
)

const (
	testCSRFSecret       = "test-csrf-secret-0123456789abcdef"
	testWebhookSignature = "t=1,v1=valid"
)

type testApp struct {
	app     *fiber.App
	repos   *db.Repositories
	billing *fakeBilling
	codes   *capturingNotifier
}

type testAppOptions struct {
	allowTestRoutes bool
}

func newTestApp(t *testing.T, options testAppOptions) *testApp {
	t.Helper()

	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "whiteboar-api.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("load sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	repos := db.NewRepositories(database)
	billing := newFakeBilling()
	codes := &capturingNotifier{codes: map[string]string{}}

	csrf, err := services.NewCSRFService(testCSRFSecret, services.NewMemoryTokenStore(), 0)
	if err != nil {
		t.Fatalf("NewCSRFService() unexpected error: %v", err)
	}
	analytics := services.NewAnalyticsService(repos.Analytics)
	submissions := services.NewSubmissionService(repos.Sessions, repos.Submissions, billing, nil, services.PaymentSettings{})
	checkout := services.NewCheckoutService(billing, repos.Submissions, analytics, csrf, nil, services.NewPriceCache(0, nil), services.CheckoutSettings{
		BasePriceID: "price_base",
	})
	i18nManager, err := i18n.NewManager("en")
	if err != nil {
		t.Fatalf("i18n.NewManager() unexpected error: %v", err)
	}

	handler, err := NewHandler(Dependencies{
		Sessions:        services.NewSessionService(repos.Sessions),
		Verification:    services.NewVerificationService(repos.Sessions, codes, 0),
		Submissions:     submissions,
		Checkout:        checkout,
		Webhooks:        services.NewWebhookService(billing, repos.WebhookEvents, repos.Submissions, submissions, analytics, nil),
		Analytics:       analytics,
		CSRF:            csrf,
		Cleaner:         repos.Sessions,
		I18n:            i18nManager,
		PublishableKey:  "pk_test_api",
		AllowTestRoutes: options.allowTestRoutes,
	})
	if err != nil {
		t.Fatalf("NewHandler() unexpected error: %v", err)
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	RegisterRoutes(app, handler)
	return &testApp{app: app, repos: repos, billing: billing, codes: codes}
}

type apiResponse struct {
	Status  int             `json:"-"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Cached  *bool           `json:"cached"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"error"`
}

func (env *testApp) do(t *testing.T, method string, path string, body any, headers map[string]string) apiResponse {
	t.Helper()

	var reader io.Reader
	switch value := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(value)
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			t.Fatalf("encode request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}

	request := httptest.NewRequest(method, path, reader)
	if reader != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		request.Header.Set(key, value)
	}

	response, err := env.app.Test(request, -1)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("%s %s read body failed: %v", method, path, err)
	}
	parsed := apiResponse{Status: response.StatusCode}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &parsed); err != nil {
			t.Fatalf("%s %s decode body %q: %v", method, path, raw, err)
		}
	}
	parsed.Status = response.StatusCode
	return parsed
}

func (env *testApp) expectError(t *testing.T, response apiResponse, status int, code string) {
	t.Helper()

	if response.Status != status || response.Success || response.Error.Code != code {
		t.Fatalf("expected %d %s, got %d %s (%s)", status, code, response.Status, response.Error.Code, response.Error.Message)
	}
}

func decodeData[T any](t *testing.T, response apiResponse) T {
	t.Helper()

	var out T
	if err := json.Unmarshal(response.Data, &out); err != nil {
		t.Fatalf("decode data %q: %v", response.Data, err)
	}
	return out
}

func (env *testApp) createSession(t *testing.T) models.OnboardingSession {
	t.Helper()

	response := env.do(t, http.MethodPost, "/api/onboarding/session", map[string]string{"locale": "en", "email": "a@x.com"}, nil)
	if response.Status != http.StatusCreated {
		t.Fatalf("create session expected 201, got %d (%s)", response.Status, response.Error.Code)
	}
	return decodeData[models.OnboardingSession](t, response)
}

func (env *testApp) csrfToken(t *testing.T, sessionID string) string {
	t.Helper()

	response := env.do(t, http.MethodGet, "/api/csrf-token?sessionId="+sessionID, nil, nil)
	if response.Status != http.StatusOK {
		t.Fatalf("csrf token expected 200, got %d (%s)", response.Status, response.Error.Code)
	}
	return decodeData[services.CSRFToken](t, response).Token
}

// submitBusiness walks a fresh session through the form and submission steps.
func (env *testApp) submitBusiness(t *testing.T) (models.OnboardingSession, models.OnboardingSubmission) {
	t.Helper()

	session := env.createSession(t)
	save := env.do(t, http.MethodPost, "/api/onboarding/save", map[string]any{
		"sessionId": session.ID,
		"formData": map[string]any{
			"businessName":  "Forno Bianco",
			"businessEmail": "owner@bakery.example",
		},
	}, nil)
	if save.Status != http.StatusOK {
		t.Fatalf("save expected 200, got %d (%s)", save.Status, save.Error.Code)
	}

	submit := env.do(t, http.MethodPost, "/api/onboarding/submit", map[string]string{"sessionId": session.ID}, nil)
	if submit.Status != http.StatusCreated {
		t.Fatalf("submit expected 201, got %d (%s)", submit.Status, submit.Error.Code)
	}
	return session, decodeData[models.OnboardingSubmission](t, submit)
}

type capturingNotifier struct {
	mu    sync.Mutex
	codes map[string]string
}

func (notifier *capturingNotifier) SendVerificationCode(_ context.Context, session models.OnboardingSession, code string) error {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	notifier.codes[session.ID] = code
	return nil
}

func (notifier *capturingNotifier) lastCode(sessionID string) string {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	return notifier.codes[sessionID]
}

type fakeBilling struct {
	mu sync.Mutex

	coupons map[string]services.Coupon
	intents map[string]services.PaymentIntent
	calls   []string
	items   int64
}

func newFakeBilling() *fakeBilling {
	return &fakeBilling{
		coupons: map[string]services.Coupon{},
		intents: map[string]services.PaymentIntent{},
	}
}

func (gateway *fakeBilling) record(call string) {
	gateway.mu.Lock()
	defer gateway.mu.Unlock()
	gateway.calls = append(gateway.calls, call)
}

func (gateway *fakeBilling) callCount() int {
	gateway.mu.Lock()
	defer gateway.mu.Unlock()
	return len(gateway.calls)
}

func (gateway *fakeBilling) FindOrCreateCustomer(context.Context, string, string, map[string]string) (string, error) {
	gateway.record("customer")
	return "cus_api", nil
}

func (gateway *fakeBilling) RetrieveCoupon(_ context.Context, code string) (*services.Coupon, error) {
	gateway.record("coupon")
	coupon, ok := gateway.coupons[code]
	if !ok {
		return nil, nil
	}
	return &coupon, nil
}

func (gateway *fakeBilling) FindActivePromotionCode(context.Context, string) (*services.Coupon, error) {
	gateway.record("promotion_code")
	return nil, nil
}

func (gateway *fakeBilling) RetrievePrice(_ context.Context, priceID string) (services.Price, error) {
	gateway.record("price")
	return services.Price{ID: priceID, UnitAmount: 3500, Currency: "eur", Interval: "month"}, nil
}

func (gateway *fakeBilling) PreviewInvoice(_ context.Context, request services.InvoicePreviewRequest) (services.InvoicePreview, error) {
	gateway.record("preview")
	subtotal := 3500 + int64(request.AddOnCount)*request.AddOnAmount
	var discount int64
	if coupon, ok := gateway.coupons[request.CouponID]; ok {
		discount = int64(float64(3500) * coupon.PercentOff / 100)
	}
	return services.InvoicePreview{
		Subtotal:          subtotal,
		DiscountAmount:    discount,
		Total:             subtotal - discount,
		RecurringAmount:   3500,
		RecurringDiscount: discount,
		Currency:          request.Currency,
	}, nil
}

func (gateway *fakeBilling) CreateSubscriptionSchedule(context.Context, services.SubscriptionScheduleRequest) (services.SubscriptionSchedule, error) {
	gateway.record("schedule")
	return services.SubscriptionSchedule{ScheduleID: "sub_sched_api", SubscriptionID: "sub_api"}, nil
}

func (gateway *fakeBilling) LatestSubscriptionInvoice(context.Context, string) (services.Invoice, error) {
	gateway.record("latest_invoice")
	return services.Invoice{ID: "in_api", Status: "draft", AmountDue: 3500, Total: 3500, Currency: "eur"}, nil
}

func (gateway *fakeBilling) CreateInvoiceItem(_ context.Context, request services.InvoiceItemRequest) error {
	gateway.record("invoice_item")
	gateway.mu.Lock()
	gateway.items += request.Amount
	gateway.mu.Unlock()
	return nil
}

func (gateway *fakeBilling) FinalizeInvoice(_ context.Context, invoiceID string) (services.Invoice, error) {
	gateway.record("finalize")
	gateway.mu.Lock()
	total := 3500 + gateway.items
	gateway.mu.Unlock()
	return services.Invoice{ID: invoiceID, Status: "open", AmountDue: total, Total: total, Currency: "eur", ClientSecret: "pi_api_secret"}, nil
}

func (gateway *fakeBilling) CreatePaymentIntent(_ context.Context, request services.PaymentIntentRequest) (services.PaymentIntent, error) {
	gateway.record("payment_intent")
	gateway.mu.Lock()
	defer gateway.mu.Unlock()
	intent := services.PaymentIntent{
		ID:           fmt.Sprintf("pi_api_%d", len(gateway.intents)+1),
		Status:       "requires_payment_method",
		ClientSecret: fmt.Sprintf("pi_api_%d_secret", len(gateway.intents)+1),
		Amount:       request.Amount,
		Currency:     request.Currency,
		Metadata:     request.Metadata,
	}
	gateway.intents[intent.ID] = intent
	return intent, nil
}

func (gateway *fakeBilling) RetrievePaymentIntent(_ context.Context, paymentIntentID string) (services.PaymentIntent, error) {
	gateway.record("retrieve_intent")
	gateway.mu.Lock()
	defer gateway.mu.Unlock()
	intent, ok := gateway.intents[paymentIntentID]
	if !ok {
		return services.PaymentIntent{}, errors.New("no such payment intent")
	}
	return intent, nil
}

func (gateway *fakeBilling) succeed(paymentIntentID string) {
	gateway.mu.Lock()
	defer gateway.mu.Unlock()
	intent := gateway.intents[paymentIntentID]
	intent.Status = services.PaymentIntentStatusSucceeded
	gateway.intents[paymentIntentID] = intent
}

func (gateway *fakeBilling) ParseWebhookEvent(payload []byte, signatureHeader string) (services.BillingEvent, error) {
	if signatureHeader != testWebhookSignature {
		return services.BillingEvent{}, errors.New("signature mismatch")
	}
	var event services.BillingEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return services.BillingEvent{}, err
	}
	return event, nil
}
