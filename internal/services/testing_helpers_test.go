package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/terraincognita07/whiteboar/internal/db"
	"github.com/terraincognita07/whiteboar/internal/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
)

const fakeWebhookSignature = "t=1,v1=valid"

var errFakeBilling = errors.New("billing provider unavailable")

func openTestRepositories(t *testing.T) *db.Repositories {
	t.Helper()

	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "whiteboar-test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("load sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db.NewRepositories(database)
}

type testClock struct {
	mu      sync.Mutex
	current time.Time
}

func newTestClock() *testClock {
	return &testClock{current: time.Date(2026, time.March, 2, 9, 30, 0, 0, time.UTC)}
}

func (clock *testClock) Now() time.Time {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	return clock.current
}

func (clock *testClock) Advance(duration time.Duration) {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	clock.current = clock.current.Add(duration)
}

func newTestSessionService(repos *db.Repositories, clock *testClock) *SessionService {
	service := NewSessionService(repos.Sessions)
	service.now = clock.Now
	return service
}

func newTestVerificationService(repos *db.Repositories, clock *testClock, codes ...string) *VerificationService {
	service := NewVerificationService(repos.Sessions, nil, DefaultVerificationCodeTTL)
	service.now = clock.Now
	service.hashCost = bcrypt.MinCost
	next := 0
	service.randomCode = func() (string, error) {
		if next >= len(codes) {
			return GenerateVerificationCode()
		}
		code := codes[next]
		next++
		return code, nil
	}
	return service
}

func createTestSession(t *testing.T, service *SessionService) models.OnboardingSession {
	t.Helper()

	session, err := service.CreateSession(context.Background(), CreateSessionInput{
		Email:     "a@x.com",
		Locale:    "en",
		IPAddress: "203.0.113.7",
		UserAgent: "go-test",
	})
	if err != nil {
		t.Fatalf("CreateSession() unexpected error: %v", err)
	}
	return session
}

// createTestSubmission stores a submitted submission directly, bypassing the session flow.
func createTestSubmission(t *testing.T, repos *db.Repositories, clock *testClock, mutate func(*models.OnboardingSubmission)) models.OnboardingSubmission {
	t.Helper()

	sessions := newTestSessionService(repos, clock)
	session := createTestSession(t, sessions)
	now := clock.Now()
	submission := models.OnboardingSubmission{
		ID:           fmt.Sprintf("sub-%d", now.UnixNano()),
		SessionID:    session.ID,
		Email:        "owner@bakery.example",
		BusinessName: "Forno Bianco",
		FormData: datatypes.JSONMap{
			"businessName":  "Forno Bianco",
			"businessEmail": "owner@bakery.example",
		},
		Status:    models.SubmissionStatusSubmitted,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if mutate != nil {
		mutate(&submission)
	}
	if err := repos.Submissions.CreateForSession(context.Background(), &submission, session.Version, now); err != nil {
		t.Fatalf("create submission: %v", err)
	}
	clock.Advance(time.Second)
	return submission
}

type fakeBillingGateway struct {
	mu sync.Mutex

	coupons        map[string]Coupon
	promotionCodes map[string]Coupon
	basePrice      Price
	intents        map[string]PaymentIntent
	failAll        error

	calls            []string
	customerRequests []string
	schedules        []SubscriptionScheduleRequest
	invoiceItems     []InvoiceItemRequest
	previews         []InvoicePreviewRequest
	intentRequests   []PaymentIntentRequest
	latestInvoice    Invoice

	// subscriptionCouponID is the coupon on the subscription the latest invoice belongs to.
	subscriptionCouponID string
	onSchedule           func()
}

func newFakeBillingGateway() *fakeBillingGateway {
	return &fakeBillingGateway{
		coupons:        map[string]Coupon{},
		promotionCodes: map[string]Coupon{},
		basePrice:      Price{ID: "price_base", UnitAmount: 3500, Currency: "eur", Interval: "month"},
		intents:        map[string]PaymentIntent{},
		latestInvoice:  Invoice{ID: "in_test", Status: invoiceStatusDraft, AmountDue: 3500, Total: 3500, Currency: "eur"},
	}
}

func (gateway *fakeBillingGateway) record(call string) error {
	gateway.mu.Lock()
	defer gateway.mu.Unlock()
	gateway.calls = append(gateway.calls, call)
	return gateway.failAll
}

func (gateway *fakeBillingGateway) callCount() int {
	gateway.mu.Lock()
	defer gateway.mu.Unlock()
	return len(gateway.calls)
}

func (gateway *fakeBillingGateway) callsTo(call string) int {
	gateway.mu.Lock()
	defer gateway.mu.Unlock()
	count := 0
	for _, recorded := range gateway.calls {
		if recorded == call {
			count++
		}
	}
	return count
}

func (gateway *fakeBillingGateway) FindOrCreateCustomer(_ context.Context, email string, _ string, _ map[string]string) (string, error) {
	if err := gateway.record("customer"); err != nil {
		return "", err
	}
	gateway.customerRequests = append(gateway.customerRequests, email)
	return "cus_test", nil
}

func (gateway *fakeBillingGateway) RetrieveCoupon(_ context.Context, code string) (*Coupon, error) {
	if err := gateway.record("coupon"); err != nil {
		return nil, err
	}
	coupon, ok := gateway.coupons[code]
	if !ok {
		return nil, nil
	}
	return &coupon, nil
}

func (gateway *fakeBillingGateway) FindActivePromotionCode(_ context.Context, code string) (*Coupon, error) {
	if err := gateway.record("promotion_code"); err != nil {
		return nil, err
	}
	coupon, ok := gateway.promotionCodes[code]
	if !ok {
		return nil, nil
	}
	return &coupon, nil
}

func (gateway *fakeBillingGateway) RetrievePrice(_ context.Context, priceID string) (Price, error) {
	if err := gateway.record("price"); err != nil {
		return Price{}, err
	}
	price := gateway.basePrice
	price.ID = priceID
	return price, nil
}

func (gateway *fakeBillingGateway) PreviewInvoice(_ context.Context, request InvoicePreviewRequest) (InvoicePreview, error) {
	if err := gateway.record("preview"); err != nil {
		return InvoicePreview{}, err
	}
	gateway.previews = append(gateway.previews, request)

	base := gateway.basePrice.UnitAmount
	subtotal := base + int64(request.AddOnCount)*request.AddOnAmount
	var discount, recurringDiscount int64
	if coupon, ok := gateway.coupons[request.CouponID]; ok && request.CouponID != "" {
		discount = couponDiscount(coupon, subtotal)
		recurringDiscount = couponDiscount(coupon, base)
	}
	return InvoicePreview{
		Subtotal:          subtotal,
		DiscountAmount:    discount,
		Total:             subtotal - discount,
		RecurringAmount:   base,
		RecurringDiscount: recurringDiscount,
		Currency:          request.Currency,
	}, nil
}

func couponDiscount(coupon Coupon, amount int64) int64 {
	if coupon.AmountOff > 0 {
		return min(coupon.AmountOff, amount)
	}
	return int64(float64(amount) * coupon.PercentOff / 100)
}

func (gateway *fakeBillingGateway) CreateSubscriptionSchedule(_ context.Context, request SubscriptionScheduleRequest) (SubscriptionSchedule, error) {
	if err := gateway.record("schedule"); err != nil {
		return SubscriptionSchedule{}, err
	}
	gateway.schedules = append(gateway.schedules, request)
	gateway.subscriptionCouponID = request.CouponID
	if gateway.onSchedule != nil {
		gateway.onSchedule()
	}
	return SubscriptionSchedule{ScheduleID: "sub_sched_test", SubscriptionID: "sub_test"}, nil
}

func (gateway *fakeBillingGateway) LatestSubscriptionInvoice(_ context.Context, _ string) (Invoice, error) {
	if err := gateway.record("latest_invoice"); err != nil {
		return Invoice{}, err
	}
	return gateway.latestInvoice, nil
}

func (gateway *fakeBillingGateway) CreateInvoiceItem(_ context.Context, request InvoiceItemRequest) error {
	if err := gateway.record("invoice_item"); err != nil {
		return err
	}
	gateway.invoiceItems = append(gateway.invoiceItems, request)
	return nil
}

func (gateway *fakeBillingGateway) FinalizeInvoice(_ context.Context, invoiceID string) (Invoice, error) {
	if err := gateway.record("finalize"); err != nil {
		return Invoice{}, err
	}
	invoice := gateway.latestInvoice
	invoice.LanguageCodes = append([]string(nil), invoice.LanguageCodes...)
	for _, item := range gateway.invoiceItems {
		invoice.AmountDue += item.Amount
		invoice.Total += item.Amount
		invoice.LanguageCodes = append(invoice.LanguageCodes, item.Metadata[languageCodeMetadata])
	}
	if coupon, ok := gateway.coupons[gateway.subscriptionCouponID]; ok && gateway.subscriptionCouponID != "" {
		invoice.DiscountAmount = couponDiscount(coupon, invoice.AmountDue)
		invoice.AmountDue -= invoice.DiscountAmount
	}
	invoice.ID = invoiceID
	invoice.Status = "open"
	invoice.ClientSecret = "pi_secret_" + invoiceID
	return invoice, nil
}

func (gateway *fakeBillingGateway) CreatePaymentIntent(_ context.Context, request PaymentIntentRequest) (PaymentIntent, error) {
	if err := gateway.record("payment_intent"); err != nil {
		return PaymentIntent{}, err
	}
	gateway.intentRequests = append(gateway.intentRequests, request)
	intent := PaymentIntent{
		ID:           fmt.Sprintf("pi_%d", len(gateway.intentRequests)),
		Status:       "requires_payment_method",
		ClientSecret: fmt.Sprintf("pi_%d_secret", len(gateway.intentRequests)),
		Amount:       request.Amount,
		Currency:     request.Currency,
		Metadata:     request.Metadata,
	}
	gateway.intents[intent.ID] = intent
	return intent, nil
}

func (gateway *fakeBillingGateway) RetrievePaymentIntent(_ context.Context, paymentIntentID string) (PaymentIntent, error) {
	if err := gateway.record("retrieve_intent"); err != nil {
		return PaymentIntent{}, err
	}
	intent, ok := gateway.intents[paymentIntentID]
	if !ok {
		return PaymentIntent{}, errors.New("no such payment intent")
	}
	return intent, nil
}

func (gateway *fakeBillingGateway) ParseWebhookEvent(payload []byte, signatureHeader string) (BillingEvent, error) {
	if signatureHeader != fakeWebhookSignature {
		return BillingEvent{}, errors.New("signature mismatch")
	}
	var event BillingEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return BillingEvent{}, err
	}
	return event, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	keys   []string
}

func (publisher *recordingPublisher) Publish(_ context.Context, eventType string, _ []byte, key string) error {
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	publisher.events = append(publisher.events, eventType)
	publisher.keys = append(publisher.keys, key)
	return nil
}

func (publisher *recordingPublisher) has(eventType string) bool {
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	for _, published := range publisher.events {
		if published == eventType {
			return true
		}
	}
	return false
}
