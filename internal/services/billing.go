package services

import (
	"context"
	"time"
)

// BillingGateway is the slice of the payment platform the onboarding flow talks to. The
// production implementation lives in internal/billing.
type BillingGateway interface {
	FindOrCreateCustomer(ctx context.Context, email string, name string, metadata map[string]string) (string, error)
	// RetrieveCoupon and FindActivePromotionCode return nil without an error when the code
	// does not exist.
	RetrieveCoupon(ctx context.Context, code string) (*Coupon, error)
	FindActivePromotionCode(ctx context.Context, code string) (*Coupon, error)
	RetrievePrice(ctx context.Context, priceID string) (Price, error)
	PreviewInvoice(ctx context.Context, request InvoicePreviewRequest) (InvoicePreview, error)
	CreateSubscriptionSchedule(ctx context.Context, request SubscriptionScheduleRequest) (SubscriptionSchedule, error)
	LatestSubscriptionInvoice(ctx context.Context, subscriptionID string) (Invoice, error)
	CreateInvoiceItem(ctx context.Context, request InvoiceItemRequest) error
	FinalizeInvoice(ctx context.Context, invoiceID string) (Invoice, error)
	CreatePaymentIntent(ctx context.Context, request PaymentIntentRequest) (PaymentIntent, error)
	RetrievePaymentIntent(ctx context.Context, paymentIntentID string) (PaymentIntent, error)
	ParseWebhookEvent(payload []byte, signatureHeader string) (BillingEvent, error)
}

type Coupon struct {
	ID               string     `json:"id"`
	Code             string     `json:"code"`
	Name             string     `json:"name,omitempty"`
	PromotionCodeID  string     `json:"promotion_code_id,omitempty"`
	Valid            bool       `json:"valid"`
	AmountOff        int64      `json:"amount_off,omitempty"`
	PercentOff       float64    `json:"percent_off,omitempty"`
	Currency         string     `json:"currency,omitempty"`
	Duration         string     `json:"duration,omitempty"`
	DurationInMonths int64      `json:"duration_in_months,omitempty"`
	RedeemBy         *time.Time `json:"redeem_by,omitempty"`
	MaxRedemptions   int64      `json:"max_redemptions,omitempty"`
	TimesRedeemed    int64      `json:"times_redeemed,omitempty"`
}

type Price struct {
	ID         string `json:"id"`
	UnitAmount int64  `json:"amount"`
	Currency   string `json:"currency"`
	Interval   string `json:"interval,omitempty"`
}

type InvoiceLineItem struct {
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	UnitAmount  int64  `json:"unitAmount"`
	TotalAmount int64  `json:"totalAmount"`
	Recurring   bool   `json:"recurring"`
}

type InvoicePreviewRequest struct {
	BasePriceID string
	CouponID    string
	AddOnCount  int
	AddOnAmount int64
	Currency    string
}

type InvoicePreview struct {
	Subtotal          int64             `json:"subtotal"`
	DiscountAmount    int64             `json:"discountAmount"`
	Total             int64             `json:"total"`
	RecurringAmount   int64             `json:"recurringAmount"`
	RecurringDiscount int64             `json:"recurringDiscount"`
	Currency          string            `json:"currency"`
	LineItems         []InvoiceLineItem `json:"lineItems"`
}

type SubscriptionScheduleRequest struct {
	CustomerID string
	PriceID    string
	CouponID   string
	Months     int
	Metadata   map[string]string
}

type SubscriptionSchedule struct {
	ScheduleID     string
	SubscriptionID string
}

type InvoiceItemRequest struct {
	CustomerID  string
	InvoiceID   string
	Amount      int64
	Currency    string
	Description string
	Metadata    map[string]string
}

type Invoice struct {
	ID             string
	Status         string
	AmountDue      int64
	Total          int64
	DiscountAmount int64
	Currency       string
	ClientSecret   string
	// LanguageCodes lists the language add-on items already on the invoice.
	LanguageCodes  []string
}

type PaymentIntentRequest struct {
	Amount      int64
	Currency    string
	Description string
	Metadata    map[string]string
}

type PaymentIntent struct {
	ID           string
	Status       string
	ClientSecret string
	Amount       int64
	Currency     string
	Metadata     map[string]string
}

const (
	PaymentIntentStatusSucceeded = "succeeded"
	PaymentIntentStatusCanceled  = "canceled"
)

// BillingEvent is a verified webhook event reduced to the fields the onboarding flow reads.
// Exactly one of the payload pointers is set for the event types the receiver handles.
type BillingEvent struct {
	ID            string
	Type          string
	PaymentIntent *PaymentIntent
	Invoice       *InvoiceEvent
	Subscription  *SubscriptionEvent
	Schedule      *ScheduleEvent
	Charge        *ChargeEvent
}

type InvoiceEvent struct {
	ID              string
	CustomerID      string
	SubscriptionID  string
	PaymentIntentID string
	Status          string
	Currency        string
	AmountPaid      int64
	Metadata        map[string]string
}

type SubscriptionEvent struct {
	ID         string
	CustomerID string
	ScheduleID string
	Status     string
	Metadata   map[string]string
}

type ScheduleEvent struct {
	ID             string
	CustomerID     string
	SubscriptionID string
	Status         string
	Metadata       map[string]string
}

type ChargeEvent struct {
	ID              string
	CustomerID      string
	PaymentIntentID string
	Currency        string
	AmountRefunded  int64
}

// EventPublisher fans payment lifecycle events out to other systems.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error
}
