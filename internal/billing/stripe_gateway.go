package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
	"github.com/terraincognita07/whiteboar/internal/services"
)

const (
	addOnLineDescription = "Language Add-on"
	oneTimeMetadataKey   = "one_time"
	languageCodeMetadata = "language_code"
)

// StripeGateway implements services.BillingGateway on top of the Stripe API.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
	now           func() time.Time
}

func NewStripeGateway(secretKey string, webhookSecret string) *StripeGateway {
	return &StripeGateway{
		api:           client.New(secretKey, nil),
		webhookSecret: webhookSecret,
		now:           time.Now,
	}
}

func (gateway *StripeGateway) FindOrCreateCustomer(ctx context.Context, email string, name string, metadata map[string]string) (string, error) {
	listParams := &stripe.CustomerListParams{Email: stripe.String(email)}
	listParams.Context = ctx
	listParams.Limit = stripe.Int64(1)

	iter := gateway.api.Customers.List(listParams)
	if iter.Next() {
		return iter.Customer().ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("list customers: %w", err)
	}

	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.Context = ctx
	if strings.TrimSpace(name) != "" {
		params.Name = stripe.String(name)
	}
	for key, value := range metadata {
		params.AddMetadata(key, value)
	}

	created, err := gateway.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	return created.ID, nil
}

func (gateway *StripeGateway) RetrieveCoupon(ctx context.Context, code string) (*services.Coupon, error) {
	params := &stripe.CouponParams{}
	params.Context = ctx

	coupon, err := gateway.api.Coupons.Get(code, params)
	if isResourceMissing(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("retrieve coupon: %w", err)
	}
	mapped := couponFromStripe(coupon)
	return &mapped, nil
}

func (gateway *StripeGateway) FindActivePromotionCode(ctx context.Context, code string) (*services.Coupon, error) {
	params := &stripe.PromotionCodeListParams{
		Code:   stripe.String(code),
		Active: stripe.Bool(true),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	iter := gateway.api.PromotionCodes.List(params)
	if !iter.Next() {
		if err := iter.Err(); err != nil {
			return nil, fmt.Errorf("list promotion codes: %w", err)
		}
		return nil, nil
	}

	promotion := iter.PromotionCode()
	if promotion.Coupon == nil {
		return nil, nil
	}
	mapped := couponFromStripe(promotion.Coupon)
	mapped.PromotionCodeID = promotion.ID
	mapped.Valid = mapped.Valid && promotion.Active
	if promotion.ExpiresAt > 0 {
		expiresAt := time.Unix(promotion.ExpiresAt, 0).UTC()
		if mapped.RedeemBy == nil || expiresAt.Before(*mapped.RedeemBy) {
			mapped.RedeemBy = &expiresAt
		}
	}
	if promotion.MaxRedemptions > 0 {
		mapped.MaxRedemptions = promotion.MaxRedemptions
		mapped.TimesRedeemed = promotion.TimesRedeemed
	}
	return &mapped, nil
}

func (gateway *StripeGateway) RetrievePrice(ctx context.Context, priceID string) (services.Price, error) {
	params := &stripe.PriceParams{}
	params.Context = ctx

	price, err := gateway.api.Prices.Get(priceID, params)
	if err != nil {
		return services.Price{}, fmt.Errorf("retrieve price: %w", err)
	}

	mapped := services.Price{
		ID:         price.ID,
		UnitAmount: price.UnitAmount,
		Currency:   string(price.Currency),
	}
	if price.Recurring != nil {
		mapped.Interval = string(price.Recurring.Interval)
	}
	return mapped, nil
}

func (gateway *StripeGateway) PreviewInvoice(ctx context.Context, request services.InvoicePreviewRequest) (services.InvoicePreview, error) {
	params := &stripe.InvoiceCreatePreviewParams{
		Currency: stripe.String(request.Currency),
		SubscriptionDetails: &stripe.InvoiceCreatePreviewSubscriptionDetailsParams{
			Items: []*stripe.InvoiceCreatePreviewSubscriptionDetailsItemParams{
				{Price: stripe.String(request.BasePriceID), Quantity: stripe.Int64(1)},
			},
		},
	}
	params.Context = ctx
	for i := 0; i < request.AddOnCount; i++ {
		item := &stripe.InvoiceCreatePreviewInvoiceItemParams{
			Amount:      stripe.Int64(request.AddOnAmount),
			Currency:    stripe.String(request.Currency),
			Description: stripe.String(addOnLineDescription),
		}
		item.AddMetadata(oneTimeMetadataKey, "true")
		params.InvoiceItems = append(params.InvoiceItems, item)
	}
	if request.CouponID != "" {
		params.Discounts = []*stripe.InvoiceCreatePreviewDiscountParams{
			{Coupon: stripe.String(request.CouponID)},
		}
	}

	invoice, err := gateway.api.Invoices.CreatePreview(params)
	if err != nil {
		return services.InvoicePreview{}, fmt.Errorf("create invoice preview: %w", err)
	}
	return previewFromInvoice(invoice), nil
}

func (gateway *StripeGateway) CreateSubscriptionSchedule(ctx context.Context, request services.SubscriptionScheduleRequest) (services.SubscriptionSchedule, error) {
	phase := &stripe.SubscriptionSchedulePhaseParams{
		Items: []*stripe.SubscriptionSchedulePhaseItemParams{
			{Price: stripe.String(request.PriceID), Quantity: stripe.Int64(1)},
		},
		EndDate: stripe.Int64(gateway.now().AddDate(0, request.Months, 0).Unix()),
	}
	if request.CouponID != "" {
		phase.Discounts = []*stripe.SubscriptionSchedulePhaseDiscountParams{
			{Coupon: stripe.String(request.CouponID)},
		}
	}

	params := &stripe.SubscriptionScheduleParams{
		Customer:     stripe.String(request.CustomerID),
		StartDateNow: stripe.Bool(true),
		EndBehavior:  stripe.String(string(stripe.SubscriptionScheduleEndBehaviorRelease)),
		Phases:       []*stripe.SubscriptionSchedulePhaseParams{phase},
	}
	params.Context = ctx
	for key, value := range request.Metadata {
		params.AddMetadata(key, value)
	}

	schedule, err := gateway.api.SubscriptionSchedules.New(params)
	if err != nil {
		return services.SubscriptionSchedule{}, fmt.Errorf("create subscription schedule: %w", err)
	}
	if schedule.Subscription == nil || schedule.Subscription.ID == "" {
		return services.SubscriptionSchedule{}, errors.New("subscription schedule has no subscription")
	}
	return services.SubscriptionSchedule{ScheduleID: schedule.ID, SubscriptionID: schedule.Subscription.ID}, nil
}

func (gateway *StripeGateway) LatestSubscriptionInvoice(ctx context.Context, subscriptionID string) (services.Invoice, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("latest_invoice")
	params.AddExpand("latest_invoice.confirmation_secret")

	subscription, err := gateway.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return services.Invoice{}, fmt.Errorf("retrieve subscription: %w", err)
	}
	if subscription.LatestInvoice == nil || subscription.LatestInvoice.ID == "" {
		return services.Invoice{}, errors.New("subscription has no invoice")
	}

	invoice := invoiceFromStripe(subscription.LatestInvoice)
	if lines := subscription.LatestInvoice.Lines; lines != nil && lines.HasMore {
		invoice.LanguageCodes, err = gateway.invoiceLanguageCodes(ctx, invoice.ID)
		if err != nil {
			return services.Invoice{}, err
		}
	}
	return invoice, nil
}

// invoiceLanguageCodes pages through every line of the invoice; the expanded invoice only
// embeds the first page.
func (gateway *StripeGateway) invoiceLanguageCodes(ctx context.Context, invoiceID string) ([]string, error) {
	params := &stripe.InvoiceListLinesParams{Invoice: stripe.String(invoiceID)}
	params.Context = ctx

	codes := make([]string, 0)
	iter := gateway.api.Invoices.ListLines(params)
	for iter.Next() {
		if code := iter.InvoiceLineItem().Metadata[languageCodeMetadata]; code != "" {
			codes = append(codes, code)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list invoice lines: %w", err)
	}
	return codes, nil
}

func (gateway *StripeGateway) CreateInvoiceItem(ctx context.Context, request services.InvoiceItemRequest) error {
	params := &stripe.InvoiceItemParams{
		Customer:    stripe.String(request.CustomerID),
		Invoice:     stripe.String(request.InvoiceID),
		Amount:      stripe.Int64(request.Amount),
		Currency:    stripe.String(request.Currency),
		Description: stripe.String(request.Description),
	}
	params.Context = ctx
	for key, value := range request.Metadata {
		params.AddMetadata(key, value)
	}

	if _, err := gateway.api.InvoiceItems.New(params); err != nil {
		return fmt.Errorf("create invoice item: %w", err)
	}
	return nil
}

func (gateway *StripeGateway) FinalizeInvoice(ctx context.Context, invoiceID string) (services.Invoice, error) {
	params := &stripe.InvoiceFinalizeInvoiceParams{}
	params.Context = ctx
	params.AddExpand("confirmation_secret")

	invoice, err := gateway.api.Invoices.FinalizeInvoice(invoiceID, params)
	if err != nil {
		return services.Invoice{}, fmt.Errorf("finalize invoice: %w", err)
	}
	return invoiceFromStripe(invoice), nil
}

func (gateway *StripeGateway) CreatePaymentIntent(ctx context.Context, request services.PaymentIntentRequest) (services.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(request.Amount),
		Currency: stripe.String(request.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if request.Description != "" {
		params.Description = stripe.String(request.Description)
	}
	for key, value := range request.Metadata {
		params.AddMetadata(key, value)
	}

	intent, err := gateway.api.PaymentIntents.New(params)
	if err != nil {
		return services.PaymentIntent{}, fmt.Errorf("create payment intent: %w", err)
	}
	return paymentIntentFromStripe(intent), nil
}

func (gateway *StripeGateway) RetrievePaymentIntent(ctx context.Context, paymentIntentID string) (services.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	intent, err := gateway.api.PaymentIntents.Get(paymentIntentID, params)
	if err != nil {
		return services.PaymentIntent{}, fmt.Errorf("retrieve payment intent: %w", err)
	}
	return paymentIntentFromStripe(intent), nil
}

// ParseWebhookEvent verifies the Stripe-Signature header before decoding anything from the
// payload.
func (gateway *StripeGateway) ParseWebhookEvent(payload []byte, signatureHeader string) (services.BillingEvent, error) {
	if strings.TrimSpace(signatureHeader) == "" {
		return services.BillingEvent{}, errors.New("missing stripe signature")
	}

	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, gateway.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return services.BillingEvent{}, fmt.Errorf("verify stripe event: %w", err)
	}

	var raw []byte
	if event.Data != nil {
		raw = event.Data.Raw
	}
	return decodeEvent(event.ID, string(event.Type), raw)
}

func isResourceMissing(err error) bool {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false
	}
	return stripeErr.Code == stripe.ErrorCodeResourceMissing
}

func couponFromStripe(coupon *stripe.Coupon) services.Coupon {
	mapped := services.Coupon{
		ID:               coupon.ID,
		Name:             coupon.Name,
		Valid:            coupon.Valid,
		AmountOff:        coupon.AmountOff,
		PercentOff:       coupon.PercentOff,
		Currency:         string(coupon.Currency),
		Duration:         string(coupon.Duration),
		DurationInMonths: coupon.DurationInMonths,
		MaxRedemptions:   coupon.MaxRedemptions,
		TimesRedeemed:    coupon.TimesRedeemed,
	}
	if coupon.RedeemBy > 0 {
		redeemBy := time.Unix(coupon.RedeemBy, 0).UTC()
		mapped.RedeemBy = &redeemBy
	}
	return mapped
}

func previewFromInvoice(invoice *stripe.Invoice) services.InvoicePreview {
	preview := services.InvoicePreview{
		Subtotal:  invoice.Subtotal,
		Total:     invoice.Total,
		Currency:  string(invoice.Currency),
		LineItems: []services.InvoiceLineItem{},
	}
	for _, discount := range invoice.TotalDiscountAmounts {
		if discount != nil {
			preview.DiscountAmount += discount.Amount
		}
	}
	if invoice.Lines == nil {
		return preview
	}

	for _, line := range invoice.Lines.Data {
		if line == nil {
			continue
		}
		recurring := !isOneTimeLine(line)
		quantity := line.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		preview.LineItems = append(preview.LineItems, services.InvoiceLineItem{
			Description: line.Description,
			Quantity:    quantity,
			UnitAmount:  line.Amount / quantity,
			TotalAmount: line.Amount,
			Recurring:   recurring,
		})
		if !recurring {
			continue
		}
		preview.RecurringAmount += line.Amount
		for _, discount := range line.DiscountAmounts {
			if discount != nil {
				preview.RecurringDiscount += discount.Amount
			}
		}
	}
	return preview
}

func isOneTimeLine(line *stripe.InvoiceLineItem) bool {
	if line.Metadata[oneTimeMetadataKey] == "true" {
		return true
	}
	return strings.HasSuffix(line.Description, addOnLineDescription)
}

func invoiceFromStripe(invoice *stripe.Invoice) services.Invoice {
	mapped := services.Invoice{
		ID:        invoice.ID,
		Status:    string(invoice.Status),
		AmountDue: invoice.AmountDue,
		Total:     invoice.Total,
		Currency:  string(invoice.Currency),
	}
	for _, discount := range invoice.TotalDiscountAmounts {
		if discount != nil {
			mapped.DiscountAmount += discount.Amount
		}
	}
	if invoice.ConfirmationSecret != nil {
		mapped.ClientSecret = invoice.ConfirmationSecret.ClientSecret
	}
	if invoice.Lines != nil {
		for _, line := range invoice.Lines.Data {
			if line == nil {
				continue
			}
			if code := line.Metadata[languageCodeMetadata]; code != "" {
				mapped.LanguageCodes = append(mapped.LanguageCodes, code)
			}
		}
	}
	return mapped
}

func paymentIntentFromStripe(intent *stripe.PaymentIntent) services.PaymentIntent {
	return services.PaymentIntent{
		ID:           intent.ID,
		Status:       string(intent.Status),
		ClientSecret: intent.ClientSecret,
		Amount:       intent.Amount,
		Currency:     string(intent.Currency),
		Metadata:     intent.Metadata,
	}
}
