package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/terraincognita07/whiteboar/internal/models"
)

const (
	DefaultLanguageAddOnAmount  = 7500
	DefaultPaymentAttemptLimit  = 5
	DefaultPaymentAttemptWindow = time.Hour
	DefaultCommitmentMonths     = 12

	languageAddOnPriceID = "language_addon"
	invoiceStatusDraft   = "draft"
	languageCodeMetadata = "language_code"

	// checkoutClaimTTL bounds how long a crashed checkout can block the next attempt.
	checkoutClaimTTL = 2 * time.Minute
)

type CSRFVerifier interface {
	Verify(ctx context.Context, rawToken string, sessionKey string) error
}

type CheckoutSettings struct {
	BasePriceID      string
	AddOnAmount      int64
	Currency         string
	AttemptLimit     int
	AttemptWindow    time.Duration
	CommitmentMonths int
}

type CheckoutService struct {
	billing     BillingGateway
	submissions SubmissionRepository
	analytics   *AnalyticsService
	csrf        CSRFVerifier
	publisher   EventPublisher
	prices      *PriceCache
	settings    CheckoutSettings
	now         func() time.Time
}

type CheckoutRequest struct {
	SubmissionID string
	Languages    []string
	DiscountCode string
	CSRFToken    string
	IPAddress    string
	UserAgent    string
}

type DiscountApplied struct {
	Code   string `json:"code"`
	Amount int64  `json:"amount"`
}

type CheckoutResult struct {
	PaymentRequired bool              `json:"paymentRequired"`
	ClientSecret    string            `json:"clientSecret,omitempty"`
	InvoiceID       string            `json:"invoiceId"`
	SubscriptionID  string            `json:"subscriptionId"`
	ScheduleID      string            `json:"subscriptionScheduleId"`
	CustomerID      string            `json:"customerId"`
	TotalAmount     int64             `json:"totalAmount"`
	Currency        string            `json:"currency"`
	LineItems       []InvoiceLineItem `json:"lineItems"`
	DiscountApplied *DiscountApplied  `json:"discountApplied,omitempty"`
}

type PreviewRequest struct {
	SessionID    string
	Languages    []string
	DiscountCode string
	CSRFToken    string
}

// PreviewResult carries the preview together with the outcome of the discount lookup. An
// unusable code is reported in DiscountError and the preview is priced without it.
type PreviewResult struct {
	Preview       InvoicePreview
	Coupon        *Coupon
	DiscountError string
}

func NewCheckoutService(billing BillingGateway, submissions SubmissionRepository, analytics *AnalyticsService, csrf CSRFVerifier, publisher EventPublisher, prices *PriceCache, settings CheckoutSettings) *CheckoutService {
	if settings.AddOnAmount <= 0 {
		settings.AddOnAmount = DefaultLanguageAddOnAmount
	}
	settings.Currency = strings.ToLower(strings.TrimSpace(settings.Currency))
	if settings.Currency == "" {
		settings.Currency = DefaultCurrency
	}
	if settings.AttemptLimit <= 0 {
		settings.AttemptLimit = DefaultPaymentAttemptLimit
	}
	if settings.AttemptWindow <= 0 {
		settings.AttemptWindow = DefaultPaymentAttemptWindow
	}
	if settings.CommitmentMonths <= 0 {
		settings.CommitmentMonths = DefaultCommitmentMonths
	}
	if prices == nil {
		prices = NewPriceCache(DefaultPriceCacheTTL, nil)
	}
	return &CheckoutService{
		billing:     billing,
		submissions: submissions,
		analytics:   analytics,
		csrf:        csrf,
		publisher:   publisher,
		prices:      prices,
		settings:    settings,
		now:         time.Now,
	}
}

// ValidateDiscountCode resolves the code as a coupon id first and as a promotion code second.
// It returns nil without an error when the code is unknown or no longer redeemable.
func (service *CheckoutService) ValidateDiscountCode(ctx context.Context, code string) (*Coupon, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}

	coupon, err := service.billing.RetrieveCoupon(ctx, code)
	if err != nil {
		return nil, upstreamError("retrieve coupon", err)
	}
	if coupon == nil {
		coupon, err = service.billing.FindActivePromotionCode(ctx, code)
		if err != nil {
			return nil, upstreamError("lookup promotion code", err)
		}
	}
	if coupon == nil || !service.isCouponRedeemable(*coupon) {
		return nil, nil
	}

	coupon.Code = code
	return coupon, nil
}

func (service *CheckoutService) isCouponRedeemable(coupon Coupon) bool {
	if !coupon.Valid {
		return false
	}
	if coupon.RedeemBy != nil && !service.now().Before(*coupon.RedeemBy) {
		return false
	}
	if coupon.MaxRedemptions > 0 && coupon.TimesRedeemed >= coupon.MaxRedemptions {
		return false
	}
	return true
}

// PreviewInvoice prices the base package plus addOnCount language add-ons without creating
// any billing objects.
func (service *CheckoutService) PreviewInvoice(ctx context.Context, coupon *Coupon, addOnCount int) (InvoicePreview, error) {
	if addOnCount < 0 {
		return InvoicePreview{}, ErrInvalidLanguageCode
	}

	request := InvoicePreviewRequest{
		BasePriceID: service.settings.BasePriceID,
		AddOnCount:  addOnCount,
		AddOnAmount: service.settings.AddOnAmount,
		Currency:    service.settings.Currency,
	}
	if coupon != nil {
		request.CouponID = coupon.ID
	}

	preview, err := service.billing.PreviewInvoice(ctx, request)
	if err != nil {
		return InvoicePreview{}, upstreamError("preview invoice", err)
	}
	return preview, nil
}

func (service *CheckoutService) PreviewForSession(ctx context.Context, request PreviewRequest) (PreviewResult, error) {
	sessionID := strings.TrimSpace(request.SessionID)
	if sessionID == "" {
		return PreviewResult{}, ErrSessionIDRequired
	}
	if err := service.csrf.Verify(ctx, request.CSRFToken, sessionID); err != nil {
		return PreviewResult{}, err
	}

	languages, err := NormalizeAddOnLanguageCodes(request.Languages)
	if err != nil {
		return PreviewResult{}, err
	}

	result := PreviewResult{}
	if strings.TrimSpace(request.DiscountCode) != "" {
		coupon, err := service.ValidateDiscountCode(ctx, request.DiscountCode)
		if err != nil {
			return PreviewResult{}, err
		}
		if coupon == nil {
			result.DiscountError = "INVALID_DISCOUNT_CODE"
		}
		result.Coupon = coupon
	}

	result.Preview, err = service.PreviewInvoice(ctx, result.Coupon, len(languages))
	if err != nil {
		return PreviewResult{}, err
	}
	return result, nil
}

// CreateCheckoutSession turns a submission into a twelve month subscription schedule and
// returns what the client needs to confirm the first invoice. Validation failures are
// reported before the first billing call. A claim on the submission keeps concurrent calls
// from creating a second subscription.
func (service *CheckoutService) CreateCheckoutSession(ctx context.Context, request CheckoutRequest) (CheckoutResult, error) {
	submission, err := loadSubmission(ctx, service.submissions, request.SubmissionID, ErrInvalidSubmissionID)
	if err != nil {
		return CheckoutResult{}, err
	}
	if err := service.csrf.Verify(ctx, request.CSRFToken, submission.SessionID); err != nil {
		return CheckoutResult{}, err
	}
	if submission.IsPaid() {
		return CheckoutResult{}, ErrPaymentAlreadyComplete
	}

	email := formDataString(submission.FormData, "email", "businessEmail", "step3.businessEmail")
	if email == "" {
		email = strings.TrimSpace(submission.Email)
	}
	if email == "" {
		return CheckoutResult{}, ErrMissingCustomerEmail
	}
	businessName := formDataString(submission.FormData, "businessName", "step3.businessName")
	if businessName == "" {
		businessName = submission.BusinessName
	}

	languages, err := NormalizeAddOnLanguageCodes(request.Languages)
	if err != nil {
		return CheckoutResult{}, err
	}

	if err := service.recordPaymentAttempt(ctx, submission, len(languages), request); err != nil {
		return CheckoutResult{}, err
	}

	var coupon *Coupon
	if strings.TrimSpace(request.DiscountCode) != "" {
		coupon, err = service.ValidateDiscountCode(ctx, request.DiscountCode)
		if err != nil {
			return CheckoutResult{}, err
		}
		if coupon == nil {
			return CheckoutResult{}, ErrInvalidDiscountCode
		}
	}

	prices, _, err := service.GetPrices(ctx)
	if err != nil {
		return CheckoutResult{}, err
	}

	submission, claim, err := service.claimCheckout(ctx, submission.ID)
	if err != nil {
		return CheckoutResult{}, err
	}
	defer service.releaseCheckout(context.WithoutCancel(ctx), submission.ID, claim)

	customerID := submission.StripeCustomerID
	if customerID == "" {
		customerID, err = service.billing.FindOrCreateCustomer(ctx, email, businessName, map[string]string{
			"submission_id": submission.ID,
			"session_id":    submission.SessionID,
		})
		if err != nil {
			return CheckoutResult{}, upstreamError("find or create customer", err)
		}
	}

	result := CheckoutResult{
		CustomerID: customerID,
		Currency:   strings.ToUpper(service.settings.Currency),
		LineItems:  service.lineItems(prices, languages),
	}

	var invoice Invoice
	if submission.StripeSubscriptionID != "" {
		result.SubscriptionID = submission.StripeSubscriptionID
		result.ScheduleID = submission.StripeSubscriptionScheduleID
		invoice, err = service.resumeSubscription(ctx, submission, customerID, coupon, languages)
		if err != nil {
			return CheckoutResult{}, err
		}
		log.Info().
			Str("submission_id", submission.ID).
			Str("subscription_id", submission.StripeSubscriptionID).
			Msg("reusing existing subscription for checkout")
	} else {
		invoice, err = service.createSubscription(ctx, submission, claim, customerID, coupon, languages, &result)
		if err != nil {
			return CheckoutResult{}, err
		}
	}

	if _, err := mutateSubmission(ctx, service.submissions, submission.ID, func(models.OnboardingSubmission) (map[string]any, error) {
		return map[string]any{
			"payment_amount":   invoice.AmountDue,
			"payment_currency": service.settings.Currency,
			"updated_at":       service.now().UTC(),
		}, nil
	}); err != nil {
		log.Warn().Err(err).Str("submission_id", submission.ID).Msg("store checkout amount")
	}

	result.InvoiceID = invoice.ID
	result.ClientSecret = invoice.ClientSecret
	result.TotalAmount = invoice.AmountDue
	result.PaymentRequired = invoice.AmountDue > 0
	if coupon != nil {
		result.DiscountApplied = &DiscountApplied{Code: coupon.Code, Amount: invoice.DiscountAmount}
	}

	log.Info().
		Str("submission_id", submission.ID).
		Str("subscription_id", result.SubscriptionID).
		Str("invoice_id", invoice.ID).
		Int64("amount_due", invoice.AmountDue).
		Int("language_add_ons", len(languages)).
		Msg("checkout session created")
	publishEvent(ctx, service.publisher, "checkout.created", submission.ID, map[string]any{
		"submission_id":   submission.ID,
		"subscription_id": result.SubscriptionID,
		"invoice_id":      invoice.ID,
		"amount_due":      invoice.AmountDue,
		"currency":        service.settings.Currency,
		"languages":       languages,
	})
	return result, nil
}

func (service *CheckoutService) recordPaymentAttempt(ctx context.Context, submission models.OnboardingSubmission, languageCount int, request CheckoutRequest) error {
	if service.analytics == nil {
		return nil
	}

	attempts, err := service.analytics.CountRecent(ctx, submission.SessionID, models.AnalyticsEventPaymentAttempt, service.settings.AttemptWindow)
	if err != nil {
		return err
	}
	if attempts >= int64(service.settings.AttemptLimit) {
		log.Warn().
			Str("session_id", submission.SessionID).
			Int64("attempts", attempts).
			Msg("payment attempt rate limit reached")
		return ErrPaymentRateLimited
	}

	_, err = service.analytics.Track(ctx, TrackEventInput{
		SessionID: submission.SessionID,
		EventType: models.AnalyticsEventPaymentAttempt,
		Category:  "payment",
		Metadata: map[string]any{
			"submission_id":  submission.ID,
			"language_count": languageCount,
		},
		IPAddress: request.IPAddress,
		UserAgent: request.UserAgent,
	})
	return err
}

func (service *CheckoutService) createSubscription(ctx context.Context, submission models.OnboardingSubmission, claim string, customerID string, coupon *Coupon, languages []string, result *CheckoutResult) (Invoice, error) {
	scheduleRequest := SubscriptionScheduleRequest{
		CustomerID: customerID,
		PriceID:    service.settings.BasePriceID,
		Months:     service.settings.CommitmentMonths,
		Metadata: map[string]string{
			"submission_id":     submission.ID,
			"session_id":        submission.SessionID,
			"commitment_months": strconv.Itoa(service.settings.CommitmentMonths),
		},
	}
	if coupon != nil {
		scheduleRequest.CouponID = coupon.ID
	}

	schedule, err := service.billing.CreateSubscriptionSchedule(ctx, scheduleRequest)
	if err != nil {
		return Invoice{}, upstreamError("create subscription schedule", err)
	}
	result.ScheduleID = schedule.ScheduleID
	result.SubscriptionID = schedule.SubscriptionID

	if _, err := mutateSubmission(ctx, service.submissions, submission.ID, func(current models.OnboardingSubmission) (map[string]any, error) {
		if current.CheckoutClaim != claim || current.StripeSubscriptionID != "" {
			return nil, ErrCheckoutInProgress
		}
		return map[string]any{
			"stripe_customer_id":              customerID,
			"stripe_subscription_id":          schedule.SubscriptionID,
			"stripe_subscription_schedule_id": schedule.ScheduleID,
			"stripe_coupon_id":                couponID(coupon),
			"updated_at":                      service.now().UTC(),
		}, nil
	}); err != nil {
		log.Error().
			Err(err).
			Str("submission_id", submission.ID).
			Str("subscription_schedule_id", schedule.ScheduleID).
			Msg("subscription schedule created but not linked")
		return Invoice{}, fmt.Errorf("store billing links: %w", err)
	}

	invoice, err := service.billing.LatestSubscriptionInvoice(ctx, schedule.SubscriptionID)
	if err != nil {
		return Invoice{}, upstreamError("load subscription invoice", err)
	}
	return service.completeInvoice(ctx, customerID, invoice, languages)
}

// resumeSubscription finishes the invoice of a subscription created by an earlier attempt.
// A draft invoice gets the add-on items it is still missing; an invoice that is already
// finalized is only returned when it bills exactly the requested order.
func (service *CheckoutService) resumeSubscription(ctx context.Context, submission models.OnboardingSubmission, customerID string, coupon *Coupon, languages []string) (Invoice, error) {
	if couponID(coupon) != submission.StripeCouponID {
		return Invoice{}, ErrCheckoutMismatch
	}

	invoice, err := service.billing.LatestSubscriptionInvoice(ctx, submission.StripeSubscriptionID)
	if err != nil {
		return Invoice{}, upstreamError("load subscription invoice", err)
	}

	missing, unexpected := diffLanguageCodes(languages, invoice.LanguageCodes)
	if len(unexpected) > 0 {
		return Invoice{}, ErrCheckoutMismatch
	}
	if invoice.Status != invoiceStatusDraft {
		if len(missing) > 0 {
			return Invoice{}, ErrCheckoutMismatch
		}
		return invoice, nil
	}
	return service.completeInvoice(ctx, customerID, invoice, missing)
}

// completeInvoice adds one item per language to a draft invoice and finalizes it.
func (service *CheckoutService) completeInvoice(ctx context.Context, customerID string, invoice Invoice, languages []string) (Invoice, error) {
	for _, code := range languages {
		language, _ := LookupAddOnLanguage(code)
		err := service.billing.CreateInvoiceItem(ctx, InvoiceItemRequest{
			CustomerID:  customerID,
			InvoiceID:   invoice.ID,
			Amount:      service.settings.AddOnAmount,
			Currency:    service.settings.Currency,
			Description: fmt.Sprintf("%s Language Add-on", language.NameEN),
			Metadata: map[string]string{
				languageCodeMetadata: code,
				"one_time":           "true",
			},
		})
		if err != nil {
			return Invoice{}, upstreamError("add language invoice item", err)
		}
	}

	finalized, err := service.billing.FinalizeInvoice(ctx, invoice.ID)
	if err != nil {
		return Invoice{}, upstreamError("finalize invoice", err)
	}
	return finalized, nil
}

// claimCheckout marks the submission as being checked out so a concurrent request cannot
// create a second subscription. It returns the fresh row and the claim token.
func (service *CheckoutService) claimCheckout(ctx context.Context, submissionID string) (models.OnboardingSubmission, string, error) {
	claim := uuid.NewString()
	now := service.now().UTC()
	claimed, err := mutateSubmission(ctx, service.submissions, submissionID, func(current models.OnboardingSubmission) (map[string]any, error) {
		if current.IsPaid() {
			return nil, ErrPaymentAlreadyComplete
		}
		if current.CheckoutClaim != "" && current.CheckoutClaimedAt != nil && now.Sub(*current.CheckoutClaimedAt) < checkoutClaimTTL {
			return nil, ErrCheckoutInProgress
		}
		return map[string]any{
			"checkout_claim":      claim,
			"checkout_claimed_at": now,
			"updated_at":          now,
		}, nil
	})
	if err != nil {
		return models.OnboardingSubmission{}, "", err
	}
	return claimed, claim, nil
}

func (service *CheckoutService) releaseCheckout(ctx context.Context, submissionID string, claim string) {
	_, err := mutateSubmission(ctx, service.submissions, submissionID, func(current models.OnboardingSubmission) (map[string]any, error) {
		if current.CheckoutClaim != claim {
			return nil, nil
		}
		return map[string]any{
			"checkout_claim":      "",
			"checkout_claimed_at": nil,
			"updated_at":          service.now().UTC(),
		}, nil
	})
	if err != nil {
		log.Warn().Err(err).Str("submission_id", submissionID).Msg("release checkout claim")
	}
}

func couponID(coupon *Coupon) string {
	if coupon == nil {
		return ""
	}
	return coupon.ID
}

// diffLanguageCodes compares the requested add-ons with those already billed.
func diffLanguageCodes(requested []string, billed []string) (missing []string, unexpected []string) {
	billedSet := make(map[string]bool, len(billed))
	for _, code := range billed {
		billedSet[code] = true
	}
	requestedSet := make(map[string]bool, len(requested))
	for _, code := range requested {
		requestedSet[code] = true
		if !billedSet[code] {
			missing = append(missing, code)
		}
	}
	for _, code := range billed {
		if !requestedSet[code] {
			unexpected = append(unexpected, code)
		}
	}
	return missing, unexpected
}

func (service *CheckoutService) lineItems(prices PriceList, languages []string) []InvoiceLineItem {
	base := prices.BasePackage
	items := make([]InvoiceLineItem, 0, len(languages)+1)
	items = append(items, InvoiceLineItem{
		Description: fmt.Sprintf("WhiteBoar Base Package (€%s/%s)", formatMajorAmount(base.Amount), intervalLabel(base.Interval)),
		Quantity:    1,
		UnitAmount:  base.Amount,
		TotalAmount: base.Amount,
		Recurring:   true,
	})
	for _, code := range languages {
		language, _ := LookupAddOnLanguage(code)
		items = append(items, InvoiceLineItem{
			Description: fmt.Sprintf("%s Language Add-on", language.NameEN),
			Quantity:    1,
			UnitAmount:  service.settings.AddOnAmount,
			TotalAmount: service.settings.AddOnAmount,
			Recurring:   false,
		})
	}
	return items
}

// GetPrices returns the current price list and whether it was served from the cache.
func (service *CheckoutService) GetPrices(ctx context.Context) (PriceList, bool, error) {
	if prices, ok := service.prices.Get(); ok {
		return prices, true, nil
	}

	base, err := service.billing.RetrievePrice(ctx, service.settings.BasePriceID)
	if err != nil {
		return PriceList{}, false, upstreamError("retrieve base price", err)
	}

	prices := PriceList{
		BasePackage: PriceEntry{
			ID:        base.ID,
			Amount:    base.UnitAmount,
			Currency:  strings.ToLower(base.Currency),
			Interval:  base.Interval,
			Recurring: base.Interval != "",
		},
		LanguageAddOn: PriceEntry{
			ID:       languageAddOnPriceID,
			Amount:   service.settings.AddOnAmount,
			Currency: service.settings.Currency,
		},
		FetchedAt: service.now().UTC(),
	}
	service.prices.Set(prices)
	return prices, false, nil
}

func (service *CheckoutService) InvalidatePrices() {
	service.prices.Invalidate()
}

func formatMajorAmount(minor int64) string {
	if minor%100 == 0 {
		return strconv.FormatInt(minor/100, 10)
	}
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}

func intervalLabel(interval string) string {
	if interval == "" {
		return "month"
	}
	return interval
}
