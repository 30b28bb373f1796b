package api

import (
	"context"
	"errors"

	"github.com/terraincognita07/whiteboar/internal/db"
	"github.com/terraincognita07/whiteboar/internal/i18n"
	"github.com/terraincognita07/whiteboar/internal/services"
)

// SessionCleaner removes a session and everything that hangs off it. Only the non-production
// cleanup route uses it.
type SessionCleaner interface {
	DeleteCascade(ctx context.Context, sessionID string) (db.CleanupResult, error)
}

type Dependencies struct {
	Sessions     *services.SessionService
	Verification *services.VerificationService
	Submissions  *services.SubmissionService
	Checkout     *services.CheckoutService
	Webhooks     *services.WebhookService
	Analytics    *services.AnalyticsService
	CSRF         *services.CSRFService
	Cleaner      SessionCleaner
	I18n         *i18n.Manager

	PublishableKey string

	// AllowTestRoutes mounts /api/test/* helpers. It must stay false in production.
	AllowTestRoutes bool
}

type Handler struct {
	sessions        *services.SessionService
	verification    *services.VerificationService
	submissions     *services.SubmissionService
	checkout        *services.CheckoutService
	webhooks        *services.WebhookService
	analytics       *services.AnalyticsService
	csrf            *services.CSRFService
	cleaner         SessionCleaner
	i18n            *i18n.Manager
	publishableKey  string
	allowTestRoutes bool
	discountLimiter *failureLimiter
}

func NewHandler(deps Dependencies) (*Handler, error) {
	if deps.I18n == nil {
		return nil, errors.New("i18n manager is required")
	}
	if deps.Sessions == nil || deps.Verification == nil || deps.Submissions == nil {
		return nil, errors.New("onboarding services are required")
	}
	if deps.Checkout == nil || deps.Webhooks == nil || deps.Analytics == nil || deps.CSRF == nil {
		return nil, errors.New("checkout services are required")
	}
	if deps.AllowTestRoutes && deps.Cleaner == nil {
		return nil, errors.New("session cleaner is required when test routes are enabled")
	}

	return &Handler{
		sessions:        deps.Sessions,
		verification:    deps.Verification,
		submissions:     deps.Submissions,
		checkout:        deps.Checkout,
		webhooks:        deps.Webhooks,
		analytics:       deps.Analytics,
		csrf:            deps.CSRF,
		cleaner:         deps.Cleaner,
		i18n:            deps.I18n,
		publishableKey:  deps.PublishableKey,
		allowTestRoutes: deps.AllowTestRoutes,
		discountLimiter: newFailureLimiter(discountFailureLimit, discountFailureWindow),
	}, nil
}
