package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog"
	"github.com/terraincognita07/whiteboar/internal/api"
	"github.com/terraincognita07/whiteboar/internal/billing"
	"github.com/terraincognita07/whiteboar/internal/cache"
	"github.com/terraincognita07/whiteboar/internal/config"
	"github.com/terraincognita07/whiteboar/internal/db"
	"github.com/terraincognita07/whiteboar/internal/events"
	"github.com/terraincognita07/whiteboar/internal/i18n"
	"github.com/terraincognita07/whiteboar/internal/logging"
	"github.com/terraincognita07/whiteboar/internal/services"
)

type publisher interface {
	services.EventPublisher
	Close() error
}

// server owns the fiber app and every connection opened while wiring it.
type server struct {
	app     *fiber.App
	closers []func() error
}

func (srv *server) Close() error {
	var errs []error
	for i := len(srv.closers) - 1; i >= 0; i-- {
		if err := srv.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := logging.Setup(cfg.LogLevel, cfg.Env)

	srv, err := newServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("release resources")
		}
	}()

	sigCtx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	go func() {
		<-sigCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown failed")
		}
	}()

	logger.Info().
		Str("port", cfg.Port).
		Str("env", cfg.Env).
		Bool("postgres", db.IsPostgresURL(cfg.DatabaseURL)).
		Msg("WhiteBoar listening")
	if err := srv.app.Listen(":" + cfg.Port); err != nil {
		return fmt.Errorf("server exited: %w", err)
	}
	return nil
}

func newServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*server, error) {
	srv := &server{}
	fail := func(err error) (*server, error) {
		_ = srv.Close()
		return nil, err
	}

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}
	srv.closers = append(srv.closers, func() error {
		sqlDB, err := database.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	repos := db.NewRepositories(database)

	i18nManager, err := i18n.NewManager(cfg.DefaultLanguage)
	if err != nil {
		return fail(fmt.Errorf("i18n init failed: %w", err))
	}

	tokenStore, err := newTokenStore(ctx, cfg, srv)
	if err != nil {
		return fail(err)
	}
	csrfService, err := services.NewCSRFService(cfg.CSRFSecret, tokenStore, services.DefaultCSRFTokenTTL)
	if err != nil {
		return fail(fmt.Errorf("csrf init failed: %w", err))
	}

	eventPublisher, err := newPublisher(cfg, logger)
	if err != nil {
		return fail(err)
	}
	srv.closers = append(srv.closers, eventPublisher.Close)

	gateway := billing.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret)

	analytics := services.NewAnalyticsService(repos.Analytics)
	submissions := services.NewSubmissionService(repos.Sessions, repos.Submissions, gateway, eventPublisher, services.PaymentSettings{
		OnboardingAmount: cfg.OnboardingPaymentAmount,
		Currency:         cfg.Currency,
	})
	checkout := services.NewCheckoutService(gateway, repos.Submissions, analytics, csrfService, eventPublisher, services.NewPriceCache(cfg.PriceCacheTTL, nil), services.CheckoutSettings{
		BasePriceID:  cfg.StripeBasePackagePriceID,
		AddOnAmount:  cfg.LanguageAddOnAmount,
		Currency:     cfg.Currency,
		AttemptLimit: cfg.PaymentAttemptLimitPerHour,
	})

	handler, err := api.NewHandler(api.Dependencies{
		Sessions:        services.NewSessionService(repos.Sessions),
		Verification:    services.NewVerificationService(repos.Sessions, services.LogCodeNotifier{RevealCodes: !cfg.IsProduction()}, cfg.VerificationCodeTTL),
		Submissions:     submissions,
		Checkout:        checkout,
		Webhooks:        services.NewWebhookService(gateway, repos.WebhookEvents, repos.Submissions, submissions, analytics, eventPublisher),
		Analytics:       analytics,
		CSRF:            csrfService,
		Cleaner:         repos.Sessions,
		I18n:            i18nManager,
		PublishableKey:  cfg.StripePublishableKey,
		AllowTestRoutes: !cfg.IsProduction(),
	})
	if err != nil {
		return fail(fmt.Errorf("handler init failed: %w", err))
	}

	srv.app = buildApp(handler, cfg)
	return srv, nil
}

func buildApp(handler *api.Handler, cfg *config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:                 "WhiteBoar",
		DisableStartupMessage:   true,
		ProxyHeader:             cfg.ProxyHeader,
		EnableTrustedProxyCheck: len(cfg.TrustedProxies) > 0,
		TrustedProxies:          cfg.TrustedProxies,
		EnableIPValidation:      true,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(compress.New())

	api.RegisterRoutes(app, handler)
	return app
}

func newTokenStore(ctx context.Context, cfg *config.Config, srv *server) (services.TokenStore, error) {
	if cfg.RedisURL == "" {
		return services.NewMemoryTokenStore(), nil
	}
	client, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis init failed: %w", err)
	}
	srv.closers = append(srv.closers, client.Close)
	return cache.NewRedisTokenStore(client), nil
}

func newPublisher(cfg *config.Config, logger zerolog.Logger) (publisher, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return events.NewLogPublisher(logger), nil
	}
	kafkaPublisher, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaPaymentTopic, nil)
	if err != nil {
		return nil, fmt.Errorf("kafka init failed: %w", err)
	}
	return kafkaPublisher, nil
}
