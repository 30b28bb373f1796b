package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

type Config struct {
	Env      string
	Port     string
	LogLevel string

	DatabaseURL            string
	DatabaseServiceRoleKey string

	StripeSecretKey            string
	StripePublishableKey       string
	StripeWebhookSecret        string
	StripeBasePackagePriceID   string
	LanguageAddOnAmount        int64
	OnboardingPaymentAmount    int64
	Currency                   string
	CSRFSecret                 string
	VerificationCodeTTL        time.Duration
	PriceCacheTTL              time.Duration
	RedisURL                   string
	KafkaBrokers               []string
	KafkaPaymentTopic          string
	DefaultLanguage            string
	ShutdownTimeout            time.Duration
	PaymentAttemptLimitPerHour int

	// ProxyHeader names the header carrying the client address, e.g. X-Real-IP.
	// It is read only for requests arriving from TrustedProxies.
	ProxyHeader    string
	TrustedProxies []string
}

var requiredKeys = []string{
	"STRIPE_SECRET_KEY",
	"STRIPE_PUBLISHABLE_KEY",
	"STRIPE_WEBHOOK_SECRET",
	"STRIPE_BASE_PACKAGE_PRICE_ID",
	"DATABASE_URL",
	"DATABASE_SERVICE_ROLE_KEY",
	"CSRF_SECRET",
}

// MissingKeysError lists every required setting that is absent.
type MissingKeysError struct {
	Keys []string
}

func (err *MissingKeysError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", strings.Join(err.Keys, ", "))
}

// Load reads .env (when present), then the optional config file, then the process
// environment. Environment variables win over the file.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if strings.TrimSpace(configFile) != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", EnvDevelopment)
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LANGUAGE_ADDON_AMOUNT", 7500)
	v.SetDefault("ONBOARDING_PAYMENT_AMOUNT", 4000)
	v.SetDefault("CURRENCY", "eur")
	v.SetDefault("VERIFICATION_CODE_TTL", "60s")
	v.SetDefault("PRICE_CACHE_TTL", "5m")
	v.SetDefault("KAFKA_PAYMENT_TOPIC", "onboarding.payments")
	v.SetDefault("DEFAULT_LANGUAGE", "en")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")
	v.SetDefault("PAYMENT_ATTEMPT_LIMIT_PER_HOUR", 5)
}

func fromViper(v *viper.Viper) (*Config, error) {
	missing := make([]string, 0)
	for _, key := range requiredKeys {
		if strings.TrimSpace(v.GetString(key)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingKeysError{Keys: missing}
	}

	cfg := &Config{
		Env:                        strings.ToLower(strings.TrimSpace(v.GetString("APP_ENV"))),
		Port:                       strings.TrimSpace(v.GetString("PORT")),
		LogLevel:                   strings.TrimSpace(v.GetString("LOG_LEVEL")),
		DatabaseURL:                strings.TrimSpace(v.GetString("DATABASE_URL")),
		DatabaseServiceRoleKey:     strings.TrimSpace(v.GetString("DATABASE_SERVICE_ROLE_KEY")),
		StripeSecretKey:            strings.TrimSpace(v.GetString("STRIPE_SECRET_KEY")),
		StripePublishableKey:       strings.TrimSpace(v.GetString("STRIPE_PUBLISHABLE_KEY")),
		StripeWebhookSecret:        strings.TrimSpace(v.GetString("STRIPE_WEBHOOK_SECRET")),
		StripeBasePackagePriceID:   strings.TrimSpace(v.GetString("STRIPE_BASE_PACKAGE_PRICE_ID")),
		LanguageAddOnAmount:        v.GetInt64("LANGUAGE_ADDON_AMOUNT"),
		OnboardingPaymentAmount:    v.GetInt64("ONBOARDING_PAYMENT_AMOUNT"),
		Currency:                   strings.ToLower(strings.TrimSpace(v.GetString("CURRENCY"))),
		CSRFSecret:                 v.GetString("CSRF_SECRET"),
		VerificationCodeTTL:        v.GetDuration("VERIFICATION_CODE_TTL"),
		PriceCacheTTL:              v.GetDuration("PRICE_CACHE_TTL"),
		RedisURL:                   strings.TrimSpace(v.GetString("REDIS_URL")),
		KafkaBrokers:               splitList(v.GetString("KAFKA_BROKERS")),
		KafkaPaymentTopic:          strings.TrimSpace(v.GetString("KAFKA_PAYMENT_TOPIC")),
		DefaultLanguage:            strings.TrimSpace(v.GetString("DEFAULT_LANGUAGE")),
		ShutdownTimeout:            v.GetDuration("SHUTDOWN_TIMEOUT"),
		PaymentAttemptLimitPerHour: v.GetInt("PAYMENT_ATTEMPT_LIMIT_PER_HOUR"),
		ProxyHeader:                strings.TrimSpace(v.GetString("PROXY_HEADER")),
		TrustedProxies:             splitList(v.GetString("TRUSTED_PROXIES")),
	}

	if cfg.LanguageAddOnAmount <= 0 {
		return nil, fmt.Errorf("LANGUAGE_ADDON_AMOUNT must be positive, got %d", cfg.LanguageAddOnAmount)
	}
	if cfg.OnboardingPaymentAmount <= 0 {
		return nil, fmt.Errorf("ONBOARDING_PAYMENT_AMOUNT must be positive, got %d", cfg.OnboardingPaymentAmount)
	}
	if cfg.VerificationCodeTTL <= 0 {
		return nil, fmt.Errorf("VERIFICATION_CODE_TTL must be positive")
	}
	if cfg.PriceCacheTTL <= 0 {
		return nil, fmt.Errorf("PRICE_CACHE_TTL must be positive")
	}
	if cfg.PaymentAttemptLimitPerHour <= 0 {
		return nil, fmt.Errorf("PAYMENT_ATTEMPT_LIMIT_PER_HOUR must be positive")
	}
	if cfg.ProxyHeader != "" && len(cfg.TrustedProxies) == 0 {
		return nil, fmt.Errorf("PROXY_HEADER requires TRUSTED_PROXIES")
	}
	if len(cfg.CSRFSecret) < 32 {
		return nil, fmt.Errorf("CSRF_SECRET must be at least 32 characters")
	}
	return cfg, nil
}

func (cfg *Config) IsProduction() bool {
	return cfg.Env == EnvProduction
}

func splitList(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == ';'
	})
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
