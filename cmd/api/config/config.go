package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port           string
	AllowedOrigins string

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string

	AuthDomain string
	AdminToken string

	StripeSecretKey     string
	StripeWebhookSecret string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string

	GeminiAPIKey string
	GeminiModel  string

	AIRateLimit  int64
	AIRatePeriod time.Duration
}

// Load reads the service configuration from the environment. Required values
// without a sensible default make startup fail rather than limp along.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                envOr("PORT", "8080"),
		AllowedOrigins:      envOr("ALLOWED_ORIGINS", "http://localhost:5173"),
		DBHost:              envOr("DB_HOST", "localhost"),
		DBUser:              os.Getenv("DB_USER"),
		DBPassword:          os.Getenv("DB_PASSWORD"),
		DBName:              envOr("DB_NAME", "surgeonreach"),
		DBPort:              envOr("DB_PORT", "5432"),
		AuthDomain:          os.Getenv("AUTH_DOMAIN"),
		AdminToken:          os.Getenv("ADMIN_API_TOKEN"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		CheckoutSuccessURL:  envOr("CHECKOUT_SUCCESS_URL", "http://localhost:5173/credits/success?session_id={CHECKOUT_SESSION_ID}"),
		CheckoutCancelURL:   envOr("CHECKOUT_CANCEL_URL", "http://localhost:5173/credits/cancel"),
		GeminiAPIKey:        os.Getenv("GEMINI_API_KEY"),
		GeminiModel:         envOr("GEMINI_MODEL", "gemini-1.5-flash"),
		AIRatePeriod:        time.Minute,
	}

	limit, err := strconv.ParseInt(envOr("AI_RATE_LIMIT", "30"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid AI_RATE_LIMIT: %w", err)
	}
	cfg.AIRateLimit = limit

	for name, value := range map[string]string{
		"DB_USER":           cfg.DBUser,
		"AUTH_DOMAIN":       cfg.AuthDomain,
		"STRIPE_SECRET_KEY": cfg.StripeSecretKey,
		"GEMINI_API_KEY":    cfg.GeminiAPIKey,
	} {
		if value == "" {
			return nil, fmt.Errorf("%s is not set in the environment", name)
		}
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
