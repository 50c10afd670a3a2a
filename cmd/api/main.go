package main

import (
	"context"
	"strings"
	"time"

	"surgeonreach_go_backend/cmd/api/config"
	"surgeonreach_go_backend/internal/api"
	"surgeonreach_go_backend/internal/auth"
	"surgeonreach_go_backend/internal/database"
	"surgeonreach_go_backend/internal/ledger"
	"surgeonreach_go_backend/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/generative-ai-go/genai"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("No .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	db, err := database.Connect(cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	ctx := context.Background()

	// External service clients, constructed once and injected.
	stripeService := services.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
	if !stripeService.WebhookConfigured() {
		log.Warn().Msg("Stripe webhook secret not configured; falling back to client-driven purchase confirmation")
	}

	genaiClient, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create GenAI client")
	}
	defer genaiClient.Close()

	// Internal services.
	ledgerService := ledger.NewService(ledger.NewGormStore(db), log.With().Str("component", "ledger").Logger())
	aiService := services.NewAIService(genaiClient, cfg.GeminiModel)
	authMiddleware := auth.NewMiddleware(cfg.AuthDomain, ledgerService)

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Split(cfg.AllowedOrigins, ","),
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api.SetupRoutes(r, api.Deps{
		Ledger:             ledgerService,
		AI:                 aiService,
		Payments:           stripeService,
		Auth:               authMiddleware,
		AdminToken:         cfg.AdminToken,
		CheckoutSuccessURL: cfg.CheckoutSuccessURL,
		CheckoutCancelURL:  cfg.CheckoutCancelURL,
		AIRateLimit:        cfg.AIRateLimit,
		AIRatePeriod:       cfg.AIRatePeriod,
	})

	log.Info().Str("port", cfg.Port).Msg("Starting server")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("Server exited")
	}
}
