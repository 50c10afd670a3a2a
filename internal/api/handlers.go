package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"surgeonreach_go_backend/internal/auth"
	apperrors "surgeonreach_go_backend/internal/errors"
	"surgeonreach_go_backend/internal/ledger"
	"surgeonreach_go_backend/internal/models"
	"surgeonreach_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v79"
)

// creditPacks are the purchasable credit bundles. Prices in cents.
var creditPacks = map[string]struct {
	Credits     int64
	AmountCents int64
}{
	"small":    {Credits: 25, AmountCents: 299},
	"standard": {Credits: 100, AmountCents: 999},
	"bulk":     {Credits: 300, AmountCents: 2499},
}

func getCreditsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get(auth.ContextAccount)
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found in context"})
			return
		}
		account, ok := value.(*models.Account)
		if !ok {
			apperrors.HandleError(c, fmt.Errorf("unexpected account type in context"))
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"credits":                 account.Credits,
			"total_credits_used":      account.TotalCreditsUsed,
			"total_credits_purchased": account.TotalCreditsPurchased,
			"migrated":                account.Migrated,
		})
	}
}

func getUsageStatsHandler(ledgerService *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(auth.ContextUserID)
		stats, err := ledgerService.UsageStats(c.Request.Context(), userID)
		if err != nil {
			apperrors.HandleError(c, apperrors.FromLedgerError(err))
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

func summarizeNotesHandler(ledgerService *ledger.Service, ai services.TextGenerator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			Notes string `json:"notes" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		userID := c.GetString(auth.ContextUserID)
		debit, err := ledgerService.CheckAndDebit(c.Request.Context(), userID, ledger.FeatureSummarizeNotes)
		if err != nil {
			apperrors.HandleError(c, apperrors.FromLedgerError(err))
			return
		}

		// Credits are spent before execution and not refunded on model
		// failure.
		summary, err := ai.SummarizeNotes(c.Request.Context(), request.Notes)
		if err != nil {
			apperrors.HandleError(c, apperrors.LogAndReturn500(err))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"summary":   summary,
			"cost":      debit.Cost,
			"remaining": debit.Remaining,
		})
	}
}

func draftEmailHandler(ledgerService *ledger.Service, ai services.TextGenerator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			SurgeonName string `json:"surgeon_name" binding:"required"`
			Clinic      string `json:"clinic"`
			Notes       string `json:"notes"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		userID := c.GetString(auth.ContextUserID)
		debit, err := ledgerService.CheckAndDebit(c.Request.Context(), userID, ledger.FeatureDraftEmail)
		if err != nil {
			apperrors.HandleError(c, apperrors.FromLedgerError(err))
			return
		}

		email, err := ai.DraftEmail(c.Request.Context(), request.SurgeonName, request.Clinic, request.Notes)
		if err != nil {
			apperrors.HandleError(c, apperrors.LogAndReturn500(err))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"email":     email,
			"cost":      debit.Cost,
			"remaining": debit.Remaining,
		})
	}
}

func analyzeSurgeonHandler(ledgerService *ledger.Service, ai services.TextGenerator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			Profile string `json:"profile" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		userID := c.GetString(auth.ContextUserID)
		debit, err := ledgerService.CheckAndDebit(c.Request.Context(), userID, ledger.FeatureAnalyzeSurgeon)
		if err != nil {
			apperrors.HandleError(c, apperrors.FromLedgerError(err))
			return
		}

		analysis, err := ai.AnalyzeSurgeon(c.Request.Context(), request.Profile)
		if err != nil {
			apperrors.HandleError(c, apperrors.LogAndReturn500(err))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"analysis":  analysis,
			"cost":      debit.Cost,
			"remaining": debit.Remaining,
		})
	}
}

// debitSearchHandler charges a surgeon search. The search itself runs in the
// directory service; this endpoint only authorizes the spend.
func debitSearchHandler(ledgerService *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(auth.ContextUserID)
		debit, err := ledgerService.CheckAndDebit(c.Request.Context(), userID, ledger.FeatureSurgeonSearch)
		if err != nil {
			apperrors.HandleError(c, apperrors.FromLedgerError(err))
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"cost":      debit.Cost,
			"remaining": debit.Remaining,
		})
	}
}

func purchaseCreditsHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			Pack string `json:"pack" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		pack, ok := creditPacks[request.Pack]
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unknown credit pack %q", request.Pack)})
			return
		}

		userID := c.GetString(auth.ContextUserID)
		session, err := deps.Payments.CreateCheckoutSession(
			userID, pack.Credits, pack.AmountCents,
			deps.CheckoutSuccessURL, deps.CheckoutCancelURL,
		)
		if err != nil {
			apperrors.HandleError(c, apperrors.LogAndReturn500(err))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"session_id": session.ID,
			// Tells the client whether it must drive /credits/confirm
			// after payment.
			"webhook_configured": deps.Payments.WebhookConfigured(),
		})
	}
}

// confirmPurchaseHandler is the fallback crediting path for deployments
// without a configured webhook endpoint. The client posts back the session
// id; the payment is re-verified against Stripe before any credit applies,
// and replays are de-duplicated by session id.
func confirmPurchaseHandler(payments services.PaymentGateway, ledgerService *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if payments.WebhookConfigured() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Webhook channel is configured; crediting happens server-side"})
			return
		}

		var request struct {
			SessionID string `json:"session_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		session, err := payments.VerifySession(c.Request.Context(), request.SessionID)
		if err != nil {
			apperrors.HandleError(c, apperrors.LogAndReturn500(err))
			return
		}
		if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Payment is not completed"})
			return
		}

		userID := c.GetString(auth.ContextUserID)
		if session.ClientReferenceID != userID {
			apperrors.HandleError(c, apperrors.New403Error())
			return
		}

		credits, err := creditsFromSession(session)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		newTotal, duplicate, err := ledgerService.Credit(c.Request.Context(), userID, credits, session.ID)
		if err != nil {
			apperrors.HandleError(c, apperrors.FromLedgerError(err))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"credits":          newTotal,
			"already_credited": duplicate,
		})
	}
}

func stripeWebhookHandler(payments services.PaymentGateway, ledgerService *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const MaxBodyBytes = int64(65536)
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)

		payload, err := io.ReadAll(c.Request.Body)
		if err != nil {
			log.Error().Err(err).Msg("Error reading webhook request body")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Error reading request body"})
			return
		}

		signatureHeader := c.GetHeader("Stripe-Signature")
		event, err := payments.ConstructEvent(payload, signatureHeader)
		if err != nil {
			log.Warn().Err(err).Msg("Error verifying webhook signature")
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to verify webhook signature"})
			return
		}

		switch event.Type {
		case "checkout.session.completed":
			var session stripe.CheckoutSession
			if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
				log.Error().Err(err).Msg("Error parsing checkout session")
				c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse checkout session"})
				return
			}
			if err := processCompletedCheckout(c.Request.Context(), ledgerService, session); err != nil {
				if errors.Is(err, errMalformedCheckout) {
					// Redelivery can never fix a malformed session, so
					// acknowledge it to stop Stripe from retrying.
					log.Error().Err(err).Str("session_id", session.ID).Msg("Dropping unprocessable checkout session")
					break
				}
				log.Error().Err(err).Str("session_id", session.ID).Msg("Error processing checkout session")
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process checkout session"})
				return
			}

		default:
			// Acknowledged, not an error.
			log.Debug().Str("event_type", string(event.Type)).Msg("Unhandled webhook event type")
		}

		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}

// errMalformedCheckout marks checkout sessions that can never be credited no
// matter how often they are redelivered.
var errMalformedCheckout = errors.New("malformed checkout session")

func processCompletedCheckout(ctx context.Context, ledgerService *ledger.Service, session stripe.CheckoutSession) error {
	userID := session.ClientReferenceID
	if userID == "" {
		userID = session.Metadata["user_id"]
	}
	if userID == "" {
		return fmt.Errorf("%w: no user reference", errMalformedCheckout)
	}

	credits, err := creditsFromSession(&session)
	if err != nil {
		return err
	}

	_, _, err = ledgerService.Credit(ctx, userID, credits, session.ID)
	return err
}

func creditsFromSession(session *stripe.CheckoutSession) (int64, error) {
	credits, err := strconv.ParseInt(session.Metadata["credits"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid credits metadata: %v", errMalformedCheckout, err)
	}
	if credits <= 0 {
		return 0, fmt.Errorf("%w: non-positive credits metadata %d", errMalformedCheckout, credits)
	}
	return credits, nil
}

func migrateAllHandler(ledgerService *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := ledgerService.MigrateAll(c.Request.Context())
		if err != nil {
			// Report what committed before the failure.
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":  "Bulk migration failed part-way",
				"report": report,
			})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}
