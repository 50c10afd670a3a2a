package api

import (
	"net/http"
	"time"

	"surgeonreach_go_backend/internal/auth"
	"surgeonreach_go_backend/internal/ledger"
	"surgeonreach_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// Deps carries everything the route handlers need, wired at startup.
type Deps struct {
	Ledger     *ledger.Service
	AI         services.TextGenerator
	Payments   services.PaymentGateway
	Auth       *auth.Middleware
	AdminToken string

	CheckoutSuccessURL string
	CheckoutCancelURL  string

	AIRateLimit  int64
	AIRatePeriod time.Duration
}

func SetupRoutes(r *gin.Engine, deps Deps) {
	authRequired := deps.Auth.Handler()

	aiLimiter := mgin.NewMiddleware(limiter.New(memory.NewStore(), limiter.Rate{
		Period: deps.AIRatePeriod,
		Limit:  deps.AIRateLimit,
	}))

	api := r.Group("/api")
	{
		api.GET("/credits", authRequired, getCreditsHandler())
		api.GET("/credits/usage", authRequired, getUsageStatsHandler(deps.Ledger))
		api.POST("/credits/purchase", authRequired, purchaseCreditsHandler(deps))
		api.POST("/credits/confirm", authRequired, confirmPurchaseHandler(deps.Payments, deps.Ledger))
		api.POST("/search/debit", authRequired, debitSearchHandler(deps.Ledger))

		ai := api.Group("/ai", authRequired, aiLimiter)
		{
			ai.POST("/summarize-notes", summarizeNotesHandler(deps.Ledger, deps.AI))
			ai.POST("/draft-email", draftEmailHandler(deps.Ledger, deps.AI))
			ai.POST("/analyze-surgeon", analyzeSurgeonHandler(deps.Ledger, deps.AI))
		}

		admin := api.Group("/admin", adminAuth(deps.AdminToken))
		{
			admin.POST("/migrate-all", migrateAllHandler(deps.Ledger))
		}

		api.POST("/stripe/webhook", stripeWebhookHandler(deps.Payments, deps.Ledger))
	}
}

// adminAuth gates the admin surface behind a shared token. An empty
// configured token disables the surface entirely.
func adminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" || c.GetHeader("X-Admin-Token") != token {
			c.JSON(http.StatusForbidden, gin.H{"error": "Access forbidden"})
			c.Abort()
			return
		}
		c.Next()
	}
}
