package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"surgeonreach_go_backend/internal/auth"
	"surgeonreach_go_backend/internal/ledger"
	"surgeonreach_go_backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) WebhookConfigured() bool {
	return m.Called().Bool(0)
}

func (m *MockPaymentGateway) CreateCheckoutSession(userID string, credits int64, amountCents int64, successURL, cancelURL string) (*stripe.CheckoutSession, error) {
	args := m.Called(userID, credits, amountCents, successURL, cancelURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripe.CheckoutSession), args.Error(1)
}

func (m *MockPaymentGateway) ConstructEvent(payload []byte, signatureHeader string) (stripe.Event, error) {
	args := m.Called(payload, signatureHeader)
	return args.Get(0).(stripe.Event), args.Error(1)
}

func (m *MockPaymentGateway) VerifySession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripe.CheckoutSession), args.Error(1)
}

type MockTextGenerator struct {
	mock.Mock
}

func (m *MockTextGenerator) SummarizeNotes(ctx context.Context, notes string) (string, error) {
	args := m.Called(ctx, notes)
	return args.String(0), args.Error(1)
}

func (m *MockTextGenerator) DraftEmail(ctx context.Context, surgeonName, clinic, notes string) (string, error) {
	args := m.Called(ctx, surgeonName, clinic, notes)
	return args.String(0), args.Error(1)
}

func (m *MockTextGenerator) AnalyzeSurgeon(ctx context.Context, profile string) (string, error) {
	args := m.Called(ctx, profile)
	return args.String(0), args.Error(1)
}

// fakeAuth stands in for the JWT middleware in handler tests.
func fakeAuth(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(auth.ContextUserID, userID)
		c.Next()
	}
}

func newLedgerService(store *ledger.MemoryStore) *ledger.Service {
	return ledger.NewService(store, zerolog.Nop())
}

func doJSON(r *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAnalyzeSurgeonHandler(t *testing.T) {
	store := ledger.NewMemoryStore()
	store.SeedAccount(models.Account{UserID: "user-1", Credits: 10})
	svc := newLedgerService(store)
	mockAI := new(MockTextGenerator)

	r := gin.New()
	r.POST("/api/ai/analyze-surgeon", fakeAuth("user-1"), analyzeSurgeonHandler(svc, mockAI))

	t.Run("debits then generates", func(t *testing.T) {
		mockAI.On("AnalyzeSurgeon", mock.Anything, "FUE specialist, Istanbul").
			Return("Strong fit: high-volume FUE practice.", nil).Once()

		w := doJSON(r, http.MethodPost, "/api/ai/analyze-surgeon", gin.H{"profile": "FUE specialist, Istanbul"}, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Analysis  string `json:"analysis"`
			Cost      int64  `json:"cost"`
			Remaining int64  `json:"remaining"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "Strong fit: high-volume FUE practice.", resp.Analysis)
		assert.Equal(t, int64(3), resp.Cost)
		assert.Equal(t, int64(7), resp.Remaining)
		mockAI.AssertExpectations(t)
	})

	t.Run("insufficient credits returns 402 with shortfall", func(t *testing.T) {
		store.SeedAccount(models.Account{UserID: "user-1", Credits: 1})

		w := doJSON(r, http.MethodPost, "/api/ai/analyze-surgeon", gin.H{"profile": "x"}, nil)
		require.Equal(t, http.StatusPaymentRequired, w.Code)

		var resp struct {
			Error struct {
				Type     string `json:"type"`
				Required int64  `json:"required"`
				Current  int64  `json:"current"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "INSUFFICIENT_CREDITS", resp.Error.Type)
		assert.Equal(t, int64(3), resp.Error.Required)
		assert.Equal(t, int64(1), resp.Error.Current)
		mockAI.AssertNotCalled(t, "AnalyzeSurgeon", mock.Anything, "x")
	})

	t.Run("missing profile is a 400", func(t *testing.T) {
		w := doJSON(r, http.MethodPost, "/api/ai/analyze-surgeon", gin.H{}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestDebitNotRefundedOnModelFailure(t *testing.T) {
	store := ledger.NewMemoryStore()
	store.SeedAccount(models.Account{UserID: "user-1", Credits: 10})
	svc := newLedgerService(store)
	mockAI := new(MockTextGenerator)
	mockAI.On("SummarizeNotes", mock.Anything, "notes").
		Return("", fmt.Errorf("model overloaded")).Once()

	r := gin.New()
	r.POST("/api/ai/summarize-notes", fakeAuth("user-1"), summarizeNotesHandler(svc, mockAI))

	w := doJSON(r, http.MethodPost, "/api/ai/summarize-notes", gin.H{"notes": "notes"}, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	// Debit-before-execute policy: the credit stays spent.
	account, err := store.GetAccount(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(9), account.Credits)
}

func TestStripeWebhookCreditsOnCheckoutCompleted(t *testing.T) {
	store := ledger.NewMemoryStore()
	svc := newLedgerService(store)
	payments := new(MockPaymentGateway)

	raw := json.RawMessage(`{"id":"cs_wh_1","client_reference_id":"user-1","metadata":{"credits":"25"}}`)
	event := stripe.Event{
		Type: "checkout.session.completed",
		Data: &stripe.EventData{Raw: raw},
	}
	payments.On("ConstructEvent", mock.Anything, "sig").Return(event, nil)

	r := gin.New()
	r.POST("/api/stripe/webhook", stripeWebhookHandler(payments, svc))

	w := doJSON(r, http.MethodPost, "/api/stripe/webhook", gin.H{}, map[string]string{"Stripe-Signature": "sig"})
	require.Equal(t, http.StatusOK, w.Code)

	// Lazy bootstrap (100) plus the purchased 25.
	account, err := store.GetAccount(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(125), account.Credits)
	assert.Equal(t, int64(25), account.TotalCreditsPurchased)

	// Redelivery of the same event must not credit twice.
	w = doJSON(r, http.MethodPost, "/api/stripe/webhook", gin.H{}, map[string]string{"Stripe-Signature": "sig"})
	require.Equal(t, http.StatusOK, w.Code)

	account, err = store.GetAccount(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(125), account.Credits)
}

func TestStripeWebhookAcksUnprocessableSessions(t *testing.T) {
	store := ledger.NewMemoryStore()
	svc := newLedgerService(store)

	// None of these sessions can ever be credited, so each must be
	// acknowledged rather than returned for redelivery.
	cases := []struct {
		name string
		raw  string
	}{
		{"non-numeric credits", `{"id":"cs_bad_1","client_reference_id":"user-1","metadata":{"credits":"plenty"}}`},
		{"missing credits", `{"id":"cs_bad_2","client_reference_id":"user-1","metadata":{}}`},
		{"zero credits", `{"id":"cs_bad_3","client_reference_id":"user-1","metadata":{"credits":"0"}}`},
		{"negative credits", `{"id":"cs_bad_4","client_reference_id":"user-1","metadata":{"credits":"-25"}}`},
		{"no user reference", `{"id":"cs_bad_5","metadata":{"credits":"25"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payments := new(MockPaymentGateway)
			event := stripe.Event{
				Type: "checkout.session.completed",
				Data: &stripe.EventData{Raw: json.RawMessage(tc.raw)},
			}
			payments.On("ConstructEvent", mock.Anything, "sig").Return(event, nil)

			r := gin.New()
			r.POST("/api/stripe/webhook", stripeWebhookHandler(payments, svc))

			w := doJSON(r, http.MethodPost, "/api/stripe/webhook", gin.H{}, map[string]string{"Stripe-Signature": "sig"})
			require.Equal(t, http.StatusOK, w.Code)
			assert.Contains(t, w.Body.String(), `"received":true`)
		})
	}

	// No session got far enough to bootstrap or credit the account.
	_, err := store.GetAccount(context.Background(), "user-1")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	svc := newLedgerService(ledger.NewMemoryStore())
	payments := new(MockPaymentGateway)
	payments.On("ConstructEvent", mock.Anything, "bad").
		Return(stripe.Event{}, fmt.Errorf("signature mismatch"))

	r := gin.New()
	r.POST("/api/stripe/webhook", stripeWebhookHandler(payments, svc))

	w := doJSON(r, http.MethodPost, "/api/stripe/webhook", gin.H{}, map[string]string{"Stripe-Signature": "bad"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStripeWebhookIgnoresUnknownEvents(t *testing.T) {
	store := ledger.NewMemoryStore()
	svc := newLedgerService(store)
	payments := new(MockPaymentGateway)
	payments.On("ConstructEvent", mock.Anything, "sig").
		Return(stripe.Event{Type: "invoice.paid", Data: &stripe.EventData{}}, nil)

	r := gin.New()
	r.POST("/api/stripe/webhook", stripeWebhookHandler(payments, svc))

	w := doJSON(r, http.MethodPost, "/api/stripe/webhook", gin.H{}, map[string]string{"Stripe-Signature": "sig"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"received":true`)
}

func TestConfirmPurchase(t *testing.T) {
	newRouter := func(store *ledger.MemoryStore, payments *MockPaymentGateway) *gin.Engine {
		r := gin.New()
		r.POST("/api/credits/confirm", fakeAuth("user-1"), confirmPurchaseHandler(payments, newLedgerService(store)))
		return r
	}

	paidSession := &stripe.CheckoutSession{
		ID:                "cs_confirm_1",
		ClientReferenceID: "user-1",
		PaymentStatus:     stripe.CheckoutSessionPaymentStatusPaid,
		Metadata:          map[string]string{"credits": "25"},
	}

	t.Run("verifies payment and credits once", func(t *testing.T) {
		store := ledger.NewMemoryStore()
		store.SeedAccount(models.Account{UserID: "user-1", Credits: 50})
		payments := new(MockPaymentGateway)
		payments.On("WebhookConfigured").Return(false)
		payments.On("VerifySession", mock.Anything, "cs_confirm_1").Return(paidSession, nil)
		r := newRouter(store, payments)

		w := doJSON(r, http.MethodPost, "/api/credits/confirm", gin.H{"session_id": "cs_confirm_1"}, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"credits":75`)
		assert.Contains(t, w.Body.String(), `"already_credited":false`)

		// Client retry replays the same session id.
		w = doJSON(r, http.MethodPost, "/api/credits/confirm", gin.H{"session_id": "cs_confirm_1"}, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"credits":75`)
		assert.Contains(t, w.Body.String(), `"already_credited":true`)
	})

	t.Run("rejects unpaid session", func(t *testing.T) {
		store := ledger.NewMemoryStore()
		store.SeedAccount(models.Account{UserID: "user-1", Credits: 50})
		payments := new(MockPaymentGateway)
		payments.On("WebhookConfigured").Return(false)
		payments.On("VerifySession", mock.Anything, "cs_unpaid").Return(&stripe.CheckoutSession{
			ID:                "cs_unpaid",
			ClientReferenceID: "user-1",
			PaymentStatus:     stripe.CheckoutSessionPaymentStatusUnpaid,
			Metadata:          map[string]string{"credits": "25"},
		}, nil)
		r := newRouter(store, payments)

		w := doJSON(r, http.MethodPost, "/api/credits/confirm", gin.H{"session_id": "cs_unpaid"}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		account, err := store.GetAccount(context.Background(), "user-1")
		require.NoError(t, err)
		assert.Equal(t, int64(50), account.Credits)
	})

	t.Run("rejects session belonging to another user", func(t *testing.T) {
		store := ledger.NewMemoryStore()
		payments := new(MockPaymentGateway)
		payments.On("WebhookConfigured").Return(false)
		payments.On("VerifySession", mock.Anything, "cs_other").Return(&stripe.CheckoutSession{
			ID:                "cs_other",
			ClientReferenceID: "user-2",
			PaymentStatus:     stripe.CheckoutSessionPaymentStatusPaid,
			Metadata:          map[string]string{"credits": "25"},
		}, nil)
		r := newRouter(store, payments)

		w := doJSON(r, http.MethodPost, "/api/credits/confirm", gin.H{"session_id": "cs_other"}, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("rejected when webhook channel is configured", func(t *testing.T) {
		store := ledger.NewMemoryStore()
		payments := new(MockPaymentGateway)
		payments.On("WebhookConfigured").Return(true)
		r := newRouter(store, payments)

		w := doJSON(r, http.MethodPost, "/api/credits/confirm", gin.H{"session_id": "cs_x"}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestPurchaseCreditsHandler(t *testing.T) {
	payments := new(MockPaymentGateway)
	payments.On("WebhookConfigured").Return(true)
	payments.On("CreateCheckoutSession", "user-1", int64(100), int64(999), "https://app/success", "https://app/cancel").
		Return(&stripe.CheckoutSession{ID: "cs_new"}, nil).Once()

	deps := Deps{
		Payments:           payments,
		CheckoutSuccessURL: "https://app/success",
		CheckoutCancelURL:  "https://app/cancel",
	}
	r := gin.New()
	r.POST("/api/credits/purchase", fakeAuth("user-1"), purchaseCreditsHandler(deps))

	w := doJSON(r, http.MethodPost, "/api/credits/purchase", gin.H{"pack": "standard"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"session_id":"cs_new"`)
	payments.AssertExpectations(t)

	w = doJSON(r, http.MethodPost, "/api/credits/purchase", gin.H{"pack": "enormous"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetUsageStatsHandler(t *testing.T) {
	store := ledger.NewMemoryStore()
	svc := newLedgerService(store)

	r := gin.New()
	r.GET("/api/credits/usage", fakeAuth("user-1"), getUsageStatsHandler(svc))

	w := doJSON(r, http.MethodGet, "/api/credits/usage", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	store.SeedAccount(models.Account{UserID: "user-1", Credits: 10, TotalCreditsUsed: 90})
	w = doJSON(r, http.MethodGet, "/api/credits/usage", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_credits_used":90`)
}

func TestMigrateAllEndpoint(t *testing.T) {
	store := ledger.NewMemoryStore()
	store.SeedAccount(models.Account{UserID: "legacy", Credits: 0, LegacyAiCredits: 10})
	svc := newLedgerService(store)

	r := gin.New()
	admin := r.Group("/api/admin", adminAuth("secret-token"))
	admin.POST("/migrate-all", migrateAllHandler(svc))

	w := doJSON(r, http.MethodPost, "/api/admin/migrate-all", nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(r, http.MethodPost, "/api/admin/migrate-all", nil, map[string]string{"X-Admin-Token": "secret-token"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_processed":1`)
	assert.Contains(t, w.Body.String(), `"upgraded":1`)
}

func TestAdminDisabledWithoutToken(t *testing.T) {
	r := gin.New()
	admin := r.Group("/api/admin", adminAuth(""))
	admin.POST("/migrate-all", migrateAllHandler(newLedgerService(ledger.NewMemoryStore())))

	w := doJSON(r, http.MethodPost, "/api/admin/migrate-all", nil, map[string]string{"X-Admin-Token": ""})
	assert.Equal(t, http.StatusForbidden, w.Code)
}
