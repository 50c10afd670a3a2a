package services

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"
)

// WebhookSecretPlaceholder is the sentinel left in env files before a real
// signing secret is configured. While the secret equals it, the webhook
// channel is considered unconfigured and top-ups run through the client-side
// confirm fallback instead.
const WebhookSecretPlaceholder = "whsec_placeholder"

type StripeService struct {
	webhookSecret string
}

func NewStripeService(secretKey, webhookSecret string) *StripeService {
	stripe.Key = secretKey
	return &StripeService{webhookSecret: webhookSecret}
}

// WebhookConfigured reports whether a real signing secret is present.
func (s *StripeService) WebhookConfigured() bool {
	return s.webhookSecret != "" && s.webhookSecret != WebhookSecretPlaceholder
}

// CreateCheckoutSession opens a Stripe Checkout payment for a credit pack.
// The credit amount rides in the session metadata so the webhook (or the
// confirm fallback) knows how much to apply.
func (s *StripeService) CreateCheckoutSession(userID string, credits int64, amountCents int64, successURL, cancelURL string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{
			"card",
		}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String("usd"),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("%d AI Credits", credits)),
					},
					UnitAmount: stripe.Int64(amountCents),
				},
				Quantity: stripe.Int64(1),
			},
		},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(userID),
		Metadata: map[string]string{
			"user_id": userID,
			"credits": fmt.Sprintf("%d", credits),
		},
	}

	return session.New(params)
}

// ConstructEvent verifies the webhook signature and decodes the event.
func (s *StripeService) ConstructEvent(payload []byte, signatureHeader string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, signatureHeader, s.webhookSecret)
}

// VerifySession re-fetches a checkout session from Stripe. The confirm
// fallback must never trust a client-supplied session id without checking
// the paid status against the gateway.
func (s *StripeService) VerifySession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	return session.Get(sessionID, params)
}
