package services

import (
	"context"

	"github.com/google/generative-ai-go/genai"
	"github.com/stripe/stripe-go/v79"
)

// PaymentGateway is the slice of Stripe the handlers depend on, kept narrow
// so tests can stand in a mock.
type PaymentGateway interface {
	WebhookConfigured() bool
	CreateCheckoutSession(userID string, credits int64, amountCents int64, successURL, cancelURL string) (*stripe.CheckoutSession, error)
	ConstructEvent(payload []byte, signatureHeader string) (stripe.Event, error)
	VerifySession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error)
}

// GenAIModel abstracts the generative model call used by the AI features.
type GenAIModel interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// TextGenerator is what the AI handlers consume: one feature, one prompt,
// one text answer.
type TextGenerator interface {
	SummarizeNotes(ctx context.Context, notes string) (string, error)
	DraftEmail(ctx context.Context, surgeonName, clinic, notes string) (string, error)
	AnalyzeSurgeon(ctx context.Context, profile string) (string, error)
}
