package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWebhookConfigured(t *testing.T) {
	tests := []struct {
		name       string
		secret     string
		configured bool
	}{
		{"real secret", "whsec_live_abc123", true},
		{"placeholder sentinel", WebhookSecretPlaceholder, false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewStripeService("sk_test_x", tt.secret)
			assert.Equal(t, tt.configured, svc.WebhookConfigured())
		})
	}
}

func TestConstructEventRejectsBadSignature(t *testing.T) {
	svc := NewStripeService("sk_test_x", "whsec_live_abc123")

	_, err := svc.ConstructEvent([]byte(`{"type":"checkout.session.completed"}`), "t=1,v1=bogus")
	assert.Error(t, err)
}
