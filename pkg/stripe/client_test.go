package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

func TestNewClientFailsFastOnMissingSecrets(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.StripeConfig
	}{
		{name: "missing api key", cfg: config.StripeConfig{Secret: "whsec_1"}},
		{name: "missing signing secret", cfg: config.StripeConfig{APIKey: "sk_test_1"}},
		{name: "live key in test env", cfg: config.StripeConfig{APIKey: "sk_live_1", Secret: "whsec_1", Env: "test"}},
		{name: "test key in live env", cfg: config.StripeConfig{APIKey: "sk_test_1", Secret: "whsec_1", Env: "live"}},
		{name: "unknown env", cfg: config.StripeConfig{APIKey: "sk_test_1", Secret: "whsec_1", Env: "staging"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(context.Background(), tt.cfg, nil)
			require.Error(t, err)
		})
	}
}

func TestNewClientAcceptsRestrictedKeys(t *testing.T) {
	client, err := NewClient(context.Background(), config.StripeConfig{APIKey: "rk_live_abc", Secret: " whsec_1 ", Env: "LIVE"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "live", client.Environment())
	assert.Equal(t, "whsec_1", client.SigningSecret())
	assert.NotNil(t, client.API())
}

func TestCreatePaymentIntentRejectsNonPositiveAmount(t *testing.T) {
	client, err := NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_abc", Secret: "whsec_1"}, nil)
	require.NoError(t, err)
	_, err = client.CreatePaymentIntent(context.Background(), PaymentIntentRequest{Amount: 0, Currency: "usd"})
	require.Error(t, err)
}

func TestRetrievePaymentIntentRequiresID(t *testing.T) {
	client, err := NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_abc", Secret: "whsec_1"}, nil)
	require.NoError(t, err)
	_, err = client.RetrievePaymentIntent(context.Background(), "  ")
	require.Error(t, err)

	var nilClient *Client
	_, err = nilClient.RetrievePaymentIntent(context.Background(), "pi_1")
	require.Error(t, err)
}

func TestConstructEventVerifiesSignature(t *testing.T) {
	client, err := NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_abc", Secret: "whsec_test"}, nil)
	require.NoError(t, err)

	payload, err := json.Marshal(stripe.Event{
		ID:         "evt_1",
		Object:     "event",
		Type:       stripe.EventTypePaymentIntentSucceeded,
		APIVersion: stripe.APIVersion,
		Data:       &stripe.EventData{Raw: json.RawMessage(`{"id":"pi_1","object":"payment_intent"}`)},
	})
	require.NoError(t, err)

	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte("whsec_test"))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	header := fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))

	event, err := client.ConstructEvent(payload, header)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)

	_, err = client.ConstructEvent(payload, fmt.Sprintf("t=%d,v1=deadbeef", ts))
	require.Error(t, err)

	_, err = client.ConstructEvent(payload, "")
	require.Error(t, err)
}
