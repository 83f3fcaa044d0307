package stripewebhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	pkgstripe "github.com/angelmondragon/storefront-backend/pkg/stripe"
)

const flowSigningSecret = "whsec_flow"

type fixedProcessor struct {
	intent pkgstripe.PaymentIntent
	opened int
}

func (p *fixedProcessor) CreatePaymentIntent(context.Context, pkgstripe.PaymentIntentRequest) (*pkgstripe.PaymentIntent, error) {
	p.opened++
	intent := p.intent
	return &intent, nil
}

func (p *fixedProcessor) RetrievePaymentIntent(_ context.Context, id string) (*pkgstripe.PaymentIntent, error) {
	intent := p.intent
	return &intent, nil
}

func signedSucceeded(t *testing.T, eventID, intentID string) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(stripe.Event{
		ID:         eventID,
		Object:     "event",
		Type:       stripe.EventTypePaymentIntentSucceeded,
		APIVersion: stripe.APIVersion,
		Data:       &stripe.EventData{Raw: json.RawMessage(fmt.Sprintf(`{"id":%q,"object":"payment_intent","status":"succeeded"}`, intentID))},
	})
	require.NoError(t, err)

	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(flowSigningSecret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return payload, fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

// Buyer pays for a two item order: intent issued, processor confirms, one
// confirmation goes out even when the event is delivered twice.
func TestCheckoutFlowFromIntentToConfirmation(t *testing.T) {
	f := setup(t, enums.OrderStatusPending)
	ctx := context.Background()
	require.True(t, f.order.Total.Equal(decimal.RequireFromString("49.98")))

	processor := &fixedProcessor{intent: pkgstripe.PaymentIntent{ID: "pi_flow", ClientSecret: "pi_flow_secret", Status: "requires_payment_method"}}
	issuer, err := payments.NewService(payments.ServiceParams{Repo: payments.NewRepository(f.conn), Processor: processor})
	require.NoError(t, err)

	issued, err := issuer.IssueIntent(ctx, f.order.UserID, payments.IssueInput{
		OrderID: f.order.ID,
		Amount:  decimal.RequireFromString("49.98"),
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_flow", issued.PaymentIntentID)
	assert.Equal(t, "pi_flow_secret", issued.ClientSecret)

	verifier, err := pkgstripe.NewClient(ctx, config.StripeConfig{APIKey: "sk_test_flow", Secret: flowSigningSecret}, nil)
	require.NoError(t, err)
	guard, err := NewIdempotencyGuard(&memoryStore{data: map[string]any{}}, time.Hour, "stripe")
	require.NoError(t, err)

	payload, header := signedSucceeded(t, "evt_flow", issued.PaymentIntentID)
	outcomes := []Outcome{}
	for i := 0; i < 2; i++ {
		event, err := verifier.ConstructEvent(payload, header)
		require.NoError(t, err)
		duplicate, err := guard.CheckAndMark(ctx, event.ID)
		require.NoError(t, err)
		if duplicate {
			outcomes = append(outcomes, OutcomeDuplicate)
			continue
		}
		outcome, err := f.svc.HandleEvent(ctx, &event)
		require.NoError(t, err)
		outcomes = append(outcomes, outcome)
	}
	assert.Equal(t, []Outcome{OutcomeProcessed, OutcomeDuplicate}, outcomes)

	// a redelivery under a new event id is caught by the payment row
	payload, header = signedSucceeded(t, "evt_flow_retry", issued.PaymentIntentID)
	event, err := verifier.ConstructEvent(payload, header)
	require.NoError(t, err)
	outcome, err := f.svc.HandleEvent(ctx, &event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	order, payment := f.reload(t, models.Payment{ID: issued.PaymentID})
	assert.Equal(t, enums.OrderStatusProcessing, order.Status)
	assert.Equal(t, enums.PaymentStatusCompleted, payment.Status)
	assert.Equal(t, 1, processor.opened)
	require.Len(t, f.notifier.confirmed, 1)
	assert.Equal(t, f.order.ID, f.notifier.confirmed[0].ID)
	assert.EqualValues(t, 1, f.countEvents(t, enums.EventOrderPaid))

	// paid orders are left alone by the expiry sweep
	expired, err := f.orders.ExpirePending(ctx, f.order.ID)
	require.NoError(t, err)
	assert.False(t, expired)
}

type lockRecorder struct {
	payments.Repository
	calls *[]string
}

func (r lockRecorder) WithTx(tx *gorm.DB) payments.Repository {
	return lockRecorder{Repository: r.Repository.WithTx(tx), calls: r.calls}
}

func (r lockRecorder) LockOrder(ctx context.Context, orderID uuid.UUID) error {
	*r.calls = append(*r.calls, "order")
	return r.Repository.LockOrder(ctx, orderID)
}

func (r lockRecorder) FindByIntentIDForUpdate(ctx context.Context, intentID string) (*models.Payment, error) {
	*r.calls = append(*r.calls, "payment")
	return r.Repository.FindByIntentIDForUpdate(ctx, intentID)
}

func TestWebhookLocksOrderBeforePayment(t *testing.T) {
	for _, tc := range []struct {
		name      string
		eventType stripe.EventType
		failure   string
	}{
		{"succeeded", stripe.EventTypePaymentIntentSucceeded, ""},
		{"failed", stripe.EventTypePaymentIntentPaymentFailed, "card declined"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := setup(t, enums.OrderStatusPending)
			dbtest.CreatePayment(t, f.conn, f.order, "pi_lock", enums.PaymentStatusPending)

			calls := []string{}
			svc, err := NewService(ServiceParams{
				Payments: lockRecorder{Repository: payments.NewRepository(f.conn), calls: &calls},
				Orders:   f.orders,
				Tx:       db.FromGorm(f.conn),
				Outbox:   outbox.NewService(outbox.NewRepository(), nil),
				Notifier: f.notifier,
			})
			require.NoError(t, err)

			outcome, err := svc.HandleEvent(context.Background(), intentEvent(tc.eventType, "pi_lock", tc.failure))
			require.NoError(t, err)
			assert.Equal(t, OutcomeProcessed, outcome)
			assert.Equal(t, []string{"order", "payment"}, calls)
		})
	}
}
