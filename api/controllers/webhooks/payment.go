package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/api/responses"
	stripewebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/stripe"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const (
	signatureHeader     = "Stripe-Signature"
	defaultMaxBodyBytes = 64 << 10
)

type paymentEventService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) (stripewebhook.Outcome, error)
}

type eventGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type eventVerifier interface {
	ConstructEvent(payload []byte, signatureHeader string) (stripe.Event, error)
}

// PaymentWebhookParams wires the processor webhook endpoint.
type PaymentWebhookParams struct {
	Service      paymentEventService
	Verifier     eventVerifier
	Guard        eventGuard
	Metrics      *metrics.WebhookMetrics
	MaxBodyBytes int64
	Logger       *logger.Logger
}

type ack struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// PaymentWebhook verifies the signature over the raw body before anything is
// decoded, then hands the event to the ingestor. Redelivered event ids are
// acknowledged without reprocessing.
func PaymentWebhook(params PaymentWebhookParams) http.HandlerFunc {
	maxBytes := params.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBodyBytes
	}
	logg := params.Logger

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if params.Service == nil || params.Verifier == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook ingestor unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				params.Metrics.Observe("", metrics.WebhookRejected)
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payload too large"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		header := strings.TrimSpace(r.Header.Get(signatureHeader))
		if header == "" {
			params.Metrics.Observe("", metrics.WebhookRejected)
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeSignature, "signature header missing"))
			return
		}

		event, err := params.Verifier.ConstructEvent(payload, header)
		if err != nil {
			params.Metrics.Observe("", metrics.WebhookRejected)
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeSignature, err, "verify signature"))
			return
		}

		eventType := string(event.Type)
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"event_id":   event.ID,
				"event_type": eventType,
			})
		}

		marked := false
		if params.Guard != nil && event.ID != "" {
			seen, err := params.Guard.CheckAndMark(ctx, event.ID)
			switch {
			case err != nil:
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "error", err.Error()), "webhook.idempotency_unavailable")
				}
			case seen:
				params.Metrics.Observe(eventType, metrics.WebhookDuplicate)
				responses.WriteJSON(w, http.StatusOK, ack{Received: true, Duplicate: true})
				return
			default:
				marked = true
			}
		}

		outcome, err := params.Service.HandleEvent(ctx, &event)
		if err != nil {
			if marked {
				if delErr := params.Guard.Delete(context.WithoutCancel(ctx), event.ID); delErr != nil && logg != nil {
					logg.Warn(logg.WithField(ctx, "error", delErr.Error()), "webhook.idempotency_release_failed")
				}
			}
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				params.Metrics.Observe(eventType, metrics.WebhookRejected)
				if logg != nil {
					logg.Warn(ctx, "webhook.unknown_payment_intent")
				}
				responses.WriteError(ctx, nil, w, err)
				return
			}
			params.Metrics.Observe(eventType, metrics.WebhookFailed)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		params.Metrics.Observe(eventType, string(outcome))
		if logg != nil {
			logg.Info(logg.WithField(ctx, "outcome", string(outcome)), "webhook.accepted")
		}
		responses.WriteJSON(w, http.StatusOK, ack{Received: true, Duplicate: outcome == stripewebhook.OutcomeDuplicate})
	}
}
