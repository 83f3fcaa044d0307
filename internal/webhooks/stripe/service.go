package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

// Outcome summarizes what an accepted event did.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups dependencies for the webhook service.
type ServiceParams struct {
	Payments payments.Repository
	Orders   orders.Service
	Tx       txRunner
	Outbox   outbox.Emitter
	Notifier notifications.Notifier
	Logger   *logger.Logger
	Now      func() time.Time
}

// Service applies verified payment processor events to payments and orders.
type Service struct {
	payments payments.Repository
	orders   orders.Service
	tx       txRunner
	outbox   outbox.Emitter
	notifier notifications.Notifier
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, errors.New("payments repository required")
	}
	if params.Orders == nil {
		return nil, errors.New("orders service required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox emitter required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		payments: params.Payments,
		orders:   params.Orders,
		tx:       params.Tx,
		outbox:   params.Outbox,
		notifier: params.Notifier,
		logg:     params.Logger,
		now:      now,
	}, nil
}

// HandleEvent dispatches a signature-verified event. Event types other than
// payment intent success and failure are acknowledged and ignored.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) (Outcome, error) {
	if event == nil || event.Data == nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "event payload is required")
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		intent, err := decodeIntent(event)
		if err != nil {
			return "", err
		}
		return s.handleSucceeded(ctx, intent)
	case stripe.EventTypePaymentIntentPaymentFailed:
		intent, err := decodeIntent(event)
		if err != nil {
			return "", err
		}
		return s.handleFailed(ctx, intent)
	default:
		return OutcomeIgnored, nil
	}
}

func decodeIntent(event *stripe.Event) (*stripe.PaymentIntent, error) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
	}
	if intent.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
	}
	return &intent, nil
}

func (s *Service) handleSucceeded(ctx context.Context, intent *stripe.PaymentIntent) (Outcome, error) {
	var (
		outcome Outcome
		paid    *models.Order
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.payments.WithTx(tx)
		payment, err := s.lockPayment(ctx, repo, intent.ID)
		if err != nil {
			return err
		}

		switch payment.Status {
		case enums.PaymentStatusCompleted:
			outcome = OutcomeDuplicate
			return nil
		case enums.PaymentStatusFailed:
			s.reconcile(ctx, payment, "succeeded event for failed payment")
			outcome = OutcomeIgnored
			return nil
		}

		order, err := repo.FindOrder(ctx, payment.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.Status != enums.OrderStatusPending {
			s.reconcile(ctx, payment, fmt.Sprintf("succeeded event for %s order", order.Status))
			outcome = OutcomeIgnored
			return nil
		}

		if _, err := s.orders.ApplyTx(ctx, tx, order, enums.OrderStatusProcessing, orders.SystemActor()); err != nil {
			return err
		}
		if err := repo.MarkCompleted(ctx, payment.ID, s.now()); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete payment")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: outbox.OrderPaidEvent{
				OrderID:          order.ID,
				PaymentID:        payment.ID,
				ProviderIntentID: payment.ProviderIntentID,
				Amount:           payment.Amount,
				Currency:         payment.Currency,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order paid")
		}
		outcome = OutcomeProcessed
		paid = order
		return nil
	})
	if err != nil {
		return "", err
	}

	if paid != nil {
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"order_id":  paid.ID.String(),
				"intent_id": intent.ID,
			})
			s.logg.Info(logCtx, "order paid")
		}
		if s.notifier != nil {
			s.notifier.SendOrderConfirmation(ctx, *paid)
		}
	}
	return outcome, nil
}

func (s *Service) handleFailed(ctx context.Context, intent *stripe.PaymentIntent) (Outcome, error) {
	reason := ""
	if intent.LastPaymentError != nil {
		reason = intent.LastPaymentError.Msg
	}

	var outcome Outcome
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.payments.WithTx(tx)
		payment, err := s.lockPayment(ctx, repo, intent.ID)
		if err != nil {
			return err
		}

		switch payment.Status {
		case enums.PaymentStatusFailed:
			outcome = OutcomeDuplicate
			return nil
		case enums.PaymentStatusCompleted:
			outcome = OutcomeIgnored
			return nil
		}

		if err := repo.MarkFailed(ctx, payment.ID, reason); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail payment")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Data: outbox.PaymentFailedEvent{
				OrderID:          payment.OrderID,
				PaymentID:        payment.ID,
				ProviderIntentID: payment.ProviderIntentID,
				Reason:           reason,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payment failed")
		}
		outcome = OutcomeProcessed
		return nil
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// lockPayment locks the owning order row and then the payment row, the same
// order ExpirePending takes them in.
func (s *Service) lockPayment(ctx context.Context, repo payments.Repository, intentID string) (*models.Payment, error) {
	payment, err := repo.FindByIntentID(ctx, intentID)
	if err != nil {
		return nil, paymentLookupError(err, intentID)
	}
	if err := repo.LockOrder(ctx, payment.OrderID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
	}
	payment, err = repo.FindByIntentIDForUpdate(ctx, intentID)
	if err != nil {
		return nil, paymentLookupError(err, intentID)
	}
	return payment, nil
}

func paymentLookupError(err error, intentID string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payment not found").
			WithDetails(map[string]any{"paymentIntentId": intentID})
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
}

// reconcile flags money captured against a payment or order that can no longer
// accept it. Refunds are handled out of band.
func (s *Service) reconcile(ctx context.Context, payment *models.Payment, reason string) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"payment_id": payment.ID.String(),
		"order_id":   payment.OrderID.String(),
		"intent_id":  payment.ProviderIntentID,
		"status":     string(payment.Status),
	})
	s.logg.Error(logCtx, "payment requires manual reconciliation", errors.New(reason))
}
