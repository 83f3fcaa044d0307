package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/stripe"
)

const (
	activePaymentIndex   = "ux_payments_one_active_per_order"
	intentStatusCanceled = "canceled"
)

// Processor opens and reloads payment intents with the external payment provider.
type Processor interface {
	CreatePaymentIntent(ctx context.Context, req stripe.PaymentIntentRequest) (*stripe.PaymentIntent, error)
	RetrievePaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
}

// Service issues payment intents for orders.
type Service interface {
	IssueIntent(ctx context.Context, userID uuid.UUID, input IssueInput) (*IssueResult, error)
}

// IssueInput is the caller's request to pay for an order.
type IssueInput struct {
	OrderID uuid.UUID
	Amount  decimal.Decimal
}

// IssueResult carries the client secret the buyer completes payment with.
type IssueResult struct {
	OrderID         uuid.UUID           `json:"orderId"`
	PaymentID       uuid.UUID           `json:"paymentId"`
	PaymentIntentID string              `json:"paymentIntentId"`
	ClientSecret    string              `json:"clientSecret"`
	Amount          decimal.Decimal     `json:"amount"`
	Currency        string              `json:"currency"`
	Status          enums.PaymentStatus `json:"status"`
}

// ServiceParams groups dependencies for the payment intent service.
type ServiceParams struct {
	Repo      Repository
	Processor Processor
	Logger    *logger.Logger
}

type service struct {
	repo      Repository
	processor Processor
	logg      *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Processor == nil {
		return nil, fmt.Errorf("payment processor required")
	}
	return &service{
		repo:      params.Repo,
		processor: params.Processor,
		logg:      params.Logger,
	}, nil
}

// IssueIntent opens a processor intent for an order owned by userID and records
// a PENDING payment for it. Nothing is written unless the processor call succeeds.
// Repeating the call while that payment is still PENDING returns the same
// intent and client secret instead of opening a second one.
func (s *service) IssueIntent(ctx context.Context, userID uuid.UUID, input IssueInput) (*IssueResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.Amount.Sign() <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}

	order, err := s.repo.FindOrder(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if order.Status != enums.OrderStatusPending {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "order is %s, not awaiting payment", order.Status).
			WithDetails(map[string]any{"status": order.Status})
	}
	if !input.Amount.Equal(order.Total) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must equal the order total").
			WithDetails(map[string]any{"amount": input.Amount.String(), "total": order.Total.String()})
	}

	active, err := s.repo.FindActiveByOrder(ctx, order.ID)
	switch {
	case err == nil:
		return s.resume(ctx, order, active)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active payment")
	}

	currency := strings.ToLower(strings.TrimSpace(order.Currency))
	minor, err := ToMinorUnits(input.Amount, currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "amount cannot be charged")
	}

	paymentID := uuid.New()
	intent, err := s.processor.CreatePaymentIntent(ctx, stripe.PaymentIntentRequest{
		Amount:         minor,
		Currency:       currency,
		IdempotencyKey: "payment-intent:" + paymentID.String(),
		Metadata: map[string]string{
			"order_id":   order.ID.String(),
			"payment_id": paymentID.String(),
			"user_id":    userID.String(),
		},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "create payment intent")
	}
	if intent == nil || strings.TrimSpace(intent.ID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUpstream, "payment intent missing id")
	}

	payment := &models.Payment{
		ID:               paymentID,
		OrderID:          order.ID,
		Amount:           order.Total,
		Currency:         currency,
		ProviderIntentID: intent.ID,
		Provider:         enums.PaymentProviderStripe,
		Status:           enums.PaymentStatusPending,
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		if db.IsUniqueViolation(err, activePaymentIndex) {
			// a concurrent call won the race; hand back its intent
			winner, findErr := s.repo.FindActiveByOrder(ctx, order.ID)
			if findErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payment already initiated for order")
			}
			return s.resume(ctx, order, winner)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist payment")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
			"payment_id":        payment.ID.String(),
			"payment_intent_id": intent.ID,
			"amount_minor":      minor,
			"currency":          currency,
		})
		s.logg.Info(logCtx, "payment intent issued")
	}

	return &IssueResult{
		OrderID:         order.ID,
		PaymentID:       payment.ID,
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Amount:          payment.Amount,
		Currency:        currency,
		Status:          payment.Status,
	}, nil
}

// resume returns the intent behind an order's existing active payment.
func (s *service) resume(ctx context.Context, order *models.Order, active *models.Payment) (*IssueResult, error) {
	if active.Status != enums.PaymentStatusPending || !active.Amount.Equal(order.Total) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment already initiated for order").
			WithDetails(map[string]any{"paymentId": active.ID, "status": active.Status})
	}

	intent, err := s.processor.RetrievePaymentIntent(ctx, active.ProviderIntentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "retrieve payment intent")
	}
	if intent == nil || intent.ID != active.ProviderIntentID || intent.ClientSecret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUpstream, "payment intent missing client secret")
	}
	if intent.Status == intentStatusCanceled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment intent was canceled").
			WithDetails(map[string]any{"paymentId": active.ID})
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
			"payment_id":        active.ID.String(),
			"payment_intent_id": intent.ID,
		})
		s.logg.Info(logCtx, "payment intent resumed")
	}

	return &IssueResult{
		OrderID:         order.ID,
		PaymentID:       active.ID,
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Amount:          active.Amount,
		Currency:        active.Currency,
		Status:          active.Status,
	}, nil
}
