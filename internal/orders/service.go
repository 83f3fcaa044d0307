package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

const expiryReason = "payment window expired"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines order lifecycle operations.
type Service interface {
	Create(ctx context.Context, userID uuid.UUID, input CreateOrderInput) (*models.Order, error)
	Get(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error)
	AdminGet(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	AdminList(ctx context.Context, params ListParams) (*ListResult, error)
	Transition(ctx context.Context, input TransitionInput) (*TransitionResult, error)
	ApplyTx(ctx context.Context, tx *gorm.DB, order *models.Order, to enums.OrderStatus, actor Actor) (bool, error)
	ExpirePending(ctx context.Context, orderID uuid.UUID) (bool, error)
	FindExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

// ServiceParams groups dependencies for the orders service.
type ServiceParams struct {
	Repo            Repository
	Tx              txRunner
	Outbox          outbox.Emitter
	Notifier        notifications.Notifier
	Logger          *logger.Logger
	DefaultCurrency string
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outbox.Emitter
	notifier notifications.Notifier
	logg     *logger.Logger
	currency string
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	currency := strings.ToLower(strings.TrimSpace(params.DefaultCurrency))
	if currency == "" {
		currency = "usd"
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		outbox:   params.Outbox,
		notifier: params.Notifier,
		logg:     params.Logger,
		currency: currency,
	}, nil
}

func (s *service) Create(ctx context.Context, userID uuid.UUID, input CreateOrderInput) (*models.Order, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if input.ShippingAddressID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address is required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one item")
	}

	currency := strings.ToLower(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = s.currency
	}

	order := &models.Order{
		UserID:            userID,
		ShippingAddressID: input.ShippingAddressID,
		Status:            enums.OrderStatusPending,
		Currency:          currency,
	}
	total := decimal.Zero
	for i, item := range input.Items {
		name := strings.TrimSpace(item.ProductName)
		switch {
		case item.ProductID == uuid.Nil:
			return nil, itemError(i, "productId", "required")
		case name == "":
			return nil, itemError(i, "productName", "required")
		case item.Quantity < 1:
			return nil, itemError(i, "quantity", "must be at least 1")
		case item.UnitPrice.Sign() <= 0:
			return nil, itemError(i, "unitPrice", "must be greater than zero")
		}
		line := models.OrderItem{
			ProductID:   item.ProductID,
			ProductName: name,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.Round(2),
		}
		total = total.Add(line.LineTotal())
		order.Items = append(order.Items, line)
	}
	order.Total = total

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		addr, err := repo.FindAddress(ctx, input.ShippingAddressID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "shipping address not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipping address")
		}
		if addr.UserID != userID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "shipping address not found")
		}
		if addr.Type != enums.AddressTypeShipping {
			return pkgerrors.New(pkgerrors.CodeValidation, "address is not a shipping address")
		}

		if err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		order.ShippingAddress = addr

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: userID, Role: string(enums.UserRoleCustomer)},
			Data: outbox.OrderCreatedEvent{
				OrderID:  order.ID,
				UserID:   userID,
				Total:    order.Total,
				Currency: order.Currency,
				Items:    len(order.Items),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
			"total":    order.Total.String(),
			"currency": order.Currency,
			"items":    len(order.Items),
		})
		s.logg.Info(logCtx, "order created")
	}
	return order, nil
}

func itemError(index int, field, reason string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid order item").
		WithDetails(map[string]any{fmt.Sprintf("items[%d].%s", index, field): reason})
}

func (s *service) Get(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) AdminGet(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.load(ctx, s.repo, orderID)
}

func (s *service) AdminList(ctx context.Context, params ListParams) (*ListResult, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	query := listQuery{Limit: pagination.LimitWithBuffer(limit)}
	if raw := strings.TrimSpace(params.Status); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		query.Status = &status
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	page, next := pagination.Page(rows, limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return &ListResult{Items: page, Cursor: next}, nil
}

// Transition moves an order to input.To on behalf of an administrator. A move
// to the current status is a no-op. Shipping queues the shipment email after
// commit.
func (s *service) Transition(ctx context.Context, input TransitionInput) (*TransitionResult, error) {
	if !input.Actor.mayTransition() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if !input.To.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}

	var result TransitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.LockByID(ctx, input.OrderID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}
		order, err := s.load(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		result.From = order.Status

		changed, err := s.ApplyTx(ctx, tx, order, input.To, input.Actor)
		if err != nil {
			return err
		}
		result.Order = order
		result.Changed = changed
		if !changed {
			return nil
		}
		return s.emitStatusChanged(ctx, tx, order.ID, result.From, input.To, input.Actor, input.Reason)
	})
	if err != nil {
		return nil, err
	}

	if result.Changed {
		if s.logg != nil {
			logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, result.Order.ID.String()), map[string]any{
				"from": result.From,
				"to":   result.Order.Status,
			})
			s.logg.Info(logCtx, "order status changed")
		}
		if result.Order.Status == enums.OrderStatusShipped && s.notifier != nil {
			s.notifier.SendOrderShipped(ctx, *result.Order)
		}
	}
	return &result, nil
}

// ApplyTx validates and applies a single status move inside tx. order must have
// been read inside the same transaction. It reports false for a move to the
// current status.
func (s *service) ApplyTx(ctx context.Context, tx *gorm.DB, order *models.Order, to enums.OrderStatus, actor Actor) (bool, error) {
	if !actor.mayTransition() {
		return false, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if order == nil {
		return false, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	from := order.Status
	if from == to {
		return false, nil
	}
	if !CanTransition(from, to) {
		return false, pkgerrors.New(pkgerrors.CodeStateConflict, "illegal order status transition").
			WithDetails(map[string]any{
				"from":    from,
				"to":      to,
				"allowed": AllowedNext(from),
			})
	}

	updated, err := s.repo.WithTx(tx).UpdateStatus(ctx, order.ID, from, to)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if !updated {
		return false, pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently")
	}
	order.Status = to
	order.UpdatedAt = time.Now().UTC()
	return true, nil
}

// ExpirePending cancels an unpaid PENDING order and fails its open payments.
// It reports false when the order was paid or moved on since it was selected.
func (s *service) ExpirePending(ctx context.Context, orderID uuid.UUID) (bool, error) {
	actor := SystemActor()
	expired := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.LockByID(ctx, orderID); err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		order, err := s.load(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusPending {
			return nil
		}
		paid, err := repo.HasCompletedPayment(ctx, orderID)
		if err != nil {
			return fmt.Errorf("check payments: %w", err)
		}
		if paid {
			return nil
		}

		changed, err := s.ApplyTx(ctx, tx, order, enums.OrderStatusCancelled, actor)
		if err != nil || !changed {
			return err
		}
		if _, err := repo.FailPendingPayments(ctx, orderID, expiryReason); err != nil {
			return fmt.Errorf("fail pending payments: %w", err)
		}
		expired = true
		return s.emitStatusChanged(ctx, tx, orderID, enums.OrderStatusPending, enums.OrderStatusCancelled, actor, expiryReason)
	})
	return expired, err
}

func (s *service) FindExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	return s.repo.FindExpiredPending(ctx, cutoff, limit)
}

func (s *service) load(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) emitStatusChanged(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, from, to enums.OrderStatus, actor Actor, reason string) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)},
		Data: outbox.OrderStatusChangedEvent{
			OrderID: orderID,
			From:    from,
			To:      to,
			Reason:  reason,
		},
	})
}
