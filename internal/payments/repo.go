package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Repository persists payment rows and the order reads payment flows need.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindActiveByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	FindByIntentID(ctx context.Context, intentID string) (*models.Payment, error)
	FindByIntentIDForUpdate(ctx context.Context, intentID string) (*models.Payment, error)
	LockOrder(ctx context.Context, orderID uuid.UUID) error
	Create(ctx context.Context, payment *models.Payment) error
	MarkCompleted(ctx context.Context, paymentID uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, paymentID uuid.UUID, reason string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payments repository bound to the provided DB.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("ShippingAddress").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindActiveByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status <> ?", orderID, enums.PaymentStatusFailed).
		Order("created_at DESC").
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindByIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("provider_intent_id = ?", intentID).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// LockOrder takes the order row lock on Postgres. Callers that go on to lock
// the order's payments take this one first.
func (r *repository) LockOrder(ctx context.Context, orderID uuid.UUID) error {
	query := r.db.WithContext(ctx).Select("id")
	if db.SupportsRowLocking(r.db) {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var order models.Order
	return query.Where("id = ?", orderID).First(&order).Error
}

// FindByIntentIDForUpdate loads the payment for a processor intent and, on
// Postgres, holds its row lock until the surrounding transaction ends.
func (r *repository) FindByIntentIDForUpdate(ctx context.Context, intentID string) (*models.Payment, error) {
	query := r.db.WithContext(ctx)
	if db.SupportsRowLocking(r.db) {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var payment models.Payment
	if err := query.Where("provider_intent_id = ?", intentID).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) MarkCompleted(ctx context.Context, paymentID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ?", paymentID).
		Updates(map[string]any{
			"status":       enums.PaymentStatusCompleted,
			"completed_at": at,
			"updated_at":   at,
		}).Error
}

func (r *repository) MarkFailed(ctx context.Context, paymentID uuid.UUID, reason string) error {
	updates := map[string]any{
		"status":     enums.PaymentStatusFailed,
		"updated_at": time.Now().UTC(),
	}
	if reason != "" {
		updates["failure_reason"] = reason
	}
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ?", paymentID).
		Updates(updates).Error
}
