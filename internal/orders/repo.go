package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// Repository defines persistence operations for orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	LockByID(ctx context.Context, id uuid.UUID) error
	FindAddress(ctx context.Context, id uuid.UUID) (*models.Address, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus) (bool, error)
	List(ctx context.Context, query listQuery) ([]models.Order, error)
	FindExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	HasCompletedPayment(ctx context.Context, orderID uuid.UUID) (bool, error)
	FailPendingPayments(ctx context.Context, orderID uuid.UUID, reason string) (int64, error)
}

type listQuery struct {
	Status *enums.OrderStatus
	UserID *uuid.UUID
	Cursor *pagination.Cursor
	Limit  int
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit("ShippingAddress").Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(q *gorm.DB) *gorm.DB { return q.Order("created_at ASC, id ASC") }).
		Preload("ShippingAddress").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// LockByID holds the order row lock for the rest of the transaction on
// Postgres. Elsewhere it only checks the row exists.
func (r *repository) LockByID(ctx context.Context, id uuid.UUID) error {
	query := r.db.WithContext(ctx).Select("id")
	if db.SupportsRowLocking(r.db) {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var order models.Order
	return query.Where("id = ?", id).First(&order).Error
}

func (r *repository) FindAddress(ctx context.Context, id uuid.UUID) (*models.Address, error) {
	var addr models.Address
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&addr).Error; err != nil {
		return nil, err
	}
	return &addr, nil
}

// UpdateStatus moves the order only if it is still in from. It reports false
// when another writer changed the status first.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) List(ctx context.Context, query listQuery) ([]models.Order, error) {
	q := r.db.WithContext(ctx).Model(&models.Order{})
	if query.Status != nil {
		q = q.Where("status = ?", *query.Status)
	}
	if query.UserID != nil {
		q = q.Where("user_id = ?", *query.UserID)
	}
	if query.Cursor != nil {
		q = q.Where("(created_at < ? OR (created_at = ? AND id < ?))",
			query.Cursor.CreatedAt, query.Cursor.CreatedAt, query.Cursor.ID)
	}
	var rows []models.Order
	err := q.Preload("Items").
		Order("created_at DESC, id DESC").
		Limit(query.Limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.OrderStatusPending, cutoff).
		Where("NOT EXISTS (SELECT 1 FROM payments p WHERE p.order_id = orders.id AND p.status = ?)", enums.PaymentStatusCompleted).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) HasCompletedPayment(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("order_id = ? AND status = ?", orderID, enums.PaymentStatusCompleted).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) FailPendingPayments(ctx context.Context, orderID uuid.UUID, reason string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("order_id = ? AND status = ?", orderID, enums.PaymentStatusPending).
		Updates(map[string]any{
			"status":         enums.PaymentStatusFailed,
			"failure_reason": reason,
			"updated_at":     time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}
