package address

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Repository persists user addresses.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockOwner(ctx context.Context, userID uuid.UUID) error
	ClearDefault(ctx context.Context, userID uuid.UUID, addrType enums.AddressType) error
	Create(ctx context.Context, addr *models.Address) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Address, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Address, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an address repository bound to the provided DB.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// LockOwner takes a row lock on the owning user so default swaps for the same
// user run one at a time. It is a no-op on drivers without row locks.
func (r *repository) LockOwner(ctx context.Context, userID uuid.UUID) error {
	if !db.SupportsRowLocking(r.db) {
		return nil
	}
	var user models.User
	return r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", userID).
		First(&user).Error
}

func (r *repository) ClearDefault(ctx context.Context, userID uuid.UUID, addrType enums.AddressType) error {
	return r.db.WithContext(ctx).
		Model(&models.Address{}).
		Where("user_id = ? AND type = ? AND is_default = ?", userID, addrType, true).
		Update("is_default", false).Error
}

func (r *repository) Create(ctx context.Context, addr *models.Address) error {
	return r.db.WithContext(ctx).Create(addr).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Address, error) {
	var addr models.Address
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&addr).Error; err != nil {
		return nil, err
	}
	return &addr, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Address, error) {
	var addrs []models.Address
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&addrs).Error
	if err != nil {
		return nil, err
	}
	return addrs, nil
}
