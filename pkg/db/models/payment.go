package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Payment links an order to the processor payment intent that settles it.
type Payment struct {
	ID               uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID          uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index" json:"orderId"`
	Amount           decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Currency         string                `gorm:"column:currency;not null" json:"currency"`
	ProviderIntentID string                `gorm:"column:provider_intent_id;not null;uniqueIndex" json:"providerIntentId"`
	Provider         enums.PaymentProvider `gorm:"column:provider;not null;default:'stripe'" json:"provider"`
	Status           enums.PaymentStatus   `gorm:"column:status;type:payment_status;not null;default:'PENDING'" json:"status"`
	FailureReason    *string               `gorm:"column:failure_reason" json:"failureReason,omitempty"`
	CompletedAt      *time.Time            `gorm:"column:completed_at" json:"completedAt,omitempty"`
	CreatedAt        time.Time             `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time             `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}
