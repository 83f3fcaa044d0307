package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Order is a finalized checkout. Total is fixed at creation and never recomputed.
type Order struct {
	ID                uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID            uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index" json:"userId"`
	ShippingAddressID uuid.UUID         `gorm:"column:shipping_address_id;type:uuid;not null" json:"shippingAddressId"`
	Status            enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'PENDING'" json:"status"`
	Currency          string            `gorm:"column:currency;not null;default:'usd'" json:"currency"`
	Total             decimal.Decimal   `gorm:"column:total;type:numeric(12,2);not null" json:"total"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`

	Items           []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	ShippingAddress *Address    `gorm:"foreignKey:ShippingAddressID" json:"shippingAddress,omitempty"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}

// OrderItem is an immutable line item snapshot taken at purchase time.
type OrderItem struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID     uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index" json:"orderId"`
	ProductID   uuid.UUID       `gorm:"column:product_id;type:uuid;not null" json:"productId"`
	ProductName string          `gorm:"column:product_name;not null" json:"productName"`
	Quantity    int             `gorm:"column:quantity;not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null" json:"unitPrice"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}

// LineTotal returns quantity times unit price.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
