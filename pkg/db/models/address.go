package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Address is a user owned shipping or billing address.
type Address struct {
	ID         uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index" json:"userId"`
	Street     string            `gorm:"column:street;not null" json:"street"`
	City       string            `gorm:"column:city;not null" json:"city"`
	State      string            `gorm:"column:state;not null" json:"state"`
	PostalCode string            `gorm:"column:postal_code;not null" json:"postalCode"`
	Country    string            `gorm:"column:country;not null" json:"country"`
	Type       enums.AddressType `gorm:"column:type;type:address_type;not null;default:'SHIPPING'" json:"type"`
	IsDefault  bool              `gorm:"column:is_default;not null;default:false" json:"isDefault"`
	CreatedAt  time.Time         `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (a *Address) BeforeCreate(*gorm.DB) error {
	assignID(&a.ID)
	return nil
}
