package orders

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// CreateOrderInput finalizes a checkout. Line items are price snapshots from the
// catalog at purchase time.
type CreateOrderInput struct {
	ShippingAddressID uuid.UUID
	Currency          string
	Items             []CreateOrderItem
}

type CreateOrderItem struct {
	ProductID   uuid.UUID
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// TransitionInput requests that an order move to a new status.
type TransitionInput struct {
	OrderID uuid.UUID
	To      enums.OrderStatus
	Actor   Actor
	Reason  string
}

// TransitionResult reports the order after a transition attempt.
type TransitionResult struct {
	Order   *models.Order
	From    enums.OrderStatus
	Changed bool
}

// ListParams filters the admin order listing.
type ListParams struct {
	Status string
	Limit  int
	Cursor string
}

// ListResult wraps a page of orders and the cursor for the next page.
type ListResult struct {
	Items  []models.Order `json:"items"`
	Cursor string         `json:"cursor"`
}
