package outbox

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderCreatedEvent accompanies order.created.
type OrderCreatedEvent struct {
	OrderID  uuid.UUID       `json:"orderId"`
	UserID   uuid.UUID       `json:"userId"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`
	Items    int             `json:"items"`
}

// OrderPaidEvent accompanies order.paid.
type OrderPaidEvent struct {
	OrderID          uuid.UUID       `json:"orderId"`
	PaymentID        uuid.UUID       `json:"paymentId"`
	ProviderIntentID string          `json:"providerIntentId"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
}

// OrderStatusChangedEvent accompanies order.status_changed.
type OrderStatusChangedEvent struct {
	OrderID uuid.UUID         `json:"orderId"`
	From    enums.OrderStatus `json:"from"`
	To      enums.OrderStatus `json:"to"`
	Reason  string            `json:"reason,omitempty"`
}

// PaymentFailedEvent accompanies payment.failed.
type PaymentFailedEvent struct {
	OrderID          uuid.UUID `json:"orderId"`
	PaymentID        uuid.UUID `json:"paymentId"`
	ProviderIntentID string    `json:"providerIntentId"`
	Reason           string    `json:"reason,omitempty"`
}
