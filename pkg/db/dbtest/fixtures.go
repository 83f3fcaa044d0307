package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// CreateUser inserts an active user with the given role.
func CreateUser(t *testing.T, conn *gorm.DB, role enums.UserRole) models.User {
	t.Helper()
	user := models.User{
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: "hash",
		FirstName:    "Test",
		LastName:     "User",
		Role:         role,
		IsActive:     true,
	}
	require.NoError(t, conn.Create(&user).Error)
	return user
}

// CreateAddress inserts a shipping address for userID.
func CreateAddress(t *testing.T, conn *gorm.DB, userID uuid.UUID) models.Address {
	t.Helper()
	addr := models.Address{
		UserID:     userID,
		Street:     "1 Main St",
		City:       "Springfield",
		State:      "IL",
		PostalCode: "62701",
		Country:    "US",
		Type:       enums.AddressTypeShipping,
	}
	require.NoError(t, conn.Create(&addr).Error)
	return addr
}

// Item describes an order line for CreateOrder.
type Item struct {
	Name      string
	Quantity  int
	UnitPrice string
}

// CreateOrder inserts an order with the given status and items. The total is
// the sum of the item lines.
func CreateOrder(t *testing.T, conn *gorm.DB, userID, addressID uuid.UUID, status enums.OrderStatus, items ...Item) models.Order {
	t.Helper()
	order := models.Order{
		UserID:            userID,
		ShippingAddressID: addressID,
		Status:            status,
		Currency:          "usd",
	}
	total := decimal.Zero
	for _, item := range items {
		line := models.OrderItem{
			ProductID:   uuid.New(),
			ProductName: item.Name,
			Quantity:    item.Quantity,
			UnitPrice:   decimal.RequireFromString(item.UnitPrice),
		}
		total = total.Add(line.LineTotal())
		order.Items = append(order.Items, line)
	}
	order.Total = total
	require.NoError(t, conn.Create(&order).Error)
	return order
}

// CreatePayment inserts a payment row for order.
func CreatePayment(t *testing.T, conn *gorm.DB, order models.Order, intentID string, status enums.PaymentStatus) models.Payment {
	t.Helper()
	payment := models.Payment{
		OrderID:          order.ID,
		Amount:           order.Total,
		Currency:         order.Currency,
		ProviderIntentID: intentID,
		Provider:         enums.PaymentProviderStripe,
		Status:           status,
	}
	require.NoError(t, conn.Create(&payment).Error)
	return payment
}
