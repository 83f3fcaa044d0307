package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

type stubExpirer struct {
	candidates []models.Order
	failures   map[uuid.UUID]error
	expired    []uuid.UUID
	cutoff     time.Time
}

func (s *stubExpirer) FindExpiredPending(_ context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	s.cutoff = cutoff
	remaining := []models.Order{}
	for _, order := range s.candidates {
		done := false
		for _, id := range s.expired {
			if id == order.ID {
				done = true
			}
		}
		if !done {
			remaining = append(remaining, order)
		}
	}
	if len(remaining) > limit {
		remaining = remaining[:limit]
	}
	return remaining, nil
}

func (s *stubExpirer) ExpirePending(_ context.Context, orderID uuid.UUID) (bool, error) {
	if err := s.failures[orderID]; err != nil {
		return false, err
	}
	s.expired = append(s.expired, orderID)
	return true, nil
}

func newExpiryJob(t *testing.T, expirer pendingOrderExpirer, batch int) *orderExpiryJob {
	t.Helper()
	job, err := NewOrderExpiryJob(OrderExpiryJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "cron-test"}),
		Orders:    expirer,
		TTL:       time.Hour,
		BatchSize: batch,
	})
	require.NoError(t, err)
	return job.(*orderExpiryJob)
}

func TestOrderExpiryJobContinuesPastFailures(t *testing.T) {
	bad := models.Order{ID: uuid.New()}
	good := []models.Order{{ID: uuid.New()}, {ID: uuid.New()}, {ID: uuid.New()}}
	expirer := &stubExpirer{
		candidates: append([]models.Order{bad}, good...),
		failures:   map[uuid.UUID]error{bad.ID: errors.New("deadlock")},
	}
	job := newExpiryJob(t, expirer, 2)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), bad.ID.String())
	assert.Len(t, expirer.expired, 3)
	assert.Equal(t, now.Add(-time.Hour), expirer.cutoff)
}

func TestOrderExpiryJobCancelsStaleUnpaidOrders(t *testing.T) {
	conn := dbtest.Open(t)
	svc, err := orders.NewService(orders.ServiceParams{
		Repo:   orders.NewRepository(conn),
		Tx:     db.FromGorm(conn),
		Outbox: outbox.NewService(outbox.NewRepository(), nil),
	})
	require.NoError(t, err)

	buyer := dbtest.CreateUser(t, conn, enums.UserRoleCustomer)
	address := dbtest.CreateAddress(t, conn, buyer.ID)
	item := dbtest.Item{Name: "Mug", Quantity: 1, UnitPrice: "10.00"}
	stale := dbtest.CreateOrder(t, conn, buyer.ID, address.ID, enums.OrderStatusPending, item)
	paid := dbtest.CreateOrder(t, conn, buyer.ID, address.ID, enums.OrderStatusPending, item)
	dbtest.CreatePayment(t, conn, paid, "pi_paid", enums.PaymentStatusCompleted)
	open := dbtest.CreatePayment(t, conn, stale, "pi_open", enums.PaymentStatusPending)

	job := newExpiryJob(t, svc, 10)
	job.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	require.NoError(t, job.Run(context.Background()))

	statusOf := func(id uuid.UUID) enums.OrderStatus {
		var order models.Order
		require.NoError(t, conn.Where("id = ?", id).First(&order).Error)
		return order.Status
	}
	assert.Equal(t, enums.OrderStatusCancelled, statusOf(stale.ID))
	assert.Equal(t, enums.OrderStatusPending, statusOf(paid.ID))

	var payment models.Payment
	require.NoError(t, conn.Where("id = ?", open.ID).First(&payment).Error)
	assert.Equal(t, enums.PaymentStatusFailed, payment.Status)

	// a second sweep finds nothing left to cancel
	require.NoError(t, job.Run(context.Background()))
}
