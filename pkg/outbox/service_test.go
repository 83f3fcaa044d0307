package outbox

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

func TestEmitWritesEnvelope(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(), nil)
	orderID := uuid.New()
	actor := &ActorRef{UserID: uuid.New(), Role: string(enums.UserRoleAdmin)}

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         actor,
			Data: OrderPaidEvent{
				OrderID:          orderID,
				ProviderIntentID: "pi_123",
				Amount:           decimal.RequireFromString("49.98"),
				Currency:         "usd",
			},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventOrderPaid, rows[0].EventType)
	assert.Equal(t, orderID, rows[0].AggregateID)

	envelope, err := DecodeEnvelope(rows[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, 1, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, actor.UserID, envelope.Actor.UserID)
	assert.JSONEq(t, `{"orderId":"`+orderID.String()+`","paymentId":"00000000-0000-0000-0000-000000000000","providerIntentId":"pi_123","amount":"49.98","currency":"usd"}`, string(envelope.Data))
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(), nil)
	err := svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventOrderPaid})
	require.Error(t, err)
}

func TestEmitRejectsUnknownEventType(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(), nil)
	err := svc.Emit(context.Background(), conn, DomainEvent{EventType: "order.teleported"})
	require.Error(t, err)
}

func TestFetchUnpublishedSkipsPublishedAndExhausted(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository()

	fresh := models.OutboxEvent{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: []byte(`{}`)}
	exhausted := models.OutboxEvent{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: []byte(`{}`), AttemptCount: 5}
	published := models.OutboxEvent{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: []byte(`{}`)}
	for _, row := range []*models.OutboxEvent{&fresh, &exhausted, &published} {
		require.NoError(t, conn.Create(row).Error)
	}
	require.NoError(t, repo.MarkPublishedTx(conn, published.ID))

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, fresh.ID, rows[0].ID)

	require.NoError(t, repo.MarkFailedTx(conn, fresh.ID, assert.AnError))
	var reloaded models.OutboxEvent
	require.NoError(t, conn.First(&reloaded, "id = ?", fresh.ID).Error)
	assert.Equal(t, 1, reloaded.AttemptCount)
	require.NotNil(t, reloaded.LastError)
}
