package notifications

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/sendgrid"
)

type recordingSender struct {
	mu    sync.Mutex
	sent  []sendgrid.Message
	err   error
	block chan struct{}
}

func (s *recordingSender) Send(ctx context.Context, msg sendgrid.Message) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) messages() []sendgrid.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sendgrid.Message(nil), s.sent...)
}

type staticRecipients struct {
	user *models.User
	err  error
}

func (r staticRecipients) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.user, r.err
}

func sampleOrder() models.Order {
	userID := uuid.New()
	return models.Order{
		ID:       uuid.New(),
		UserID:   userID,
		Currency: "usd",
		Total:    decimal.RequireFromString("49.98"),
		Items: []models.OrderItem{
			{ProductName: "Mug", Quantity: 2, UnitPrice: decimal.RequireFromString("12.50")},
			{ProductName: "Tea <Green>", Quantity: 1, UnitPrice: decimal.RequireFromString("24.98")},
		},
		ShippingAddress: &models.Address{Street: "1 Main St", City: "Springfield", State: "IL", PostalCode: "62701", Country: "US"},
	}
}

func buyer() *models.User {
	return &models.User{ID: uuid.New(), Email: "buyer@example.com", FirstName: "Ada", LastName: "Lovelace"}
}

func TestDispatcherDeliversComposedEmail(t *testing.T) {
	sender := &recordingSender{}
	reg := prometheus.NewRegistry()
	m := metrics.NewNotificationMetrics(reg)
	d, err := NewDispatcher(DispatcherParams{Sender: sender, Recipients: staticRecipients{user: buyer()}, Metrics: m})
	require.NoError(t, err)

	d.SendOrderConfirmation(context.Background(), sampleOrder())
	require.NoError(t, d.Close(context.Background()))

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	msg := msgs[0]
	assert.Equal(t, "buyer@example.com", msg.ToEmail)
	assert.Equal(t, "Ada Lovelace", msg.ToName)
	assert.Contains(t, msg.Subject, "confirmed")
	assert.Contains(t, msg.Text, "Mug x2 @ 12.50 USD = 25.00 USD")
	assert.Contains(t, msg.Text, "Total: 49.98 USD")
	assert.Contains(t, msg.Text, "1 Main St, Springfield, IL 62701, US")
	assert.Contains(t, msg.HTML, "Tea &lt;Green&gt;")
	assert.Equal(t, 1.0, counterValue(t, reg, "storefront_notifications_sent_total"))
}

func TestDispatcherCountsFailuresWithoutRetry(t *testing.T) {
	sender := &recordingSender{err: errors.New("sendgrid send: status 500")}
	reg := prometheus.NewRegistry()
	d, err := NewDispatcher(DispatcherParams{
		Sender:     sender,
		Recipients: staticRecipients{user: buyer()},
		Metrics:    metrics.NewNotificationMetrics(reg),
	})
	require.NoError(t, err)

	d.SendOrderShipped(context.Background(), sampleOrder())
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, 1.0, counterValue(t, reg, "storefront_notifications_failed_total"))
	assert.Empty(t, sender.messages())
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	sender := &recordingSender{block: make(chan struct{})}
	reg := prometheus.NewRegistry()
	m := metrics.NewNotificationMetrics(reg)
	d, err := NewDispatcher(DispatcherParams{
		Sender:     sender,
		Recipients: staticRecipients{user: buyer()},
		Metrics:    m,
		Workers:    1,
		QueueSize:  1,
	})
	require.NoError(t, err)

	order := sampleOrder()
	d.SendOrderConfirmation(context.Background(), order)
	// wait for the worker to pick up the first job so the queue slot frees up
	require.Eventually(t, func() bool { return len(d.jobs) == 0 }, time.Second, 5*time.Millisecond)
	d.SendOrderConfirmation(context.Background(), order)
	d.SendOrderConfirmation(context.Background(), order)

	close(sender.block)
	require.NoError(t, d.Close(context.Background()))

	assert.Len(t, sender.messages(), 2)
	assert.Equal(t, 1.0, counterValue(t, reg, "storefront_notifications_dropped_total"))
}

func TestDispatcherSendTimeout(t *testing.T) {
	sender := &recordingSender{block: make(chan struct{})}
	reg := prometheus.NewRegistry()
	d, err := NewDispatcher(DispatcherParams{
		Sender:      sender,
		Recipients:  staticRecipients{user: buyer()},
		Metrics:     metrics.NewNotificationMetrics(reg),
		SendTimeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	d.SendOrderShipped(context.Background(), sampleOrder())
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, 1.0, counterValue(t, reg, "storefront_notifications_failed_total"))
}

func TestDispatcherIgnoresCancelledRequestContext(t *testing.T) {
	sender := &recordingSender{}
	d, err := NewDispatcher(DispatcherParams{Sender: sender, Recipients: staticRecipients{user: buyer()}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	d.SendOrderConfirmation(ctx, sampleOrder())
	cancel()
	require.NoError(t, d.Close(context.Background()))

	assert.Len(t, sender.messages(), 1)
}

func TestDispatcherAfterCloseDrops(t *testing.T) {
	sender := &recordingSender{}
	d, err := NewDispatcher(DispatcherParams{Sender: sender, Recipients: staticRecipients{user: buyer()}})
	require.NoError(t, err)
	require.NoError(t, d.Close(context.Background()))

	d.SendOrderConfirmation(context.Background(), sampleOrder())
	assert.Empty(t, sender.messages())
}

func TestComposeRejectsUnknownKind(t *testing.T) {
	_, err := compose(Kind("weekly_digest"), sampleOrder(), *buyer())
	require.Error(t, err)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}
