package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/sendgrid"
)

const (
	defaultWorkers     = 2
	defaultQueueSize   = 256
	defaultSendTimeout = 10 * time.Second
)

// Sender hands a composed email to the delivery provider.
type Sender interface {
	Send(ctx context.Context, msg sendgrid.Message) error
}

// RecipientLookup resolves the user an order email goes to.
type RecipientLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Notifier is the fire-and-forget surface order flows call after commit.
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, order models.Order)
	SendOrderShipped(ctx context.Context, order models.Order)
}

// DispatcherParams groups dependencies for the notification dispatcher.
type DispatcherParams struct {
	Sender      Sender
	Recipients  RecipientLookup
	Metrics     *metrics.NotificationMetrics
	Logger      *logger.Logger
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

type job struct {
	ctx   context.Context
	kind  Kind
	order models.Order
}

// Dispatcher delivers order emails from a bounded queue on a fixed worker pool.
// Enqueueing never blocks: a full queue drops the email and counts it. Failed
// sends are logged and counted, never retried.
type Dispatcher struct {
	sender      Sender
	recipients  RecipientLookup
	metrics     *metrics.NotificationMetrics
	logg        *logger.Logger
	sendTimeout time.Duration

	jobs   chan job
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

var _ Notifier = (*Dispatcher)(nil)

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Sender == nil {
		return nil, fmt.Errorf("notification sender required")
	}
	if params.Recipients == nil {
		return nil, fmt.Errorf("recipient lookup required")
	}
	workers := params.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	queueSize := params.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	timeout := params.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}

	d := &Dispatcher{
		sender:      params.Sender,
		recipients:  params.Recipients,
		metrics:     params.Metrics,
		logg:        params.Logger,
		sendTimeout: timeout,
		jobs:        make(chan job, queueSize),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d, nil
}

// SendOrderConfirmation queues the payment confirmation email for order.
func (d *Dispatcher) SendOrderConfirmation(ctx context.Context, order models.Order) {
	d.enqueue(ctx, KindOrderConfirmation, order)
}

// SendOrderShipped queues the shipment email for order.
func (d *Dispatcher) SendOrderShipped(ctx context.Context, order models.Order) {
	d.enqueue(ctx, KindOrderShipped, order)
}

// Close stops accepting work and waits for queued emails to drain or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) enqueue(ctx context.Context, kind Kind, order models.Order) {
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(ctx, kind, order, "dispatcher closed")
		return
	}
	select {
	case d.jobs <- job{ctx: context.WithoutCancel(ctx), kind: kind, order: order}:
	default:
		d.drop(ctx, kind, order, "notification queue full")
	}
}

func (d *Dispatcher) drop(ctx context.Context, kind Kind, order models.Order, reason string) {
	d.metrics.IncDropped(string(kind))
	if d.logg != nil {
		logCtx := d.logg.WithFields(ctx, map[string]any{
			"kind":     kind,
			"order_id": order.ID.String(),
		})
		d.logg.Warn(logCtx, "notification dropped: "+reason)
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.deliver(j)
	}
}

func (d *Dispatcher) deliver(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.sendTimeout)
	defer cancel()

	err := d.send(ctx, j.kind, j.order)
	if err == nil {
		d.metrics.IncSent(string(j.kind))
		if d.logg != nil {
			d.logg.Info(d.logg.WithField(ctx, "kind", j.kind), "notification sent")
		}
		return
	}

	d.metrics.IncFailed(string(j.kind))
	if d.logg != nil {
		logCtx := d.logg.WithFields(ctx, map[string]any{
			"kind":     j.kind,
			"order_id": j.order.ID.String(),
		})
		d.logg.Error(logCtx, "notification failed", err)
	}
}

func (d *Dispatcher) send(ctx context.Context, kind Kind, order models.Order) error {
	recipient, err := d.recipients.FindByID(ctx, order.UserID)
	if err != nil {
		return fmt.Errorf("load recipient: %w", err)
	}
	if recipient == nil {
		return errors.New("recipient not found")
	}
	msg, err := compose(kind, order, *recipient)
	if err != nil {
		return err
	}
	return d.sender.Send(ctx, msg)
}
