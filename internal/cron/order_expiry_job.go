package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	defaultPendingOrderTTL = 72 * time.Hour
	defaultExpiryBatchSize = 100
)

type pendingOrderExpirer interface {
	FindExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	ExpirePending(ctx context.Context, orderID uuid.UUID) (bool, error)
}

// OrderExpiryJobParams configure the pending order expiry sweep.
type OrderExpiryJobParams struct {
	Logger    *logger.Logger
	Orders    pendingOrderExpirer
	TTL       time.Duration
	BatchSize int
}

// NewOrderExpiryJob builds the job that cancels PENDING orders left unpaid past the TTL.
func NewOrderExpiryJob(params OrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultPendingOrderTTL
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatchSize
	}
	return &orderExpiryJob{
		logg:   params.Logger,
		orders: params.Orders,
		ttl:    ttl,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type orderExpiryJob struct {
	logg   *logger.Logger
	orders pendingOrderExpirer
	ttl    time.Duration
	batch  int
	now    func() time.Time
}

func (j *orderExpiryJob) Name() string { return "pending-order-expiry" }

// Run walks expired orders one batch at a time. A failed order is reported but
// does not stop the sweep; it is retried on the next run.
func (j *orderExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	var (
		errs     error
		expired  int
		skipped  int
		attempts = map[uuid.UUID]struct{}{}
	)

	for {
		candidates, err := j.orders.FindExpiredPending(ctx, cutoff, j.batch)
		if err != nil {
			return multierr.Append(errs, fmt.Errorf("query expired orders: %w", err))
		}
		progressed := false
		for _, order := range candidates {
			if _, seen := attempts[order.ID]; seen {
				continue
			}
			attempts[order.ID] = struct{}{}
			progressed = true

			ok, err := j.orders.ExpirePending(ctx, order.ID)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", order.ID, err))
				continue
			}
			if ok {
				expired++
			} else {
				skipped++
			}
		}
		if len(candidates) < j.batch || !progressed || ctx.Err() != nil {
			break
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"expired": expired,
		"skipped": skipped,
		"failed":  len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "pending order expiry complete")
	return errs
}
