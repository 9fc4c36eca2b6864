package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/mariposavintage/mariposa-backend/internal/orders"
	"github.com/mariposavintage/mariposa-backend/pkg/enums"
	"github.com/mariposavintage/mariposa-backend/pkg/logger"
)

// Orders still unpaid after this many days are abandoned carts; their stock
// holds expired long before, so cancelling only touches the order row.
const orderExpirationDays = 10

// OrderTTLJobParams configure the stale pending order sweep.
type OrderTTLJobParams struct {
	Logger *logger.Logger
	Orders *orders.Repository
}

// NewOrderTTLJob builds the job that cancels stale pending orders.
func NewOrderTTLJob(params OrderTTLJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repo required")
	}
	return &orderTTLJob{
		logg:   params.Logger,
		orders: params.Orders,
		now:    time.Now,
	}, nil
}

type orderTTLJob struct {
	logg   *logger.Logger
	orders *orders.Repository
	now    func() time.Time
}

func (j *orderTTLJob) Name() string { return "order-ttl" }

func (j *orderTTLJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-orderExpirationDays * 24 * time.Hour)
	stale, err := j.orders.ListPendingOlderThan(ctx, cutoff, 0)
	if err != nil {
		return fmt.Errorf("query stale pending orders: %w", err)
	}

	var errs []error
	cancelled := 0
	for _, order := range stale {
		if err := j.orders.UpdatePaymentState(ctx, order.ID, enums.OrderStatusCancelled, "", nil); err != nil {
			errs = append(errs, fmt.Errorf("cancel order %s: %w", order.ID, err))
			continue
		}
		cancelled++
	}

	logCtx := j.logg.WithField(ctx, "cancelled", cancelled)
	j.logg.Info(logCtx, "order ttl sweep complete")
	return multierr.Combine(errs...)
}
