package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/mariposavintage/mariposa-backend/internal/reservations"
	"github.com/mariposavintage/mariposa-backend/pkg/logger"
)

// ReservationSweepJobParams configure the expired hold sweep.
type ReservationSweepJobParams struct {
	Logger       *logger.Logger
	Reservations reservations.Service
}

// NewReservationSweepJob builds the job that releases expired stock holds.
func NewReservationSweepJob(params ReservationSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reservations == nil {
		return nil, fmt.Errorf("reservations service required")
	}
	return &reservationSweepJob{
		logg:         params.Logger,
		reservations: params.Reservations,
		now:          time.Now,
	}, nil
}

type reservationSweepJob struct {
	logg         *logger.Logger
	reservations reservations.Service
	now          func() time.Time
}

func (j *reservationSweepJob) Name() string { return "reservation-sweep" }

func (j *reservationSweepJob) Run(ctx context.Context) error {
	expired, err := j.reservations.ExpireDue(ctx, j.now())
	if err != nil {
		return fmt.Errorf("expire due reservations: %w", err)
	}
	logCtx := j.logg.WithField(ctx, "expired", expired)
	j.logg.Info(logCtx, "reservation sweep complete")
	return nil
}
