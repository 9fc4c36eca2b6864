package reservations

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mariposavintage/mariposa-backend/internal/products"
	"github.com/mariposavintage/mariposa-backend/pkg/config"
	"github.com/mariposavintage/mariposa-backend/pkg/db/models"
	"github.com/mariposavintage/mariposa-backend/pkg/enums"
	pkgerrors "github.com/mariposavintage/mariposa-backend/pkg/errors"
	"github.com/mariposavintage/mariposa-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CreateInput captures a hold request from the storefront.
type CreateInput struct {
	ProductID uuid.UUID
	UserRef   string
	Qty       int
	Duration  time.Duration
}

// ServiceParams groups dependencies for the reservation service.
type ServiceParams struct {
	Tx          txRunner
	Repo        *Repository
	ProductRepo *products.Repository
	Config      config.ReservationsConfig
	Logger      *logger.Logger
}

// Service exposes the stock hold lifecycle.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*ReservationDTO, error)
	IsProductAvailable(ctx context.Context, productID uuid.UUID) bool
	ListActiveForUser(ctx context.Context, userRef string) ([]ReservationDTO, error)
	Cancel(ctx context.Context, id uuid.UUID, userRef string) error
	Complete(ctx context.Context, id, orderID uuid.UUID) error
	LinkToOrder(ctx context.Context, ids []uuid.UUID, orderID uuid.UUID) error
	CompleteForOrder(ctx context.Context, orderID uuid.UUID) (int, error)
	ExpireDue(ctx context.Context, now time.Time) (int, error)
}

type service struct {
	tx          txRunner
	repo        *Repository
	productRepo *products.Repository
	cfg         config.ReservationsConfig
	logg        *logger.Logger
	now         func() time.Time
}

// NewService builds a reservation service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tx runner is required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation repo is required")
	}
	if params.ProductRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product repo is required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger is required")
	}
	return &service{
		tx:          params.Tx,
		repo:        params.Repo,
		productRepo: params.ProductRepo,
		cfg:         params.Config,
		logg:        params.Logger,
		now:         time.Now,
	}, nil
}

// Create places or extends a hold for (product, user). An existing active hold
// is coalesced by pushing its expiry forward instead of inserting a second row.
func (s *service) Create(ctx context.Context, input CreateInput) (*ReservationDTO, error) {
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if strings.TrimSpace(input.UserRef) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user reference is required")
	}
	if input.Qty <= 0 {
		input.Qty = 1
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.clampDuration(input.Duration))

	var result models.StockReservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		productRepo := s.productRepo.WithTx(tx)

		if _, err := productRepo.FindByID(ctx, input.ProductID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}

		existing, err := repo.FindActiveForProductUser(ctx, input.ProductID, input.UserRef, now)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load existing reservation")
		}

		if existing != nil {
			// idempotent hold: extend, never duplicate
			if expiresAt.After(existing.ExpiresAt) {
				if _, err := repo.ExtendExpiry(ctx, existing.ID, expiresAt); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "extend reservation")
				}
				existing.ExpiresAt = expiresAt
			}
			result = *existing
			return nil
		}

		reserved, err := productRepo.ReserveInventory(ctx, input.ProductID, input.Qty)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve inventory")
		}
		if !reserved {
			return pkgerrors.New(pkgerrors.CodeOutOfStock, "product is out of stock")
		}

		created, err := repo.Create(ctx, &models.StockReservation{
			ProductID: input.ProductID,
			UserRef:   input.UserRef,
			Qty:       input.Qty,
			Status:    enums.ReservationStatusActive,
			ExpiresAt: expiresAt,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create reservation")
		}
		result = *created
		return nil
	})
	if err != nil {
		return nil, err
	}

	dto := toDTO(result, now)
	return &dto, nil
}

// IsProductAvailable reports whether the product has stock left. Fails closed
// on any lookup error.
func (s *service) IsProductAvailable(ctx context.Context, productID uuid.UUID) bool {
	if productID == uuid.Nil {
		return false
	}
	inventory, err := s.productRepo.FindInventory(ctx, productID)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "product_id", productID.String()), "availability check failed")
		return false
	}
	return inventory.AvailableQty > 0
}

// ListActiveForUser returns the user's live holds ordered by soonest expiry.
func (s *service) ListActiveForUser(ctx context.Context, userRef string) ([]ReservationDTO, error) {
	if strings.TrimSpace(userRef) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user reference is required")
	}
	now := s.now().UTC()
	items, err := s.repo.ListActiveForUser(ctx, userRef, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reservations")
	}
	dtos := make([]ReservationDTO, 0, len(items))
	for _, item := range items {
		dtos = append(dtos, toDTO(item, now))
	}
	return dtos, nil
}

// Cancel releases a hold, scoped to the owning user.
func (s *service) Cancel(ctx context.Context, id uuid.UUID, userRef string) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "reservation id is required")
	}
	if strings.TrimSpace(userRef) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "user reference is required")
	}

	now := s.now().UTC()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		reservation, err := repo.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "reservation not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservation")
		}

		updated, err := repo.MarkStatus(ctx, id, userRef, enums.ReservationStatusCancelled, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel reservation")
		}
		if !updated {
			// wrong owner or no longer active; nothing was mutated
			return pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
		}

		if err := s.productRepo.WithTx(tx).ReleaseInventory(ctx, reservation.ProductID, reservation.Qty); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release inventory")
		}
		return nil
	})
}

// Complete closes a hold once payment is confirmed and commits the stock.
func (s *service) Complete(ctx context.Context, id, orderID uuid.UUID) error {
	if id == uuid.Nil || orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "reservation and order ids are required")
	}

	now := s.now().UTC()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		reservation, err := repo.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "reservation not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservation")
		}

		completed, err := repo.Complete(ctx, id, orderID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete reservation")
		}
		if !completed {
			return pkgerrors.New(pkgerrors.CodeConflict, "reservation is no longer active")
		}

		if err := s.productRepo.WithTx(tx).CommitReserved(ctx, reservation.ProductID, reservation.Qty); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "commit reserved stock")
		}
		return nil
	})
}

// LinkToOrder associates active holds with the order being checked out. The
// holds stay active; payment confirmation completes them.
func (s *service) LinkToOrder(ctx context.Context, ids []uuid.UUID, orderID uuid.UUID) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if err := s.repo.LinkToOrder(ctx, ids, orderID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link reservations to order")
	}
	return nil
}

// CompleteForOrder closes every active hold linked to the order and commits
// the stock. Returns how many holds were completed.
func (s *service) CompleteForOrder(ctx context.Context, orderID uuid.UUID) (int, error) {
	if orderID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	now := s.now().UTC()
	completed := 0
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		productRepo := s.productRepo.WithTx(tx)

		linked, err := repo.ListActiveByOrder(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list linked reservations")
		}

		for _, reservation := range linked {
			done, err := repo.Complete(ctx, reservation.ID, orderID, now)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete reservation")
			}
			if !done {
				continue
			}
			if err := productRepo.CommitReserved(ctx, reservation.ProductID, reservation.Qty); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "commit reserved stock")
			}
			completed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return completed, nil
}

// ExpireDue releases every hold whose expiry has passed. Returns the number of
// reservations expired; used by the scheduled sweep.
func (s *service) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	if now.IsZero() {
		now = s.now()
	}
	now = now.UTC()

	expired := 0
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		productRepo := s.productRepo.WithTx(tx)

		due, err := repo.ListDue(ctx, now, 0)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list due reservations")
		}

		for _, reservation := range due {
			updated, err := repo.MarkStatus(ctx, reservation.ID, "", enums.ReservationStatusExpired, now)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire reservation")
			}
			if !updated {
				continue
			}
			if err := productRepo.ReleaseInventory(ctx, reservation.ProductID, reservation.Qty); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release expired inventory")
			}
			expired++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if expired > 0 {
		s.logg.Info(s.logg.WithField(ctx, "expired", expired), "released expired reservations")
	}
	return expired, nil
}

func (s *service) clampDuration(requested time.Duration) time.Duration {
	duration := requested
	if duration <= 0 {
		duration = s.cfg.DefaultHold()
	}
	if max := s.cfg.MaxHold(); duration > max {
		duration = max
	}
	return duration
}
