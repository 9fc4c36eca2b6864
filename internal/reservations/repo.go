package reservations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mariposavintage/mariposa-backend/pkg/db/models"
	"github.com/mariposavintage/mariposa-backend/pkg/enums"
)

// Repository encapsulates stock reservation persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a reservation repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the supplied transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create inserts a new reservation row.
func (r *Repository) Create(ctx context.Context, reservation *models.StockReservation) (*models.StockReservation, error) {
	if reservation.ID == uuid.Nil {
		reservation.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(reservation).Error; err != nil {
		return nil, err
	}
	return reservation, nil
}

// FindByID loads a reservation by ID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.StockReservation, error) {
	var reservation models.StockReservation
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&reservation).Error
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

// FindActiveForProductUser returns the live hold for a (product, user) pair.
func (r *Repository) FindActiveForProductUser(ctx context.Context, productID uuid.UUID, userRef string, now time.Time) (*models.StockReservation, error) {
	var reservation models.StockReservation
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND user_ref = ? AND status = ? AND expires_at > ?",
			productID, userRef, enums.ReservationStatusActive, now).
		First(&reservation).Error
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

// ExtendExpiry moves an active reservation's expiry forward. The guard keeps a
// concurrent cancel/expire from being resurrected.
func (r *Repository) ExtendExpiry(ctx context.Context, id uuid.UUID, expiresAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.StockReservation{}).
		Where("id = ? AND status = ?", id, enums.ReservationStatusActive).
		Update("expires_at", expiresAt)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListActiveForUser returns the user's live holds ordered by soonest expiry.
func (r *Repository) ListActiveForUser(ctx context.Context, userRef string, now time.Time) ([]models.StockReservation, error) {
	var items []models.StockReservation
	err := r.db.WithContext(ctx).
		Where("user_ref = ? AND status = ? AND expires_at > ?",
			userRef, enums.ReservationStatusActive, now).
		Order("expires_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// MarkStatus transitions an active reservation to a terminal status, scoped by
// owner when userRef is non-empty. Returns false when no row matched.
func (r *Repository) MarkStatus(ctx context.Context, id uuid.UUID, userRef string, status enums.ReservationStatus, releasedAt time.Time) (bool, error) {
	query := r.db.WithContext(ctx).
		Model(&models.StockReservation{}).
		Where("id = ? AND status = ?", id, enums.ReservationStatusActive)
	if userRef != "" {
		query = query.Where("user_ref = ?", userRef)
	}
	result := query.Updates(map[string]any{
		"status":      status,
		"released_at": releasedAt,
	})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// LinkToOrder stamps active reservations with the order they are being
// checked out under. Status stays active until payment confirms.
func (r *Repository) LinkToOrder(ctx context.Context, ids []uuid.UUID, orderID uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.StockReservation{}).
		Where("id IN ? AND status = ?", ids, enums.ReservationStatusActive).
		Update("order_id", orderID).Error
}

// ListActiveByOrder returns the active holds linked to an order.
func (r *Repository) ListActiveByOrder(ctx context.Context, orderID uuid.UUID) ([]models.StockReservation, error) {
	var items []models.StockReservation
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, enums.ReservationStatusActive).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Complete closes an active reservation and links the finalized order.
func (r *Repository) Complete(ctx context.Context, id, orderID uuid.UUID, releasedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.StockReservation{}).
		Where("id = ? AND status = ?", id, enums.ReservationStatusActive).
		Updates(map[string]any{
			"status":      enums.ReservationStatusCompleted,
			"order_id":    orderID,
			"released_at": releasedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListDue returns active reservations whose expiry has passed.
func (r *Repository) ListDue(ctx context.Context, now time.Time, limit int) ([]models.StockReservation, error) {
	if limit <= 0 {
		limit = 200
	}
	var items []models.StockReservation
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", enums.ReservationStatusActive, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
