package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mariposavintage/mariposa-backend/pkg/db/models"
	"github.com/mariposavintage/mariposa-backend/pkg/enums"
)

// Repository encapsulates order persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
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

// Create inserts a new order row.
func (r *Repository) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

// FindByID loads an order by primary key.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByExternalReference loads the order stamped with the given correlation key.
func (r *Repository) FindByExternalReference(ctx context.Context, ref string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("external_reference = ?", ref).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByPreferenceID loads the order created for the given payment preference.
func (r *Repository) FindByPreferenceID(ctx context.Context, preferenceID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("preference_id = ?", preferenceID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindMostRecentPending returns the newest order still awaiting payment.
func (r *Repository) FindMostRecentPending(ctx context.Context) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.OrderStatusPending).
		Order("created_at DESC").
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// SetPreference stores the gateway checkout preference created for the order.
func (r *Repository) SetPreference(ctx context.Context, id uuid.UUID, preferenceID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Update("preference_id", preferenceID).Error
}

// UpdatePaymentState overwrites the payment columns. Webhook delivery order is
// not guaranteed, so the write is last-write-wins by design of the callers.
func (r *Repository) UpdatePaymentState(ctx context.Context, id uuid.UUID, status enums.OrderStatus, paymentID string, paidAt *time.Time) error {
	updates := map[string]any{
		"status": status,
	}
	if paymentID != "" {
		updates["payment_id"] = paymentID
	}
	if paidAt != nil {
		updates["paid_at"] = paidAt
	}
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// UpdateShippingState records label purchase results.
func (r *Repository) UpdateShippingState(ctx context.Context, id uuid.UUID, status enums.ShippingStatus, labelID, trackingCode string) error {
	updates := map[string]any{
		"shipping_status": status,
	}
	if labelID != "" {
		updates["label_id"] = labelID
	}
	if trackingCode != "" {
		updates["tracking_code"] = trackingCode
	}
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// ListByCustomerEmail returns a customer's orders, newest first.
func (r *Repository) ListByCustomerEmail(ctx context.Context, email string, limit int) ([]models.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var items []models.Order
	err := r.db.WithContext(ctx).
		Where("customer ->> 'email' = ?", email).
		Order("created_at DESC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ListPendingOlderThan returns pending orders created before the cutoff, used
// by the order TTL sweep.
func (r *Repository) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 200
	}
	var items []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.OrderStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
