package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mariposavintage/mariposa-backend/pkg/enums"
)

// StockReservation is a time-boxed hold on product inventory. Holds never
// outlive thirty minutes; the cron sweep releases anything past expires_at.
type StockReservation struct {
	ID         uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID  uuid.UUID               `gorm:"column:product_id;type:uuid;not null;index:idx_reservations_product_user"`
	UserRef    string                  `gorm:"column:user_ref;not null;index:idx_reservations_product_user"`
	Qty        int                     `gorm:"column:qty;not null"`
	Status     enums.ReservationStatus `gorm:"column:status;type:text;not null;default:'active'"`
	OrderID    *uuid.UUID              `gorm:"column:order_id;type:uuid"`
	ExpiresAt  time.Time               `gorm:"column:expires_at;not null;index"`
	ReleasedAt *time.Time              `gorm:"column:released_at"`
	CreatedAt  time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
