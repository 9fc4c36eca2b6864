package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mariposavintage/mariposa-backend/pkg/enums"
	"github.com/mariposavintage/mariposa-backend/pkg/types"
)

// Order is the storefront order produced at checkout. external_reference is
// stamped onto the payment preference so gateway webhooks can find their way
// back; preference_id is kept as a secondary correlation key.
type Order struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ExternalReference string                `gorm:"column:external_reference;not null;uniqueIndex"`
	PreferenceID      *string               `gorm:"column:preference_id;index"`
	PaymentID         *string               `gorm:"column:payment_id"`
	Gateway           enums.PaymentGateway  `gorm:"column:gateway;type:text;not null;default:'mercadopago'"`
	Status            enums.OrderStatus     `gorm:"column:status;type:text;not null;default:'pending'"`
	ShippingStatus    enums.ShippingStatus  `gorm:"column:shipping_status;type:text;not null;default:'pending'"`
	SubtotalCents     int                   `gorm:"column:subtotal_cents;not null"`
	ShippingCents     int                   `gorm:"column:shipping_cents;not null;default:0"`
	TotalCents        int                   `gorm:"column:total_cents;not null"`
	Items             types.OrderItems      `gorm:"column:items;type:jsonb;serializer:json"`
	Customer          types.Customer        `gorm:"column:customer;type:jsonb;serializer:json"`
	ShippingAddress   types.ShippingAddress `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	ShippingServiceID *int                  `gorm:"column:shipping_service_id"`
	LabelID           *string               `gorm:"column:label_id"`
	TrackingCode      *string               `gorm:"column:tracking_code"`
	PaidAt            *time.Time            `gorm:"column:paid_at"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
