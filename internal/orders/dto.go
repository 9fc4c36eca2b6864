package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/mariposavintage/mariposa-backend/pkg/db/models"
	"github.com/mariposavintage/mariposa-backend/pkg/enums"
	"github.com/mariposavintage/mariposa-backend/pkg/types"
)

// OrderDTO is the order view returned to the storefront.
type OrderDTO struct {
	ID                uuid.UUID             `json:"id"`
	ExternalReference string                `json:"external_reference"`
	Status            enums.OrderStatus     `json:"status"`
	ShippingStatus    enums.ShippingStatus  `json:"shipping_status"`
	SubtotalCents     int                   `json:"subtotal_cents"`
	ShippingCents     int                   `json:"shipping_cents"`
	TotalCents        int                   `json:"total_cents"`
	Items             types.OrderItems      `json:"items"`
	Customer          types.Customer        `json:"customer"`
	ShippingAddress   types.ShippingAddress `json:"shipping_address"`
	TrackingCode      *string               `json:"tracking_code,omitempty"`
	PaidAt            *time.Time            `json:"paid_at,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
}

// ToDTO converts a stored order into its storefront view.
func ToDTO(order models.Order) OrderDTO {
	return OrderDTO{
		ID:                order.ID,
		ExternalReference: order.ExternalReference,
		Status:            order.Status,
		ShippingStatus:    order.ShippingStatus,
		SubtotalCents:     order.SubtotalCents,
		ShippingCents:     order.ShippingCents,
		TotalCents:        order.TotalCents,
		Items:             order.Items,
		Customer:          order.Customer,
		ShippingAddress:   order.ShippingAddress,
		TrackingCode:      order.TrackingCode,
		PaidAt:            order.PaidAt,
		CreatedAt:         order.CreatedAt,
	}
}
