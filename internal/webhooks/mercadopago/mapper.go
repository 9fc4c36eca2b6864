package mercadopagowebhook

import (
	"strings"

	"github.com/mariposavintage/mariposa-backend/pkg/enums"
)

// MapStatus translates a Mercado Pago payment status into the local order
// status. The second return is false for statuses outside the documented set,
// which fall back to pending so the order stays actionable.
func MapStatus(status string) (enums.OrderStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "approved":
		return enums.OrderStatusPaid, true
	case "pending":
		return enums.OrderStatusPending, true
	case "in_process":
		return enums.OrderStatusProcessing, true
	case "rejected":
		return enums.OrderStatusPaymentFailed, true
	case "cancelled":
		return enums.OrderStatusCancelled, true
	case "refunded":
		return enums.OrderStatusRefunded, true
	default:
		return enums.OrderStatusPending, false
	}
}
