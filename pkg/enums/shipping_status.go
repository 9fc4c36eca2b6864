package enums

import "fmt"

// ShippingStatus tracks label purchase and delivery progress for an order.
type ShippingStatus string

const (
	ShippingStatusPending        ShippingStatus = "pending"
	ShippingStatusLabelPurchased ShippingStatus = "label_purchased"
	ShippingStatusLabelFailed    ShippingStatus = "label_failed"
	ShippingStatusShipped        ShippingStatus = "shipped"
	ShippingStatusDelivered      ShippingStatus = "delivered"
)

var validShippingStatuses = []ShippingStatus{
	ShippingStatusPending,
	ShippingStatusLabelPurchased,
	ShippingStatusLabelFailed,
	ShippingStatusShipped,
	ShippingStatusDelivered,
}

// String implements fmt.Stringer.
func (s ShippingStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ShippingStatus.
func (s ShippingStatus) IsValid() bool {
	for _, candidate := range validShippingStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseShippingStatus converts raw input into a ShippingStatus.
func ParseShippingStatus(value string) (ShippingStatus, error) {
	for _, candidate := range validShippingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid shipping status %q", value)
}
