package shipping

import (
	"context"

	"github.com/mariposavintage/mariposa-backend/pkg/db/models"
	pkgerrors "github.com/mariposavintage/mariposa-backend/pkg/errors"
	"github.com/mariposavintage/mariposa-backend/pkg/melhorenvio"
)

// Vintage pieces ship in one standard box; the catalog does not carry
// per-item dimensions on order lines.
const (
	defaultBoxWidthCM  = 25
	defaultBoxHeightCM = 15
	defaultBoxLengthCM = 30
)

// PurchaseLabelForOrder assembles the label request from a paid order and
// buys it, returning the label ID.
func (s *service) PurchaseLabelForOrder(ctx context.Context, order *models.Order) (string, error) {
	if order == nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	if order.ShippingServiceID == nil || *order.ShippingServiceID == 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "order has no shipping service selected")
	}
	if order.ShippingAddress.PostalCode == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "order has no shipping address")
	}

	grams := 0
	for _, item := range order.Items {
		qty := item.Qty
		if qty <= 0 {
			qty = 1
		}
		grams += item.WeightGrams * qty
	}

	req := melhorenvio.CartItemRequest{
		Service: *order.ShippingServiceID,
		From: melhorenvio.CartParty{
			Name:       s.cfg.OriginName,
			Address:    s.cfg.OriginStreet,
			Number:     s.cfg.OriginNumber,
			District:   s.cfg.OriginDistrict,
			City:       s.cfg.OriginCity,
			State:      s.cfg.OriginState,
			PostalCode: s.cfg.OriginPostalCode,
		},
		To: melhorenvio.CartParty{
			Name:       order.Customer.Name,
			Phone:      order.Customer.Phone,
			Email:      order.Customer.Email,
			Document:   order.Customer.Document,
			Address:    order.ShippingAddress.Street,
			Number:     order.ShippingAddress.Number,
			District:   order.ShippingAddress.District,
			City:       order.ShippingAddress.City,
			State:      order.ShippingAddress.State,
			PostalCode: order.ShippingAddress.PostalCode,
		},
		Volumes: []melhorenvio.CartVolume{{
			WidthCM:  defaultBoxWidthCM,
			HeightCM: defaultBoxHeightCM,
			LengthCM: defaultBoxLengthCM,
			WeightKg: float64(grams) / 1000,
		}},
	}

	return s.PurchaseLabel(ctx, req)
}
