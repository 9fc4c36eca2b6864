package controllers

import (
	"net/http"
	"strings"

	"github.com/mariposavintage/mariposa-backend/api/responses"
	"github.com/mariposavintage/mariposa-backend/api/validators"
	shippingsvc "github.com/mariposavintage/mariposa-backend/internal/shipping"
	pkgerrors "github.com/mariposavintage/mariposa-backend/pkg/errors"
	"github.com/mariposavintage/mariposa-backend/pkg/logger"
)

type shippingQuoteRequest struct {
	PostalCode string                     `json:"postal_code" validate:"required"`
	Items      []shippingQuoteItemRequest `json:"items" validate:"required,min=1,dive"`
}

type shippingQuoteItemRequest struct {
	WidthCM     int `json:"width_cm" validate:"omitempty,min=0"`
	HeightCM    int `json:"height_cm" validate:"omitempty,min=0"`
	LengthCM    int `json:"length_cm" validate:"omitempty,min=0"`
	WeightGrams int `json:"weight_grams" validate:"required,min=1"`
	ValueCents  int `json:"value_cents" validate:"omitempty,min=0"`
	Qty         int `json:"qty" validate:"omitempty,min=1"`
}

// ShippingQuote returns carrier options for a cart, cheapest first.
func ShippingQuote(svc shippingsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping service unavailable"))
			return
		}

		var payload shippingQuoteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]shippingsvc.QuoteItem, 0, len(payload.Items))
		for _, item := range payload.Items {
			items = append(items, shippingsvc.QuoteItem{
				WidthCM:     item.WidthCM,
				HeightCM:    item.HeightCM,
				LengthCM:    item.LengthCM,
				WeightGrams: item.WeightGrams,
				ValueCents:  item.ValueCents,
				Qty:         item.Qty,
			})
		}

		options, err := svc.Quote(r.Context(), shippingsvc.QuoteInput{
			DestinationPostalCode: strings.TrimSpace(payload.PostalCode),
			Items:                 items,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, options)
	}
}
