package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mariposavintage/mariposa-backend/api/responses"
	"github.com/mariposavintage/mariposa-backend/api/validators"
	checkoutsvc "github.com/mariposavintage/mariposa-backend/internal/checkout"
	pkgerrors "github.com/mariposavintage/mariposa-backend/pkg/errors"
	"github.com/mariposavintage/mariposa-backend/pkg/logger"
	"github.com/mariposavintage/mariposa-backend/pkg/types"
)

type checkoutRequest struct {
	Items             []checkoutItemRequest   `json:"items" validate:"required,min=1,dive"`
	Customer          checkoutCustomerRequest `json:"customer" validate:"required"`
	ShippingAddress   checkoutAddressRequest  `json:"shipping_address" validate:"required"`
	ShippingServiceID int                     `json:"shipping_service_id" validate:"omitempty,min=1"`
}

type checkoutItemRequest struct {
	ProductID         string `json:"product_id" validate:"required"`
	Qty               int    `json:"qty" validate:"required,min=1"`
	ExpectedUnitCents int    `json:"expected_unit_cents" validate:"omitempty,min=0"`
}

type checkoutCustomerRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"omitempty"`
	Document string `json:"document" validate:"omitempty"`
}

type checkoutAddressRequest struct {
	Street     string `json:"street" validate:"required"`
	Number     string `json:"number" validate:"required"`
	Complement string `json:"complement" validate:"omitempty"`
	District   string `json:"district" validate:"omitempty"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country" validate:"omitempty"`
}

// Checkout turns a cart into a pending order and returns the hosted payment
// redirect.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Execute(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func (r checkoutRequest) toInput() (checkoutsvc.Input, error) {
	items := make([]checkoutsvc.ItemInput, 0, len(r.Items))
	for _, item := range r.Items {
		productID, err := uuid.Parse(strings.TrimSpace(item.ProductID))
		if err != nil {
			return checkoutsvc.Input{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id")
		}
		items = append(items, checkoutsvc.ItemInput{
			ProductID:         productID,
			Qty:               item.Qty,
			ExpectedUnitCents: item.ExpectedUnitCents,
		})
	}

	return checkoutsvc.Input{
		Items: items,
		Customer: types.Customer{
			Name:     strings.TrimSpace(r.Customer.Name),
			Email:    strings.TrimSpace(r.Customer.Email),
			Phone:    strings.TrimSpace(r.Customer.Phone),
			Document: strings.TrimSpace(r.Customer.Document),
		},
		ShippingAddress: types.ShippingAddress{
			Street:     strings.TrimSpace(r.ShippingAddress.Street),
			Number:     strings.TrimSpace(r.ShippingAddress.Number),
			Complement: strings.TrimSpace(r.ShippingAddress.Complement),
			District:   strings.TrimSpace(r.ShippingAddress.District),
			City:       strings.TrimSpace(r.ShippingAddress.City),
			State:      strings.TrimSpace(r.ShippingAddress.State),
			PostalCode: strings.TrimSpace(r.ShippingAddress.PostalCode),
			Country:    strings.TrimSpace(r.ShippingAddress.Country),
		},
		ShippingServiceID: r.ShippingServiceID,
	}, nil
}
