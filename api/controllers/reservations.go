package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mariposavintage/mariposa-backend/api/responses"
	"github.com/mariposavintage/mariposa-backend/api/validators"
	reservationsvc "github.com/mariposavintage/mariposa-backend/internal/reservations"
	pkgerrors "github.com/mariposavintage/mariposa-backend/pkg/errors"
	"github.com/mariposavintage/mariposa-backend/pkg/logger"
)

type createReservationRequest struct {
	ProductID       string `json:"product_id" validate:"required"`
	UserID          string `json:"user_id" validate:"required"`
	Qty             int    `json:"qty" validate:"omitempty,min=1"`
	DurationMinutes int    `json:"duration_minutes" validate:"omitempty,min=1"`
}

// CreateReservation places or extends a stock hold for a buyer.
func CreateReservation(svc reservationsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}

		var payload createReservationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		productID, err := uuid.Parse(strings.TrimSpace(payload.ProductID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
			return
		}

		reservation, err := svc.Create(r.Context(), reservationsvc.CreateInput{
			ProductID: productID,
			UserRef:   strings.TrimSpace(payload.UserID),
			Qty:       payload.Qty,
			Duration:  time.Duration(payload.DurationMinutes) * time.Minute,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, reservation)
	}
}

// ListReservations returns a buyer's active holds.
func ListReservations(svc reservationsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}

		userRef := strings.TrimSpace(r.URL.Query().Get("user_id"))
		if userRef == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "user_id query parameter required"))
			return
		}

		reservations, err := svc.ListActiveForUser(r.Context(), userRef)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, reservations)
	}
}

// CancelReservation releases a hold, scoped to the owning buyer.
func CancelReservation(svc reservationsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "reservationId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reservation id"))
			return
		}

		userRef := strings.TrimSpace(r.URL.Query().Get("user_id"))
		if userRef == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "user_id query parameter required"))
			return
		}

		if err := svc.Cancel(r.Context(), id, userRef); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "cancelled"})
	}
}
