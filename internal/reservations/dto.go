package reservations

import (
	"time"

	"github.com/google/uuid"

	"github.com/mariposavintage/mariposa-backend/pkg/db/models"
	"github.com/mariposavintage/mariposa-backend/pkg/enums"
)

// ReservationDTO is the hold view returned to the storefront.
type ReservationDTO struct {
	ID             uuid.UUID               `json:"id"`
	ProductID      uuid.UUID               `json:"product_id"`
	Qty            int                     `json:"qty"`
	Status         enums.ReservationStatus `json:"status"`
	ExpiresAt      time.Time               `json:"expires_at"`
	RemainingMins  int                     `json:"remaining_minutes"`
	NearExpiration bool                    `json:"near_expiration"`
	CreatedAt      time.Time               `json:"created_at"`
}

func toDTO(reservation models.StockReservation, now time.Time) ReservationDTO {
	return ReservationDTO{
		ID:             reservation.ID,
		ProductID:      reservation.ProductID,
		Qty:            reservation.Qty,
		Status:         reservation.Status,
		ExpiresAt:      reservation.ExpiresAt,
		RemainingMins:  RemainingMinutes(reservation, now),
		NearExpiration: NearExpiration(reservation, now),
		CreatedAt:      reservation.CreatedAt,
	}
}
