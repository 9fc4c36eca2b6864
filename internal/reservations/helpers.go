package reservations

import (
	"time"

	"github.com/mariposavintage/mariposa-backend/pkg/db/models"
)

const nearExpirationWindow = 5 * time.Minute

// RemainingMinutes returns whole minutes until expiry, floored at zero.
func RemainingMinutes(reservation models.StockReservation, now time.Time) int {
	remaining := reservation.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(remaining / time.Minute)
}

// NearExpiration reports whether the hold expires within five minutes but has
// not expired yet.
func NearExpiration(reservation models.StockReservation, now time.Time) bool {
	remaining := reservation.ExpiresAt.Sub(now)
	return remaining > 0 && remaining <= nearExpirationWindow
}
