package stripewebhook

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mariposavintage/mariposa-backend/internal/orders"
	"github.com/mariposavintage/mariposa-backend/internal/reservations"
	"github.com/mariposavintage/mariposa-backend/internal/shipping"
	"github.com/mariposavintage/mariposa-backend/pkg/db/models"
	"github.com/mariposavintage/mariposa-backend/pkg/enums"
	"github.com/mariposavintage/mariposa-backend/pkg/logger"
	"github.com/mariposavintage/mariposa-backend/pkg/melhorenvio"
	"github.com/mariposavintage/mariposa-backend/pkg/types"
)

func setupStripeTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:stripewh_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	ordersTable := `
CREATE TABLE orders (
  id TEXT PRIMARY KEY,
  external_reference TEXT NOT NULL,
  preference_id TEXT,
  payment_id TEXT,
  gateway TEXT NOT NULL DEFAULT 'mercadopago',
  status TEXT NOT NULL DEFAULT 'pending',
  shipping_status TEXT NOT NULL DEFAULT 'pending',
  subtotal_cents INTEGER NOT NULL,
  shipping_cents INTEGER NOT NULL DEFAULT 0,
  total_cents INTEGER NOT NULL,
  items TEXT,
  customer TEXT,
  shipping_address TEXT,
  shipping_service_id INTEGER,
  label_id TEXT,
  tracking_code TEXT,
  paid_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(ordersTable).Error)
	return db
}

type stubReservations struct {
	completedOrders []uuid.UUID
}

func (s *stubReservations) Create(ctx context.Context, input reservations.CreateInput) (*reservations.ReservationDTO, error) {
	return nil, nil
}
func (s *stubReservations) IsProductAvailable(ctx context.Context, productID uuid.UUID) bool {
	return true
}
func (s *stubReservations) ListActiveForUser(ctx context.Context, userRef string) ([]reservations.ReservationDTO, error) {
	return nil, nil
}
func (s *stubReservations) Cancel(ctx context.Context, id uuid.UUID, userRef string) error {
	return nil
}
func (s *stubReservations) Complete(ctx context.Context, id, orderID uuid.UUID) error {
	return nil
}
func (s *stubReservations) LinkToOrder(ctx context.Context, ids []uuid.UUID, orderID uuid.UUID) error {
	return nil
}
func (s *stubReservations) CompleteForOrder(ctx context.Context, orderID uuid.UUID) (int, error) {
	s.completedOrders = append(s.completedOrders, orderID)
	return 1, nil
}
func (s *stubReservations) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

type stubShipping struct{}

func (s *stubShipping) Quote(ctx context.Context, input shipping.QuoteInput) ([]shipping.QuoteOption, error) {
	return nil, nil
}
func (s *stubShipping) PurchaseLabel(ctx context.Context, req melhorenvio.CartItemRequest) (string, error) {
	return "label-1", nil
}
func (s *stubShipping) PurchaseLabelForOrder(ctx context.Context, order *models.Order) (string, error) {
	return "label-1", nil
}

func seedStripeOrder(t *testing.T, db *gorm.DB, ref string) *models.Order {
	t.Helper()

	order := &models.Order{
		ID:                uuid.New(),
		ExternalReference: ref,
		Gateway:           enums.PaymentGatewayStripe,
		Status:            enums.OrderStatusPending,
		ShippingStatus:    enums.ShippingStatusPending,
		SubtotalCents:     8000,
		TotalCents:        9500,
		Customer:          types.Customer{Name: "Bia", Email: "bia@example.com"},
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func newStripeService(t *testing.T, db *gorm.DB, res *stubReservations) *Service {
	t.Helper()

	svc, err := NewService(ServiceParams{
		Orders:       orders.NewRepository(db),
		Reservations: res,
		Shipping:     &stubShipping{},
		Logger:       logger.New(logger.Options{ServiceName: "test"}),
	})
	require.NoError(t, err)
	return svc
}

func paymentIntentEvent(t *testing.T, eventType stripe.EventType, intentID, externalRef string) *stripe.Event {
	t.Helper()

	raw, err := json.Marshal(map[string]any{
		"id":       intentID,
		"metadata": map[string]string{"external_reference": externalRef},
	})
	require.NoError(t, err)
	return &stripe.Event{
		ID:   "evt_" + intentID,
		Type: eventType,
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestHandleEventPaymentIntentSucceeded(t *testing.T) {
	db := setupStripeTestDB(t)
	res := &stubReservations{}
	svc := newStripeService(t, db, res)
	order := seedStripeOrder(t, db, "mariposa-abc")

	event := paymentIntentEvent(t, stripe.EventTypePaymentIntentSucceeded, "pi_123", "mariposa-abc")
	require.NoError(t, svc.HandleEvent(context.Background(), event))

	var stored models.Order
	require.NoError(t, db.First(&stored, "id = ?", order.ID).Error)
	require.Equal(t, enums.OrderStatusPaid, stored.Status)
	require.NotNil(t, stored.PaymentID)
	require.Equal(t, "pi_123", *stored.PaymentID)
	require.NotNil(t, stored.PaidAt)
	require.Equal(t, []uuid.UUID{order.ID}, res.completedOrders)
}

func TestHandleEventPaymentIntentFailed(t *testing.T) {
	db := setupStripeTestDB(t)
	res := &stubReservations{}
	svc := newStripeService(t, db, res)
	order := seedStripeOrder(t, db, "mariposa-def")

	event := paymentIntentEvent(t, stripe.EventTypePaymentIntentPaymentFailed, "pi_456", "mariposa-def")
	require.NoError(t, svc.HandleEvent(context.Background(), event))

	var stored models.Order
	require.NoError(t, db.First(&stored, "id = ?", order.ID).Error)
	require.Equal(t, enums.OrderStatusPaymentFailed, stored.Status)
	require.Nil(t, stored.PaidAt)
	require.Empty(t, res.completedOrders)
}

func TestHandleEventChargeRefunded(t *testing.T) {
	db := setupStripeTestDB(t)
	res := &stubReservations{}
	svc := newStripeService(t, db, res)
	order := seedStripeOrder(t, db, "mariposa-ghi")

	raw, err := json.Marshal(map[string]any{
		"id":       "ch_789",
		"metadata": map[string]string{"external_reference": "mariposa-ghi"},
	})
	require.NoError(t, err)
	event := &stripe.Event{
		ID:   "evt_refund",
		Type: stripe.EventTypeChargeRefunded,
		Data: &stripe.EventData{Raw: raw},
	}
	require.NoError(t, svc.HandleEvent(context.Background(), event))

	var stored models.Order
	require.NoError(t, db.First(&stored, "id = ?", order.ID).Error)
	require.Equal(t, enums.OrderStatusRefunded, stored.Status)
}

func TestHandleEventIgnoresUnhandledTypes(t *testing.T) {
	db := setupStripeTestDB(t)
	res := &stubReservations{}
	svc := newStripeService(t, db, res)
	seedStripeOrder(t, db, "mariposa-jkl")

	event := &stripe.Event{
		ID:   "evt_other",
		Type: stripe.EventTypeCustomerCreated,
		Data: &stripe.EventData{Raw: []byte(`{}`)},
	}
	require.NoError(t, svc.HandleEvent(context.Background(), event))

	var stored models.Order
	require.NoError(t, db.First(&stored, "external_reference = ?", "mariposa-jkl").Error)
	require.Equal(t, enums.OrderStatusPending, stored.Status)
}

func TestHandleEventMissingReferenceIsAcknowledged(t *testing.T) {
	db := setupStripeTestDB(t)
	res := &stubReservations{}
	svc := newStripeService(t, db, res)

	event := paymentIntentEvent(t, stripe.EventTypePaymentIntentSucceeded, "pi_999", "")
	require.NoError(t, svc.HandleEvent(context.Background(), event))
	require.Empty(t, res.completedOrders)
}
