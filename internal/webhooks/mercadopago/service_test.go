package mercadopagowebhook

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mariposavintage/mariposa-backend/internal/orders"
	"github.com/mariposavintage/mariposa-backend/internal/reservations"
	"github.com/mariposavintage/mariposa-backend/internal/shipping"
	"github.com/mariposavintage/mariposa-backend/internal/webhooks"
	"github.com/mariposavintage/mariposa-backend/pkg/db/models"
	"github.com/mariposavintage/mariposa-backend/pkg/enums"
	"github.com/mariposavintage/mariposa-backend/pkg/logger"
	"github.com/mariposavintage/mariposa-backend/pkg/melhorenvio"
	"github.com/mariposavintage/mariposa-backend/pkg/mercadopago"
	"github.com/mariposavintage/mariposa-backend/pkg/types"
)

func setupWebhookTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:mpwebhook_" + uuid.NewString() + "?mode=memory&cache=shared"
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

func seedOrder(t *testing.T, db *gorm.DB, ref string, status enums.OrderStatus, created time.Time) *models.Order {
	t.Helper()

	prefID := "pref-" + ref
	order := &models.Order{
		ID:                uuid.New(),
		ExternalReference: ref,
		PreferenceID:      &prefID,
		Gateway:           enums.PaymentGatewayMercadoPago,
		Status:            status,
		ShippingStatus:    enums.ShippingStatusPending,
		SubtotalCents:     15000,
		TotalCents:        17500,
		Items: types.OrderItems{{
			ProductID:   uuid.New(),
			SKU:         "SKU-1",
			Title:       "Vestido vintage anos 70",
			Qty:         1,
			UnitCents:   15000,
			WeightGrams: 400,
		}},
		Customer:        types.Customer{Name: "Ana", Email: "ana@example.com"},
		ShippingAddress: types.ShippingAddress{Street: "Rua Augusta", Number: "100", City: "Sao Paulo", State: "SP", PostalCode: "01310-100"},
		CreatedAt:       created,
		UpdatedAt:       created,
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

type stubGateway struct {
	payment          *mercadopago.Payment
	paymentErr       error
	merchantOrder    *mercadopago.MerchantOrder
	merchantOrderErr error
	paymentCalls     int
}

func (s *stubGateway) GetPayment(ctx context.Context, id string) (*mercadopago.Payment, error) {
	s.paymentCalls++
	if s.paymentErr != nil {
		return nil, s.paymentErr
	}
	return s.payment, nil
}

func (s *stubGateway) GetMerchantOrder(ctx context.Context, id string) (*mercadopago.MerchantOrder, error) {
	if s.merchantOrderErr != nil {
		return nil, s.merchantOrderErr
	}
	return s.merchantOrder, nil
}

type stubReservations struct {
	completedOrders []uuid.UUID
	completeErr     error
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
	if s.completeErr != nil {
		return 0, s.completeErr
	}
	s.completedOrders = append(s.completedOrders, orderID)
	return 1, nil
}
func (s *stubReservations) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

type stubShipping struct {
	labelID    string
	labelErr   error
	labelCalls int
}

func (s *stubShipping) Quote(ctx context.Context, input shipping.QuoteInput) ([]shipping.QuoteOption, error) {
	return nil, nil
}
func (s *stubShipping) PurchaseLabel(ctx context.Context, req melhorenvio.CartItemRequest) (string, error) {
	return s.labelID, s.labelErr
}
func (s *stubShipping) PurchaseLabelForOrder(ctx context.Context, order *models.Order) (string, error) {
	s.labelCalls++
	if s.labelErr != nil {
		return "", s.labelErr
	}
	return s.labelID, nil
}

type webhookFixture struct {
	db           *gorm.DB
	gateway      *stubGateway
	reservations *stubReservations
	shipping     *stubShipping
	service      *Service
}

func newWebhookFixture(t *testing.T, guard *webhooks.IdempotencyGuard) *webhookFixture {
	t.Helper()

	fixture := &webhookFixture{
		db:           setupWebhookTestDB(t),
		gateway:      &stubGateway{},
		reservations: &stubReservations{},
		shipping:     &stubShipping{labelID: "label-1"},
	}
	svc, err := NewService(ServiceParams{
		Orders:       orders.NewRepository(fixture.db),
		Reservations: fixture.reservations,
		Shipping:     fixture.shipping,
		Gateway:      fixture.gateway,
		Guard:        guard,
		Logger:       logger.New(logger.Options{ServiceName: "test"}),
	})
	require.NoError(t, err)
	fixture.service = svc
	return fixture
}

func TestHandleNotificationApprovedPaymentMarksOrderPaid(t *testing.T) {
	fixture := newWebhookFixture(t, nil)
	order := seedOrder(t, fixture.db, "order_42", enums.OrderStatusPending, time.Now().UTC())
	fixture.gateway.payment = &mercadopago.Payment{
		ID:                123456,
		Status:            "approved",
		ExternalReference: "order_42",
	}

	notif := ParseNotification([]byte(`{"type":"payment","data":{"id":123456}}`), nil)
	require.NoError(t, fixture.service.HandleNotification(context.Background(), notif, "req-1"))

	var stored models.Order
	require.NoError(t, fixture.db.First(&stored, "id = ?", order.ID).Error)
	require.Equal(t, enums.OrderStatusPaid, stored.Status)
	require.NotNil(t, stored.PaymentID)
	require.Equal(t, "123456", *stored.PaymentID)
	require.NotNil(t, stored.PaidAt)
	require.Equal(t, []uuid.UUID{order.ID}, fixture.reservations.completedOrders)
}

func TestHandleNotificationIgnoresUnknownTopic(t *testing.T) {
	fixture := newWebhookFixture(t, nil)

	notif := ParseNotification([]byte(`{"type":"point_integration_wh","data":{"id":"1"}}`), nil)
	require.NoError(t, fixture.service.HandleNotification(context.Background(), notif, "req-1"))
	require.Zero(t, fixture.gateway.paymentCalls)
}

func TestHandleNotificationRejectedPaymentMarksFailure(t *testing.T) {
	fixture := newWebhookFixture(t, nil)
	order := seedOrder(t, fixture.db, "order_43", enums.OrderStatusPending, time.Now().UTC())
	fixture.gateway.payment = &mercadopago.Payment{
		ID:                77,
		Status:            "rejected",
		ExternalReference: "order_43",
	}

	notif := ParseNotification([]byte(`{"type":"payment","data":{"id":77}}`), nil)
	require.NoError(t, fixture.service.HandleNotification(context.Background(), notif, ""))

	var stored models.Order
	require.NoError(t, fixture.db.First(&stored, "id = ?", order.ID).Error)
	require.Equal(t, enums.OrderStatusPaymentFailed, stored.Status)
	require.Nil(t, stored.PaidAt)
	require.Empty(t, fixture.reservations.completedOrders)
}

func TestHandleNotificationMerchantOrderPrefersApprovedPayment(t *testing.T) {
	fixture := newWebhookFixture(t, nil)
	order := seedOrder(t, fixture.db, "order_44", enums.OrderStatusPending, time.Now().UTC())
	fixture.gateway.merchantOrder = &mercadopago.MerchantOrder{
		ID:                900,
		ExternalReference: "order_44",
		Payments: []mercadopago.MerchantOrderPayment{
			{ID: 1, Status: "rejected"},
			{ID: 2, Status: "approved"},
			{ID: 3, Status: "pending"},
		},
	}

	notif := ParseNotification([]byte(`{"topic":"merchant_order","resource":"https://api.mercadolibre.com/merchant_orders/900"}`), nil)
	require.NoError(t, fixture.service.HandleNotification(context.Background(), notif, ""))

	var stored models.Order
	require.NoError(t, fixture.db.First(&stored, "id = ?", order.ID).Error)
	require.Equal(t, enums.OrderStatusPaid, stored.Status)
	require.NotNil(t, stored.PaymentID)
	require.Equal(t, "2", *stored.PaymentID)
}

func TestHandleNotificationMerchantOrderResolvesByPreferenceID(t *testing.T) {
	fixture := newWebhookFixture(t, nil)
	order := seedOrder(t, fixture.db, "order_45", enums.OrderStatusPending, time.Now().UTC())
	fixture.gateway.merchantOrder = &mercadopago.MerchantOrder{
		ID:           901,
		PreferenceID: *order.PreferenceID,
		Payments: []mercadopago.MerchantOrderPayment{
			{ID: 9, Status: "in_process"},
		},
	}

	notif := ParseNotification([]byte(`{"topic":"merchant_order","id":901}`), nil)
	require.NoError(t, fixture.service.HandleNotification(context.Background(), notif, ""))

	var stored models.Order
	require.NoError(t, fixture.db.First(&stored, "id = ?", order.ID).Error)
	require.Equal(t, enums.OrderStatusProcessing, stored.Status)
}

func TestHandleNotificationUnknownStatusLeavesOrderPending(t *testing.T) {
	fixture := newWebhookFixture(t, nil)
	order := seedOrder(t, fixture.db, "order_46", enums.OrderStatusPending, time.Now().UTC())
	fixture.gateway.payment = &mercadopago.Payment{
		ID:                55,
		Status:            "in_mediation",
		ExternalReference: "order_46",
	}

	notif := ParseNotification([]byte(`{"type":"payment","data":{"id":55}}`), nil)
	require.NoError(t, fixture.service.HandleNotification(context.Background(), notif, ""))

	var stored models.Order
	require.NoError(t, fixture.db.First(&stored, "id = ?", order.ID).Error)
	require.Equal(t, enums.OrderStatusPending, stored.Status)
	require.NotNil(t, stored.PaymentID)
	require.Equal(t, "55", *stored.PaymentID)
}

func TestHandleNotificationUnmatchedOrderIsAcknowledged(t *testing.T) {
	fixture := newWebhookFixture(t, nil)
	fixture.gateway.payment = &mercadopago.Payment{
		ID:                66,
		Status:            "approved",
		ExternalReference: "order_unknown",
	}

	notif := ParseNotification([]byte(`{"type":"payment","data":{"id":66}}`), nil)
	require.NoError(t, fixture.service.HandleNotification(context.Background(), notif, ""))
	require.Empty(t, fixture.reservations.completedOrders)
}

func TestHandleNotificationGatewayFailureStampsNewestPending(t *testing.T) {
	fixture := newWebhookFixture(t, nil)
	now := time.Now().UTC()
	seedOrder(t, fixture.db, "order_old", enums.OrderStatusPending, now.Add(-2*time.Hour))
	newest := seedOrder(t, fixture.db, "order_new", enums.OrderStatusPending, now.Add(-5*time.Minute))
	fixture.gateway.paymentErr = errors.New("gateway timeout")

	notif := ParseNotification([]byte(`{"type":"payment","data":{"id":987654}}`), nil)
	require.NoError(t, fixture.service.HandleNotification(context.Background(), notif, ""))

	var stored models.Order
	require.NoError(t, fixture.db.First(&stored, "id = ?", newest.ID).Error)
	require.Equal(t, enums.OrderStatusPaid, stored.Status)
	require.NotNil(t, stored.PaymentID)
	require.Equal(t, "987654", *stored.PaymentID)

	var older models.Order
	require.NoError(t, fixture.db.First(&older, "external_reference = ?", "order_old").Error)
	require.Equal(t, enums.OrderStatusPending, older.Status)
}

func TestHandleNotificationGatewayFailureNonNumericIDFails(t *testing.T) {
	fixture := newWebhookFixture(t, nil)
	seedOrder(t, fixture.db, "order_47", enums.OrderStatusPending, time.Now().UTC())
	fixture.gateway.paymentErr = errors.New("gateway timeout")

	notif := ParseNotification([]byte(`{"type":"payment","data":{"id":"not-an-id"}}`), nil)
	require.Error(t, fixture.service.HandleNotification(context.Background(), notif, ""))
}

func TestHandleNotificationLabelFailureQueuesManualFulfillment(t *testing.T) {
	fixture := newWebhookFixture(t, nil)
	order := seedOrder(t, fixture.db, "order_48", enums.OrderStatusPending, time.Now().UTC())
	serviceID := 2
	require.NoError(t, fixture.db.Model(&models.Order{}).
		Where("id = ?", order.ID).
		Update("shipping_service_id", serviceID).Error)
	fixture.gateway.payment = &mercadopago.Payment{
		ID:                88,
		Status:            "approved",
		ExternalReference: "order_48",
	}
	fixture.shipping.labelErr = errors.New("carrier unavailable")

	notif := ParseNotification([]byte(`{"type":"payment","data":{"id":88}}`), nil)
	require.NoError(t, fixture.service.HandleNotification(context.Background(), notif, ""))

	var stored models.Order
	require.NoError(t, fixture.db.First(&stored, "id = ?", order.ID).Error)
	require.Equal(t, enums.OrderStatusPendingShipping, stored.Status)
	require.Equal(t, enums.ShippingStatusLabelFailed, stored.ShippingStatus)
	require.Equal(t, 1, fixture.shipping.labelCalls)
}

func TestHandleNotificationLabelPurchaseRecordsLabel(t *testing.T) {
	fixture := newWebhookFixture(t, nil)
	order := seedOrder(t, fixture.db, "order_49", enums.OrderStatusPending, time.Now().UTC())
	serviceID := 1
	require.NoError(t, fixture.db.Model(&models.Order{}).
		Where("id = ?", order.ID).
		Update("shipping_service_id", serviceID).Error)
	fixture.gateway.payment = &mercadopago.Payment{
		ID:                99,
		Status:            "approved",
		ExternalReference: "order_49",
	}

	notif := ParseNotification([]byte(`{"type":"payment","data":{"id":99}}`), nil)
	require.NoError(t, fixture.service.HandleNotification(context.Background(), notif, ""))

	var stored models.Order
	require.NoError(t, fixture.db.First(&stored, "id = ?", order.ID).Error)
	require.Equal(t, enums.OrderStatusPaid, stored.Status)
	require.Equal(t, enums.ShippingStatusLabelPurchased, stored.ShippingStatus)
	require.NotNil(t, stored.LabelID)
	require.Equal(t, "label-1", *stored.LabelID)
}

type memoryIdempotencyStore struct {
	data map[string]string
}

func newMemoryIdempotencyStore() *memoryIdempotencyStore {
	return &memoryIdempotencyStore{data: map[string]string{}}
}

func (m *memoryIdempotencyStore) Get(ctx context.Context, key string) (string, error) {
	return m.data[key], nil
}

func (m *memoryIdempotencyStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, exists := m.data[key]; exists {
		return false, nil
	}
	m.data[key] = "1"
	return true, nil
}

func (m *memoryIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "mariposa:idempotency:" + scope + ":" + id
}

func (m *memoryIdempotencyStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func TestHandleNotificationDeduplicatesDeliveries(t *testing.T) {
	guard, err := webhooks.NewIdempotencyGuard(newMemoryIdempotencyStore(), time.Hour, "mp-webhook")
	require.NoError(t, err)

	fixture := newWebhookFixture(t, guard)
	seedOrder(t, fixture.db, "order_50", enums.OrderStatusPending, time.Now().UTC())
	fixture.gateway.payment = &mercadopago.Payment{
		ID:                11,
		Status:            "approved",
		ExternalReference: "order_50",
	}

	notif := ParseNotification([]byte(`{"type":"payment","data":{"id":11}}`), nil)
	require.NoError(t, fixture.service.HandleNotification(context.Background(), notif, "req-dup"))
	require.NoError(t, fixture.service.HandleNotification(context.Background(), notif, "req-dup"))
	require.Equal(t, 1, fixture.gateway.paymentCalls)
}

func TestHandleNotificationReleasesKeyOnFailure(t *testing.T) {
	store := newMemoryIdempotencyStore()
	guard, err := webhooks.NewIdempotencyGuard(store, time.Hour, "mp-webhook")
	require.NoError(t, err)

	fixture := newWebhookFixture(t, guard)
	fixture.gateway.paymentErr = errors.New("gateway down")

	notif := ParseNotification([]byte(`{"type":"payment","data":{"id":"abc"}}`), nil)
	require.Error(t, fixture.service.HandleNotification(context.Background(), notif, "req-fail"))
	require.Empty(t, store.data)
}
