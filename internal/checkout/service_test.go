package checkout

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mariposavintage/mariposa-backend/internal/orders"
	"github.com/mariposavintage/mariposa-backend/internal/products"
	"github.com/mariposavintage/mariposa-backend/internal/reservations"
	"github.com/mariposavintage/mariposa-backend/internal/shipping"
	"github.com/mariposavintage/mariposa-backend/pkg/config"
	"github.com/mariposavintage/mariposa-backend/pkg/db/models"
	"github.com/mariposavintage/mariposa-backend/pkg/enums"
	pkgerrors "github.com/mariposavintage/mariposa-backend/pkg/errors"
	"github.com/mariposavintage/mariposa-backend/pkg/logger"
	"github.com/mariposavintage/mariposa-backend/pkg/melhorenvio"
	"github.com/mariposavintage/mariposa-backend/pkg/mercadopago"
	"github.com/mariposavintage/mariposa-backend/pkg/types"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func setupCheckoutTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:checkout_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{`
CREATE TABLE products (
  id TEXT PRIMARY KEY,
  sku TEXT NOT NULL,
  title TEXT NOT NULL,
  description TEXT,
  tags TEXT NOT NULL DEFAULT '{}',
  price_cents INTEGER NOT NULL,
  compare_price_cents INTEGER,
  weight_grams INTEGER NOT NULL DEFAULT 0,
  width_cm INTEGER NOT NULL DEFAULT 0,
  height_cm INTEGER NOT NULL DEFAULT 0,
  length_cm INTEGER NOT NULL DEFAULT 0,
  image_urls TEXT NOT NULL DEFAULT '{}',
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE inventory_items (
  product_id TEXT PRIMARY KEY,
  available_qty INTEGER NOT NULL DEFAULT 0,
  reserved_qty INTEGER NOT NULL DEFAULT 0,
  updated_at DATETIME
);`, `
CREATE TABLE stock_reservations (
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL,
  user_ref TEXT NOT NULL,
  qty INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'active',
  order_id TEXT,
  expires_at DATETIME NOT NULL,
  released_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`, `
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
);`}
	for _, statement := range statements {
		require.NoError(t, db.Exec(statement).Error)
	}
	return db
}

func seedCheckoutProduct(t *testing.T, db *gorm.DB, priceCents int, active bool) uuid.UUID {
	t.Helper()

	productID := uuid.New()
	require.NoError(t, db.Exec(
		`INSERT INTO products (id, sku, title, price_cents, weight_grams, width_cm, height_cm, length_cm, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		productID, "SKU-"+productID.String()[:8], "Jaqueta jeans anos 90", priceCents, 600, 30, 10, 40, active,
	).Error)
	require.NoError(t, db.Create(&models.InventoryItem{ProductID: productID, AvailableQty: 3}).Error)
	return productID
}

type stubShippingSvc struct {
	options []shipping.QuoteOption
}

func (s *stubShippingSvc) Quote(ctx context.Context, input shipping.QuoteInput) ([]shipping.QuoteOption, error) {
	return s.options, nil
}
func (s *stubShippingSvc) PurchaseLabel(ctx context.Context, req melhorenvio.CartItemRequest) (string, error) {
	return "", nil
}
func (s *stubShippingSvc) PurchaseLabelForOrder(ctx context.Context, order *models.Order) (string, error) {
	return "", nil
}

type stubPreferences struct {
	request *mercadopago.PreferenceRequest
	err     error
}

func (s *stubPreferences) CreatePreference(ctx context.Context, req mercadopago.PreferenceRequest) (*mercadopago.Preference, error) {
	s.request = &req
	if s.err != nil {
		return nil, s.err
	}
	return &mercadopago.Preference{ID: "pref-abc", InitPoint: "https://mercadopago/init/pref-abc"}, nil
}

type checkoutFixture struct {
	db          *gorm.DB
	shipping    *stubShippingSvc
	preferences *stubPreferences
	service     Service
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()

	fixture := &checkoutFixture{
		db: setupCheckoutTestDB(t),
		shipping: &stubShippingSvc{options: []shipping.QuoteOption{
			{ServiceID: 1, Name: "PAC", Price: decimal.RequireFromString("25.00"), DeliveryDays: 8},
			{ServiceID: 2, Name: "SEDEX", Price: decimal.RequireFromString("40.00"), DeliveryDays: 3},
		}},
		preferences: &stubPreferences{},
	}
	svc, err := NewService(ServiceParams{
		Tx:           gormTxRunner{db: fixture.db},
		Orders:       orders.NewRepository(fixture.db),
		Products:     products.NewRepository(fixture.db),
		Reservations: reservations.NewRepository(fixture.db),
		Shipping:     fixture.shipping,
		Preferences:  fixture.preferences,
		AppBaseURL:   "https://mariposavintage.com.br",
		Config:       config.CheckoutConfig{NotificationURL: "https://api.mariposavintage.com.br/api/webhooks/mercadopago"},
		Logger:       logger.New(logger.Options{ServiceName: "test"}),
	})
	require.NoError(t, err)
	fixture.service = svc
	return fixture
}

func checkoutInput(productID uuid.UUID) Input {
	return Input{
		Items:    []ItemInput{{ProductID: productID, Qty: 1}},
		Customer: types.Customer{Name: "Ana", Email: "ana@example.com"},
		ShippingAddress: types.ShippingAddress{
			Street: "Rua Augusta", Number: "100",
			City: "Sao Paulo", State: "SP", PostalCode: "01310-100",
		},
		ShippingServiceID: 2,
	}
}

func TestExecuteCreatesPendingOrderWithPreference(t *testing.T) {
	fixture := newCheckoutFixture(t)
	productID := seedCheckoutProduct(t, fixture.db, 15000, true)

	// active hold for the buyer on the product being bought
	holdID := uuid.New()
	require.NoError(t, fixture.db.Create(&models.StockReservation{
		ID:        holdID,
		ProductID: productID,
		UserRef:   "ana@example.com",
		Qty:       1,
		Status:    enums.ReservationStatusActive,
		ExpiresAt: time.Now().UTC().Add(15 * time.Minute),
	}).Error)

	result, err := fixture.service.Execute(context.Background(), checkoutInput(productID))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(result.Order.ExternalReference, "mariposa-"))
	require.Equal(t, enums.OrderStatusPending, result.Order.Status)
	require.Equal(t, 15000, result.Order.SubtotalCents)
	require.Equal(t, 4000, result.Order.ShippingCents)
	require.Equal(t, 19000, result.Order.TotalCents)
	require.Equal(t, "https://mercadopago/init/pref-abc", result.InitPoint)
	require.Equal(t, "SEDEX", result.ShippingQuote.Name)

	require.NotNil(t, fixture.preferences.request)
	require.Equal(t, result.Order.ExternalReference, fixture.preferences.request.ExternalReference)
	require.Equal(t, "https://api.mariposavintage.com.br/api/webhooks/mercadopago", fixture.preferences.request.NotificationURL)
	require.Len(t, fixture.preferences.request.Items, 2)
	require.Equal(t, 150.0, fixture.preferences.request.Items[0].UnitPrice)
	require.Equal(t, "Frete - SEDEX", fixture.preferences.request.Items[1].Title)

	var stored models.Order
	require.NoError(t, fixture.db.First(&stored, "external_reference = ?", result.Order.ExternalReference).Error)
	require.NotNil(t, stored.PreferenceID)
	require.Equal(t, "pref-abc", *stored.PreferenceID)
	require.NotNil(t, stored.ShippingServiceID)
	require.Equal(t, 2, *stored.ShippingServiceID)

	var hold models.StockReservation
	require.NoError(t, fixture.db.First(&hold, "id = ?", holdID).Error)
	require.NotNil(t, hold.OrderID)
	require.Equal(t, stored.ID, *hold.OrderID)
	require.Equal(t, enums.ReservationStatusActive, hold.Status)
}

func TestExecuteRejectsStalePrice(t *testing.T) {
	fixture := newCheckoutFixture(t)
	productID := seedCheckoutProduct(t, fixture.db, 15000, true)

	input := checkoutInput(productID)
	input.Items[0].ExpectedUnitCents = 12000
	_, err := fixture.service.Execute(context.Background(), input)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeConflict, typed.Code())

	var count int64
	require.NoError(t, fixture.db.Model(&models.Order{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestExecuteFallsBackToCheapestService(t *testing.T) {
	fixture := newCheckoutFixture(t)
	productID := seedCheckoutProduct(t, fixture.db, 9000, true)

	input := checkoutInput(productID)
	input.ShippingServiceID = 77
	result, err := fixture.service.Execute(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, "PAC", result.ShippingQuote.Name)
	require.Equal(t, 2500, result.Order.ShippingCents)
}

func TestExecuteRejectsInactiveProduct(t *testing.T) {
	fixture := newCheckoutFixture(t)
	productID := seedCheckoutProduct(t, fixture.db, 9000, false)

	_, err := fixture.service.Execute(context.Background(), checkoutInput(productID))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestExecuteValidation(t *testing.T) {
	fixture := newCheckoutFixture(t)
	productID := seedCheckoutProduct(t, fixture.db, 9000, true)

	_, err := fixture.service.Execute(context.Background(), Input{})
	require.Error(t, err)

	input := checkoutInput(productID)
	input.Customer.Email = ""
	_, err = fixture.service.Execute(context.Background(), input)
	require.Error(t, err)

	input = checkoutInput(productID)
	input.ShippingAddress.PostalCode = ""
	_, err = fixture.service.Execute(context.Background(), input)
	require.Error(t, err)
}
