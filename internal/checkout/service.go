package checkout

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
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
	"github.com/mariposavintage/mariposa-backend/pkg/mercadopago"
	"github.com/mariposavintage/mariposa-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type preferenceCreator interface {
	CreatePreference(ctx context.Context, req mercadopago.PreferenceRequest) (*mercadopago.Preference, error)
}

// ItemInput is one line of the checkout request. ExpectedUnitCents carries the
// price the storefront displayed; a mismatch against the catalog aborts.
type ItemInput struct {
	ProductID         uuid.UUID
	Qty               int
	ExpectedUnitCents int
}

// Input is a complete checkout request.
type Input struct {
	Items             []ItemInput
	Customer          types.Customer
	ShippingAddress   types.ShippingAddress
	ShippingServiceID int
}

// Result is returned to the storefront: the created order plus the hosted
// payment redirect.
type Result struct {
	Order         orders.OrderDTO
	InitPoint     string
	ShippingQuote shipping.QuoteOption
}

// ServiceParams groups dependencies for the checkout service.
type ServiceParams struct {
	Tx           txRunner
	Orders       *orders.Repository
	Products     *products.Repository
	Reservations *reservations.Repository
	Shipping     shipping.Service
	Preferences  preferenceCreator
	AppBaseURL   string
	Config       config.CheckoutConfig
	Logger       *logger.Logger
}

// Service turns a cart into a pending order with a payment preference.
type Service interface {
	Execute(ctx context.Context, input Input) (*Result, error)
}

type service struct {
	tx           txRunner
	orders       *orders.Repository
	products     *products.Repository
	reservations *reservations.Repository
	shipping     shipping.Service
	preferences  preferenceCreator
	appBaseURL   string
	cfg          config.CheckoutConfig
	logg         *logger.Logger
	now          func() time.Time
}

// NewService builds a checkout service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tx runner is required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "orders repo is required")
	}
	if params.Products == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "products repo is required")
	}
	if params.Reservations == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservations repo is required")
	}
	if params.Shipping == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping service is required")
	}
	if params.Preferences == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "preference client is required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger is required")
	}
	return &service{
		tx:           params.Tx,
		orders:       params.Orders,
		products:     params.Products,
		reservations: params.Reservations,
		shipping:     params.Shipping,
		preferences:  params.Preferences,
		appBaseURL:   strings.TrimRight(params.AppBaseURL, "/"),
		cfg:          params.Config,
		logg:         params.Logger,
		now:          time.Now,
	}, nil
}

// Execute validates the cart against the catalog, quotes shipping, creates
// the pending order with its payment preference, and attaches the buyer's
// active stock holds to the order so payment confirmation can complete them.
func (s *service) Execute(ctx context.Context, input Input) (*Result, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	catalog, orderItems, err := s.loadAndPriceItems(ctx, input.Items)
	if err != nil {
		return nil, err
	}

	subtotal := 0
	for _, item := range orderItems {
		subtotal += item.UnitCents * item.Qty
	}

	quote, err := s.quoteShipping(ctx, input, catalog)
	if err != nil {
		return nil, err
	}
	shippingCents := centsFromDecimal(quote.Price)

	externalRef := "mariposa-" + uuid.NewString()
	serviceID := quote.ServiceID
	order := &models.Order{
		ExternalReference: externalRef,
		Gateway:           enums.PaymentGatewayMercadoPago,
		Status:            enums.OrderStatusPending,
		ShippingStatus:    enums.ShippingStatusPending,
		SubtotalCents:     subtotal,
		ShippingCents:     shippingCents,
		TotalCents:        subtotal + shippingCents,
		Items:             orderItems,
		Customer:          input.Customer,
		ShippingAddress:   input.ShippingAddress,
		ShippingServiceID: &serviceID,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.orders.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		resRepo := s.reservations.WithTx(tx)
		holds, err := resRepo.ListActiveForUser(ctx, input.Customer.Email, s.now().UTC())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list buyer reservations")
		}
		ids := holdIDsForItems(holds, orderItems)
		if err := resRepo.LinkToOrder(ctx, ids, order.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link reservations")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	preference, err := s.createPreference(ctx, order, quote)
	if err != nil {
		// The pending order stays; the TTL sweep cancels it if the buyer
		// never completes payment another way.
		return nil, err
	}
	if err := s.orders.SetPreference(ctx, order.ID, preference.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist preference id")
	}
	order.PreferenceID = &preference.ID

	return &Result{
		Order:         orders.ToDTO(*order),
		InitPoint:     preference.InitPoint,
		ShippingQuote: quote,
	}, nil
}

func validateInput(input Input) error {
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	for _, item := range input.Items {
		if item.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "item product id is required")
		}
		if item.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be positive")
		}
	}
	if strings.TrimSpace(input.Customer.Email) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer email is required")
	}
	if strings.TrimSpace(input.Customer.Name) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer name is required")
	}
	if strings.TrimSpace(input.ShippingAddress.PostalCode) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping postal code is required")
	}
	return nil
}

// loadAndPriceItems resolves each cart line against the catalog. Prices come
// from the catalog row, never from the client.
func (s *service) loadAndPriceItems(ctx context.Context, items []ItemInput) (map[uuid.UUID]*models.Product, types.OrderItems, error) {
	catalog := make(map[uuid.UUID]*models.Product, len(items))
	orderItems := make(types.OrderItems, 0, len(items))

	for _, item := range items {
		product, err := s.products.FindByID(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}
		if !product.IsActive {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "product is no longer available")
		}
		if item.ExpectedUnitCents > 0 && item.ExpectedUnitCents != product.PriceCents {
			return nil, nil, pkgerrors.New(pkgerrors.CodeConflict, "product price has changed")
		}

		catalog[product.ID] = product
		orderItems = append(orderItems, types.OrderItem{
			ProductID:   product.ID,
			SKU:         product.SKU,
			Title:       product.Title,
			Qty:         item.Qty,
			UnitCents:   product.PriceCents,
			WeightGrams: product.WeightGrams,
		})
	}
	return catalog, orderItems, nil
}

// quoteShipping picks the option matching the requested carrier service, or
// the cheapest when the storefront did not choose one.
func (s *service) quoteShipping(ctx context.Context, input Input, catalog map[uuid.UUID]*models.Product) (shipping.QuoteOption, error) {
	quoteItems := make([]shipping.QuoteItem, 0, len(input.Items))
	for _, item := range input.Items {
		product := catalog[item.ProductID]
		quoteItems = append(quoteItems, shipping.QuoteItem{
			WidthCM:     product.WidthCM,
			HeightCM:    product.HeightCM,
			LengthCM:    product.LengthCM,
			WeightGrams: product.WeightGrams,
			ValueCents:  product.PriceCents,
			Qty:         item.Qty,
		})
	}

	options, err := s.shipping.Quote(ctx, shipping.QuoteInput{
		DestinationPostalCode: input.ShippingAddress.PostalCode,
		Items:                 quoteItems,
	})
	if err != nil {
		return shipping.QuoteOption{}, err
	}

	if input.ShippingServiceID != 0 {
		for _, option := range options {
			if option.ServiceID == input.ShippingServiceID {
				return option, nil
			}
		}
	}
	cheapest, ok := shipping.Cheapest(options)
	if !ok {
		return shipping.QuoteOption{}, pkgerrors.New(pkgerrors.CodeDependency, "no shipping options available")
	}
	return cheapest, nil
}

func (s *service) createPreference(ctx context.Context, order *models.Order, quote shipping.QuoteOption) (*mercadopago.Preference, error) {
	items := make([]mercadopago.PreferenceItem, 0, len(order.Items)+1)
	for _, item := range order.Items {
		items = append(items, mercadopago.PreferenceItem{
			ID:         item.SKU,
			Title:      item.Title,
			Quantity:   item.Qty,
			CurrencyID: "BRL",
			UnitPrice:  float64(item.UnitCents) / 100,
		})
	}
	if order.ShippingCents > 0 {
		items = append(items, mercadopago.PreferenceItem{
			Title:      "Frete - " + quote.Name,
			Quantity:   1,
			CurrencyID: "BRL",
			UnitPrice:  float64(order.ShippingCents) / 100,
		})
	}

	preference, err := s.preferences.CreatePreference(ctx, mercadopago.PreferenceRequest{
		Items: items,
		Payer: &mercadopago.PreferencePayer{
			Name:  order.Customer.Name,
			Email: order.Customer.Email,
		},
		ExternalReference: order.ExternalReference,
		NotificationURL:   s.cfg.NotificationURL,
		BackURLs: &mercadopago.PreferenceBackURLs{
			Success: s.appBaseURL + "/checkout/success",
			Pending: s.appBaseURL + "/checkout/pending",
			Failure: s.appBaseURL + "/checkout/failure",
		},
		AutoReturn:          "approved",
		StatementDescriptor: "MARIPOSA",
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment preference")
	}
	return preference, nil
}

func holdIDsForItems(holds []models.StockReservation, items types.OrderItems) []uuid.UUID {
	inOrder := make(map[uuid.UUID]bool, len(items))
	for _, item := range items {
		inOrder[item.ProductID] = true
	}
	ids := make([]uuid.UUID, 0, len(holds))
	for _, hold := range holds {
		if inOrder[hold.ProductID] {
			ids = append(ids, hold.ID)
		}
	}
	return ids
}

func centsFromDecimal(price decimal.Decimal) int {
	return int(price.Mul(decimal.NewFromInt(100)).Round(0).IntPart())
}
