package shipping

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mariposavintage/mariposa-backend/pkg/config"
	"github.com/mariposavintage/mariposa-backend/pkg/db/models"
	pkgerrors "github.com/mariposavintage/mariposa-backend/pkg/errors"
	"github.com/mariposavintage/mariposa-backend/pkg/logger"
	"github.com/mariposavintage/mariposa-backend/pkg/melhorenvio"
)

type quoteClient interface {
	Calculate(ctx context.Context, req melhorenvio.CalculateRequest) ([]melhorenvio.Quote, error)
	AddToCart(ctx context.Context, req melhorenvio.CartItemRequest) (*melhorenvio.CartItem, error)
	Checkout(ctx context.Context, cartItemIDs []string) (*melhorenvio.CheckoutResponse, error)
}

// QuoteItem describes one parcel item for quoting.
type QuoteItem struct {
	WidthCM     int
	HeightCM    int
	LengthCM    int
	WeightGrams int
	ValueCents  int
	Qty         int
}

// QuoteInput captures a shipping quote request from checkout.
type QuoteInput struct {
	DestinationPostalCode string
	Items                 []QuoteItem
}

// ServiceParams groups dependencies for the shipping service.
type ServiceParams struct {
	Client quoteClient
	Config config.CheckoutConfig
	Logger *logger.Logger
}

// Service exposes shipping quoting and label purchase.
type Service interface {
	Quote(ctx context.Context, input QuoteInput) ([]QuoteOption, error)
	PurchaseLabel(ctx context.Context, req melhorenvio.CartItemRequest) (string, error)
	PurchaseLabelForOrder(ctx context.Context, order *models.Order) (string, error)
}

type service struct {
	client quoteClient
	cfg    config.CheckoutConfig
	logg   *logger.Logger
}

// NewService builds a shipping service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping client is required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger is required")
	}
	return &service{
		client: params.Client,
		cfg:    params.Config,
		logg:   params.Logger,
	}, nil
}

// Quote returns carrier options sorted cheapest first. Carrier failure falls
// back to the synthetic price model so checkout always has options.
func (s *service) Quote(ctx context.Context, input QuoteInput) ([]QuoteOption, error) {
	if strings.TrimSpace(input.DestinationPostalCode) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "destination postal code is required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}

	products := make([]melhorenvio.Product, 0, len(input.Items))
	for _, item := range input.Items {
		qty := item.Qty
		if qty <= 0 {
			qty = 1
		}
		products = append(products, melhorenvio.Product{
			WidthCM:      item.WidthCM,
			HeightCM:     item.HeightCM,
			LengthCM:     item.LengthCM,
			WeightKg:     float64(item.WeightGrams) / 1000,
			InsuranceBRL: float64(item.ValueCents) / 100,
			Quantity:     qty,
		})
	}

	raw, err := s.client.Calculate(ctx, melhorenvio.CalculateRequest{
		From:     melhorenvio.Endpoint{PostalCode: s.cfg.OriginPostalCode},
		To:       melhorenvio.Endpoint{PostalCode: input.DestinationPostalCode},
		Products: products,
	})
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "carrier quote failed, using fallback pricing")
		return FallbackQuotes(totalWeightKg(input.Items), totalValue(input.Items)), nil
	}

	options := NormalizeQuotes(raw)
	if len(options) == 0 {
		s.logg.Warn(ctx, "carrier returned no usable quotes, using fallback pricing")
		return FallbackQuotes(totalWeightKg(input.Items), totalValue(input.Items)), nil
	}
	return options, nil
}

// PurchaseLabel inserts the shipment into the carrier cart and buys it,
// returning the label ID.
func (s *service) PurchaseLabel(ctx context.Context, req melhorenvio.CartItemRequest) (string, error) {
	item, err := s.client.AddToCart(ctx, req)
	if err != nil {
		return "", err
	}
	if _, err := s.client.Checkout(ctx, []string{item.ID}); err != nil {
		return "", err
	}
	return item.ID, nil
}

func totalWeightKg(items []QuoteItem) decimal.Decimal {
	grams := 0
	for _, item := range items {
		qty := item.Qty
		if qty <= 0 {
			qty = 1
		}
		grams += item.WeightGrams * qty
	}
	return decimal.NewFromInt(int64(grams)).Div(decimal.NewFromInt(1000))
}

func totalValue(items []QuoteItem) decimal.Decimal {
	cents := 0
	for _, item := range items {
		qty := item.Qty
		if qty <= 0 {
			qty = 1
		}
		cents += item.ValueCents * qty
	}
	return decimal.NewFromInt(int64(cents)).Div(decimal.NewFromInt(100))
}
