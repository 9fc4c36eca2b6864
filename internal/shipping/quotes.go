package shipping

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mariposavintage/mariposa-backend/pkg/melhorenvio"
)

// QuoteOption is a normalized carrier option presented at checkout.
type QuoteOption struct {
	ServiceID    int             `json:"service_id"`
	Name         string          `json:"name"`
	Company      string          `json:"company"`
	Price        decimal.Decimal `json:"price"`
	DeliveryDays int             `json:"delivery_days"`
	Fallback     bool            `json:"fallback"`
}

// NormalizeQuotes converts raw carrier quotes into comparable options. Carriers
// disagree on which price field they populate: custom_price carries the
// contract rate when present, price otherwise. Quotes with errors or prices
// that fail to parse are dropped. The result is sorted ascending by price with
// ties keeping input order.
func NormalizeQuotes(raw []melhorenvio.Quote) []QuoteOption {
	options := make([]QuoteOption, 0, len(raw))
	for _, quote := range raw {
		if quote.Error != "" {
			continue
		}
		priceText := quote.CustomPrice
		if priceText == "" {
			priceText = quote.Price
		}
		price, err := decimal.NewFromString(priceText)
		if err != nil {
			continue
		}
		options = append(options, QuoteOption{
			ServiceID:    quote.ServiceID,
			Name:         quote.Name,
			Company:      quote.Company.Name,
			Price:        price,
			DeliveryDays: quote.DeliveryTime,
		})
	}

	sort.SliceStable(options, func(i, j int) bool {
		return options[i].Price.LessThan(options[j].Price)
	})
	return options
}

// Cheapest returns the lowest-priced option, or false when none exist.
func Cheapest(options []QuoteOption) (QuoteOption, bool) {
	if len(options) == 0 {
		return QuoteOption{}, false
	}
	return options[0], true
}
