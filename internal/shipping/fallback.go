package shipping

import "github.com/shopspring/decimal"

// Synthetic two-tier price model used when the carrier API is unreachable, so
// checkout never shows zero shipping options.
var (
	fallbackMinimum     = decimal.NewFromInt(15)
	weightRate          = decimal.NewFromInt(5)
	valueRate           = decimal.NewFromFloat(0.02)
	economyMultiplier   = decimal.NewFromFloat(1.2)
	expressMultiplier   = decimal.NewFromFloat(1.8)
	economyDeliveryDays = 8
	expressDeliveryDays = 3
)

// FallbackQuotes computes the synthetic PAC/SEDEX-style options from total
// parcel weight (kg) and declared value (BRL).
func FallbackQuotes(totalWeightKg, totalValue decimal.Decimal) []QuoteOption {
	base := totalWeightKg.Mul(weightRate).Add(totalValue.Mul(valueRate))
	if base.LessThan(fallbackMinimum) {
		base = fallbackMinimum
	}

	return []QuoteOption{
		{
			ServiceID:    1,
			Name:         "PAC",
			Company:      "Correios",
			Price:        base.Mul(economyMultiplier).Round(2),
			DeliveryDays: economyDeliveryDays,
			Fallback:     true,
		},
		{
			ServiceID:    2,
			Name:         "SEDEX",
			Company:      "Correios",
			Price:        base.Mul(expressMultiplier).Round(2),
			DeliveryDays: expressDeliveryDays,
			Fallback:     true,
		},
	}
}
