package products

import (
	"time"

	"github.com/google/uuid"

	"github.com/mariposavintage/mariposa-backend/pkg/db/models"
)

// ProductDTO is the catalog view returned to the storefront.
type ProductDTO struct {
	ID                uuid.UUID `json:"id"`
	SKU               string    `json:"sku"`
	Title             string    `json:"title"`
	Description       *string   `json:"description,omitempty"`
	Tags              []string  `json:"tags"`
	PriceCents        int       `json:"price_cents"`
	ComparePriceCents *int      `json:"compare_price_cents,omitempty"`
	WeightGrams       int       `json:"weight_grams"`
	ImageURLs         []string  `json:"image_urls"`
	AvailableQty      int       `json:"available_qty"`
	CreatedAt         time.Time `json:"created_at"`
}

func toDTO(product models.Product) ProductDTO {
	dto := ProductDTO{
		ID:                product.ID,
		SKU:               product.SKU,
		Title:             product.Title,
		Description:       product.Description,
		Tags:              product.Tags,
		PriceCents:        product.PriceCents,
		ComparePriceCents: product.ComparePriceCents,
		WeightGrams:       product.WeightGrams,
		ImageURLs:         product.ImageURLs,
		CreatedAt:         product.CreatedAt,
	}
	if product.Inventory != nil {
		dto.AvailableQty = product.Inventory.AvailableQty
	}
	return dto
}
