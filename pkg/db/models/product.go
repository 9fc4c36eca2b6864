package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Product represents a storefront listing. Vintage pieces are one of a kind,
// so most rows carry available_qty of one in their inventory record.
type Product struct {
	ID                uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SKU               string         `gorm:"column:sku;not null;uniqueIndex"`
	Title             string         `gorm:"column:title;not null"`
	Description       *string        `gorm:"column:description"`
	Tags              pq.StringArray `gorm:"column:tags;type:text[];not null;default:ARRAY[]::text[]"`
	PriceCents        int            `gorm:"column:price_cents;not null"`
	ComparePriceCents *int           `gorm:"column:compare_price_cents"`
	WeightGrams       int            `gorm:"column:weight_grams;not null;default:0"`
	WidthCM           int            `gorm:"column:width_cm;not null;default:0"`
	HeightCM          int            `gorm:"column:height_cm;not null;default:0"`
	LengthCM          int            `gorm:"column:length_cm;not null;default:0"`
	ImageURLs         pq.StringArray `gorm:"column:image_urls;type:text[];not null;default:ARRAY[]::text[]"`
	IsActive          bool           `gorm:"column:is_active;not null;default:true"`
	Inventory         *InventoryItem `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
