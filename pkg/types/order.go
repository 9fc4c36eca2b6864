package types

import "github.com/google/uuid"

// OrderItem is the denormalized line captured on an order at checkout time.
type OrderItem struct {
	ProductID   uuid.UUID `json:"product_id"`
	SKU         string    `json:"sku"`
	Title       string    `json:"title"`
	Qty         int       `json:"qty"`
	UnitCents   int       `json:"unit_cents"`
	WeightGrams int       `json:"weight_grams"`
}

// OrderItems is stored as a jsonb column.
type OrderItems []OrderItem

// Customer holds the buyer contact details captured at checkout.
type Customer struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Document string `json:"document,omitempty"`
}

// ShippingAddress is the destination captured at checkout.
type ShippingAddress struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country,omitempty"`
}
