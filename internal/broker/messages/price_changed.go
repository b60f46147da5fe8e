package messages

import (
	"time"
)

// PriceChanged is published once per detected price change.
type PriceChanged struct {
	ProductID uint64    `json:"product_id"`
	URL       string    `json:"url"`
	Platform  string    `json:"platform"`
	Name      string    `json:"name"`
	OldPrice  float64   `json:"old_price"`
	NewPrice  float64   `json:"new_price"`
	Currency  string    `json:"currency"`
	InStock   bool      `json:"in_stock"`
	IsDrop    bool      `json:"is_drop"`
	CheckedAt time.Time `json:"checked_at"`
}
