package models

import "time"

type Product struct {
	ID            uint64
	URL           string
	Platform      string
	Name          string
	CurrentPrice  float64
	OriginalPrice float64
	Currency      string
	ImageURL      string
	InStock       bool
	LastChecked   *time.Time
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PriceObservation is append-only: rows are never updated or deleted.
type PriceObservation struct {
	ID         uint64
	ProductID  uint64
	Price      float64
	Currency   string
	InStock    bool
	RecordedAt time.Time
}

// ProductCreateInput is what the track path knows about a product the first
// time it is seen.
type ProductCreateInput struct {
	URL           string
	Platform      string
	Name          string
	Price         float64
	OriginalPrice float64
	Currency      string
	ImageURL      string
	InStock       bool
	CheckedAt     time.Time
}

// PriceChange is the reconciliation update for a product whose price moved.
type PriceChange struct {
	ProductID uint64
	Name      string
	Price     float64
	Currency  string
	ImageURL  string
	InStock   bool
	CheckedAt time.Time
}
