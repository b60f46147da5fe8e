package models

import (
	"time"

	"github.com/google/uuid"
)

const NotificationTypePriceDrop = "price_drop"

type Notification struct {
	ID        uint64
	UserID    uuid.UUID
	Type      string
	Title     string
	Message   string
	ProductID uint64
	OldPrice  float64
	NewPrice  float64
	Read      bool
	CreatedAt time.Time
}

// DigestEntry is one price-drop notification joined with its recipient and
// product, as needed to build a weekly digest.
type DigestEntry struct {
	UserID             uuid.UUID
	Email              string
	FullName           string
	EmailNotifications bool
	ProductName        string
	ProductURL         string
	OldPrice           float64
	NewPrice           float64
	NotifiedAt         time.Time
}
