package models

import (
	"time"

	"github.com/google/uuid"
)

type Subscription struct {
	ID              uint64
	UserID          uuid.UUID
	ProductID       uint64
	TargetPrice     *float64
	NotifyOnAnyDrop bool
	IsActive        bool
	CreatedAt       time.Time
}

// Subscriber is an active subscription joined with the subscriber's profile.
type Subscriber struct {
	Subscription

	Email              string
	FullName           string
	EmailNotifications bool
}

// WantsAlert reports whether a drop to newPrice is owed an email alert.
func (s *Subscriber) WantsAlert(newPrice float64) bool {
	if !s.EmailNotifications {
		return false
	}
	if s.NotifyOnAnyDrop {
		return true
	}
	return s.TargetPrice != nil && newPrice <= *s.TargetPrice
}

type SubscriptionCreateInput struct {
	UserID          uuid.UUID
	ProductID       uint64
	TargetPrice     *float64
	NotifyOnAnyDrop bool
}
