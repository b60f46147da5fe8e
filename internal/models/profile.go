package models

import (
	"time"

	"github.com/google/uuid"
)

type Plan string

const (
	PlanFree  Plan = "free"
	PlanPro   Plan = "pro"
	PlanUltra Plan = "ultra"
	PlanMega  Plan = "mega"
)

// ProductLimit is the number of products a plan may track at once.
// Unknown plans get the free ceiling.
func (p Plan) ProductLimit() int {
	switch p {
	case PlanPro, PlanUltra, PlanMega:
		return 999
	default:
		return 5
	}
}

func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanUltra, PlanMega:
		return true
	}
	return false
}

type Profile struct {
	ID                 uuid.UUID
	Email              string
	FullName           string
	Plan               Plan
	TrackedCount       int
	AlertCount         int
	EmailNotifications bool
	SMSNotifications   bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
