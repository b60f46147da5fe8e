package models

import "time"

const (
	JobRunStatusSuccess = "success"
	JobRunStatusPartial = "partial"
	JobRunStatusFailed  = "failed"
)

const ErrorTypePriceCheckFailed = "price_check_failed"

// JobRun is one row of the append-only job audit trail.
type JobRun struct {
	ID              uint64
	JobName         string
	Status          string
	ProductsChecked int
	ProductsUpdated int
	AlertsSent      int
	Errors          int
	Duration        time.Duration
	ErrorMessage    string
	CreatedAt       time.Time
}

type ErrorLog struct {
	ID           uint64
	Type         string
	ProductID    uint64
	ErrorMessage string
	CreatedAt    time.Time
}
