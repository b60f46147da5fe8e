package models

import "github.com/pkg/errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrProfileNotFound  = errors.New("profile not found")
	ErrAlreadyTracking  = errors.New("already tracking this product")
	ErrNotTracking      = errors.New("not tracking this product")
	ErrPlanLimitReached = errors.New("plan limit reached")
	ErrProfileExists    = errors.New("profile already exists")
	ErrInvalidInput     = errors.New("invalid input")
)
