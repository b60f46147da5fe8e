package scraper

import (
	"context"
	"fmt"
	"net/http"

	"github.com/BearBump/PriceDrop/internal/platform"
	"github.com/pkg/errors"
)

type Product struct {
	Title         string
	Price         float64
	OriginalPrice float64
	Currency      string
	Image         string
	InStock       bool
	Platform      platform.Tag
}

type Scraper interface {
	Scrape(ctx context.Context, url string) (Product, error)
}

// ErrPriceNotFound means the page loaded but no selector yielded a price.
var ErrPriceNotFound = errors.New("price not found on page")

// Error is returned for every failed scrape. StatusCode is 0 when no
// response was received.
type Error struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("scrape %s: http %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("scrape %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Temporary reports whether repeating the same request may succeed.
func (e *Error) Temporary() bool {
	switch {
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode >= 500:
		return true
	case e.StatusCode != 0:
		return false
	}
	if errors.Is(e.Err, ErrPriceNotFound) || errors.Is(e.Err, context.Canceled) {
		return false
	}
	return e.Err != nil
}
