package scraper

import (
	"context"
	"time"

	"github.com/BearBump/PriceDrop/internal/platform"
)

// Registry routes each URL to the scraper registered for its platform.
type Registry struct {
	scrapers map[platform.Tag]Scraper
	fallback Scraper
}

// NewRegistry wires the built-in adapters over a shared fetcher.
func NewRegistry(timeout time.Duration) *Registry {
	f := NewFetcher(timeout)
	generic := NewAdapter(platform.Unknown, GenericRules, f)
	generic.AlwaysInStock = true

	r := &Registry{
		scrapers: map[platform.Tag]Scraper{},
		fallback: generic,
	}
	r.Register(platform.Ebay, NewAdapter(platform.Ebay, EbayRules, f))
	r.Register(platform.Amazon, NewAdapter(platform.Amazon, AmazonRules, f))
	r.Register(platform.Walmart, NewAdapter(platform.Walmart, WalmartRules, f))
	return r
}

func (r *Registry) Register(tag platform.Tag, s Scraper) {
	if tag == platform.Unknown {
		r.fallback = s
		return
	}
	r.scrapers[tag] = s
}

func (r *Registry) For(url string) Scraper {
	if s, ok := r.scrapers[platform.Detect(url)]; ok {
		return s
	}
	return r.fallback
}

func (r *Registry) Scrape(ctx context.Context, url string) (Product, error) {
	return r.For(url).Scrape(ctx, url)
}
