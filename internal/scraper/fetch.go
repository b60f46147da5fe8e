package scraper

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
)

const (
	DefaultTimeout  = 10 * time.Second
	DefaultCurrency = "USD"

	maxBodyBytes = 8 << 20
)

var browserHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
}

// Fetcher downloads and parses one product page per call.
type Fetcher struct {
	httpc *http.Client
}

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{httpc: &http.Client{Timeout: timeout}}
}

func (f *Fetcher) Fetch(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{URL: url, Err: errors.Wrap(err, "new request")}
	}
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}

	resp, err := f.httpc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, &Error{URL: url, Err: errors.Wrap(err, "do request")}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &Error{URL: url, StatusCode: resp.StatusCode, Err: errors.New(resp.Status)}
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &Error{URL: url, Err: errors.Wrap(err, "parse html")}
	}
	return doc, nil
}

func (a *Adapter) Scrape(ctx context.Context, url string) (Product, error) {
	doc, err := a.fetcher.Fetch(ctx, url)
	if err != nil {
		return Product{}, err
	}

	p := a.Rules.apply(doc)
	if p.Price <= 0 {
		return Product{}, &Error{URL: url, Err: ErrPriceNotFound}
	}
	if a.AlwaysInStock {
		p.InStock = true
	}
	if p.Currency == "" {
		p.Currency = DefaultCurrency
	}
	if p.Title == "" {
		p.Title = url
	}
	p.Platform = a.Platform
	return p, nil
}
