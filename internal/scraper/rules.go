package scraper

import (
	"strings"

	"github.com/BearBump/PriceDrop/internal/pricing"
	"github.com/PuerkitoBio/goquery"
)

// Rule reads the text of the first element matching Selector, or its Attr
// attribute when Attr is set.
type Rule struct {
	Selector string
	Attr     string
}

func (r Rule) Extract(doc *goquery.Document) string {
	sel := doc.Find(r.Selector).First()
	if sel.Length() == 0 {
		return ""
	}
	if r.Attr != "" {
		v, _ := sel.Attr(r.Attr)
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(sel.Text())
}

// Rules holds the candidate rules per field, tried in order.
type Rules struct {
	Title         []Rule
	Price         []Rule
	OriginalPrice []Rule
	Image         []Rule
	Stock         []Rule
	Currency      []Rule
}

var outOfStockPhrases = []string{
	"out of stock",
	"currently unavailable",
	"sold out",
}

func firstText(doc *goquery.Document, rules []Rule) string {
	for _, r := range rules {
		if v := r.Extract(doc); v != "" {
			return v
		}
	}
	return ""
}

// firstPrice skips matches that do not parse, e.g. "See price in cart".
func firstPrice(doc *goquery.Document, rules []Rule) float64 {
	for _, r := range rules {
		v := r.Extract(doc)
		if v == "" {
			continue
		}
		if p := pricing.Parse(v); p > 0 {
			return p
		}
	}
	return 0
}

// inStock is optimistic: no availability text means in stock.
func inStock(text string) bool {
	low := strings.ToLower(text)
	for _, phrase := range outOfStockPhrases {
		if strings.Contains(low, phrase) {
			return false
		}
	}
	return true
}

func (rs Rules) apply(doc *goquery.Document) Product {
	return Product{
		Title:         firstText(doc, rs.Title),
		Price:         firstPrice(doc, rs.Price),
		OriginalPrice: firstPrice(doc, rs.OriginalPrice),
		Image:         firstText(doc, rs.Image),
		InStock:       inStock(firstText(doc, rs.Stock)),
		Currency:      strings.ToUpper(firstText(doc, rs.Currency)),
	}
}
