// Package platform classifies product URLs by retailer.
package platform

import (
	"net/url"
	"strings"
)

type Tag string

const (
	Ebay    Tag = "ebay"
	Amazon  Tag = "amazon"
	Walmart Tag = "walmart"
	Unknown Tag = "unknown"
)

var known = []struct {
	domain string
	tag    Tag
}{
	{"ebay.com", Ebay},
	{"amazon.com", Amazon},
	{"walmart.com", Walmart},
}

// Detect never fails: anything it cannot place is Unknown.
func Detect(rawURL string) Tag {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Unknown
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return Unknown
	}
	for _, k := range known {
		if strings.Contains(host, k.domain) {
			return k.tag
		}
	}
	return Unknown
}

// All lists every tag Detect can return.
func All() []Tag {
	return []Tag{Ebay, Amazon, Walmart, Unknown}
}
