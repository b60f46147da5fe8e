package scraper

import (
	"github.com/BearBump/PriceDrop/internal/platform"
)

var EbayRules = Rules{
	Title: []Rule{
		{Selector: "h1.x-item-title__mainTitle span"},
		{Selector: ".it-ttl"},
		{Selector: "h1"},
	},
	Price: []Rule{
		{Selector: ".x-price-primary span.ux-textspans"},
		{Selector: ".notranslate"},
		{Selector: ".vi-VR-cvipPrice"},
		{Selector: ".mainPrice"},
	},
	OriginalPrice: []Rule{
		{Selector: ".x-price-approx__price span"},
		{Selector: ".vi-originalPrice"},
	},
	Image: []Rule{
		{Selector: "img.ux-image-magnify__image--original", Attr: "src"},
		{Selector: `img[id="icImg"]`, Attr: "src"},
		{Selector: ".ux-image-carousel-item img", Attr: "src"},
	},
	Stock: []Rule{
		{Selector: ".d-shipping-minview"},
		{Selector: ".vi-acc-del-range"},
		{Selector: ".ux-action"},
	},
}

var AmazonRules = Rules{
	Title: []Rule{
		{Selector: "#productTitle"},
		{Selector: "h1 span"},
	},
	Price: []Rule{
		{Selector: ".a-price .a-offscreen"},
		{Selector: "#priceblock_ourprice"},
		{Selector: "#priceblock_dealprice"},
		{Selector: ".a-price-whole"},
	},
	OriginalPrice: []Rule{
		{Selector: ".a-text-price .a-offscreen"},
		{Selector: "#priceblock_saleprice"},
	},
	Image: []Rule{
		{Selector: "#landingImage", Attr: "src"},
		{Selector: ".imgTagWrapper img", Attr: "src"},
	},
	Stock: []Rule{
		{Selector: "#availability span"},
	},
}

var WalmartRules = Rules{
	Title: []Rule{
		{Selector: `h1[itemprop="name"]`},
		{Selector: "h1"},
	},
	Price: []Rule{
		{Selector: `[itemprop="price"]`, Attr: "content"},
		{Selector: ".price-characteristic"},
	},
	Image: []Rule{
		{Selector: ".prod-hero-image img", Attr: "src"},
		{Selector: `img[data-testid="hero-image-carousel"]`, Attr: "src"},
	},
	Stock: []Rule{
		{Selector: `[data-testid="fulfillment-badge"]`},
		{Selector: ".prod-ProductOffer-oosMsg"},
	},
}

var GenericRules = Rules{
	Title: []Rule{
		{Selector: "h1"},
		{Selector: `meta[property="og:title"]`, Attr: "content"},
		{Selector: "title"},
	},
	Price: []Rule{
		{Selector: `meta[property="product:price:amount"]`, Attr: "content"},
		{Selector: ".price"},
		{Selector: `[itemprop="price"]`, Attr: "content"},
		{Selector: `[itemprop="price"]`},
		{Selector: ".product-price"},
		{Selector: `[class*="price"]`},
		{Selector: `[id*="price"]`},
	},
	Image: []Rule{
		{Selector: `meta[property="og:image"]`, Attr: "content"},
		{Selector: "img", Attr: "src"},
	},
	Currency: []Rule{
		{Selector: `meta[property="product:price:currency"]`, Attr: "content"},
		{Selector: `[itemprop="priceCurrency"]`, Attr: "content"},
	},
}

// Adapter scrapes one platform's pages with a fixed rule set.
type Adapter struct {
	Platform      platform.Tag
	Rules         Rules
	AlwaysInStock bool

	fetcher *Fetcher
}

func NewAdapter(tag platform.Tag, rules Rules, f *Fetcher) *Adapter {
	return &Adapter{Platform: tag, Rules: rules, fetcher: f}
}
