// Package pricing turns scraped price text into numbers and derives the
// savings figures shown in alerts.
package pricing

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	symbols       = strings.NewReplacer("$", "", "£", "", "€", "", "¥", "", ",", "")
	nonNumeric    = regexp.MustCompile(`[^0-9.]`)
	leadingNumber = regexp.MustCompile(`^(\d+(\.\d+)?|\.\d+)`)
)

// Parse returns 0 for anything it cannot read. 0 means "unknown price".
func Parse(text string) float64 {
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
	s = symbols.Replace(s)
	s = nonNumeric.ReplaceAllString(s, "")

	m := leadingNumber.FindString(s)
	if m == "" {
		return 0
	}
	d, err := decimal.NewFromString(m)
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	if !finite(f) {
		return 0
	}
	return f
}

func finite(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}

// dec treats non-finite amounts as unknown (0); decimal panics on them.
func dec(f float64) decimal.Decimal {
	if !finite(f) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

// Savings is oldPrice-newPrice rounded to cents.
func Savings(oldPrice, newPrice float64) float64 {
	f, _ := dec(oldPrice).Sub(dec(newPrice)).Round(2).Float64()
	return f
}

// PercentOff is the drop as a whole percentage of oldPrice. 0 when oldPrice
// is unknown.
func PercentOff(oldPrice, newPrice float64) int {
	if oldPrice <= 0 || !finite(oldPrice) {
		return 0
	}
	old := dec(oldPrice)
	pct := old.Sub(dec(newPrice)).Div(old).Mul(decimal.NewFromInt(100)).Round(0)
	return int(pct.IntPart())
}

// Format renders an amount with two decimals.
func Format(amount float64) string {
	return dec(amount).StringFixed(2)
}

// SameCents reports whether a and b round to the same amount of cents.
func SameCents(a, b float64) bool {
	return dec(a).Round(2).Equal(dec(b).Round(2))
}
