package scraper

import (
	"regexp"
	"strconv"
	"strings"
)

// priceSymbolPattern finds the first currency-prefixed amount in raw page HTML.
var priceSymbolPattern = regexp.MustCompile(`([£₪]\s?\d+[,.]?\d*)`)

// ParsePrice extracts a number from a price string like "£12.99" or
// "₪1,234.50". Everything that is not a digit or a decimal point is dropped,
// so thousands separators and currency symbols disappear. Both storefronts
// use '.' as the decimal separator.
func ParsePrice(raw string) (float64, bool) {
	if raw == "" {
		return 0, false
	}
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, raw)
	if cleaned == "" {
		return 0, false
	}

	value, err := strconv.ParseFloat(leadingNumber(cleaned), 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// leadingNumber trims anything after a second decimal point, mirroring how a
// lenient float parse reads "1.2.3" as 1.2.
func leadingNumber(s string) string {
	first := strings.IndexByte(s, '.')
	if first < 0 {
		return s
	}
	if second := strings.IndexByte(s[first+1:], '.'); second >= 0 {
		return s[:first+1+second]
	}
	return s
}

// ExtractPriceText returns the first currency-prefixed price found in html.
func ExtractPriceText(html string) (string, bool) {
	m := priceSymbolPattern.FindStringSubmatch(html)
	if m == nil {
		return "", false
	}
	return m[1], true
}
