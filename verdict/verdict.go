// Package verdict compares a current price with its alternate-storefront
// counterpart and renders the result.
package verdict

import (
	"encoding/base64"
	"math"
	"regexp"
	"strings"

	"npcheck/scraper"
	"npcheck/sites"

	"github.com/shopspring/decimal"
)

// IDPrefix starts every verdict element id.
const IDPrefix = "npc-price-compare-"

// sameThreshold is the largest absolute difference treated as equal.
var sameThreshold = decimal.New(1, -2)

// Class is the outcome of a comparison.
type Class string

const (
	Same             Class = "same"
	AlternateCheaper Class = "alternate-cheaper"
	CurrentCheaper   Class = "current-cheaper"
)

// Result holds a comparison in the current storefront's currency.
type Result struct {
	Region       sites.Region
	Current      float64
	Alternate    float64 // in the alternate storefront's currency
	AltConverted float64
	Diff         float64 // Current - AltConverted
	PercDiff     float64
	Class        Class
}

// Compute parses both raw prices and compares them. rate is ILS per GBP.
// It returns false when either price cannot be parsed or the rate is not
// positive.
func Compute(currentRaw, altRaw string, region sites.Region, rate float64) (Result, bool) {
	current, ok := scraper.ParsePrice(currentRaw)
	if !ok {
		return Result{}, false
	}
	alt, ok := scraper.ParsePrice(altRaw)
	if !ok || rate <= 0 {
		return Result{}, false
	}

	converted := alt * rate
	if region.IsUK() {
		converted = alt / rate
	}

	diff := current - converted
	var perc float64
	if mean := (current + converted) / 2; mean > 0 {
		perc = math.Abs(diff) / mean * 100
	}

	return Result{
		Region:       region,
		Current:      current,
		Alternate:    alt,
		AltConverted: converted,
		Diff:         diff,
		PercDiff:     perc,
		Class:        classify(diff),
	}, true
}

// classify works on diff rounded to cents; 460.01 - 100*4.6 must be Same.
func classify(diff float64) Class {
	cents := decimal.NewFromFloat(diff).Round(2)
	switch {
	case cents.Abs().LessThanOrEqual(sameThreshold):
		return Same
	case cents.IsPositive():
		return AlternateCheaper
	default:
		return CurrentCheaper
	}
}

// Money formats v with two decimals.
func Money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// Percent formats v with one decimal.
func Percent(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(1)
}

// AbsDiff returns the magnitude of the difference formatted as money.
func (r Result) AbsDiff() string {
	return Money(math.Abs(r.Diff))
}

var slashRuns = regexp.MustCompile(`/+`)

// ID derives the verdict element id for a product link: standard base64 of
// the link without padding, each run of slashes replaced by an underscore.
func ID(link string) string {
	enc := base64.StdEncoding.EncodeToString([]byte(link))
	enc = strings.TrimRight(enc, "=")
	return IDPrefix + slashRuns.ReplaceAllString(enc, "_")
}
