package models

import (
	"strconv"
	"time"
)

// ExchangeRateKey is the storage key holding the cached ExchangeRateData.
const ExchangeRateKey = "exchangeRateData"

// Product is a link/price pair captured from a page. Price holds the raw
// text as it appeared on the page.
type Product struct {
	Link  string `json:"link"`
	Price string `json:"price"`
}

// Missing is used for product fields that could not be located on a card.
const Missing = "N/A"

// ExchangeRateData is the cached GBP to ILS conversion rate.
type ExchangeRateData struct {
	Rate      float64 `json:"rate"`
	Timestamp *int64  `json:"timestamp"` // epoch millis, nil when never fetched
	Fallback  bool    `json:"fallback"`
}

// FetchedAt returns the fetch time, or the zero time when the rate was never fetched.
func (d ExchangeRateData) FetchedAt() time.Time {
	if d.Timestamp == nil {
		return time.Time{}
	}
	return time.UnixMilli(*d.Timestamp)
}

// IsFresh reports whether the entry is younger than ttl at now.
func (d ExchangeRateData) IsFresh(now time.Time, ttl time.Duration) bool {
	var ts int64
	if d.Timestamp != nil {
		ts = *d.Timestamp
	}
	return now.UnixMilli()-ts < ttl.Milliseconds()
}

// AlternatePriceResponse is the reply to a getAlternatePrice request.
type AlternatePriceResponse struct {
	Price     *float64 `json:"price"`
	Converted *float64 `json:"converted"`
	Error     string   `json:"error,omitempty"`
	Status    int      `json:"status,omitempty"`
}

// NotFound reports whether the alternate page does not exist.
func (r AlternatePriceResponse) NotFound() bool {
	return r.Status == 404
}

// HasPrice reports whether a price was extracted from the alternate page.
func (r AlternatePriceResponse) HasPrice() bool {
	return r.Error == "" && r.Price != nil
}

// PriceText returns the alternate price as text suitable for ParsePrice.
func (r AlternatePriceResponse) PriceText() string {
	if r.Price == nil {
		return ""
	}
	return strconv.FormatFloat(*r.Price, 'f', -1, 64)
}
