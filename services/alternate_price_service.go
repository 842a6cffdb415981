package services

import (
	"context"
	"log"
	"net/http"

	"npcheck/messaging"
	"npcheck/models"
	"npcheck/scraper"
	"npcheck/sites"
)

// PageFetcher downloads a page body without credentials.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// RateProvider returns the current exchange rate. It never fails.
type RateProvider interface {
	GetRate(ctx context.Context) models.ExchangeRateData
}

// AlternatePriceService fetches a product page on the other storefront and
// extracts its price. It runs in the privileged context so that page code
// never fetches cross-origin itself.
type AlternatePriceService struct {
	fetcher  PageFetcher
	rates    RateProvider
	detector *scraper.BlockDetector
	debug    bool
}

// NewAlternatePriceService creates the getAlternatePrice handler.
func NewAlternatePriceService(fetcher PageFetcher, rates RateProvider, debug bool) *AlternatePriceService {
	return &AlternatePriceService{
		fetcher:  fetcher,
		rates:    rates,
		detector: scraper.NewBlockDetector(),
		debug:    debug,
	}
}

// Register answers getAlternatePrice requests on router.
func (s *AlternatePriceService) Register(router *messaging.Router) {
	messaging.Handle(router, func(ctx context.Context, msg messaging.GetAlternatePrice) (any, error) {
		return s.GetAlternatePrice(ctx, msg.URL), nil
	})
}

// GetAlternatePrice fetches url and returns its price together with the
// price converted into the other storefront's currency. Failures are
// reported in the response, never as an error.
func (s *AlternatePriceService) GetAlternatePrice(ctx context.Context, url string) models.AlternatePriceResponse {
	region, err := sites.RegionForURL(url)
	if err != nil {
		log.Printf("⚠️ Rejected alternate price request: %v", err)
		return models.AlternatePriceResponse{Error: err.Error()}
	}

	body, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		switch status := scraper.StatusOf(err); {
		case status == http.StatusNotFound:
			log.Printf("⚠️ Alternate site not found (404): %s", url)
			return models.AlternatePriceResponse{Error: "404", Status: status}
		case status != 0:
			return models.AlternatePriceResponse{Error: err.Error(), Status: status}
		default:
			log.Printf("❌ Error in getAlternatePrice: %v", err)
			return models.AlternatePriceResponse{Error: err.Error()}
		}
	}

	html := string(body)
	if s.debug {
		log.Printf("Fetched HTML for: %s (length: %d)", url, len(html))
	}

	raw, found := scraper.ExtractPriceText(html)
	price, ok := scraper.ParsePrice(raw)
	if !found || !ok {
		if res := s.detector.Detect(html); res.Blocked {
			log.Printf("🛑 Alternate page looks blocked (%s, score %.1f): %s", res.Kind, res.Score, url)
			return models.AlternatePriceResponse{Error: "blocked", Status: http.StatusOK}
		}
		log.Printf("No price found on %s", url)
		return models.AlternatePriceResponse{}
	}

	rate := s.rates.GetRate(ctx).Rate
	converted := ConvertToOther(price, region, rate)
	if s.debug {
		log.Printf("Parsed price for %s: %v (converted %.2f)", url, price, converted)
	}
	return models.AlternatePriceResponse{Price: &price, Converted: &converted}
}

// ConvertToOther converts a price in from's currency into the other
// storefront's currency. rate is ILS per GBP.
func ConvertToOther(price float64, from sites.Region, rate float64) float64 {
	if from.IsUK() {
		return price * rate
	}
	return price / rate
}
