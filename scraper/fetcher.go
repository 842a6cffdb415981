package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"
)

// HTTPStatusError reports a non-2xx response from an alternate page.
type HTTPStatusError struct {
	Status int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP error! status: %d", e.Status)
}

// FetcherConfig configures a Fetcher. A nil AllowedDomains disables the
// domain restriction.
type FetcherConfig struct {
	AllowedDomains []string
	UserAgent      string
	Timeout        time.Duration
	PerSecond      float64
	Burst          int
}

// Fetcher downloads raw pages without credentials. All fetches share one
// rate limiter.
type Fetcher struct {
	collector *colly.Collector
	limiter   *rate.Limiter
}

// NewFetcher creates a fetcher limited to cfg.AllowedDomains.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	opts := []colly.CollectorOption{colly.AllowURLRevisit()}
	if len(cfg.AllowedDomains) > 0 {
		opts = append(opts, colly.AllowedDomains(cfg.AllowedDomains...))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(cfg.UserAgent))
	}
	c := colly.NewCollector(opts...)
	c.DisableCookies()
	if cfg.Timeout > 0 {
		c.SetRequestTimeout(cfg.Timeout)
	}

	limit := rate.Inf
	if cfg.PerSecond > 0 {
		limit = rate.Limit(cfg.PerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &Fetcher{
		collector: c,
		limiter:   rate.NewLimiter(limit, burst),
	}
}

// Fetch returns the body of url. Non-2xx responses come back as
// *HTTPStatusError; anything else is a transport failure.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed to wait for fetch slot: %w", err)
	}

	c := f.collector.Clone()
	var body []byte
	status := 0

	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	err := c.Visit(url)
	if status != 0 && (status < 200 || status > 299) {
		return nil, &HTTPStatusError{Status: status}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	if status == 0 {
		return nil, errors.New("failed to fetch " + url + ": no response")
	}
	log.Printf("Fetched %s (status %d, %d bytes)", url, status, len(body))
	return body, nil
}

// StatusOf extracts the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status
	}
	return 0
}

// IsNotFound reports whether err is a 404 from the remote page.
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}
