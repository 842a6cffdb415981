package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"npcheck/models"
	"npcheck/repository"
)

var (
	errFetchAborted = errors.New("exchange rate fetch aborted")
	errBackingOff   = errors.New("exchange rate fetch failed recently")
)

// RateSource fetches the current GBP to ILS rate from a remote API.
type RateSource interface {
	FetchRate(ctx context.Context) (float64, error)
}

// FrankfurterSource reads rates from a frankfurter-compatible API.
type FrankfurterSource struct {
	BaseURL string
	Client  *http.Client
}

type frankfurterResponse struct {
	Base  string             `json:"base"`
	Date  string             `json:"date"`
	Rates map[string]float64 `json:"rates"`
}

// FetchRate requests the latest GBP to ILS rate.
func (s *FrankfurterSource) FetchRate(ctx context.Context) (float64, error) {
	endpoint := strings.TrimRight(s.BaseURL, "/") + "/latest?from=GBP&to=ILS"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build rate request: %w", err)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch exchange rate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("HTTP error! status: %d", resp.StatusCode)
	}

	var body frankfurterResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("invalid data from exchange API: %w", err)
	}
	rate := body.Rates["ILS"]
	if rate <= 0 {
		return 0, fmt.Errorf("invalid data from exchange API: missing ILS rate")
	}
	return rate, nil
}

// RateService caches the exchange rate in a Store with a time-to-live.
// Concurrent lookups share one remote fetch, and after a failed fetch the
// remote is left alone for retryAfter.
type RateService struct {
	store        repository.Store
	source       RateSource
	ttl          time.Duration
	fallbackRate float64
	retryAfter   time.Duration
	now          func() time.Time

	mu       sync.Mutex
	inflight *rateCall
	last     *models.ExchangeRateData
	failedAt time.Time
}

type rateCall struct {
	done chan struct{}
	data models.ExchangeRateData
	err  error
}

// NewRateService creates a rate service backed by store and source.
func NewRateService(store repository.Store, source RateSource, ttl, retryAfter time.Duration, fallbackRate float64) *RateService {
	return &RateService{
		store:        store,
		source:       source,
		ttl:          ttl,
		fallbackRate: fallbackRate,
		retryAfter:   retryAfter,
		now:          time.Now,
	}
}

// GetRate returns the cached rate while it is fresh and refreshes it
// otherwise. It never fails: see Refresh for the fallback chain.
func (s *RateService) GetRate(ctx context.Context) models.ExchangeRateData {
	if cached, ok := s.cached(ctx); ok && cached.IsFresh(s.now(), s.ttl) {
		return cached
	}
	data, _ := s.refresh(ctx, false)
	return data
}

// Refresh fetches a new rate and stores it. On failure it returns the last
// stored entry regardless of age, or the constant fallback rate, together
// with the fetch error. Calls made while a fetch is running wait for it.
func (s *RateService) Refresh(ctx context.Context) (models.ExchangeRateData, error) {
	return s.refresh(ctx, true)
}

func (s *RateService) refresh(ctx context.Context, force bool) (models.ExchangeRateData, error) {
	s.mu.Lock()
	if !force && s.last != nil && s.last.IsFresh(s.now(), s.ttl) {
		data := *s.last
		s.mu.Unlock()
		return data, nil
	}
	if !force && !s.failedAt.IsZero() && s.now().Sub(s.failedAt) < s.retryAfter {
		s.mu.Unlock()
		return s.fallback(ctx), errBackingOff
	}
	if c := s.inflight; c != nil {
		s.mu.Unlock()
		select {
		case <-c.done:
			return c.data, c.err
		case <-ctx.Done():
			return s.fallback(ctx), ctx.Err()
		}
	}
	c := &rateCall{done: make(chan struct{})}
	s.inflight = c
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inflight = nil
		switch {
		case c.err == nil:
			s.failedAt = time.Time{}
			data := c.data
			s.last = &data
		case ctx.Err() == nil:
			s.failedAt = s.now()
		}
		s.mu.Unlock()
		close(c.done)
	}()

	// Waiters see these if the source panics.
	c.data = models.ExchangeRateData{Rate: s.fallbackRate, Timestamp: nil, Fallback: true}
	c.err = errFetchAborted
	c.data, c.err = s.fetch(ctx)
	return c.data, c.err
}

func (s *RateService) fetch(ctx context.Context) (models.ExchangeRateData, error) {
	rate, err := s.source.FetchRate(ctx)
	if err != nil {
		log.Printf("Error fetching exchange rate: %v", err)
		return s.fallback(ctx), err
	}

	ts := s.now().UnixMilli()
	data := models.ExchangeRateData{Rate: rate, Timestamp: &ts, Fallback: false}
	if err := s.store.Set(ctx, models.ExchangeRateKey, data); err != nil {
		log.Printf("Failed to store exchange rate: %v", err)
	}
	log.Printf("Fetched exchange rate: %.4f", rate)
	return data, nil
}

// fallback is the stale stored entry, or the constant rate when none exists.
func (s *RateService) fallback(ctx context.Context) models.ExchangeRateData {
	if cached, ok := s.cached(ctx); ok {
		log.Println("Using cached exchange rate")
		return cached
	}
	return models.ExchangeRateData{Rate: s.fallbackRate, Timestamp: nil, Fallback: true}
}

func (s *RateService) cached(ctx context.Context) (models.ExchangeRateData, bool) {
	var data models.ExchangeRateData
	ok, err := s.store.Get(ctx, models.ExchangeRateKey, &data)
	if err != nil {
		log.Printf("Failed to read cached exchange rate: %v", err)
		return models.ExchangeRateData{}, false
	}
	if !ok || data.Rate <= 0 {
		return models.ExchangeRateData{}, false
	}
	return data, true
}

// FormatTimestamp renders a rate timestamp for display.
func FormatTimestamp(ts *int64) string {
	if ts == nil || *ts == 0 {
		return "never"
	}
	return time.UnixMilli(*ts).Format("2006-01-02 15:04:05")
}
