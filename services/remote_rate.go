package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"npcheck/models"
)

// RemoteRate reads the exchange rate from a running background service.
type RemoteRate struct {
	BaseURL  string
	Client   *http.Client
	Fallback float64
}

// GetRate asks the service for its rate and falls back to the constant
// rate when the service cannot be reached.
func (r *RemoteRate) GetRate(ctx context.Context) models.ExchangeRateData {
	data, err := r.fetch(ctx)
	if err != nil {
		log.Printf("Error fetching exchange rate from %s: %v", r.BaseURL, err)
		return models.ExchangeRateData{Rate: r.Fallback, Fallback: true}
	}
	return data
}

func (r *RemoteRate) fetch(ctx context.Context) (models.ExchangeRateData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(r.BaseURL, "/")+"/api/v1/rate", nil)
	if err != nil {
		return models.ExchangeRateData{}, fmt.Errorf("failed to build rate request: %w", err)
	}
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return models.ExchangeRateData{}, fmt.Errorf("failed to fetch rate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return models.ExchangeRateData{}, fmt.Errorf("HTTP error! status: %d", resp.StatusCode)
	}

	var data models.ExchangeRateData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return models.ExchangeRateData{}, fmt.Errorf("failed to decode rate: %w", err)
	}
	if data.Rate <= 0 {
		return models.ExchangeRateData{}, fmt.Errorf("invalid rate %v", data.Rate)
	}
	return data, nil
}
