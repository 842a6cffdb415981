package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"npcheck/models"

	"github.com/robfig/cron/v3"
)

// Refresher forces a remote exchange rate fetch.
type Refresher interface {
	Refresh(ctx context.Context) (models.ExchangeRateData, error)
}

// RateRefresher keeps the cached exchange rate warm on a cron schedule.
type RateRefresher struct {
	cron    *cron.Cron
	rates   Refresher
	spec    string
	timeout time.Duration
}

// NewRateRefresher schedules rates.Refresh on the cron spec (with seconds).
func NewRateRefresher(rates Refresher, spec string, timeout time.Duration) (*RateRefresher, error) {
	rr := &RateRefresher{
		cron:    cron.New(cron.WithSeconds()),
		rates:   rates,
		spec:    spec,
		timeout: timeout,
	}
	if _, err := rr.cron.AddFunc(spec, func() { rr.refresh() }); err != nil {
		return nil, fmt.Errorf("failed to schedule rate refresher: %w", err)
	}
	return rr, nil
}

// Start runs one refresh immediately and then follows the schedule.
func (rr *RateRefresher) Start() {
	go rr.refresh()
	rr.cron.Start()
	log.Printf("Exchange rate refresher scheduled (%s)", rr.spec)
}

// Stop halts the schedule and waits for a running refresh to finish.
func (rr *RateRefresher) Stop() {
	if rr.cron != nil {
		<-rr.cron.Stop().Done()
	}
}

// refresh reports whether the remote fetch succeeded.
func (rr *RateRefresher) refresh() bool {
	ctx := context.Background()
	if rr.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rr.timeout)
		defer cancel()
	}
	data, err := rr.rates.Refresh(ctx)
	if err != nil {
		log.Printf("⚠️ Exchange rate refresh failed, serving %.4f (fallback=%t): %v", data.Rate, data.Fallback, err)
		return false
	}
	log.Printf("✅ Exchange rate refreshed: %.4f", data.Rate)
	return true
}
