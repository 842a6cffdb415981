package scheduler

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"npcheck/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRefresher struct {
	calls atomic.Int32
	err   error
}

func (c *countingRefresher) Refresh(context.Context) (models.ExchangeRateData, error) {
	c.calls.Add(1)
	ts := int64(1)
	return models.ExchangeRateData{Rate: 4.5, Timestamp: &ts}, c.err
}

func TestRateRefresherRunsOnStartAndSchedule(t *testing.T) {
	rates := &countingRefresher{}
	rr, err := NewRateRefresher(rates, "* * * * * *", time.Second)
	require.NoError(t, err)

	rr.Start()
	defer rr.Stop()

	require.Eventually(t, func() bool { return rates.calls.Load() >= 2 }, 3*time.Second, 10*time.Millisecond)
}

func TestRateRefresherRejectsBadSpec(t *testing.T) {
	_, err := NewRateRefresher(&countingRefresher{}, "every tuesday", time.Second)
	assert.Error(t, err)
}

func TestRateRefresherLogsFailedRefreshWithStaleRate(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	rr, err := NewRateRefresher(&countingRefresher{err: errors.New("HTTP error! status: 503")}, "@every 1h", time.Second)
	require.NoError(t, err)
	assert.False(t, rr.refresh())
	assert.Contains(t, buf.String(), "refresh failed")
	assert.Contains(t, buf.String(), "status: 503")
	assert.NotContains(t, buf.String(), "✅")

	buf.Reset()
	rr, err = NewRateRefresher(&countingRefresher{}, "@every 1h", time.Second)
	require.NoError(t, err)
	assert.True(t, rr.refresh())
	assert.Contains(t, buf.String(), "✅ Exchange rate refreshed: 4.5000")
}
