package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"npcheck/config"
	"npcheck/dom"
	"npcheck/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPages map[string]string

func (s stubPages) Fetch(_ context.Context, url string) ([]byte, error) {
	body, ok := s[url]
	if !ok {
		return nil, fmt.Errorf("no fixture for %s", url)
	}
	return []byte(body), nil
}

type fixedRate float64

func (r fixedRate) GetRate(context.Context) models.ExchangeRateData {
	return models.ExchangeRateData{Rate: float64(r)}
}

func testEnv(pages stubPages) *env {
	cfg := &config.Config{BatchSize: 2, BatchDelay: time.Millisecond, DebounceDelay: time.Millisecond}
	return &env{
		cfg:     cfg,
		backend: localBackend(pages, fixedRate(4.6), false),
		rates:   fixedRate(4.6),
		load:    fetchLoader(pages),
	}
}

func TestCheckPrintsReport(t *testing.T) {
	pages := stubPages{
		"https://www.next.co.uk/style/st1/a1":    `<html><body><span class="product-price">£100</span></body></html>`,
		"https://www.next.co.il/en/style/st1/a1": `<html><body><span>₪ 450</span></body></html>`,
	}
	var out bytes.Buffer
	require.NoError(t, testEnv(pages).check("https://www.next.co.uk/style/st1/a1", &out))

	assert.Contains(t, out.String(), "🇬🇧 Current site: £100.00 (≈ ₪460.00)")
	assert.Contains(t, out.String(), "📈 Alternate site is cheaper by £2.17 (2.2%)")
}

func TestCheckRejectsOtherSites(t *testing.T) {
	err := testEnv(stubPages{}).check("https://example.com/style/st1", &bytes.Buffer{})
	assert.Error(t, err)
}

func TestScanPrintsVerdicts(t *testing.T) {
	var cards strings.Builder
	pages := stubPages{}
	for i := 0; i < 3; i++ {
		fmt.Fprintf(&cards, `<div><a href="/style/st%d">Item</a><p><span class="product-price">£10</span></p></div>`, i)
		pages[fmt.Sprintf("https://www.next.co.il/en/style/st%d", i)] = `<span>₪ 46</span>`
	}
	listing := "https://www.next.co.uk/shop/gender-men"
	pages[listing] = `<html><body><div data-testid="product-list">` + cards.String() + `</div></body></html>`

	out := filepath.Join(t.TempDir(), "annotated.html")
	var buf bytes.Buffer
	require.NoError(t, testEnv(pages).scan(listing, out, &buf))

	assert.Contains(t, buf.String(), "📦 Found 3 products on listing page.")
	assert.Equal(t, 3, strings.Count(buf.String(), "Prices are about the same"))

	html, err := os.ReadFile(out)
	require.NoError(t, err)
	page, err := dom.ParseHTML(listing, string(html))
	require.NoError(t, err)
	assert.Equal(t, 1, page.CountID("npc-price-compare-aHR0cHM6Ly93d3cubmV4dC5jby51ay9zdHlsZS9zdDA"))
}

func TestPricePrintsPageText(t *testing.T) {
	pages := stubPages{
		"https://www.next.co.il/en/style/st9": `<html><body><p>Free delivery</p><span data-testid="price"> ₪ 129 </span></body></html>`,
		"https://www.next.co.uk/style/st9":    `<html><body><p>Sold out</p></body></html>`,
	}
	var out bytes.Buffer
	require.NoError(t, testEnv(pages).price("https://www.next.co.il/en/style/st9", &out))
	assert.Equal(t, "₪ 129\n", out.String())

	err := testEnv(pages).price("https://www.next.co.uk/style/st9", &bytes.Buffer{})
	assert.ErrorContains(t, err, "no price found")
}
