// Package popup builds the text report shown for the active page.
package popup

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"text/template"

	"npcheck/messaging"
	"npcheck/models"
	"npcheck/scraper"
	"npcheck/services"
	"npcheck/sites"
	"npcheck/verdict"
)

const (
	MsgNoProducts   = "No products found."
	MsgUnparsable   = "Error: Unable to fetch or parse prices."
	listingTemplate = "📦 Found %d products on listing page.\nPrice comparison is shown directly on the page."
)

var reportTemplate = template.Must(template.New("report").Parse(
	`💱 Exchange rate: 1 GBP = {{.Rate}} ₪{{if .Fallback}} (using fallback rate){{end}}
📅 Last updated: {{.LastUpdated}}

{{.Current.Flag}} Current site: {{.Current.Currency}}{{.CurrentPrice}} (≈ {{.Alt.Currency}}{{.CurrentInAlt}})
{{.Alt.Flag}} Alternate site: {{.Alt.Currency}}{{.AltPrice}} (≈ {{.Current.Currency}}{{.AltInCurrent}})

{{.Verdict}}

Open alternate site: {{.AltURL}}
`))

// RateProvider returns the exchange rate. It never fails.
type RateProvider interface {
	GetRate(ctx context.Context) models.ExchangeRateData
}

// Popup reacts to products found on the active page.
type Popup struct {
	bus   messaging.Bus
	rates RateProvider

	mu                 sync.Mutex
	listingHandled     bool
	productPageHandled bool
}

// New creates a popup that looks up alternates over bus.
func New(bus messaging.Bus, rates RateProvider) *Popup {
	return &Popup{bus: bus, rates: rates}
}

// IsListingPage reports whether raw is a listing rather than a product page.
func IsListingPage(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.Contains(u.Path, "/shop")
}

// HandleProducts turns a products broadcast into the popup text. Repeated
// broadcasts for a page that was already reported return ok=false.
func (p *Popup) HandleProducts(ctx context.Context, ev messaging.ProductsEvent) (string, bool) {
	switch n := len(ev.Products); {
	case n > 1:
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.listingHandled {
			return "", false
		}
		p.listingHandled = true
		return fmt.Sprintf(listingTemplate, n), true
	case n == 1:
		p.mu.Lock()
		if p.productPageHandled {
			p.mu.Unlock()
			return "", false
		}
		p.productPageHandled = true
		p.mu.Unlock()
		return p.ProductReport(ctx, ev.Products[0]), true
	default:
		log.Println("⚠️ No products found in npcProducts message")
		return MsgNoProducts, true
	}
}

// ProductReport compares a product page against its alternate page.
func (p *Popup) ProductReport(ctx context.Context, product models.Product) string {
	region, err := sites.RegionForURL(product.Link)
	if err != nil {
		log.Printf("⚠️ %v", err)
		return MsgUnparsable
	}
	altURL, err := sites.Mirror(product.Link)
	if err != nil {
		log.Printf("⚠️ %v", err)
		return MsgUnparsable
	}

	var resp models.AlternatePriceResponse
	if err := p.bus.Send(ctx, messaging.GetAlternatePrice{URL: altURL, PriceSelector: scraper.PriceSelector}, &resp); err != nil {
		log.Printf("❌ Failed to fetch alternate price: %v", err)
		return MsgUnparsable
	}
	if !resp.HasPrice() {
		return MsgUnparsable
	}

	rate := p.rates.GetRate(ctx)
	report, ok := Render(product.Price, resp.PriceText(), region, altURL, rate)
	if !ok {
		return MsgUnparsable
	}
	return report
}

type reportView struct {
	Rate         string
	Fallback     bool
	LastUpdated  string
	Current      sites.Meta
	Alt          sites.Meta
	CurrentPrice string
	CurrentInAlt string
	AltPrice     string
	AltInCurrent string
	Verdict      string
	AltURL       string
}

// Render formats the report for a current and alternate price pair.
func Render(currentRaw, altRaw string, region sites.Region, altURL string, rate models.ExchangeRateData) (string, bool) {
	res, ok := verdict.Compute(currentRaw, altRaw, region, rate.Rate)
	if !ok {
		return "", false
	}

	view := reportView{
		Rate:         fmt.Sprintf("%.4f", rate.Rate),
		Fallback:     rate.Fallback,
		LastUpdated:  services.FormatTimestamp(rate.Timestamp),
		Current:      sites.MetaFor(region),
		Alt:          sites.MetaFor(region.Other()),
		CurrentPrice: verdict.Money(res.Current),
		CurrentInAlt: verdict.Money(services.ConvertToOther(res.Current, region, rate.Rate)),
		AltPrice:     verdict.Money(res.Alternate),
		AltInCurrent: verdict.Money(res.AltConverted),
		Verdict:      verdictLine(res),
		AltURL:       altURL,
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, view); err != nil {
		log.Printf("Failed to render report: %v", err)
		return "", false
	}
	return buf.String(), true
}

func verdictLine(res verdict.Result) string {
	cur := sites.MetaFor(res.Region).Currency
	switch res.Class {
	case verdict.AlternateCheaper:
		return fmt.Sprintf("📈 Alternate site is cheaper by %s%s (%s%%)", cur, res.AbsDiff(), verdict.Percent(res.PercDiff))
	case verdict.CurrentCheaper:
		return fmt.Sprintf("📉 Current site is cheaper by %s%s (%s%%)", cur, res.AbsDiff(), verdict.Percent(res.PercDiff))
	default:
		return "🔍 💸 Prices are about the same"
	}
}
