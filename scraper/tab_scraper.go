package scraper

import (
	"context"
	"fmt"
	"log"
	"time"

	"npcheck/dom"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// TabConfig configures the headless browser.
type TabConfig struct {
	BrowserBin string
	Headless   bool
	RenderWait time.Duration
}

// TabScraper reads prices from fully rendered pages in a background tab.
type TabScraper struct {
	browser    *rod.Browser
	renderWait time.Duration
}

// NewTabScraper launches a browser and connects to it.
func NewTabScraper(cfg TabConfig) (*TabScraper, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(true).
		Leakless(false)
	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
		log.Printf("Using browser binary %s", cfg.BrowserBin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	return &TabScraper{browser: browser, renderWait: cfg.RenderWait}, nil
}

func (ts *TabScraper) Close() {
	if ts.browser != nil {
		if err := ts.browser.Close(); err != nil {
			log.Printf("Failed to close browser: %v", err)
		}
	}
}

// Render opens url in a new tab, waits for the load event plus the render
// wait, and returns the page as a dom.Page. The render wait is best effort:
// prices injected later than that are missed.
func (ts *TabScraper) Render(ctx context.Context, url string) (*dom.Page, error) {
	page, err := ts.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}
	defer page.Close()

	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", url, err)
	}

	if ts.renderWait > 0 {
		select {
		case <-time.After(ts.renderWait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("failed to read rendered html: %w", err)
	}
	return dom.ParseHTML(url, html)
}

// PagePrice resolves the product price text on a loaded page.
func PagePrice(page *dom.Page) string {
	var text string
	page.View(func(root *goquery.Selection) {
		text, _ = dom.FindFirstText(root, PriceSelectors()...)
	})
	return text
}
