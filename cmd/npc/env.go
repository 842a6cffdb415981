package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"

	"npcheck/config"
	"npcheck/content"
	"npcheck/dom"
	"npcheck/messaging"
	"npcheck/popup"
	"npcheck/repository"
	"npcheck/scraper"
	"npcheck/services"
	"npcheck/sites"
	"npcheck/verdict"
)

// pageLoader loads the page the user is looking at.
type pageLoader func(ctx context.Context, url string) (*dom.Page, error)

// env wires the page context, popup and background for one command.
type env struct {
	cfg     *config.Config
	backend messaging.Bus
	rates   content.RateProvider
	load    pageLoader
	closers []func()
}

func setup(cfg *config.Config, server string, render bool) (*env, error) {
	ctx := context.Background()
	e := &env{cfg: cfg}

	fetcher := scraper.NewFetcher(scraper.FetcherConfig{
		AllowedDomains: sites.Hosts(),
		UserAgent:      cfg.UserAgent,
		Timeout:        cfg.RequestTimeout,
		PerSecond:      cfg.FetchPerSecond,
		Burst:          cfg.FetchBurst,
	})

	if server != "" {
		log.Printf("Using background service at %s", server)
		e.backend = messaging.NewHTTPBus(server, cfg.RequestTimeout)
		e.rates = &services.RemoteRate{
			BaseURL:  server,
			Client:   &http.Client{Timeout: cfg.RequestTimeout},
			Fallback: cfg.FallbackRate,
		}
	} else {
		store, closeStore, err := repository.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		e.closers = append(e.closers, closeStore)
		rates := services.NewRateService(store, &services.FrankfurterSource{
			BaseURL: cfg.ExchangeAPIURL,
			Client:  &http.Client{Timeout: cfg.RequestTimeout},
		}, cfg.RateTTL, cfg.RateRetryAfter, cfg.FallbackRate)
		e.backend, e.rates = localBackend(fetcher, rates, cfg.Debug), rates
	}

	if render {
		tabs, err := scraper.NewTabScraper(scraper.TabConfig{
			BrowserBin: cfg.BrowserBin,
			Headless:   cfg.Headless,
			RenderWait: cfg.RenderWait,
		})
		if err != nil {
			e.Close()
			return nil, err
		}
		e.closers = append(e.closers, tabs.Close)
		e.load = tabs.Render
	} else {
		e.load = fetchLoader(fetcher)
	}
	return e, nil
}

func localBackend(fetcher services.PageFetcher, rates services.RateProvider, debug bool) messaging.Bus {
	router := messaging.NewRouter()
	services.NewAlternatePriceService(fetcher, rates, debug).Register(router)
	return messaging.NewLocalBus(router)
}

func fetchLoader(fetcher services.PageFetcher) pageLoader {
	return func(ctx context.Context, url string) (*dom.Page, error) {
		body, err := fetcher.Fetch(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", url, err)
		}
		return dom.NewPage(url, bytes.NewReader(body))
	}
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

// pageBus is the page context's view of the extension: requests go to the
// background, product broadcasts reach the popup.
func (e *env) pageBus(onProducts func(messaging.ProductsEvent)) *messaging.LocalBus {
	router := messaging.NewRouter()
	messaging.Handle(router, func(ctx context.Context, msg messaging.GetAlternatePrice) (any, error) {
		var resp any
		err := e.backend.Send(ctx, msg, &resp)
		return resp, err
	})
	bus := messaging.NewLocalBus(router)
	bus.Subscribe(messaging.ActionProducts, func(m messaging.Message) {
		onProducts(m.(messaging.ProductsEvent))
	})
	return bus
}

func (e *env) scannerOptions() content.Options {
	return content.Options{
		BatchSize:     e.cfg.BatchSize,
		BatchDelay:    e.cfg.BatchDelay,
		DebounceDelay: e.cfg.DebounceDelay,
		Debug:         e.cfg.Debug,
	}
}

// check prints the popup report for a product page.
func (e *env) check(url string, w io.Writer) error {
	ctx := context.Background()
	if _, err := sites.RegionForURL(url); err != nil {
		return err
	}
	page, err := e.load(ctx, url)
	if err != nil {
		return err
	}

	var report string
	var p *popup.Popup
	bus := e.pageBus(func(ev messaging.ProductsEvent) {
		if text, ok := p.HandleProducts(ctx, ev); ok {
			report = text
		}
	})
	p = popup.New(bus, e.rates)

	scanner := content.NewScanner(content.NewContext(page), bus, e.rates, e.scannerOptions())
	defer scanner.Close()
	scanner.Scan(ctx)
	scanner.Wait()

	fmt.Fprintln(w, report)
	return nil
}

// scan annotates a listing page and prints each product's verdict.
func (e *env) scan(url, out string, w io.Writer) error {
	ctx := context.Background()
	if _, err := sites.RegionForURL(url); err != nil {
		return err
	}
	page, err := e.load(ctx, url)
	if err != nil {
		return err
	}

	p := popup.New(nil, e.rates)
	bus := e.pageBus(func(ev messaging.ProductsEvent) {
		if len(ev.Products) != 1 {
			if text, ok := p.HandleProducts(ctx, ev); ok {
				fmt.Fprintln(w, text)
			}
		}
	})

	scanner := content.NewScanner(content.NewContext(page), bus, e.rates, e.scannerOptions())
	defer scanner.Close()
	products := scanner.Scan(ctx)
	scanner.Wait()

	for _, prod := range products {
		text := page.TextByID(verdict.ID(prod.Link))
		if text == "" {
			text = "no verdict"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", prod.Price, prod.Link, text)
	}

	if out != "" {
		html, err := page.HTML()
		if err != nil {
			return fmt.Errorf("failed to serialise page: %w", err)
		}
		if err := os.WriteFile(out, []byte(html), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", out, err)
		}
		log.Printf("Annotated page written to %s", out)
	}
	return nil
}

// price prints the raw product price text the page shows, the way the
// legacy tab flow read it.
func (e *env) price(url string, w io.Writer) error {
	if _, err := sites.RegionForURL(url); err != nil {
		return err
	}
	page, err := e.load(context.Background(), url)
	if err != nil {
		return err
	}
	text := scraper.PagePrice(page)
	if text == "" {
		return fmt.Errorf("no price found on %s", url)
	}
	fmt.Fprintln(w, text)
	return nil
}

// rate prints the exchange rate header of the popup.
func (e *env) rate(w io.Writer) {
	data := e.rates.GetRate(context.Background())
	fmt.Fprintf(w, "💱 Exchange rate: 1 GBP = %.4f ₪", data.Rate)
	if data.Fallback {
		fmt.Fprint(w, " (using fallback rate)")
	}
	fmt.Fprintf(w, "\n📅 Last updated: %s\n", services.FormatTimestamp(data.Timestamp))
}
