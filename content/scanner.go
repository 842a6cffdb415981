// Package content scans a loaded storefront page for products and
// annotates listing cards with a price comparison against the other
// storefront.
package content

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"npcheck/dom"
	"npcheck/messaging"
	"npcheck/models"
	"npcheck/scraper"
	"npcheck/sites"
	"npcheck/verdict"

	"github.com/PuerkitoBio/goquery"
	xhtml "golang.org/x/net/html"
)

// State is the scanner's position in its lifecycle.
type State string

const (
	StateIdle          State = "idle"
	StateScanning      State = "scanning"
	StateSingleProduct State = "single-product"
	StateMultiProduct  State = "multi-product"
	StateRendering     State = "rendering"
	StateSettled       State = "settled"
)

// RateProvider returns the exchange rate used for rendering. It never fails.
type RateProvider interface {
	GetRate(ctx context.Context) models.ExchangeRateData
}

// Options tunes batching and re-scan timing.
type Options struct {
	BatchSize     int
	BatchDelay    time.Duration
	DebounceDelay time.Duration
	Debug         bool
}

// DefaultOptions match the storefront's tolerance for background fetches.
var DefaultOptions = Options{
	BatchSize:     10,
	BatchDelay:    800 * time.Millisecond,
	DebounceDelay: 200 * time.Millisecond,
}

// Scanner finds products on a page, publishes them and renders a verdict
// next to every listing card.
type Scanner struct {
	pc    *Context
	bus   messaging.Bus
	rates RateProvider
	opts  Options

	// sleep waits between batch dispatches. It returns false when ctx ends first.
	sleep func(ctx context.Context, d time.Duration) bool

	baseCtx context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	idle     *sync.Cond
	inflight int
	state    State

	dispatched atomic.Int64
}

// NewScanner creates a scanner for the page owned by pc.
func NewScanner(pc *Context, bus messaging.Bus, rates RateProvider, opts Options) *Scanner {
	if opts.BatchSize < 1 {
		opts.BatchSize = DefaultOptions.BatchSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scanner{
		pc:      pc,
		bus:     bus,
		rates:   rates,
		opts:    opts,
		sleep:   sleepCtx,
		baseCtx: ctx,
		cancel:  cancel,
		state:   StateIdle,
	}
	s.idle = sync.NewCond(&s.mu)
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Register answers scanListingPage requests on router with a scan.
func (s *Scanner) Register(router *messaging.Router) {
	messaging.Handle(router, func(ctx context.Context, _ messaging.ScanListingPage) (any, error) {
		s.Scan(ctx)
		return messaging.Ack{}, nil
	})
}

// State returns the current lifecycle state.
func (s *Scanner) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatched returns how many product lookups have been started.
func (s *Scanner) Dispatched() int {
	return int(s.dispatched.Load())
}

func (s *Scanner) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Scan reads the products on the page, publishes them, and for listing
// pages starts annotating the cards in batches. It returns once the first
// batch is dispatched; use Wait to block until every verdict is rendered.
func (s *Scanner) Scan(ctx context.Context) []models.Product {
	s.setState(StateScanning)
	page := s.pc.Page

	var (
		container *xhtml.Node
		products  []Product
	)
	page.View(func(root *goquery.Selection) {
		c := dom.FindFirst(root, scraper.ContainerSelectors()...)
		if c == nil {
			if text, ok := dom.FindFirstText(root, scraper.PriceSelectors()...); ok {
				products = []Product{{Link: page.URL, Price: text}}
			}
			return
		}
		container = c.Get(0)
		c.Children().Each(func(_ int, card *goquery.Selection) {
			products = append(products, readCard(page, card))
		})
	})

	s.pc.setProducts(products)
	found := toModels(products)
	s.bus.Publish(ctx, messaging.ProductsEvent{Products: found})

	if len(products) <= 1 {
		if container == nil {
			s.setState(StateSingleProduct)
		}
		log.Printf("Found %d product(s) on %s", len(products), page.URL)
		s.settleIfIdle()
		return found
	}

	s.setState(StateMultiProduct)
	region, err := sites.RegionForURL(page.URL)
	if err != nil {
		log.Printf("⚠️ Not annotating %s: %v", page.URL, err)
		s.settleIfIdle()
		return found
	}

	log.Printf("📦 Found %d products on listing page %s", len(products), page.URL)
	s.dispatch(region, products)

	if s.pc.observeOnce(container, s.onMutation) {
		log.Println("Infinite scroll observer attached")
	}
	return found
}

// verdictSelector matches injected verdict blocks, which must never be read
// back as card content.
var verdictSelector = `[id^="` + verdict.IDPrefix + `"]`

func readCard(page *dom.Page, card *goquery.Selection) Product {
	p := Product{Link: models.Missing, Price: models.Missing, card: card.Get(0)}
	if a := dom.FindFirst(card, scraper.ProductLinkSelector); a != nil {
		if href, ok := a.Attr("href"); ok {
			p.Link = page.Resolve(href)
		}
	}
	if text, ok := dom.FindFirstTextOutside(card, verdictSelector, scraper.PriceSelectors()...); ok {
		p.Price = text
	}
	if el := dom.FindFirstOutside(card, verdictSelector, scraper.GenericPriceSelectors...); el != nil {
		p.priceNode = el.Get(0)
	}
	return p
}

func toModels(products []Product) []models.Product {
	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		out = append(out, models.Product{Link: p.Link, Price: p.Price})
	}
	return out
}

// dispatch sends lookups batch by batch, pausing between batches. Lookups
// inside a batch run concurrently and render independently.
func (s *Scanner) dispatch(region sites.Region, products []Product) {
	ctx := s.baseCtx
	size := s.opts.BatchSize

	s.begin()
	s.setState(StateRendering)
	go func() {
		defer s.end()
		for offset := 0; offset < len(products); offset += size {
			if offset > 0 && !s.sleep(ctx, s.opts.BatchDelay) {
				return
			}
			end := min(offset+size, len(products))
			if s.opts.Debug {
				log.Printf("Processing batch: offset=%d, size=%d", offset, end-offset)
			}
			for _, p := range products[offset:end] {
				s.begin()
				s.dispatched.Add(1)
				go func(p Product) {
					defer s.end()
					s.process(ctx, region, p)
				}(p)
			}
		}
	}()
}

// process looks up one product and renders its verdict. Failures are
// logged and skipped.
func (s *Scanner) process(ctx context.Context, region sites.Region, p Product) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("⚠️ Could not fetch or inject alternate price for %s: %v", p.Link, r)
		}
	}()

	altURL, err := sites.Mirror(p.Link)
	if err != nil {
		log.Printf("⚠️ Skipping product %s: %v", p.Link, err)
		return
	}

	resp, hit, err := s.pc.Cache.GetOrFetch(ctx, altURL, func(ctx context.Context) (models.AlternatePriceResponse, error) {
		var r models.AlternatePriceResponse
		err := s.bus.Send(ctx, messaging.GetAlternatePrice{URL: altURL, PriceSelector: scraper.PriceSelector}, &r)
		return r, err
	})
	if err != nil {
		log.Printf("⚠️ Lookup failed for %s: %v", altURL, err)
		return
	}
	if s.opts.Debug && hit {
		log.Printf("Cache hit for %s", altURL)
	}

	var rate models.ExchangeRateData
	if resp.HasPrice() {
		rate = s.rates.GetRate(ctx)
	}
	inner := verdict.Render(verdict.Input{
		CurrentPrice: p.Price,
		AltURL:       altURL,
		Region:       region,
		Response:     resp,
		Rate:         rate,
	})

	parent, ref := p.card, p.priceNode
	if ref != nil && ref.Parent != nil {
		parent = ref.Parent
	}
	id := verdict.ID(p.Link)
	if !s.pc.Page.Inject(parent, ref, id, inner) {
		log.Printf("⚠️ Card for %s left the page before its verdict rendered", p.Link)
		return
	}
	if s.opts.Debug {
		log.Printf("Injected verdict for id=%s, url=%s", id, p.Link)
	}
}

func (s *Scanner) onMutation() {
	s.pc.schedule(s.opts.DebounceDelay, func() {
		if s.baseCtx.Err() != nil {
			return
		}
		s.Scan(s.baseCtx)
	})
}

func (s *Scanner) begin() {
	s.mu.Lock()
	s.inflight++
	s.mu.Unlock()
}

func (s *Scanner) end() {
	s.mu.Lock()
	s.inflight--
	if s.inflight == 0 {
		if s.state == StateRendering {
			s.state = StateSettled
		}
		s.idle.Broadcast()
	}
	s.mu.Unlock()
}

func (s *Scanner) settleIfIdle() {
	s.mu.Lock()
	if s.inflight == 0 {
		s.state = StateSettled
	}
	s.mu.Unlock()
}

// Wait blocks until every dispatched lookup has rendered or failed.
func (s *Scanner) Wait() {
	s.mu.Lock()
	for s.inflight > 0 {
		s.idle.Wait()
	}
	s.mu.Unlock()
}

// Close stops pending batches, the debounce timer and the observer.
func (s *Scanner) Close() {
	s.cancel()
	s.pc.Close()
}
