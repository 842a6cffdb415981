package content

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"npcheck/dom"
	"npcheck/messaging"
	"npcheck/models"
	"npcheck/verdict"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xhtml "golang.org/x/net/html"
)

const listingURL = "https://www.next.co.uk/shop/gender-women-productaffiliation-shirts"

type fakeBus struct {
	mu        sync.Mutex
	calls     map[string]int
	published []messaging.ProductsEvent
	panicOn   string
	price     float64
}

func newFakeBus(price float64) *fakeBus {
	return &fakeBus{calls: map[string]int{}, price: price}
}

func (b *fakeBus) Send(_ context.Context, msg messaging.Message, reply any) error {
	req := msg.(messaging.GetAlternatePrice)
	b.mu.Lock()
	b.calls[req.URL]++
	b.mu.Unlock()
	if b.panicOn != "" && strings.HasSuffix(req.URL, b.panicOn) {
		panic("handler exploded")
	}
	p := b.price
	*reply.(*models.AlternatePriceResponse) = models.AlternatePriceResponse{Price: &p}
	return nil
}

func (b *fakeBus) Publish(_ context.Context, msg messaging.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, msg.(messaging.ProductsEvent))
}

func (b *fakeBus) totalCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		n += c
	}
	return n
}

type fixedRate float64

func (r fixedRate) GetRate(context.Context) models.ExchangeRateData {
	return models.ExchangeRateData{Rate: float64(r)}
}

func cards(from, to int) string {
	var sb strings.Builder
	for i := from; i < to; i++ {
		fmt.Fprintf(&sb, `<div class="card"><a href="/style/st%d/a%d">Shirt %d</a>`+
			`<div class="meta"><span class="product-price">£100</span></div></div>`, i, i, i)
	}
	return sb.String()
}

func listingPage(t *testing.T, n int) *dom.Page {
	t.Helper()
	page, err := dom.ParseHTML(listingURL,
		`<html><body><div data-testid="product-list">`+cards(0, n)+`</div></body></html>`)
	require.NoError(t, err)
	return page
}

func productLink(i int) string {
	return fmt.Sprintf("https://www.next.co.uk/style/st%d/a%d", i, i)
}

func newTestScanner(page *dom.Page, bus messaging.Bus) *Scanner {
	s := NewScanner(NewContext(page), bus, fixedRate(4.6), Options{
		BatchSize:     10,
		BatchDelay:    800 * time.Millisecond,
		DebounceDelay: 10 * time.Millisecond,
	})
	s.sleep = func(ctx context.Context, _ time.Duration) bool { return ctx.Err() == nil }
	return s
}

func TestScanBatchesListing(t *testing.T) {
	page := listingPage(t, 25)
	bus := newFakeBus(450)
	s := newTestScanner(page, bus)
	defer s.Close()

	var dispatchedAtSleep []int
	var delays []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) bool {
		dispatchedAtSleep = append(dispatchedAtSleep, s.Dispatched())
		delays = append(delays, d)
		return true
	}

	products := s.Scan(context.Background())
	s.Wait()

	require.Len(t, products, 25)
	assert.Equal(t, productLink(0), products[0].Link)
	assert.Equal(t, "£100", products[0].Price)
	assert.Equal(t, []int{10, 20}, dispatchedAtSleep)
	assert.Equal(t, []time.Duration{800 * time.Millisecond, 800 * time.Millisecond}, delays)
	assert.Equal(t, 25, s.Dispatched())
	assert.Equal(t, StateSettled, s.State())

	require.Len(t, bus.published, 1)
	assert.Len(t, bus.published[0].Products, 25)

	for i := 0; i < 25; i++ {
		id := verdict.ID(productLink(i))
		assert.Equal(t, 1, page.CountID(id))
		assert.Contains(t, page.TextByID(id), "Alternate site is cheaper by £2.17")
	}
	assert.Equal(t, 1, bus.calls["https://www.next.co.il/en/style/st7/a7"])
}

func TestScanVerdictPlacedAfterPrice(t *testing.T) {
	page := listingPage(t, 2)
	s := newTestScanner(page, newFakeBus(450))
	defer s.Close()

	s.Scan(context.Background())
	s.Wait()

	var next string
	page.View(func(root *goquery.Selection) {
		next, _ = root.Find(".card").First().Find(".product-price").Next().Attr("id")
	})
	assert.Equal(t, verdict.ID(productLink(0)), next)
}

func TestScanSurvivesFailingItem(t *testing.T) {
	page := listingPage(t, 25)
	bus := newFakeBus(450)
	bus.panicOn = "/st13/a13"
	s := newTestScanner(page, bus)
	defer s.Close()

	s.Scan(context.Background())
	s.Wait()

	rendered := 0
	for i := 0; i < 25; i++ {
		rendered += page.CountID(verdict.ID(productLink(i)))
	}
	assert.Equal(t, 24, rendered)
	assert.Zero(t, page.CountID(verdict.ID(productLink(13))))
	assert.Equal(t, StateSettled, s.State())
}

func TestScanIsIdempotent(t *testing.T) {
	page := listingPage(t, 3)
	bus := newFakeBus(450)
	s := newTestScanner(page, bus)
	defer s.Close()

	for i := 0; i < 3; i++ {
		s.Scan(context.Background())
		s.Wait()
	}

	for i := 0; i < 3; i++ {
		assert.Equal(t, 1, page.CountID(verdict.ID(productLink(i))))
	}
	assert.Equal(t, 3, bus.totalCalls())
}

func TestScanSingleProductPage(t *testing.T) {
	url := "https://www.next.co.il/en/style/st123/a45678"
	page, err := dom.ParseHTML(url, `<html><body><div id="pdp"><h1>Linen Shirt</h1><span class="product-price">₪ 129.90</span></div></body></html>`)
	require.NoError(t, err)
	bus := newFakeBus(30)
	s := newTestScanner(page, bus)
	defer s.Close()

	products := s.Scan(context.Background())
	s.Wait()

	assert.Equal(t, []models.Product{{Link: url, Price: "₪ 129.90"}}, products)
	assert.Equal(t, 0, bus.totalCalls())
	require.Len(t, bus.published, 1)
	assert.Equal(t, products, bus.published[0].Products)
	assert.Equal(t, StateSettled, s.State())

	html, err := page.HTML()
	require.NoError(t, err)
	assert.NotContains(t, html, verdict.IDPrefix)
}

func TestScanEmptyPage(t *testing.T) {
	page, err := dom.ParseHTML(listingURL, `<html><body><p>Nothing here</p></body></html>`)
	require.NoError(t, err)
	bus := newFakeBus(1)
	s := newTestScanner(page, bus)
	defer s.Close()

	assert.Empty(t, s.Scan(context.Background()))
	require.Len(t, bus.published, 1)
	assert.Empty(t, bus.published[0].Products)
}

func TestScanMissingFieldsAreSkipped(t *testing.T) {
	page, err := dom.ParseHTML(listingURL, `<html><body><div data-testid="product-list">`+
		`<div class="card"><p>Promo tile</p></div>`+cards(1, 3)+`</div></body></html>`)
	require.NoError(t, err)
	bus := newFakeBus(450)
	s := newTestScanner(page, bus)
	defer s.Close()

	products := s.Scan(context.Background())
	s.Wait()

	require.Len(t, products, 3)
	assert.Equal(t, models.Product{Link: models.Missing, Price: models.Missing}, products[0])
	assert.Equal(t, 2, bus.totalCalls())
	assert.Equal(t, 1, page.CountID(verdict.ID(productLink(2))))
}

func TestRescanIgnoresInjectedVerdictText(t *testing.T) {
	page, err := dom.ParseHTML(listingURL, `<html><body><div data-testid="product-list">`+
		`<div class="card"><a href="/style/st0/a0">No price yet</a></div>`+cards(1, 2)+`</div></body></html>`)
	require.NoError(t, err)
	bus := newFakeBus(450)
	s := newTestScanner(page, bus)
	defer s.Close()

	first := s.Scan(context.Background())
	s.Wait()
	require.Equal(t, models.Missing, first[0].Price)
	require.Contains(t, page.TextByID(verdict.ID(productLink(0))), "Unable to compare prices")

	second := s.Scan(context.Background())
	s.Wait()
	assert.Equal(t, first, second)
	assert.Equal(t, models.Missing, bus.published[len(bus.published)-1].Products[0].Price)
	assert.Equal(t, 1, page.CountID(verdict.ID(productLink(0))))
	assert.Contains(t, page.TextByID(verdict.ID(productLink(0))), "Unable to compare prices")
}

func TestInfiniteScrollRescan(t *testing.T) {
	page := listingPage(t, 3)
	bus := newFakeBus(450)
	s := newTestScanner(page, bus)
	defer s.Close()

	s.Scan(context.Background())
	s.Wait()
	require.Equal(t, 3, bus.totalCalls())

	container := findContainer(t, page)
	page.AppendHTML(container, cards(3, 5))

	newID := verdict.ID(productLink(4))
	require.Eventually(t, func() bool { return page.CountID(newID) == 1 }, 2*time.Second, 5*time.Millisecond)
	s.Wait()

	assert.Equal(t, 5, bus.totalCalls(), "cached products are not fetched again")
	for i := 0; i < 5; i++ {
		assert.Equal(t, 1, page.CountID(verdict.ID(productLink(i))))
	}
	bus.mu.Lock()
	assert.Len(t, bus.published, 2)
	bus.mu.Unlock()
}

func TestDebounceCoalescesMutations(t *testing.T) {
	page := listingPage(t, 2)
	bus := newFakeBus(450)
	s := newTestScanner(page, bus)
	s.opts.DebounceDelay = 50 * time.Millisecond
	defer s.Close()

	s.Scan(context.Background())
	s.Wait()

	container := findContainer(t, page)
	for i := 2; i < 6; i++ {
		page.AppendHTML(container, cards(i, i+1))
	}

	require.Eventually(t, func() bool { return page.CountID(verdict.ID(productLink(5))) == 1 }, 2*time.Second, 5*time.Millisecond)
	s.Wait()
	bus.mu.Lock()
	assert.Len(t, bus.published, 2)
	bus.mu.Unlock()
}

func TestCloseDetachesObserver(t *testing.T) {
	page := listingPage(t, 2)
	bus := newFakeBus(450)
	s := newTestScanner(page, bus)

	s.Scan(context.Background())
	s.Wait()
	s.Close()

	page.AppendHTML(findContainer(t, page), cards(2, 4))
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, page.CountID(verdict.ID(productLink(3))))
	assert.Equal(t, 2, bus.totalCalls())
}

func TestRegisterAnswersScanRequests(t *testing.T) {
	page := listingPage(t, 2)
	bus := newFakeBus(450)
	s := newTestScanner(page, bus)
	defer s.Close()

	router := messaging.NewRouter()
	s.Register(router)
	assert.Equal(t, messaging.Ack{}, router.Dispatch(context.Background(), messaging.ScanListingPage{}))
	s.Wait()
	assert.Equal(t, 1, page.CountID(verdict.ID(productLink(1))))
}

func findContainer(t *testing.T, page *dom.Page) *xhtml.Node {
	t.Helper()
	var n *xhtml.Node
	page.View(func(root *goquery.Selection) {
		n = root.Find(`[data-testid="product-list"]`).Get(0)
	})
	require.NotNil(t, n)
	return n
}
