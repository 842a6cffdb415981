package content

import (
	"errors"
	"sync"
	"time"

	"npcheck/dom"

	xhtml "golang.org/x/net/html"
)

var errPanicked = errors.New("lookup panicked")

// Context owns the state tied to one loaded page: the alternate price
// cache, the single infinite-scroll observer and its debounce timer.
// Scans of the same page must share one Context.
type Context struct {
	Page  *dom.Page
	Cache *AltPriceCache

	mu       sync.Mutex
	observed *xhtml.Node
	detach   func()
	debounce *time.Timer
	products []Product
}

// Product is a scanned product with the nodes it was found at.
type Product struct {
	Link  string
	Price string

	card      *xhtml.Node
	priceNode *xhtml.Node
}

// NewContext creates the per-page state for page.
func NewContext(page *dom.Page) *Context {
	return &Context{Page: page, Cache: NewAltPriceCache()}
}

// observeOnce attaches fn to container unless an observer already exists.
// It reports whether a new observer was attached.
func (c *Context) observeOnce(container *xhtml.Node, fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detach != nil {
		return false
	}
	c.observed = container
	c.detach = c.Page.Observe(container, fn)
	return true
}

// schedule restarts the debounce timer.
func (c *Context) schedule(delay time.Duration, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.debounce != nil {
		c.debounce.Stop()
	}
	c.debounce = time.AfterFunc(delay, fn)
}

func (c *Context) setProducts(products []Product) {
	c.mu.Lock()
	c.products = products
	c.mu.Unlock()
}

// Products returns the products found by the last scan.
func (c *Context) Products() []Product {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Product(nil), c.products...)
}

// Close stops the debounce timer and detaches the observer.
func (c *Context) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
	if c.detach != nil {
		c.detach()
		c.detach = nil
		c.observed = nil
	}
}
