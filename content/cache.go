package content

import (
	"context"
	"sync"

	"npcheck/models"
)

// AltPriceCache remembers alternate-page responses for the lifetime of a
// page. Concurrent lookups of the same URL share one request.
type AltPriceCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	done chan struct{}
	resp models.AlternatePriceResponse
	err  error
}

// NewAltPriceCache creates an empty cache.
func NewAltPriceCache() *AltPriceCache {
	return &AltPriceCache{entries: make(map[string]*cacheEntry)}
}

// Get returns a completed response for url.
func (c *AltPriceCache) Get(url string) (models.AlternatePriceResponse, bool) {
	c.mu.Lock()
	e, ok := c.entries[url]
	c.mu.Unlock()
	if !ok {
		return models.AlternatePriceResponse{}, false
	}
	select {
	case <-e.done:
		return e.resp, e.err == nil
	default:
		return models.AlternatePriceResponse{}, false
	}
}

// Len returns the number of stored or pending entries.
func (c *AltPriceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GetOrFetch returns the cached response for url, waiting for a pending
// request when there is one, and otherwise calls fetch. hit is true when
// fetch was not called by this caller. Failed fetches are not cached.
func (c *AltPriceCache) GetOrFetch(ctx context.Context, url string,
	fetch func(ctx context.Context) (models.AlternatePriceResponse, error),
) (resp models.AlternatePriceResponse, hit bool, err error) {
	c.mu.Lock()
	if e, ok := c.entries[url]; ok {
		c.mu.Unlock()
		select {
		case <-e.done:
			return e.resp, true, e.err
		case <-ctx.Done():
			return models.AlternatePriceResponse{}, true, ctx.Err()
		}
	}
	e := &cacheEntry{done: make(chan struct{})}
	c.entries[url] = e
	c.mu.Unlock()

	defer close(e.done)
	defer func() {
		if r := recover(); r != nil {
			e.err = errPanicked
			c.forget(url, e)
			panic(r)
		}
	}()

	e.resp, e.err = fetch(ctx)
	if e.err != nil {
		c.forget(url, e)
	}
	return e.resp, false, e.err
}

func (c *AltPriceCache) forget(url string, e *cacheEntry) {
	c.mu.Lock()
	if c.entries[url] == e {
		delete(c.entries, url)
	}
	c.mu.Unlock()
}
