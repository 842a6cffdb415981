package scraper

// CSS selectors for the storefront markup. They drift with site releases,
// so every lookup has a fallback chain.
const (
	// Product page
	PriceSelector = `#pdp-item-title > div > div.MuiBox-root.pdp-css-d4vbq4 > div.pdp-css-4bh121 > div > span`

	// Listing page
	ProductContainerSelector = `#plp > div.MuiGrid-root.MuiGrid-container.plp-13gwbx > ` +
		`div.MuiGrid-root.MuiGrid-container.plp-product-grid-wrapper.plp-wq7tal > div`

	ProductLinkSelector = `a[href]`
)

// ProductContainerFallbackSelectors are tried in order when the main
// container selector misses.
var ProductContainerFallbackSelectors = []string{
	`[data-testid="product-list"]`,
	`.plp-product-grid-wrapper > div`,
}

// GenericPriceSelectors is the last-resort chain for price text on a card or page.
var GenericPriceSelectors = []string{
	`.product-price`,
	`[data-testid="price"]`,
	`span`,
}

// ContainerSelectors returns the main container selector followed by its fallbacks.
func ContainerSelectors() []string {
	return append([]string{ProductContainerSelector}, ProductContainerFallbackSelectors...)
}

// PriceSelectors returns the product price selector followed by the generic chain.
func PriceSelectors() []string {
	return append([]string{PriceSelector}, GenericPriceSelectors...)
}
