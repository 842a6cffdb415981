package sites

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrUnsupportedDomain is returned for URLs outside the two storefronts.
var ErrUnsupportedDomain = errors.New("unsupported domain")

// Region identifies one of the two storefronts.
type Region string

const (
	UK Region = "UK"
	IL Region = "IL"
)

const (
	ukDomain = "next.co.uk"
	ilDomain = "next.co.il"
	ukHost   = "www." + ukDomain
	ilHost   = "www." + ilDomain

	// localePrefix is added to paths on the Israeli storefront.
	localePrefix = "/en"
)

// Meta describes a storefront's currency and flag.
type Meta struct {
	Region       Region
	Host         string
	CurrencyCode string
	Currency     string
	Flag         string
}

var metas = map[Region]Meta{
	UK: {Region: UK, Host: ukHost, CurrencyCode: "GBP", Currency: "£", Flag: "🇬🇧"},
	IL: {Region: IL, Host: ilHost, CurrencyCode: "ILS", Currency: "₪", Flag: "🇮🇱"},
}

// MetaFor returns the metadata for a region.
func MetaFor(r Region) Meta {
	return metas[r]
}

// Hosts returns the two storefront hostnames.
func Hosts() []string {
	return []string{ukHost, ilHost}
}

// Other returns the opposite region.
func (r Region) Other() Region {
	if r == UK {
		return IL
	}
	return UK
}

// IsUK reports whether r is the UK storefront.
func (r Region) IsUK() bool {
	return r == UK
}

// RegionForHost maps a hostname to its region. Only the storefront
// domains and their subdomains are accepted.
func RegionForHost(host string) (Region, error) {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	switch {
	case onDomain(host, ukDomain):
		return UK, nil
	case onDomain(host, ilDomain):
		return IL, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedDomain, host)
}

func onDomain(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// RegionForURL parses raw and maps its host to a region.
func RegionForURL(raw string) (Region, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("failed to parse url %q: %w", raw, err)
	}
	return RegionForHost(u.Hostname())
}

// Mirror returns the equivalent product URL on the other storefront.
//
// UK to IL always prefixes the path with /en. IL to UK strips a leading /en
// segment when present. Query and fragment are carried over untouched.
// Mirroring twice starting from an IL URL without the /en prefix yields the
// prefixed form, so IL round trips are only exact for canonical URLs.
func Mirror(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("failed to parse url %q: %w", raw, err)
	}
	region, err := RegionForHost(u.Hostname())
	if err != nil {
		return "", err
	}

	alt := *u
	alt.Host = MetaFor(region.Other()).Host
	alt.User = nil

	switch region {
	case UK:
		alt.Path = localePrefix + u.Path
		if u.RawPath != "" {
			alt.RawPath = localePrefix + u.RawPath
		}
	case IL:
		alt.Path = stripLocale(u.Path)
		if u.RawPath != "" {
			alt.RawPath = stripLocale(u.RawPath)
		}
	}
	return alt.String(), nil
}

// stripLocale removes the locale prefix only as a whole leading segment.
func stripLocale(path string) string {
	if path == localePrefix {
		return "/"
	}
	if strings.HasPrefix(path, localePrefix+"/") {
		return path[len(localePrefix):]
	}
	return path
}
