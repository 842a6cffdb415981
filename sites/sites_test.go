package sites

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMirror(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"uk to il adds locale", "https://www.next.co.uk/style/st123/456789", "https://www.next.co.il/en/style/st123/456789"},
		{"il to uk strips locale", "https://www.next.co.il/en/style/st123/456789", "https://www.next.co.uk/style/st123/456789"},
		{"il without locale unchanged path", "https://www.next.co.il/style/st123", "https://www.next.co.uk/style/st123"},
		{"query and fragment kept", "https://www.next.co.uk/shop/gender-women?p=2#top", "https://www.next.co.il/en/shop/gender-women?p=2#top"},
		{"locale only as whole segment", "https://www.next.co.il/endless/item", "https://www.next.co.uk/endless/item"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Mirror(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMirrorRoundTrip(t *testing.T) {
	uk := "https://www.next.co.uk/style/st123/456789?colour=blue"
	il, err := Mirror(uk)
	require.NoError(t, err)
	back, err := Mirror(il)
	require.NoError(t, err)
	assert.Equal(t, uk, back)
}

func TestMirrorRoundTripFromNonCanonicalIL(t *testing.T) {
	// The IL page without /en gains the prefix after a round trip.
	il := "https://www.next.co.il/style/st123"
	uk, err := Mirror(il)
	require.NoError(t, err)
	back, err := Mirror(uk)
	require.NoError(t, err)
	assert.Equal(t, "https://www.next.co.il/en/style/st123", back)
	assert.NotEqual(t, il, back)
}

func TestMirrorFromUKAlwaysAddsLocale(t *testing.T) {
	il, err := Mirror("https://www.next.co.uk/en/style/st1")
	require.NoError(t, err)
	assert.Equal(t, "https://www.next.co.il/en/en/style/st1", il)
}

func TestMirrorUnsupportedDomain(t *testing.T) {
	for _, raw := range []string{
		"https://www.example.com/style/st1",
		"https://www.next.com/style/st1",
		"https://www.amazon.co.uk/dp/B0001",
		"https://shop.example.co.il/x",
		"https://notnext.co.uk/style/st1",
		"not a url at all",
	} {
		got, err := Mirror(raw)
		assert.Error(t, err, raw)
		assert.Empty(t, got)
	}
	_, err := Mirror("https://www.next.de/x")
	assert.True(t, errors.Is(err, ErrUnsupportedDomain))
}

func TestRegionForHostStorefrontDomainsOnly(t *testing.T) {
	for host, want := range map[string]Region{
		"www.next.co.uk":  UK,
		"next.co.uk":      UK,
		"WWW.NEXT.CO.IL":  IL,
		"www.next.co.il.": IL,
	} {
		got, err := RegionForHost(host)
		require.NoError(t, err, host)
		assert.Equal(t, want, got, host)
	}
	for _, host := range []string{"www.amazon.co.uk", "shop.example.co.il", "next.co.uk.evil.com", ""} {
		_, err := RegionForHost(host)
		assert.ErrorIs(t, err, ErrUnsupportedDomain, host)
	}
}

func TestRegionForHost(t *testing.T) {
	r, err := RegionForHost("www.next.co.uk")
	require.NoError(t, err)
	assert.Equal(t, UK, r)
	assert.Equal(t, IL, r.Other())
	assert.Equal(t, "₪", MetaFor(r.Other()).Currency)
}
