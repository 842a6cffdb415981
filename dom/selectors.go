package dom

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FindFirst tries selectors in order below root and returns the first match
// of the first selector that matches anything. It returns nil when nothing
// matches; malformed selectors simply match nothing.
func FindFirst(root *goquery.Selection, selectors ...string) *goquery.Selection {
	return FindFirstOutside(root, "", selectors...)
}

// FindFirstOutside is FindFirst ignoring matches that are, or sit inside,
// an element matching exclude. An empty exclude ignores nothing.
func FindFirstOutside(root *goquery.Selection, exclude string, selectors ...string) *goquery.Selection {
	if root == nil {
		return nil
	}
	for _, sel := range selectors {
		if sel == "" {
			continue
		}
		m := root.Find(sel)
		if exclude != "" {
			m = m.FilterFunction(func(_ int, s *goquery.Selection) bool {
				return s.Closest(exclude).Length() == 0
			})
		}
		if m.Length() > 0 {
			return m.First()
		}
	}
	return nil
}

// FindFirstText is FindFirst returning the trimmed text of the match.
func FindFirstText(root *goquery.Selection, selectors ...string) (string, bool) {
	return selectionText(FindFirst(root, selectors...))
}

// FindFirstTextOutside is FindFirstOutside returning the trimmed text of the match.
func FindFirstTextOutside(root *goquery.Selection, exclude string, selectors ...string) (string, bool) {
	return selectionText(FindFirstOutside(root, exclude, selectors...))
}

func selectionText(m *goquery.Selection) (string, bool) {
	if m == nil {
		return "", false
	}
	text := strings.TrimSpace(m.Text())
	return text, text != ""
}
