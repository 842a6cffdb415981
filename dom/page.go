// Package dom holds a parsed page that can be queried and mutated from
// several goroutines, with shallow child-list observers standing in for a
// browser MutationObserver.
package dom

import (
	"fmt"
	"html"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	xhtml "golang.org/x/net/html"
)

// Page is one loaded document. All access goes through its methods so that
// reads and writes are serialised.
type Page struct {
	URL string

	mu        sync.Mutex
	doc       *goquery.Document
	base      *url.URL
	observers map[int]*observer
	nextID    int
}

type observer struct {
	node *xhtml.Node
	fn   func()
}

// NewPage parses r as the document served at pageURL.
func NewPage(pageURL string, r io.Reader) (*Page, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page html: %w", err)
	}
	return &Page{
		URL:       pageURL,
		doc:       doc,
		base:      base,
		observers: make(map[int]*observer),
	}, nil
}

// ParseHTML is NewPage for an in-memory document.
func ParseHTML(pageURL, src string) (*Page, error) {
	return NewPage(pageURL, strings.NewReader(src))
}

// View runs fn with the document root while holding the page lock. Nodes
// captured inside fn may be used later with the mutation methods.
func (p *Page) View(fn func(root *goquery.Selection)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p.doc.Selection)
}

// Resolve turns an href found on the page into an absolute URL.
func (p *Page) Resolve(href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return p.base.ResolveReference(ref).String()
}

// HTML returns the current serialised document.
func (p *Page) HTML() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Html()
}

// Observe registers fn to run whenever children are added to or removed
// from target. Changes deeper in the subtree are not reported. The returned
// function detaches the observer.
func (p *Page) Observe(target *xhtml.Node, fn func()) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.observers[id] = &observer{node: target, fn: fn}
	return func() {
		p.mu.Lock()
		delete(p.observers, id)
		p.mu.Unlock()
	}
}

// AppendHTML appends parsed children to target, as a page does when more
// results load on scroll.
func (p *Page) AppendHTML(target *xhtml.Node, src string) {
	p.mu.Lock()
	p.doc.FindNodes(target).AppendHtml(src)
	fns := p.observersFor(target)
	p.mu.Unlock()
	notify(fns)
}

// RemoveNode detaches n from the document.
func (p *Page) RemoveNode(n *xhtml.Node) {
	p.mu.Lock()
	parent := n.Parent
	p.doc.FindNodes(n).Remove()
	fns := p.observersFor(parent)
	p.mu.Unlock()
	notify(fns)
}

// Inject inserts a div with the given id and inner HTML into parent, right
// after ref when ref is a child of parent and as the first child otherwise.
// Every element already carrying id is removed first, so repeated calls
// leave exactly one such element. Detached parents are ignored.
func (p *Page) Inject(parent, ref *xhtml.Node, id, inner string) bool {
	p.mu.Lock()
	changed := p.removeByID(id)

	target := p.doc.FindNodes(parent)
	if target.Length() == 0 {
		fns := p.observersForAll(changed)
		p.mu.Unlock()
		notify(fns)
		return false
	}

	node := fmt.Sprintf(`<div id="%s" style="font-weight: bold; margin-bottom: 4px; font-size: 1.1em;">%s</div>`,
		html.EscapeString(id), inner)
	if ref != nil && ref.Parent == parent {
		p.doc.FindNodes(ref).AfterHtml(node)
	} else {
		target.PrependHtml(node)
	}
	changed = append(changed, parent)
	fns := p.observersForAll(changed)
	p.mu.Unlock()
	notify(fns)
	return true
}

// CountID returns how many elements carry id.
func (p *Page) CountID(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Find(idSelector(id)).Length()
}

// TextByID returns the text of the first element carrying id.
func (p *Page) TextByID(id string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.TrimSpace(p.doc.Find(idSelector(id)).First().Text())
}

func (p *Page) removeByID(id string) []*xhtml.Node {
	var parents []*xhtml.Node
	p.doc.Find(idSelector(id)).Each(func(_ int, s *goquery.Selection) {
		if n := s.Get(0); n.Parent != nil {
			parents = append(parents, n.Parent)
		}
		s.Remove()
	})
	return parents
}

func (p *Page) observersFor(n *xhtml.Node) []func() {
	var fns []func()
	for _, o := range p.observers {
		if o.node == n {
			fns = append(fns, o.fn)
		}
	}
	return fns
}

func (p *Page) observersForAll(nodes []*xhtml.Node) []func() {
	var fns []func()
	for _, n := range nodes {
		fns = append(fns, p.observersFor(n)...)
	}
	return fns
}

func notify(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}

// idSelector matches ids that may contain characters invalid in #id syntax.
func idSelector(id string) string {
	return `[id="` + id + `"]`
}
