package dom

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/hyperifyio/pagebridge/internal/geom"
	"github.com/hyperifyio/pagebridge/internal/uri"
)

// PageOptions configures a static Page.
type PageOptions struct {
	// DocumentURI is the address the markup was loaded from.
	DocumentURI string
	// Layout supplies element boxes. Nil means AttrLayout(DefaultLayoutAttr).
	Layout   Layout
	Viewport Viewport
}

// Page is a Document over a parsed HTML tree whose geometry comes from a
// Layout. It is not safe for concurrent use; sessions drive it from a single
// event loop.
type Page struct {
	doc      *goquery.Document
	layout   Layout
	resolver uri.Resolver
	viewport Viewport
	scrollX  float64
	scrollY  float64
}

// ParsePage parses markup from r into a Page.
func ParsePage(r io.Reader, opt PageOptions) (*Page, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return NewPage(root, opt), nil
}

// NewPage wraps an already parsed document node.
func NewPage(root *html.Node, opt PageOptions) *Page {
	p := &Page{
		doc:      goquery.NewDocumentFromNode(root),
		layout:   opt.Layout,
		viewport: opt.Viewport,
	}
	if p.layout == nil {
		p.layout = AttrLayout(DefaultLayoutAttr)
	}
	if p.viewport.DPR == 0 {
		p.viewport.DPR = 1
	}
	p.resolver = uri.Resolver{
		DocumentURI: opt.DocumentURI,
		BaseURI:     opt.DocumentURI,
		Origin:      originOf(opt.DocumentURI),
	}
	if href, ok := p.doc.Find("head base[href]").First().Attr("href"); ok && strings.TrimSpace(href) != "" {
		p.resolver.BaseURI = p.resolver.Resolve(strings.TrimSpace(href))
	}
	return p
}

func originOf(documentURI string) string {
	u, err := url.Parse(documentURI)
	if err != nil {
		return ""
	}
	return u.Host
}

func (p *Page) Resolver() uri.Resolver { return p.resolver }
func (p *Page) Viewport() Viewport     { return p.viewport }

// ScrollBy moves the viewport; element rects shift by the opposite amount.
func (p *Page) ScrollBy(dx, dy float64) error {
	p.scrollX += dx
	p.scrollY += dy
	return nil
}

// ScrollOffset returns the current scroll position.
func (p *Page) ScrollOffset() (float64, float64) { return p.scrollX, p.scrollY }

// Root returns the document node.
func (p *Page) Root() *html.Node { return p.doc.Get(0) }

// Query returns the first element matching a CSS selector, or nil.
func (p *Page) Query(selector string) Element {
	sel := p.doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil
	}
	return p.wrap(sel.Get(0))
}

// Remove detaches el from the tree the way a page script would. Handles held
// elsewhere stay valid but report themselves detached.
func (p *Page) Remove(el Element) bool {
	n, ok := el.(*node)
	if !ok || n.page != p || !n.Attached() {
		return false
	}
	n.n.Parent.RemoveChild(n.n)
	return true
}

// ElementFromPoint returns the last element in document order whose box
// contains pt. Later elements paint over earlier ones and descendants over
// ancestors, so this is the topmost one.
func (p *Page) ElementFromPoint(pt geom.Point) Element {
	var hit *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if !rendered(n) {
				return
			}
			if box, ok := p.box(n); ok && p.toViewport(box).ContainsPoint(pt) {
				hit = n
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(p.Root())
	if hit == nil {
		return nil
	}
	return p.wrap(hit)
}

// box returns the layout box of n, or the union of its descendants' boxes
// when the layout has none for n itself.
func (p *Page) box(n *html.Node) (geom.Rect, bool) {
	if r, ok := p.layout.Box(n); ok {
		return r, true
	}
	var union geom.Rect
	found := false
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || !rendered(c) {
			continue
		}
		r, ok := p.box(c)
		if !ok {
			continue
		}
		if !found {
			union, found = r, true
			continue
		}
		union.Left = min(union.Left, r.Left)
		union.Top = min(union.Top, r.Top)
		union.Right = max(union.Right, r.Right)
		union.Bottom = max(union.Bottom, r.Bottom)
	}
	return union, found
}

func (p *Page) toViewport(r geom.Rect) geom.Rect {
	return r.Offset(-p.scrollX, -p.scrollY)
}

func (p *Page) wrap(n *html.Node) Element {
	return &node{n: n, page: p}
}

func rendered(n *html.Node) bool {
	switch strings.ToLower(n.Data) {
	case "head", "script", "style", "title", "meta", "link", "base", "template", "noscript":
		return false
	}
	return true
}

// node is the static backend's Element.
type node struct {
	n    *html.Node
	page *Page
}

func (e *node) NodeName() string { return strings.ToLower(e.n.Data) }

func (e *node) Attr(name string) (string, bool) {
	for _, a := range e.n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

func (e *node) Parent() Element {
	if !e.Attached() {
		return nil
	}
	parent := e.n.Parent
	if parent == nil || parent.Type != html.ElementNode {
		return nil
	}
	return e.page.wrap(parent)
}

func (e *node) Attached() bool {
	root := e.page.Root()
	for cur := e.n; cur != nil; cur = cur.Parent {
		if cur == root {
			return true
		}
	}
	return false
}

func (e *node) Rect() geom.Rect {
	if !e.Attached() {
		return geom.Rect{}
	}
	box, ok := e.page.box(e.n)
	if !ok {
		return geom.Rect{}
	}
	return e.page.toViewport(box)
}

func (e *node) Subtree() (*html.Node, error) {
	if !e.Attached() {
		return nil, ErrDetached
	}
	root := goquery.NewDocumentFromNode(e.n).Selection.Clone().Get(0)
	if a, ok := e.page.layout.(AttrLayout); ok {
		a.strip(root)
	}
	return root, nil
}
