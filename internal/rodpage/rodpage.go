// Package rodpage is the live dom.Document backend: a Chrome tab driven over
// the DevTools protocol with go-rod. Hit tests, layout boxes and window
// metrics come from the browser itself.
package rodpage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hyperifyio/pagebridge/internal/dom"
	"github.com/hyperifyio/pagebridge/internal/geom"
	"github.com/hyperifyio/pagebridge/internal/uri"
)

// Options configures Open.
type Options struct {
	// ControlURL is the DevTools WebSocket URL of a running Chrome. Empty
	// launches a local headless Chrome.
	ControlURL string
	// URL is navigated to once the tab is open.
	URL string
}

// Page is a dom.Document over one browser tab.
type Page struct {
	browser *rod.Browser
	page    *rod.Page
	lnch    *launcher.Launcher
}

// Open connects to (or launches) Chrome, opens a tab on opt.URL and waits for
// the load event.
func Open(ctx context.Context, opt Options) (*Page, error) {
	p := &Page{}
	controlURL := opt.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(true)
		u, err := l.Context(ctx).Launch()
		if err != nil {
			return nil, fmt.Errorf("rodpage: launch: %w", err)
		}
		p.lnch = l
		controlURL = u
		log.Debug().Str("url", u).Msg("launched local chrome")
	}

	p.browser = rod.New().Context(ctx).ControlURL(controlURL)
	if err := p.browser.Connect(); err != nil {
		p.cleanup()
		return nil, fmt.Errorf("rodpage: connect: %w", err)
	}
	page, err := p.browser.Page(proto.TargetCreateTarget{URL: opt.URL})
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("rodpage: open %s: %w", opt.URL, err)
	}
	p.page = page
	if err := page.WaitLoad(); err != nil {
		log.Warn().Err(err).Str("url", opt.URL).Msg("wait load failed")
	}
	return p, nil
}

// Close closes the tab and the browser connection.
func (p *Page) Close() error {
	var errs []error
	if p.page != nil {
		errs = append(errs, p.page.Close())
	}
	if p.browser != nil {
		errs = append(errs, p.browser.Close())
	}
	p.cleanup()
	return errors.Join(errs...)
}

func (p *Page) cleanup() {
	if p.lnch != nil {
		p.lnch.Kill()
		p.lnch.Cleanup()
		p.lnch = nil
	}
}

// evalJSON runs js in the page, expecting it to return a JSON string, and
// decodes the result into v.
func (p *Page) evalJSON(js string, v any, args ...any) error {
	res, err := p.page.Eval(js, args...)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(res.Value.Str()), v)
}

func (p *Page) ElementFromPoint(pt geom.Point) dom.Element {
	el, err := p.page.ElementFromPoint(int(pt.X), int(pt.Y))
	if err != nil {
		log.Debug().Err(err).Float64("x", pt.X).Float64("y", pt.Y).Msg("no element at point")
		return nil
	}
	return wrap(el)
}

func (p *Page) Resolver() uri.Resolver {
	var r struct {
		DocumentURI string `json:"documentURI"`
		BaseURI     string `json:"baseURI"`
		Origin      string `json:"origin"`
	}
	err := p.evalJSON(`() => JSON.stringify({
		documentURI: document.documentURI,
		baseURI: document.baseURI,
		origin: location.host
	})`, &r)
	if err != nil {
		log.Warn().Err(err).Msg("read document location failed")
	}
	return uri.Resolver{DocumentURI: r.DocumentURI, BaseURI: r.BaseURI, Origin: r.Origin}
}

func (p *Page) Viewport() dom.Viewport {
	var vp dom.Viewport
	err := p.evalJSON(`() => JSON.stringify({
		dpr: window.devicePixelRatio,
		innerWidth: window.innerWidth,
		outerWidth: window.outerWidth,
		innerHeight: window.innerHeight,
		outerHeight: window.outerHeight
	})`, &vp)
	if err != nil {
		log.Warn().Err(err).Msg("read viewport failed")
	}
	return vp
}

func (p *Page) ScrollBy(dx, dy float64) error {
	if _, err := p.page.Eval(`(dx, dy) => window.scrollBy(dx, dy)`, dx, dy); err != nil {
		return fmt.Errorf("rodpage: scroll: %w", err)
	}
	return nil
}

// Query does not wait for the selector to appear.
func (p *Page) Query(selector string) dom.Element {
	has, el, err := p.page.Has(selector)
	if err != nil {
		log.Debug().Err(err).Str("selector", selector).Msg("query failed")
		return nil
	}
	if !has {
		return nil
	}
	return wrap(el)
}

// element keeps its node name from the moment it was wrapped, so a detached
// element still reports what it was.
type element struct {
	el   *rod.Element
	name string
}

func wrap(el *rod.Element) *element {
	e := &element{el: el}
	if res, err := el.Eval(`() => this.nodeName.toLowerCase()`); err == nil {
		e.name = res.Value.Str()
	}
	return e
}

func (e *element) NodeName() string { return e.name }

func (e *element) Attr(name string) (string, bool) {
	v, err := e.el.Attribute(name)
	if err != nil || v == nil {
		return "", false
	}
	return *v, true
}

func (e *element) Parent() dom.Element {
	if !e.Attached() {
		return nil
	}
	parent, err := e.el.Parent()
	if err != nil {
		return nil
	}
	return wrap(parent)
}

func (e *element) Attached() bool {
	res, err := e.el.Eval(`() => this.isConnected`)
	return err == nil && res.Value.Bool()
}

func (e *element) Rect() geom.Rect {
	if !e.Attached() {
		return geom.Rect{}
	}
	res, err := e.el.Eval(`() => JSON.stringify(this.getBoundingClientRect())`)
	if err != nil {
		return geom.Rect{}
	}
	var r struct {
		Left, Top, Right, Bottom float64
	}
	if err := json.Unmarshal([]byte(res.Value.Str()), &r); err != nil {
		return geom.Rect{}
	}
	return geom.Rect{Left: r.Left, Top: r.Top, Right: r.Right, Bottom: r.Bottom}
}

// Subtree re-parses the element's outerHTML in the context of its parent tag
// so table and list fragments keep their structure.
func (e *element) Subtree() (*html.Node, error) {
	if !e.Attached() {
		return nil, dom.ErrDetached
	}
	markup, err := e.el.HTML()
	if err != nil {
		return nil, fmt.Errorf("rodpage: outer html: %w", err)
	}
	if e.name == "html" {
		doc, err := html.Parse(strings.NewReader(markup))
		if err != nil {
			return nil, err
		}
		return firstElement(doc), nil
	}
	ctxName := "body"
	if parent := e.Parent(); parent != nil && parent.NodeName() != "html" {
		ctxName = parent.NodeName()
	}
	fragCtx := &html.Node{Type: html.ElementNode, Data: ctxName, DataAtom: atom.Lookup([]byte(ctxName))}
	nodes, err := html.ParseFragment(strings.NewReader(markup), fragCtx)
	if err != nil {
		return nil, fmt.Errorf("rodpage: parse fragment: %w", err)
	}
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			return n, nil
		}
	}
	return nil, dom.ErrDetached
}

func firstElement(n *html.Node) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}
