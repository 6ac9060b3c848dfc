package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hyperifyio/pagebridge/internal/dom"
	"github.com/hyperifyio/pagebridge/internal/geom"
	"github.com/hyperifyio/pagebridge/internal/uri"
)

// Link is the hyperlink metadata attached to a snapshot.
type Link struct {
	Href  string `json:"href"`
	Title string `json:"title"`
}

// Box is a rect as shipped to the host: both edges and extent.
type Box struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func boxOf(r geom.Rect) Box {
	return Box{Left: r.Left, Top: r.Top, Right: r.Right, Bottom: r.Bottom, Width: r.Width(), Height: r.Height()}
}

// Rect converts the box back into a geom.Rect.
func (b Box) Rect() geom.Rect {
	return geom.Rect{Left: b.Left, Top: b.Top, Right: b.Right, Bottom: b.Bottom}
}

// Snapshot is the serialisable description of one selected element.
// Images is nil, and omitted on the wire, when the element holds no image.
type Snapshot struct {
	Rect     Box      `json:"rect"`
	HTML     string   `json:"html"`
	Text     string   `json:"text"`
	Images   []string `json:"images,omitempty"`
	Link     *Link    `json:"link,omitempty"`
	NodeName string   `json:"nodeName"`
}

// ElementExtractor builds snapshots for elements of one document.
type ElementExtractor struct {
	resolver uri.Resolver
	ugc      *bluemonday.Policy
}

// New returns an extractor resolving URIs with res.
func New(res uri.Resolver, opt Options) *ElementExtractor {
	x := &ElementExtractor{resolver: res}
	if opt.Policy == PolicyUGC {
		x.ugc = bluemonday.UGCPolicy()
	}
	return x
}

// Extract snapshots el. When el sits directly inside a hyperlink the link is
// promoted: its metadata, box, markup and text describe the snapshot. A nil
// or detached element yields a zero box and no content.
func (x *ElementExtractor) Extract(el dom.Element) Snapshot {
	if el == nil {
		return Snapshot{}
	}
	target := el
	var link *Link
	if dom.Classify(el) == dom.KindAnchor {
		link = x.linkOf(el)
	} else if parent := el.Parent(); parent != nil && dom.Classify(parent) == dom.KindAnchor {
		link = x.linkOf(parent)
		target = parent
	}

	snap := Snapshot{NodeName: target.NodeName()}
	if !target.Attached() {
		return snap
	}
	root, err := target.Subtree()
	if err != nil {
		// Lost the race with a page script between the two calls.
		return snap
	}
	snap.Rect = boxOf(target.Rect())
	snap.Link = link

	if scriptBearing(root) {
		return snap
	}
	sanitize(root)
	sel := goquery.NewDocumentFromNode(root).Selection
	snap.Text = sel.Text()
	if markup, err := goquery.OuterHtml(sel); err == nil {
		snap.HTML = markup
	}
	if x.ugc != nil {
		snap.HTML = x.ugc.Sanitize(snap.HTML)
	}
	snap.Images = x.images(sel)
	return snap
}

func (x *ElementExtractor) linkOf(a dom.Element) *Link {
	l := &Link{}
	if href, ok := a.Attr("href"); ok {
		href = strings.TrimSpace(href)
		if href != "" && !uri.IsScript(href) {
			l.Href = x.resolver.Resolve(href)
		}
	}
	l.Title, _ = a.Attr("title")
	return l
}

// images lists the resolved sources of root and every descendant <img>, in
// document order.
func (x *ElementExtractor) images(sel *goquery.Selection) []string {
	var out []string
	add := func(s *goquery.Selection) {
		src, ok := s.Attr("src")
		src = strings.TrimSpace(src)
		if !ok || src == "" {
			return
		}
		out = append(out, x.resolver.Resolve(src))
	}
	if goquery.NodeName(sel) == "img" {
		add(sel)
	}
	sel.Find("img").Each(func(_ int, s *goquery.Selection) { add(s) })
	return out
}
