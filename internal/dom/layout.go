package dom

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/hyperifyio/pagebridge/internal/geom"
)

// Layout supplies border boxes, in document coordinates, for nodes of a
// static page.
type Layout interface {
	Box(n *html.Node) (geom.Rect, bool)
}

// DefaultLayoutAttr is the attribute AttrLayout reads when none is given.
const DefaultLayoutAttr = "data-box"

// AttrLayout reads boxes from an element attribute of the form
// "left,top,width,height". Recorded page snapshots carry their layout this
// way.
type AttrLayout string

func (a AttrLayout) Box(n *html.Node) (geom.Rect, bool) {
	if n == nil || n.Type != html.ElementNode {
		return geom.Rect{}, false
	}
	name := a.attr()
	for _, at := range n.Attr {
		if strings.EqualFold(at.Key, name) {
			return parseBox(at.Val)
		}
	}
	return geom.Rect{}, false
}

func (a AttrLayout) attr() string {
	if a == "" {
		return DefaultLayoutAttr
	}
	return string(a)
}

// strip removes the layout attribute from n and its descendants.
func (a AttrLayout) strip(n *html.Node) {
	if n.Type == html.ElementNode {
		kept := n.Attr[:0]
		for _, at := range n.Attr {
			if !strings.EqualFold(at.Key, a.attr()) {
				kept = append(kept, at)
			}
		}
		n.Attr = kept
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		a.strip(c)
	}
}

func parseBox(v string) (geom.Rect, bool) {
	parts := strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' })
	if len(parts) != 4 {
		return geom.Rect{}, false
	}
	var f [4]float64
	for i, p := range parts {
		x, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return geom.Rect{}, false
		}
		f[i] = x
	}
	return geom.FromXYWH(f[0], f[1], f[2], f[3]), true
}

// MapLayout is a Layout backed by an explicit node to box table, used when the
// host ships box models alongside the markup.
type MapLayout map[*html.Node]geom.Rect

func (m MapLayout) Box(n *html.Node) (geom.Rect, bool) {
	r, ok := m[n]
	return r, ok
}
