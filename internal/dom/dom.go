// Package dom is the capability layer between the selection engine and a
// rendered page. The engine only ever sees Document and Element; backends
// decide where hit tests and layout boxes come from.
package dom

import (
	"errors"

	"golang.org/x/net/html"

	"github.com/hyperifyio/pagebridge/internal/geom"
	"github.com/hyperifyio/pagebridge/internal/uri"
)

// ErrDetached is returned when an element has been removed from its document
// between lookup and use.
var ErrDetached = errors.New("dom: element detached from document")

// Element is a handle to a node owned by the document. Implementations must
// tolerate the node disappearing at any time: positional queries then return
// the zero rectangle and Subtree returns ErrDetached.
type Element interface {
	// NodeName is the lower-case tag name.
	NodeName() string
	Attr(name string) (string, bool)
	// Parent returns nil at the document element or once detached.
	Parent() Element
	// Rect is the border box in viewport coordinates.
	Rect() geom.Rect
	Attached() bool
	// Subtree returns a deep copy of the element and its descendants that is
	// not connected to the live document.
	Subtree() (*html.Node, error)
}

// Viewport carries the window metrics the host needs to map between device
// and document pixels.
type Viewport struct {
	DPR         float64 `json:"dpr" yaml:"dpr"`
	InnerWidth  float64 `json:"innerWidth" yaml:"innerWidth"`
	OuterWidth  float64 `json:"outerWidth" yaml:"outerWidth"`
	InnerHeight float64 `json:"innerHeight" yaml:"innerHeight"`
	OuterHeight float64 `json:"outerHeight" yaml:"outerHeight"`
}

// Document is the page as seen by the selection engine.
type Document interface {
	// ElementFromPoint returns the topmost element at p, or nil.
	ElementFromPoint(p geom.Point) Element
	// Resolver resolves resource references against this document.
	Resolver() uri.Resolver
	Viewport() Viewport
	ScrollBy(dx, dy float64) error
	// Query returns the first element matching a CSS selector, or nil when
	// nothing matches or the selector is invalid.
	Query(selector string) Element
}

// Kind is the closed set of node kinds the extractor distinguishes.
type Kind int

const (
	KindElement Kind = iota
	KindImage
	KindAnchor
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindAnchor:
		return "anchor"
	default:
		return "element"
	}
}

// Classify maps an element onto its Kind. A nil element is generic.
func Classify(el Element) Kind {
	if el == nil {
		return KindElement
	}
	return KindOf(el.NodeName())
}

// KindOf classifies a lower-case tag name.
func KindOf(tag string) Kind {
	switch tag {
	case "img":
		return KindImage
	case "a":
		return KindAnchor
	default:
		return KindElement
	}
}

// ClosestAnchor walks from el up through its ancestors and returns the first
// anchor, or nil.
func ClosestAnchor(el Element) Element {
	for cur := el; cur != nil; cur = cur.Parent() {
		if Classify(cur) == KindAnchor {
			return cur
		}
	}
	return nil
}
