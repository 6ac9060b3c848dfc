package selecter

import (
	"errors"
	"math"

	"github.com/hyperifyio/pagebridge/internal/dom"
	"github.com/hyperifyio/pagebridge/internal/extract"
	"github.com/hyperifyio/pagebridge/internal/geom"
)

// ErrNoElementAtPoint is returned when the hit test finds nothing.
var ErrNoElementAtPoint = errors.New("no element at point")

// Resolver maps touch points and selection boxes onto document elements.
type Resolver struct {
	doc dom.Document
	ext extract.Extractor
}

// New returns a Resolver over doc that snapshots with ext.
func New(doc dom.Document, ext extract.Extractor) *Resolver {
	return &Resolver{doc: doc, ext: ext}
}

// FromPoint hit-tests the document at p.
func (r *Resolver) FromPoint(p geom.Point) (dom.Element, error) {
	el := r.doc.ElementFromPoint(p)
	if el == nil {
		return nil, ErrNoElementAtPoint
	}
	return el, nil
}

// SnapshotAt extracts the element under p.
func (r *Resolver) SnapshotAt(p geom.Point) (extract.Snapshot, error) {
	el, err := r.FromPoint(p)
	if err != nil {
		return extract.Snapshot{}, err
	}
	return r.ext.Extract(el), nil
}

// FromRect extracts the element ElementInRect picks for box.
func (r *Resolver) FromRect(box geom.Rect) (extract.Snapshot, error) {
	el, err := r.ElementInRect(box)
	if err != nil {
		return extract.Snapshot{}, err
	}
	return r.ext.Extract(el), nil
}

// ElementInRect hit-tests the centre of box and climbs from there to the
// largest ancestor whose own box still fits inside box. The climb stops at the
// first node that overflows, so the hit element is returned as is when it or
// its parent does not fit.
func (r *Resolver) ElementInRect(box geom.Rect) (dom.Element, error) {
	cur, err := r.FromPoint(box.Center())
	if err != nil {
		return nil, err
	}
	if !geom.Contains(box, cur.Rect()) {
		return cur, nil
	}
	for {
		parent := cur.Parent()
		if parent == nil || !geom.Contains(box, parent.Rect()) {
			return cur, nil
		}
		cur = parent
	}
}

// DeviceToDocument converts a host rectangle in device pixels into document
// CSS pixels using the window's outer/inner ratio and device pixel ratio.
func DeviceToDocument(x, y, width, height float64, vp dom.Viewport) geom.Rect {
	sx := scale(vp.OuterWidth, vp.InnerWidth, vp.DPR)
	sy := scale(vp.OuterHeight, vp.InnerHeight, vp.DPR)
	left := x / sx
	top := y / sy
	return geom.Rect{Left: left, Top: top, Right: left + width/sx, Bottom: top + height/sy}
}

// scale is outer/inner*dpr; degenerate metrics fall back to 1.
func scale(outer, inner, dpr float64) float64 {
	s := outer / inner * dpr
	if s == 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		return 1
	}
	return s
}
