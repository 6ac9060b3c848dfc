package selecter

import (
	"errors"
	"strings"
	"testing"

	"github.com/hyperifyio/pagebridge/internal/dom"
	"github.com/hyperifyio/pagebridge/internal/extract"
	"github.com/hyperifyio/pagebridge/internal/geom"
)

const page = `<!doctype html>
<html data-box="0,0,1000,2000"><body data-box="0,0,1000,2000">
  <main id="main" data-box="0,0,1000,1000">
    <section id="section" data-box="100,100,400,400">
      <div id="block" data-box="120,120,300,200">
        <p id="para" data-box="130,130,200,50">some <b id="word" data-box="150,140,40,20">word</b> here</p>
      </div>
    </section>
    <p id="caption" data-box="600,100,100,20"><a id="cap-link" href="/c" data-box="600,100,50,20">cap</a></p>
    <div id="badge" data-box="700,500,20,20"><span id="banner" data-box="650,500,200,20">wide</span></div>
  </main>
</body></html>`

func newResolver(t *testing.T) (*Resolver, *dom.Page) {
	t.Helper()
	p, err := dom.ParsePage(strings.NewReader(page), dom.PageOptions{DocumentURI: "http://h/p/q"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return New(p, extract.New(p.Resolver(), extract.Options{})), p
}

func TestElementInRect_ClimbsToOutermostContained(t *testing.T) {
	r, _ := newResolver(t)
	cases := []struct {
		name string
		box  geom.Rect
		want string
	}{
		{"tight on word", geom.Rect{Left: 150, Top: 140, Right: 190, Bottom: 160}, "word"},
		{"covers paragraph", geom.Rect{Left: 125, Top: 125, Right: 340, Bottom: 185}, "para"},
		{"covers block", geom.Rect{Left: 110, Top: 110, Right: 430, Bottom: 330}, "block"},
		{"covers section", geom.Rect{Left: 90, Top: 90, Right: 510, Bottom: 510}, "section"},
		{"smaller than the word", geom.Rect{Left: 160, Top: 145, Right: 170, Bottom: 155}, "word"},
		{"hit overflows while its parent fits", geom.Rect{Left: 695, Top: 495, Right: 725, Bottom: 525}, "banner"},
	}
	for _, tc := range cases {
		el, err := r.ElementInRect(tc.box)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		id, _ := el.Attr("id")
		if id != tc.want {
			t.Errorf("%s: got #%s want #%s", tc.name, id, tc.want)
		}
	}
}

func TestFromRect_ReturnsSnapshotOfOutermost(t *testing.T) {
	r, _ := newResolver(t)
	snap, err := r.FromRect(geom.Rect{Left: 110, Top: 110, Right: 430, Bottom: 330})
	if err != nil {
		t.Fatalf("FromRect: %v", err)
	}
	if snap.NodeName != "div" || !strings.Contains(snap.Text, "some word here") {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.Rect.Rect() != (geom.Rect{Left: 120, Top: 120, Right: 420, Bottom: 320}) {
		t.Fatalf("rect: %+v", snap.Rect)
	}
}

func TestFromRect_NoElement(t *testing.T) {
	r, _ := newResolver(t)
	_, err := r.FromRect(geom.Rect{Left: 5000, Top: 5000, Right: 5010, Bottom: 5010})
	if !errors.Is(err, ErrNoElementAtPoint) {
		t.Fatalf("expected ErrNoElementAtPoint, got %v", err)
	}
	if _, err := r.SnapshotAt(geom.Point{X: -1, Y: -1}); !errors.Is(err, ErrNoElementAtPoint) {
		t.Fatalf("expected ErrNoElementAtPoint from SnapshotAt, got %v", err)
	}
}

func TestSnapshotAt_PromotesLink(t *testing.T) {
	r, _ := newResolver(t)
	snap, err := r.SnapshotAt(geom.Point{X: 610, Y: 110})
	if err != nil {
		t.Fatalf("SnapshotAt: %v", err)
	}
	if snap.Link == nil || snap.Link.Href != "http://h/c" || snap.NodeName != "a" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestElementInRect_DetachedParentStopsClimb(t *testing.T) {
	r, p := newResolver(t)
	p.Remove(p.Query("#section"))
	el, err := r.ElementInRect(geom.Rect{Left: 90, Top: 90, Right: 510, Bottom: 510})
	if err != nil {
		t.Fatalf("ElementInRect: %v", err)
	}
	if el.NodeName() != "main" {
		t.Fatalf("expected hit on main once the section is gone, got %s", el.NodeName())
	}
}

func TestDeviceToDocument(t *testing.T) {
	vp := dom.Viewport{DPR: 2, InnerWidth: 400, OuterWidth: 400, InnerHeight: 800, OuterHeight: 800}
	got := DeviceToDocument(100, 100, 50, 50, vp)
	want := geom.Rect{Left: 50, Top: 50, Right: 75, Bottom: 75}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestDeviceToDocument_DegenerateViewport(t *testing.T) {
	got := DeviceToDocument(10, 20, 30, 40, dom.Viewport{})
	want := geom.Rect{Left: 10, Top: 20, Right: 40, Bottom: 60}
	if got != want {
		t.Fatalf("zero metrics should map 1:1, got %+v", got)
	}
}
