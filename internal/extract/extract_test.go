package extract

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperifyio/pagebridge/internal/dom"
)

const page = `<!doctype html>
<html data-box="0,0,400,800"><body data-box="0,0,400,800">
  <div id="story" data-box="0,0,400,300" onclick="steal()">
    <h1 data-box="0,0,400,40">Title</h1>
    <script>alert("x")</script>
    <p id="lede" data-box="0,50,400,60">Lede <b>bold</b><script type="module">import "x"</script></p>
    <img id="first" src="/img/1.png" data-box="0,120,100,100">
    <!-- <script>commented()</script> -->
    <figure data-box="110,120,100,100"><img src="2.png" data-box="110,120,100,100"><img data-box="0,0,1,1"></figure>
    <svg data-box="220,120,50,50"><script>svgScript()</script><a xlink:href="javascript:alert(1)">v</a></svg>
    <style>/* <script>style()</script> */ p { color: red }</style>
  </div>
  <p id="plain" data-box="0,310,400,20">Just <em>text</em></p>
  <a id="link" href="/next?q=1" title="Next page" data-box="0,340,100,20"><span id="label" data-box="2,342,50,16">Next</span></a>
  <a id="pictlink" href="photo.html" data-box="0,370,100,100"><img id="thumb" src="thumb.png" data-box="0,370,100,100"></a>
  <a id="evil" href="javascript:void(0)" data-box="0,480,10,10">x</a>
  <script id="bare" data-box="0,500,10,10">bare()</script>
  <iframe id="frame" srcdoc="<script>x()</script>" data-box="0,520,10,10"></iframe>
  <div id="active" data-box="0,540,400,100">
    <iframe src="data:text/html,&lt;script&gt;alert(1)&lt;/script&gt;"></iframe>
    <object data="data:text/html;base64,PHNjcmlwdD5hbGVydCgyKTwvc2NyaXB0Pg=="></object>
    <embed src=" JaVaScRiPt:alert(4)">
    <svg><a><animate attributeName="href" values="javascript:alert(3)"/><text>t</text></a><set attributeName="onmouseover" to="alert(5)"/><animateMotion attributeName="xlink:href" values="x"/><animate attributeName="opacity" from="0" to="1"/></svg>
    <meta http-equiv="Refresh" content="0;url=javascript:alert(6)">
    <img id="svgdata" src="data:image/svg+xml,&lt;svg onload=alert(7)&gt;">
    <iframe id="remote" src="https://video.example/embed/1"></iframe>
  </div>
  <iframe id="dataframe" src="DATA:text/html,hi" data-box="0,650,10,10"></iframe>
</body></html>`

func newPage(t *testing.T) *dom.Page {
	t.Helper()
	p, err := dom.ParsePage(strings.NewReader(page), dom.PageOptions{DocumentURI: "http://h/p/q"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return p
}

func query(t *testing.T, p *dom.Page, sel string) dom.Element {
	t.Helper()
	el := p.Query(sel)
	if el == nil {
		t.Fatalf("selector %s matched nothing", sel)
	}
	return el
}

func TestExtract_NeverEmitsScript(t *testing.T) {
	p := newPage(t)
	x := New(p.Resolver(), Options{})
	for _, sel := range []string{"#story", "#lede", "body", "html", "#frame", "#active", "#dataframe"} {
		snap := x.Extract(query(t, p, sel))
		if strings.Contains(strings.ToLower(snap.HTML), "<script") {
			t.Fatalf("%s: html contains a script tag: %s", sel, snap.HTML)
		}
		if strings.Contains(snap.HTML, "steal()") || strings.Contains(snap.HTML, "javascript:") || strings.Contains(snap.HTML, "srcdoc") {
			t.Fatalf("%s: html still carries script-bearing attributes: %s", sel, snap.HTML)
		}
		if strings.Contains(snap.Text, "alert(") || strings.Contains(snap.Text, "import ") {
			t.Fatalf("%s: text carries script source: %q", sel, snap.Text)
		}
		lower := strings.ToLower(snap.HTML)
		for _, bad := range []string{"data:", "javascript:", "alert(", "http-equiv", "onmouseover", "<set", "animatemotion"} {
			if strings.Contains(lower, bad) {
				t.Fatalf("%s: script-bearing content %q survived: %s", sel, bad, snap.HTML)
			}
		}
	}
}

func TestExtract_KeepsInertEmbedsAndAnimations(t *testing.T) {
	p := newPage(t)
	snap := New(p.Resolver(), Options{}).Extract(query(t, p, "#active"))
	if !strings.Contains(snap.HTML, `src="https://video.example/embed/1"`) {
		t.Fatalf("remote frame should survive: %s", snap.HTML)
	}
	if !strings.Contains(snap.HTML, `attributeName="opacity"`) {
		t.Fatalf("style animation should survive: %s", snap.HTML)
	}
	if !strings.Contains(snap.HTML, `id="svgdata"`) || strings.Contains(snap.HTML, "svg+xml") {
		t.Fatalf("image should stay without its svg data source: %s", snap.HTML)
	}
	if snap.Images != nil {
		t.Fatalf("stripped sources must not be listed: %v", snap.Images)
	}
}

func TestExtract_DoesNotMutateLiveDocument(t *testing.T) {
	p := newPage(t)
	x := New(p.Resolver(), Options{})
	_ = x.Extract(query(t, p, "#story"))
	if p.Query("#story script") == nil {
		t.Fatalf("extraction removed scripts from the live page")
	}
	if _, ok := query(t, p, "#story").Attr("onclick"); !ok {
		t.Fatalf("extraction removed attributes from the live page")
	}
}

func TestExtract_ImagesInDocumentOrder(t *testing.T) {
	p := newPage(t)
	snap := New(p.Resolver(), Options{}).Extract(query(t, p, "#story"))
	want := []string{"http://h/img/1.png", "http://h/p/2.png"}
	if len(snap.Images) != len(want) {
		t.Fatalf("images: got %v want %v", snap.Images, want)
	}
	for i := range want {
		if snap.Images[i] != want[i] {
			t.Fatalf("images[%d]: got %q want %q", i, snap.Images[i], want[i])
		}
	}
	if snap.NodeName != "div" || snap.Link != nil {
		t.Fatalf("unexpected node %q link %+v", snap.NodeName, snap.Link)
	}
	if snap.Rect.Width != 400 || snap.Rect.Height != 300 || snap.Rect.Bottom != 300 {
		t.Fatalf("unexpected rect %+v", snap.Rect)
	}
}

func TestExtract_ImagesOmittedWhenNone(t *testing.T) {
	p := newPage(t)
	snap := New(p.Resolver(), Options{}).Extract(query(t, p, "#plain"))
	if snap.Images != nil {
		t.Fatalf("expected nil images, got %v", snap.Images)
	}
	b, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(b), `"images"`) {
		t.Fatalf("images key must be absent: %s", b)
	}
	if snap.Text != "Just text" {
		t.Fatalf("text: %q", snap.Text)
	}
	if snap.HTML != `<p id="plain">Just <em>text</em></p>` {
		t.Fatalf("html: %s", snap.HTML)
	}
}

func TestExtract_ImageElementIsSoleEntry(t *testing.T) {
	p := newPage(t)
	snap := New(p.Resolver(), Options{}).Extract(query(t, p, "#first"))
	if len(snap.Images) != 1 || snap.Images[0] != "http://h/img/1.png" {
		t.Fatalf("images: %v", snap.Images)
	}
	if snap.NodeName != "img" {
		t.Fatalf("node: %s", snap.NodeName)
	}
}

func TestExtract_AnchorMetadata(t *testing.T) {
	p := newPage(t)
	snap := New(p.Resolver(), Options{}).Extract(query(t, p, "#link"))
	if snap.Link == nil || snap.Link.Href != "http://h/next?q=1" || snap.Link.Title != "Next page" {
		t.Fatalf("link: %+v", snap.Link)
	}
}

func TestExtract_PromotesParentLink(t *testing.T) {
	p := newPage(t)
	x := New(p.Resolver(), Options{})

	snap := x.Extract(query(t, p, "#label"))
	if snap.NodeName != "a" {
		t.Fatalf("expected promotion to the anchor, got %s", snap.NodeName)
	}
	if snap.Link == nil || snap.Link.Href != "http://h/next?q=1" {
		t.Fatalf("link: %+v", snap.Link)
	}
	if snap.Rect.Left != 0 || snap.Rect.Top != 340 || snap.Rect.Width != 100 {
		t.Fatalf("rect should be the anchor's: %+v", snap.Rect)
	}
	if !strings.HasPrefix(snap.HTML, "<a ") || snap.Text != "Next" {
		t.Fatalf("html/text should be the anchor's: %q %q", snap.HTML, snap.Text)
	}

	img := x.Extract(query(t, p, "#thumb"))
	if img.NodeName != "a" || img.Link == nil || img.Link.Href != "http://h/p/photo.html" {
		t.Fatalf("image inside link: %+v", img)
	}
	if len(img.Images) != 1 || img.Images[0] != "http://h/p/thumb.png" {
		t.Fatalf("image inside link should be listed once: %v", img.Images)
	}
}

func TestExtract_ScriptURLNotResolved(t *testing.T) {
	p := newPage(t)
	snap := New(p.Resolver(), Options{}).Extract(query(t, p, "#evil"))
	if snap.Link == nil || snap.Link.Href != "" {
		t.Fatalf("javascript: href must not be exposed: %+v", snap.Link)
	}
}

func TestExtract_ScriptElementItself(t *testing.T) {
	p := newPage(t)
	snap := New(p.Resolver(), Options{}).Extract(query(t, p, "#bare"))
	if snap.HTML != "" || snap.Text != "" || snap.NodeName != "script" {
		t.Fatalf("script element should yield empty content: %+v", snap)
	}
}

func TestExtract_Detached(t *testing.T) {
	p := newPage(t)
	el := query(t, p, "#lede")
	if !p.Remove(el) {
		t.Fatalf("remove failed")
	}
	snap := New(p.Resolver(), Options{}).Extract(el)
	if snap.Rect != (Box{}) || snap.HTML != "" || snap.Text != "" || snap.Images != nil {
		t.Fatalf("detached element should degrade to empty: %+v", snap)
	}
	if snap.NodeName != "p" {
		t.Fatalf("node name should survive: %q", snap.NodeName)
	}
	if empty := New(p.Resolver(), Options{}).Extract(nil); empty.NodeName != "" || empty.HTML != "" || empty.Link != nil {
		t.Fatalf("nil element should give the zero snapshot: %+v", empty)
	}
}

func TestExtract_UGCPolicy(t *testing.T) {
	p := newPage(t)
	snap := New(p.Resolver(), Options{Policy: PolicyUGC}).Extract(query(t, p, "#story"))
	if strings.Contains(snap.HTML, "data-box") || strings.Contains(snap.HTML, "<style") {
		t.Fatalf("ugc policy should drop layout attributes and style: %s", snap.HTML)
	}
	if !strings.Contains(snap.HTML, "<b>bold</b>") {
		t.Fatalf("ugc policy should keep basic formatting: %s", snap.HTML)
	}
	if len(snap.Images) != 2 {
		t.Fatalf("images are collected independently of the policy: %v", snap.Images)
	}
}

func TestParsePolicy(t *testing.T) {
	if p, err := ParsePolicy(""); err != nil || p != PolicyScripts {
		t.Fatalf("default: %v %v", p, err)
	}
	if p, err := ParsePolicy(" UGC "); err != nil || p != PolicyUGC {
		t.Fatalf("ugc: %v %v", p, err)
	}
	if _, err := ParsePolicy("none"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}
