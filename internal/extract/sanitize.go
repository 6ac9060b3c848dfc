package extract

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/hyperifyio/pagebridge/internal/uri"
)

// rawTextTags are rendered without escaping, so their text is checked
// separately.
var rawTextTags = map[string]bool{
	"style": true, "xmp": true, "iframe": true, "noembed": true,
	"noframes": true, "noscript": true, "plaintext": true,
}

var urlAttrs = map[string]bool{
	"href": true, "src": true, "action": true, "formaction": true,
	"xlink:href": true, "data": true, "poster": true, "background": true,
}

// frameTags load a nested document from their URL attribute.
var frameTags = map[string]bool{
	"iframe": true, "frame": true, "object": true, "embed": true,
}

// animationTags can set another attribute of their target at runtime.
var animationTags = map[string]bool{
	"animate": true, "set": true, "animatemotion": true,
}

// activeDataTypes are data: URL media types a browser renders as a document
// that may run script.
var activeDataTypes = []string{
	"text/html", "image/svg+xml", "application/xhtml+xml", "text/xml", "application/xml",
}

// sanitize removes everything under n that could run script once the
// markup is rendered again: script elements in any namespace, comments,
// inline event handlers, srcdoc documents, script URLs, frames loading data
// or script URLs, attribute animations aimed at links or handlers, and meta
// refreshes. n itself is kept.
func sanitize(n *html.Node) {
	scrubAttrs(n)
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		switch {
		case c.Type == html.CommentNode:
			n.RemoveChild(c)
		case scriptBearing(c):
			n.RemoveChild(c)
		case c.Type == html.TextNode && n.Type == html.ElementNode && rawTextTags[strings.ToLower(n.Data)] && containsScriptTag(c.Data):
			n.RemoveChild(c)
		case c.Type == html.ElementNode:
			sanitize(c)
		}
		c = next
	}
}

func scrubAttrs(n *html.Node) {
	if n.Type != html.ElementNode || len(n.Attr) == 0 {
		return
	}
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		key := strings.ToLower(a.Key)
		if a.Namespace != "" {
			key = strings.ToLower(a.Namespace) + ":" + key
		}
		switch {
		case strings.HasPrefix(strings.ToLower(a.Key), "on"):
			continue
		case key == "srcdoc":
			continue
		case urlAttrs[key] && isScriptURL(a.Val):
			continue
		}
		kept = append(kept, a)
	}
	n.Attr = kept
}

func containsScriptTag(s string) bool {
	return strings.Contains(strings.ToLower(s), "<script")
}

// scriptBearing reports whether n runs script, or loads something that does,
// no matter how its attributes are scrubbed.
func scriptBearing(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	tag := strings.ToLower(n.Data)
	switch {
	case tag == "script":
		return true
	case frameTags[tag]:
		for _, a := range n.Attr {
			if urlAttrs[strings.ToLower(a.Key)] && (isScriptURL(a.Val) || isDataURL(a.Val)) {
				return true
			}
		}
	case animationTags[tag]:
		target := strings.ToLower(strings.TrimSpace(attr(n, "attributename")))
		return target == "href" || target == "xlink:href" || strings.HasPrefix(target, "on")
	case tag == "meta":
		return strings.EqualFold(strings.TrimSpace(attr(n, "http-equiv")), "refresh")
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

// isScriptURL reports javascript:, vbscript: and data: URLs whose content a
// browser would run as a document.
func isScriptURL(v string) bool {
	if uri.IsScript(v) {
		return true
	}
	if !isDataURL(v) {
		return false
	}
	mediaType := strings.TrimPrefix(compact(v), "data:")
	for _, t := range activeDataTypes {
		if strings.HasPrefix(mediaType, t) {
			return true
		}
	}
	return false
}

func isDataURL(v string) bool {
	return strings.HasPrefix(compact(v), "data:")
}

// compact lower-cases the head of v and drops the whitespace and control
// characters browsers ignore inside a scheme.
func compact(v string) string {
	var b strings.Builder
	for _, r := range v {
		if r <= ' ' {
			continue
		}
		b.WriteRune(r)
		if b.Len() >= 64 {
			break
		}
	}
	return strings.ToLower(b.String())
}
