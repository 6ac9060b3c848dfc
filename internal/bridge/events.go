package bridge

import (
	"github.com/hyperifyio/pagebridge/internal/dom"
	"github.com/hyperifyio/pagebridge/internal/extract"
)

// Outbound event names.
const (
	EventLongPress = "longpress"
	EventScroll    = "scroll"
	EventNewTab    = "newtab"
	// EventPageMetadata reports web app metadata found in the document head.
	EventPageMetadata = "webapp-specific-page-metadata-detected"
)

// Page metadata kinds.
const (
	MetadataThemeColor = "theme-color"
	MetadataManifest   = "manifest"
)

// SnapshotEvent is an event whose payload is a flattened snapshot.
type SnapshotEvent struct {
	Event string `json:"event"`
	extract.Snapshot
}

// LongPress wraps a snapshot taken at a long-press origin.
func LongPress(s extract.Snapshot) SnapshotEvent {
	return SnapshotEvent{Event: EventLongPress, Snapshot: s}
}

// Event is a payload-free event.
type Event struct {
	Event string `json:"event"`
}

// Scroll is emitted whenever the document scrolls.
func Scroll() Event { return Event{Event: EventScroll} }

// NewTabEvent asks the host to open URL in a new tab.
type NewTabEvent struct {
	Event string `json:"event"`
	URL   string `json:"url"`
}

func NewTab(url string) NewTabEvent { return NewTabEvent{Event: EventNewTab, URL: url} }

// PageMetadataEvent carries one detected metadata item. Exactly one of
// ThemeColor and Manifest is set, matching Type.
type PageMetadataEvent struct {
	Event      string `json:"event"`
	Type       string `json:"type"`
	BaseURL    string `json:"baseurl"`
	ThemeColor string `json:"theme_color,omitempty"`
	Manifest   string `json:"manifest,omitempty"`
}

func ThemeColor(baseURL, color string) PageMetadataEvent {
	return PageMetadataEvent{Event: EventPageMetadata, Type: MetadataThemeColor, BaseURL: baseURL, ThemeColor: color}
}

func Manifest(baseURL, href string) PageMetadataEvent {
	return PageMetadataEvent{Event: EventPageMetadata, Type: MetadataManifest, BaseURL: baseURL, Manifest: href}
}

// MatchReply answers evaluateSelectors.
type MatchReply struct {
	Result bool `json:"result"`
}

// SelectionReply answers createSelectionAt and adjustSelection: the snapshot
// flattened, whether anything was found, and the window metrics.
type SelectionReply struct {
	*extract.Snapshot
	Found bool `json:"found"`
	dom.Viewport
}

// Selected builds a reply for a resolved snapshot.
func Selected(s extract.Snapshot, vp dom.Viewport) SelectionReply {
	return SelectionReply{Snapshot: &s, Found: true, Viewport: vp}
}

// NotFound builds the reply for a selection that hit nothing.
func NotFound(vp dom.Viewport) SelectionReply {
	return SelectionReply{Viewport: vp}
}
