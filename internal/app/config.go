package app

import (
	"time"

	"github.com/hyperifyio/pagebridge/internal/dom"
	"github.com/hyperifyio/pagebridge/internal/extract"
)

// Backend names accepted by Config.Backend.
const (
	BackendStatic = "static"
	BackendRod    = "rod"
)

// Config holds runtime configuration for the application.
type Config struct {
	// Page source for the static backend: a local file or an http(s) URL.
	PageFile string
	PageURL  string
	// PageBase overrides the document URI used to resolve relative links.
	PageBase string

	Backend       string
	RodControlURL string

	// LayoutAttr names the attribute carrying static element boxes.
	LayoutAttr string
	Viewport   dom.Viewport

	GestureDelay     time.Duration
	GestureThreshold float64

	SanitizePolicy string

	FetchUserAgent string
	FetchTimeout   time.Duration
	FetchAttempts  int

	CacheDir         string
	CacheMaxAge      time.Duration
	CacheClear       bool
	CacheStrictPerms bool

	Verbose bool
}

// DefaultConfig returns the values the CLI flags default to.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendStatic,
		LayoutAttr:     dom.DefaultLayoutAttr,
		Viewport:       dom.Viewport{DPR: 1, InnerWidth: 1280, OuterWidth: 1280, InnerHeight: 800, OuterHeight: 800},
		SanitizePolicy: string(extract.PolicyScripts),
		FetchUserAgent: "pagebridge/1.0 (+https://github.com/hyperifyio/pagebridge)",
		FetchTimeout:   15 * time.Second,
		FetchAttempts:  2,
		CacheDir:       ".pagebridge-cache",
	}
}
