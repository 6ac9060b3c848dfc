// Package app wires configuration, page loading and the host bridge into a
// runnable process.
package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/pagebridge/internal/bridge"
	"github.com/hyperifyio/pagebridge/internal/cache"
	"github.com/hyperifyio/pagebridge/internal/dom"
	"github.com/hyperifyio/pagebridge/internal/extract"
	"github.com/hyperifyio/pagebridge/internal/fetch"
	"github.com/hyperifyio/pagebridge/internal/gesture"
	"github.com/hyperifyio/pagebridge/internal/rodpage"
	"github.com/hyperifyio/pagebridge/internal/session"
)

// ErrNoDocument is returned when no page could be loaded for the session.
var ErrNoDocument = errors.New("no document loaded")

// App owns the loaded document for the lifetime of one bridge session.
type App struct {
	cfg    Config
	doc    dom.Document
	closer io.Closer
}

// New validates cfg and loads the page through the configured backend.
func New(ctx context.Context, cfg Config) (*App, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	a := &App{cfg: cfg}
	var err error
	switch cfg.Backend {
	case BackendRod:
		err = a.openLive(ctx)
	default:
		err = a.loadStatic(ctx)
	}
	if err != nil {
		return nil, err
	}
	if a.doc == nil {
		return nil, ErrNoDocument
	}
	return a, nil
}

func (a *App) openLive(ctx context.Context) error {
	p, err := rodpage.Open(ctx, rodpage.Options{ControlURL: a.cfg.RodControlURL, URL: a.cfg.PageURL})
	if err != nil {
		return err
	}
	a.doc, a.closer = p, p
	log.Info().Str("url", a.cfg.PageURL).Msg("live page opened")
	return nil
}

func (a *App) loadStatic(ctx context.Context) error {
	var (
		body        []byte
		documentURI string
	)
	if a.cfg.PageURL != "" {
		page, err := a.fetchClient().Get(ctx, a.cfg.PageURL)
		if err != nil {
			return fmt.Errorf("fetch page: %w", err)
		}
		body, documentURI = page.Body, page.URL
		log.Info().Str("url", page.URL).Bool("cached", page.FromCache).Int("bytes", len(body)).Msg("page fetched")
	} else {
		b, err := os.ReadFile(a.cfg.PageFile)
		if err != nil {
			return fmt.Errorf("read page: %w", err)
		}
		body, documentURI = b, fileURI(a.cfg.PageFile)
		log.Info().Str("file", a.cfg.PageFile).Int("bytes", len(body)).Msg("page loaded")
	}
	if a.cfg.PageBase != "" {
		documentURI = a.cfg.PageBase
	}
	p, err := dom.ParsePage(bytes.NewReader(body), dom.PageOptions{
		DocumentURI: documentURI,
		Layout:      dom.AttrLayout(a.cfg.LayoutAttr),
		Viewport:    a.cfg.Viewport,
	})
	if err != nil {
		return err
	}
	a.doc = p
	return nil
}

// fetchClient builds the page fetcher, applying cache invalidation first.
func (a *App) fetchClient() *fetch.Client {
	c := &fetch.Client{
		HTTPClient:        newHTTPClient(),
		UserAgent:         a.cfg.FetchUserAgent,
		MaxAttempts:       a.cfg.FetchAttempts,
		PerRequestTimeout: a.cfg.FetchTimeout,
	}
	if a.cfg.CacheDir == "" {
		return c
	}
	if a.cfg.CacheClear {
		if err := cache.ClearDir(a.cfg.CacheDir); err != nil {
			log.Warn().Err(err).Str("dir", a.cfg.CacheDir).Msg("cache clear failed")
		}
	}
	if a.cfg.CacheMaxAge > 0 {
		if n, err := cache.PurgeByAge(a.cfg.CacheDir, a.cfg.CacheMaxAge); err != nil {
			log.Warn().Err(err).Msg("cache purge failed")
		} else if n > 0 {
			log.Debug().Int("removed", n).Msg("purged stale cache entries")
		}
	}
	c.Cache = &cache.PageCache{Dir: a.cfg.CacheDir, StrictPerms: a.cfg.CacheStrictPerms}
	return c
}

func fileURI(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}

// Document returns the loaded page.
func (a *App) Document() dom.Document { return a.doc }

// Close releases the backend, if it holds anything.
func (a *App) Close() {
	if a.closer == nil {
		return
	}
	if err := a.closer.Close(); err != nil {
		log.Warn().Err(err).Msg("close backend")
	}
}

// Run serves the bridge protocol on in/out until in reaches EOF or ctx is
// done. Requests already read when in closes are still answered.
func (a *App) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	policy, err := extract.ParsePolicy(a.cfg.SanitizePolicy)
	if err != nil {
		return err
	}
	conn := bridge.NewConn(in, out)
	s := session.New(a.doc, conn, session.Options{
		Gesture: gesture.Config{Delay: a.cfg.GestureDelay, Threshold: a.cfg.GestureThreshold},
		Extract: extract.Options{Policy: policy},
	})

	loopCtx, stop := context.WithCancel(ctx)
	defer stop()
	loopErr := make(chan error, 1)
	go func() { loopErr <- s.Run(loopCtx) }()

	served := make(chan error, 1)
	go func() { served <- conn.Serve(ctx, s.Deliver) }()

	var serveErr error
	select {
	case serveErr = <-served:
		// Queued after every delivered request, so those are answered first.
		if err := s.Post(stop); err != nil {
			stop()
		}
	case <-ctx.Done():
		serveErr = ctx.Err()
	}
	if err := <-loopErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return serveErr
	}
	return nil
}
