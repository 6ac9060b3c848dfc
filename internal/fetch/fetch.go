// Package fetch loads HTML pages over HTTP for the static document backend.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html/charset"

	"github.com/hyperifyio/pagebridge/internal/cache"
)

// ErrServer marks a 5xx response; only these and timeouts are retried.
var ErrServer = errors.New("server error")

// Page is a fetched document with its body decoded to UTF-8.
type Page struct {
	// URL is the final URL after redirects. It becomes the document URI.
	URL         string
	ContentType string
	Body        []byte
	// FromCache is set when the body was served after a 304.
	FromCache bool
}

// Client wraps http.Client with per-request timeouts, bounded retry on
// transient errors and optional conditional revalidation against a cache.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
	// MaxAttempts includes the initial attempt. Minimum 1.
	MaxAttempts int
	// PerRequestTimeout bounds each request.
	PerRequestTimeout time.Duration
	// Optional on-disk cache for page bodies and validators.
	Cache *cache.PageCache
	// RedirectMaxHops caps redirect following. Zero means 5.
	RedirectMaxHops int
}

func (c *Client) getHTTPClient() *http.Client {
	if c.HTTPClient != nil {
		base := *c.HTTPClient
		base.CheckRedirect = c.checkRedirectFunc()
		return &base
	}
	return &http.Client{Timeout: c.PerRequestTimeout, CheckRedirect: c.checkRedirectFunc()}
}

// Get fetches rawURL and returns the decoded page.
func (c *Client) Get(ctx context.Context, rawURL string) (Page, error) {
	var validators *cache.PageEntry
	if c.Cache != nil {
		if meta, err := c.Cache.LoadMeta(ctx, rawURL); err == nil {
			validators = meta
		}
	}
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		res, err := c.tryOnce(ctx, rawURL, validators)
		if err == nil {
			return c.finish(ctx, rawURL, res, validators)
		}
		lastErr = err
		if !isTransient(err) || i == attempts-1 {
			break
		}
		log.Debug().Err(err).Str("url", rawURL).Int("attempt", i+1).Msg("retrying fetch")
		select {
		case <-ctx.Done():
			return Page{}, ctx.Err()
		case <-time.After(time.Duration(i+1) * 200 * time.Millisecond):
		}
	}
	return Page{}, lastErr
}

type response struct {
	status       int
	finalURL     string
	contentType  string
	etag         string
	lastModified string
	body         []byte
}

func (c *Client) finish(ctx context.Context, rawURL string, res response, validators *cache.PageEntry) (Page, error) {
	if res.status == http.StatusNotModified && validators != nil {
		body, err := c.Cache.LoadBody(ctx, rawURL)
		if err != nil {
			return Page{}, fmt.Errorf("cached body: %w", err)
		}
		return decode(validators.FinalURL, validators.ContentType, body, true)
	}
	if c.Cache != nil {
		entry := cache.PageEntry{
			URL:          rawURL,
			FinalURL:     res.finalURL,
			ContentType:  res.contentType,
			ETag:         res.etag,
			LastModified: res.lastModified,
		}
		if err := c.Cache.Save(ctx, entry, res.body); err != nil {
			log.Warn().Err(err).Str("url", rawURL).Msg("page cache save failed")
		}
	}
	return decode(res.finalURL, res.contentType, res.body, false)
}

func (c *Client) tryOnce(ctx context.Context, rawURL string, validators *cache.PageEntry) (response, error) {
	if c.PerRequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.PerRequestTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return response{}, fmt.Errorf("new request: %w", err)
	}
	if !isHTTPScheme(req.URL) {
		return response{}, fmt.Errorf("unsupported URL scheme: %q", req.URL.String())
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if validators != nil {
		if validators.ETag != "" {
			req.Header.Set("If-None-Match", validators.ETag)
		}
		if validators.LastModified != "" {
			req.Header.Set("If-Modified-Since", validators.LastModified)
		}
	}

	resp, err := c.getHTTPClient().Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()

	res := response{
		status:       resp.StatusCode,
		finalURL:     resp.Request.URL.String(),
		contentType:  resp.Header.Get("Content-Type"),
		etag:         resp.Header.Get("ETag"),
		lastModified: resp.Header.Get("Last-Modified"),
	}
	switch {
	case resp.StatusCode >= 500:
		return res, fmt.Errorf("%w: %d", ErrServer, resp.StatusCode)
	case resp.StatusCode == http.StatusNotModified:
		return res, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return res, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	if !isAllowedHTMLContentType(res.contentType) {
		return res, fmt.Errorf("unsupported content type: %s", res.contentType)
	}
	res.body, err = io.ReadAll(resp.Body)
	if err != nil {
		return res, fmt.Errorf("read body: %w", err)
	}
	return res, nil
}

// decode converts body to UTF-8 using the content type charset, a BOM or a
// <meta charset> sniff.
func decode(finalURL, contentType string, body []byte, fromCache bool) (Page, error) {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return Page{}, fmt.Errorf("charset: %w", err)
	}
	utf8, err := io.ReadAll(r)
	if err != nil {
		return Page{}, fmt.Errorf("decode body: %w", err)
	}
	return Page{URL: finalURL, ContentType: contentType, Body: utf8, FromCache: fromCache}, nil
}

func isTransient(err error) bool {
	return errors.Is(err, ErrServer) || errors.Is(err, context.DeadlineExceeded)
}

func (c *Client) checkRedirectFunc() func(req *http.Request, via []*http.Request) error {
	max := c.RedirectMaxHops
	if max <= 0 {
		max = 5
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= max {
			return errors.New("too many redirects")
		}
		if !isHTTPScheme(req.URL) {
			return errors.New("redirect to unsupported scheme")
		}
		return nil
	}
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

func isAllowedHTMLContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	return strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml+xml")
}
