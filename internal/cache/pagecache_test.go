package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPageCache_SaveAndLoad(t *testing.T) {
	t.Parallel()
	c := &PageCache{Dir: filepath.Join(t.TempDir(), "pages")}
	e := PageEntry{URL: "https://a.com/x", ContentType: "text/html", ETag: `"v1"`}
	if err := c.Save(context.Background(), e, []byte("<p>hi</p>")); err != nil {
		t.Fatalf("save: %v", err)
	}
	meta, err := c.LoadMeta(context.Background(), e.URL)
	if err != nil {
		t.Fatalf("load meta: %v", err)
	}
	if meta.ETag != `"v1"` || meta.FinalURL != e.URL || meta.SavedAt.IsZero() {
		t.Fatalf("unexpected meta %+v", meta)
	}
	body, err := c.LoadBody(context.Background(), e.URL)
	if err != nil || string(body) != "<p>hi</p>" {
		t.Fatalf("body=%q err=%v", body, err)
	}
	if _, err := c.LoadMeta(context.Background(), "https://a.com/missing"); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist, got %v", err)
	}
}

func TestPageCache_UnconfiguredDir(t *testing.T) {
	var c *PageCache
	if _, err := c.LoadBody(context.Background(), "x"); err == nil {
		t.Fatalf("expected error for nil cache")
	}
}

func TestPageCache_StrictPerms(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "http")
	c := &PageCache{Dir: dir, StrictPerms: true}
	url := "https://example.com/x"
	if err := c.Save(context.Background(), PageEntry{URL: url, ETag: "etag"}, []byte("hello")); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat dir: %v", err)
	}
	if got := info.Mode() & 0o777; got != 0o700 {
		t.Fatalf("dir mode = %o, want 0700", got)
	}
	key := c.key(url)
	for _, f := range []string{filepath.Join(dir, key+".body"), filepath.Join(dir, key+".meta.json")} {
		finfo, err := os.Stat(f)
		if err != nil {
			t.Fatalf("stat %s: %v", f, err)
		}
		if got := finfo.Mode() & 0o777; got != 0o600 {
			t.Fatalf("%s mode = %o, want 0600", f, got)
		}
	}
}

func TestPurgeByAge(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	c := &PageCache{Dir: dir}
	ctx := context.Background()
	if err := c.Save(ctx, PageEntry{URL: "https://a.com/old"}, []byte("old")); err != nil {
		t.Fatalf("save old: %v", err)
	}
	if err := c.Save(ctx, PageEntry{URL: "https://a.com/new"}, []byte("new")); err != nil {
		t.Fatalf("save new: %v", err)
	}
	// Backdate the first entry.
	metaPath := c.metaPath(c.key("https://a.com/old"))
	stale := PageEntry{URL: "https://a.com/old", SavedAt: time.Now().Add(-48 * time.Hour)}
	b, _ := json.Marshal(stale)
	if err := os.WriteFile(metaPath, b, 0o644); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	removed, err := PurgeByAge(dir, 24*time.Hour)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed %d, want 1", removed)
	}
	if _, err := c.LoadBody(ctx, "https://a.com/old"); err == nil {
		t.Fatalf("expected old body removed")
	}
	if _, err := c.LoadBody(ctx, "https://a.com/new"); err != nil {
		t.Fatalf("new body should survive: %v", err)
	}
	if n, _ := PurgeByAge(dir, 0); n != 0 {
		t.Fatalf("zero max age must disable purge")
	}
}

func TestClearDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "c")
	c := &PageCache{Dir: dir}
	if err := c.Save(context.Background(), PageEntry{URL: "u"}, []byte("b")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := ClearDir(dir); err != nil {
		t.Fatalf("clear: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 0 {
		t.Fatalf("expected empty dir, got %d entries err=%v", len(entries), err)
	}
	if err := ClearDir("  "); err == nil {
		t.Fatalf("expected error for blank dir")
	}
}
