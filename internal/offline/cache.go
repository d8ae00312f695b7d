// Package offline is an HTTP caching layer for streaming clients: manifests
// and segments are served cache-first from a versioned video cache, and a
// precached app shell is served from a versioned app cache.
package offline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	DefaultAppCache   = "streamplex-v1"
	DefaultVideoCache = "video-chunks-v1"
)

// DefaultPrecache is the app shell stored by Install.
var DefaultPrecache = []string{"/", "/static/js/bundle.js", "/static/css/main.css", "/manifest.json"}

var (
	// ErrInstall is wrapped by Install failures. Nothing is stored when
	// Install fails.
	ErrInstall = errors.New("offline: install failed")
)

// Observer receives one call per cache lookup. result is "hit" or "miss".
type Observer interface {
	CacheResult(cache, result string)
}

// Options configures a Cache. Zero values select the defaults.
type Options struct {
	AppCache   string
	VideoCache string
	Logger     *slog.Logger
	Observer   Observer
}

// Cache is an http.RoundTripper backed by a Store.
type Cache struct {
	next       http.RoundTripper
	appCache   string
	videoCache string
	log        *slog.Logger
	obs        Observer

	mu    sync.RWMutex
	store Store
}

// New returns a Cache that fetches through next (http.DefaultTransport when
// nil) and stores into store (a new InMemoryStore when nil).
func New(next http.RoundTripper, store Store, opts Options) *Cache {
	if next == nil {
		next = http.DefaultTransport
	}
	if store == nil {
		store = NewInMemoryStore()
	}
	if opts.AppCache == "" {
		opts.AppCache = DefaultAppCache
	}
	if opts.VideoCache == "" {
		opts.VideoCache = DefaultVideoCache
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Cache{
		next:       next,
		appCache:   opts.AppCache,
		videoCache: opts.VideoCache,
		log:        opts.Logger,
		obs:        opts.Observer,
		store:      store,
	}
}

// IsVideo reports whether u names a playlist or a transport stream segment.
func IsVideo(u *url.URL) bool {
	return strings.Contains(u.Path, ".m3u8") || strings.Contains(u.Path, ".ts")
}

// RoundTrip implements http.RoundTripper.
func (c *Cache) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return c.next.RoundTrip(req)
	}
	if IsVideo(req.URL) {
		return c.video(req)
	}
	return c.asset(req)
}

// video serves from the video cache, or fetches and stores 200 responses.
func (c *Cache) video(req *http.Request) (*http.Response, error) {
	key := req.URL.String()

	c.mu.RLock()
	e, ok := c.store.Get(c.videoCache, key)
	c.mu.RUnlock()
	if ok {
		c.observe(c.videoCache, "hit")
		return e.response(req), nil
	}
	c.observe(c.videoCache, "miss")

	resp, err := c.next.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		return resp, err
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	c.put(c.videoCache, key, resp, body)
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

// asset serves any cached copy, falling through to the network unstored.
func (c *Cache) asset(req *http.Request) (*http.Response, error) {
	if e, cache, ok := c.match(req.URL.String()); ok {
		c.observe(cache, "hit")
		return e.response(req), nil
	}
	c.observe(c.appCache, "miss")
	return c.next.RoundTrip(req)
}

// match looks key up in every cache, current versions first.
func (c *Cache) match(key string) (Entry, string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := []string{c.appCache, c.videoCache}
	for _, name := range c.sortedNamesLocked() {
		if name != c.appCache && name != c.videoCache {
			names = append(names, name)
		}
	}
	for _, name := range names {
		if e, ok := c.store.Get(name, key); ok {
			return e, name, true
		}
	}
	return Entry{}, "", false
}

// Install fetches every url and stores the responses in the app cache.
// Relative urls are resolved against base. Any non-2xx response or transport
// error fails the whole install.
func (c *Cache) Install(ctx context.Context, base string, urls []string) error {
	baseURL, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("%w: base %q: %v", ErrInstall, base, err)
	}

	type fetched struct {
		key  string
		resp *http.Response
		body []byte
	}
	var all []fetched
	for _, raw := range urls {
		ref, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInstall, raw, err)
		}
		u := baseURL.ResolveReference(ref)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInstall, err)
		}
		resp, err := c.next.RoundTrip(req)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInstall, u, err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInstall, u, err)
		}
		if resp.StatusCode/100 != 2 {
			return fmt.Errorf("%w: %s: status %d", ErrInstall, u, resp.StatusCode)
		}
		all = append(all, fetched{key: u.String(), resp: resp, body: body})
	}

	for _, f := range all {
		c.put(c.appCache, f.key, f.resp, f.body)
	}
	c.log.Info("offline cache installed",
		slog.String("cache", c.appCache),
		slog.Int("entries", len(all)))
	return nil
}

// Activate deletes every cache other than the current app and video caches
// and returns the deleted names.
func (c *Cache) Activate() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var deleted []string
	for _, name := range c.sortedNamesLocked() {
		if name == c.appCache || name == c.videoCache {
			continue
		}
		c.store.DeleteCache(name)
		deleted = append(deleted, name)
	}
	if len(deleted) > 0 {
		c.log.Info("offline caches purged", slog.Any("caches", deleted))
	}
	return deleted
}

// Contains reports whether cache holds rawURL.
func (c *Cache) Contains(cache, rawURL string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.store.Get(cache, rawURL)
	return ok
}

func (c *Cache) put(cache, key string, resp *http.Response, body []byte) {
	e := Entry{
		URL:      key,
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     append([]byte(nil), body...),
		StoredAt: time.Now().UTC(),
	}
	c.mu.Lock()
	c.store.Put(cache, key, e)
	c.mu.Unlock()
}

func (c *Cache) sortedNamesLocked() []string {
	names := c.store.CacheNames()
	sort.Strings(names)
	return names
}

func (c *Cache) observe(cache, result string) {
	if c.obs != nil {
		c.obs.CacheResult(cache, result)
	}
}

// response builds a fresh response for req from a stored entry.
func (e Entry) response(req *http.Request) *http.Response {
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        e.Header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}
