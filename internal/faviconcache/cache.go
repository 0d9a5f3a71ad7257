// Package faviconcache implements C8: a shared, tenant-agnostic cache
// resolving an MCP server's favicon to an absolute URL, keyed by origin.
package faviconcache

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultTTL is how long a resolved favicon URL is trusted before the cache
// re-probes the origin.
const DefaultTTL = 24 * time.Hour

// probeTimeout bounds each individual HEAD/GET made while resolving a
// origin's favicon.
const probeTimeout = 5 * time.Second

type entry struct {
	faviconURL string
	found      bool
	fetchedAt  time.Time
}

// Cache resolves and remembers one favicon URL per origin: an
// RWMutex-guarded map, a TTL-gated refresh, and stale-on-error fallback
// rather than surfacing a probe failure to the caller once something has
// been resolved before.
type Cache struct {
	httpClient *http.Client
	ttl        time.Duration

	mu      sync.RWMutex
	entries map[string]entry
}

// New constructs a Cache. A nil httpClient gets one built with probeTimeout.
func New(ttl time.Duration, httpClient *http.Client) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: probeTimeout}
	}
	return &Cache{httpClient: httpClient, ttl: ttl, entries: make(map[string]entry)}
}

// Resolve returns the favicon URL for origin, probing and caching it if
// absent or stale. logoURI, when non-empty, is an OAuth AS metadata
// logo_uri already known for this origin and is trusted outright — it
// skips probing entirely, matching the resolution order's first step.
//
// A probe that finds nothing for a stale entry falls back to serving the
// previous result rather than replacing it with a miss.
func (c *Cache) Resolve(ctx context.Context, origin, logoURI string) (string, bool) {
	if logoURI != "" {
		c.store(origin, logoURI, true)
		return logoURI, true
	}

	c.mu.RLock()
	e, ok := c.entries[origin]
	fresh := ok && time.Since(e.fetchedAt) < c.ttl
	c.mu.RUnlock()
	if fresh {
		return e.faviconURL, e.found
	}

	resolved, found := c.probe(ctx, origin)
	if !found && ok {
		log.Warn().Str("origin", origin).Msg("faviconcache: re-probe found nothing, serving stale result")
		return e.faviconURL, e.found
	}

	c.store(origin, resolved, found)
	return resolved, found
}

func (c *Cache) store(origin, faviconURL string, found bool) {
	c.mu.Lock()
	c.entries[origin] = entry{faviconURL: faviconURL, found: found, fetchedAt: time.Now()}
	c.mu.Unlock()
}

// probe tries, in order: the standard /favicon.ico|png|svg paths via HEAD,
// then a GET of the origin's root HTML looking for a <link rel="icon">.
func (c *Cache) probe(ctx context.Context, origin string) (string, bool) {
	for _, name := range []string{"favicon.ico", "favicon.png", "favicon.svg"} {
		candidate := strings.TrimSuffix(origin, "/") + "/" + name
		if c.headOK(ctx, candidate) {
			return candidate, true
		}
	}

	if link, ok := c.linkIconFromHTML(ctx, origin); ok {
		return resolveAgainstOrigin(origin, link), true
	}

	return "", false
}

func (c *Cache) headOK(ctx context.Context, rawURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func resolveAgainstOrigin(origin, link string) string {
	base, err := url.Parse(origin)
	if err != nil {
		return link
	}
	ref, err := url.Parse(link)
	if err != nil {
		return link
	}
	return base.ResolveReference(ref).String()
}
