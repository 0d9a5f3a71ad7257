package oauthclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// metadataCacheTTL balances avoiding a round-trip on every OAuth operation
// against noticing authorization-server key/endpoint rotation promptly.
const metadataCacheTTL = 30 * time.Minute

// ASMetadata is the subset of RFC 8414 authorization-server metadata (or its
// OpenID Connect discovery-document equivalent) the provider needs.
type ASMetadata struct {
	Issuer                 string   `json:"issuer"`
	AuthorizationEndpoint  string   `json:"authorization_endpoint"`
	TokenEndpoint          string   `json:"token_endpoint"`
	RegistrationEndpoint   string   `json:"registration_endpoint"`
	ScopesSupported        []string `json:"scopes_supported"`
	TokenEndpointAuthKinds []string `json:"token_endpoint_auth_methods_supported"`
}

// protectedResourceMetadata is the RFC 9728 document served from the
// upstream MCP server's own `/.well-known/oauth-protected-resource`.
type protectedResourceMetadata struct {
	Resource             string   `json:"resource"`
	AuthorizationServers  []string `json:"authorization_servers"`
}

type metadataCacheEntry struct {
	metadata  *ASMetadata
	fetchedAt time.Time
}

// discoverer resolves authorization-server metadata for an upstream MCP
// server, caching by the upstream's base URL and coalescing concurrent
// fetches for the same URL with singleflight.
type discoverer struct {
	httpClient *http.Client

	mu    sync.RWMutex
	cache map[string]*metadataCacheEntry
	group singleflight.Group
}

func newDiscoverer(httpClient *http.Client) *discoverer {
	return &discoverer{
		httpClient: httpClient,
		cache:      make(map[string]*metadataCacheEntry),
	}
}

// discover resolves metadata for baseURL. customMetadata, when non-nil,
// bypasses discovery entirely.
func (d *discoverer) discover(ctx context.Context, baseURL string, customMetadata *ASMetadata) (*ASMetadata, error) {
	if customMetadata != nil {
		return customMetadata, nil
	}

	d.mu.RLock()
	if entry, ok := d.cache[baseURL]; ok && time.Since(entry.fetchedAt) < metadataCacheTTL {
		d.mu.RUnlock()
		return entry.metadata, nil
	}
	d.mu.RUnlock()

	result, err, _ := d.group.Do(baseURL, func() (any, error) {
		d.mu.RLock()
		if entry, ok := d.cache[baseURL]; ok && time.Since(entry.fetchedAt) < metadataCacheTTL {
			d.mu.RUnlock()
			return entry.metadata, nil
		}
		d.mu.RUnlock()
		return d.fetch(ctx, baseURL)
	})
	if err != nil {
		return nil, err
	}
	return result.(*ASMetadata), nil
}

func (d *discoverer) fetch(ctx context.Context, baseURL string) (*ASMetadata, error) {
	asURL := baseURL
	if prm, err := d.fetchProtectedResource(ctx, baseURL); err == nil && len(prm.AuthorizationServers) > 0 {
		asURL = prm.AuthorizationServers[0]
	}

	metadata, err := d.fetchASMetadata(ctx, asURL, "/.well-known/oauth-authorization-server")
	if err != nil {
		metadata, err = d.fetchASMetadata(ctx, asURL, "/.well-known/openid-configuration")
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDiscoveryFailed, asURL, err)
	}

	d.mu.Lock()
	d.cache[baseURL] = &metadataCacheEntry{metadata: metadata, fetchedAt: time.Now()}
	d.mu.Unlock()

	return metadata, nil
}

func (d *discoverer) fetchProtectedResource(ctx context.Context, baseURL string) (*protectedResourceMetadata, error) {
	url := strings.TrimSuffix(baseURL, "/") + "/.well-known/oauth-protected-resource"
	var prm protectedResourceMetadata
	if err := d.getJSON(ctx, url, &prm); err != nil {
		return nil, err
	}
	return &prm, nil
}

func (d *discoverer) fetchASMetadata(ctx context.Context, baseURL, wellKnownPath string) (*ASMetadata, error) {
	url := strings.TrimSuffix(baseURL, "/") + wellKnownPath
	var m ASMetadata
	if err := d.getJSON(ctx, url, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (d *discoverer) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
