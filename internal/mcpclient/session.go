package mcpclient

import (
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"

	"github.com/hootmcp/gateway/internal/tenantstore"
)

// session is a live MCP connection plus the configuration used to open it,
// so the manager can reopen it transparently after an eviction or a
// mid-session Unauthorized without the caller supplying the config again.
type session struct {
	client     client.MCPClient
	serverInfo ServerInfo
	url        string
	transport  tenantstore.TransportKind
	auth       AuthConfig
	openedAt   time.Time
}

// sessionCache is a process-wide, optimization-only cache of live sessions
// keyed (tenant, serverId). Nothing in Manager depends on a cache hit for
// correctness: a miss simply reopens the session, at the cost of latency.
type sessionCache struct {
	mu sync.RWMutex
	m  map[string]*session
}

func newSessionCache() *sessionCache {
	return &sessionCache{m: make(map[string]*session)}
}

func sessionKey(tenant, serverID string) string { return tenant + "\x00" + serverID }

// get returns the cached session for (tenant, serverId), or nil if absent.
// Only Disconnect or a call the upstream rejects as Unauthorized evicts an
// entry; other call failures leave it cached.
func (c *sessionCache) get(tenant, serverID string) *session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.m[sessionKey(tenant, serverID)]
}

func (c *sessionCache) put(tenant, serverID string, s *session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[sessionKey(tenant, serverID)] = s
}

// evict drops a session, closing its transport first. Safe to call on a
// miss. Used by Disconnect and when a session turns out to be Unauthorized.
func (c *sessionCache) evict(tenant, serverID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := sessionKey(tenant, serverID)
	if s, ok := c.m[k]; ok {
		_ = s.client.Close()
		delete(c.m, k)
	}
}

// count reports the number of live sessions, for the health endpoint's
// activeConnections field in stateful deployments.
func (c *sessionCache) count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// isConnected reports whether a live session is cached for (tenant, serverId).
func (c *sessionCache) isConnected(tenant, serverID string) bool {
	return c.get(tenant, serverID) != nil
}

// listServerIDs returns the serverIds tenant currently has a live cached
// session for.
func (c *sessionCache) listServerIDs(tenant string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	prefix := tenant + "\x00"
	var ids []string
	for k := range c.m {
		if strings.HasPrefix(k, prefix) {
			ids = append(ids, strings.TrimPrefix(k, prefix))
		}
	}
	return ids
}
