package mcpclient

import (
	"time"

	"github.com/hootmcp/gateway/internal/oauthclient"
	"github.com/hootmcp/gateway/internal/tenantstore"
)

// initializeTimeout bounds the MCP initialize handshake.
const initializeTimeout = 10 * time.Second

// AuthConfig is the per-(tenant, serverId) authentication shape the manager
// needs to build request headers and, for oauth/client_credentials kinds,
// to resolve a bearer token from the OAuth provider.
type AuthConfig struct {
	Kind          tenantstore.AuthKind
	StaticHeaders map[string]string
	OAuth         oauthclient.ServerConfig
}

// ServerInfo is the negotiated identity of an upstream MCP server, captured
// during the initialize handshake.
type ServerInfo struct {
	Name    string
	Version string
}

// ConnectResult is returned by Connect. Exactly one of (a session having
// been cached) or NeedsAuth is true; NeedsAuth is never surfaced as a Go
// error, since it is an expected outcome the caller must act on, not a
// failure.
type ConnectResult struct {
	NeedsAuth        bool
	AuthorizationURL string
	ServerInfo       ServerInfo
}
