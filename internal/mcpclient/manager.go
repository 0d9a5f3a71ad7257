// Package mcpclient implements C5: opening MCP client sessions to upstream
// servers, performing the initialize handshake, and forwarding tool listing
// and tool execution, transparently resolving OAuth bearer tokens through an
// oauthclient.Provider.
package mcpclient

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hootmcp/gateway/internal/oauthclient"
	"github.com/hootmcp/gateway/internal/tenantstore"
)

// Manager is the process-wide C5 component. One instance is shared across
// all tenants; every method is keyed (tenant, serverId) and safe for
// concurrent use.
type Manager struct {
	oauth    *oauthclient.Provider
	sessions *sessionCache
}

// New constructs a Manager over a shared OAuth provider.
func New(oauth *oauthclient.Provider) *Manager {
	return &Manager{
		oauth:    oauth,
		sessions: newSessionCache(),
	}
}

// ActiveConnections reports the live session count, for the health
// endpoint's activeConnections field.
func (m *Manager) ActiveConnections() int {
	return m.sessions.count()
}

// IsConnected reports whether a live session is cached for (tenant, serverId).
func (m *Manager) IsConnected(tenant, serverID string) bool {
	return m.sessions.isConnected(tenant, serverID)
}

// ConnectedServerIDs returns the serverIds tenant currently has a live
// cached session for.
func (m *Manager) ConnectedServerIDs(tenant string) []string {
	return m.sessions.listServerIDs(tenant)
}

// ConnectConfig is the per-call input to Connect: the upstream location and
// auth shape, plus an optional authorization code completing an in-flight
// OAuth redirect.
type ConnectConfig struct {
	URL                string
	Transport          tenantstore.TransportKind
	Auth               AuthConfig
	AuthorizationCode  string
	AuthorizationState string

	// ReturnState is opaque caller data folded into the authorization URL's
	// state parameter so a later /oauth/callback can recover which
	// (tenant, serverId) the callback belongs to. Only used when Connect
	// reaches StartAuthorization, and then on every such call.
	ReturnState string
}

// Connect resolves auth, opens a transport, and performs the initialize
// handshake. On success a session is cached (tenant, serverId); on
// NeedsAuth, nothing is cached and no Go error is raised — the caller
// inspects ConnectResult.NeedsAuth.
func (m *Manager) Connect(ctx context.Context, tenant, serverID string, cfg ConnectConfig) (*ConnectResult, error) {
	headers, err := m.resolveHeaders(ctx, tenant, serverID, cfg.Auth)
	if err != nil && err != oauthclient.ErrNeedsAuthorization {
		return nil, err
	}
	needsAuthUpfront := err == oauthclient.ErrNeedsAuthorization

	if !needsAuthUpfront {
		info, initErr := m.openAndInitialize(ctx, tenant, serverID, cfg, headers)
		if initErr == nil {
			return &ConnectResult{ServerInfo: info}, nil
		}
		if !isUnauthorized(initErr) {
			return nil, fmt.Errorf("%w: %w", ErrTransport, initErr)
		}
	}

	// Unauthorized (or no token was obtainable without a redirect).
	if cfg.AuthorizationCode != "" {
		if _, exchErr := m.oauth.ExchangeCode(ctx, tenant, serverID, cfg.Auth.OAuth, cfg.AuthorizationCode, cfg.AuthorizationState); exchErr != nil {
			return nil, fmt.Errorf("%w: exchange code: %w", ErrNeedsAuthorization, exchErr)
		}
		headers, err = m.resolveHeaders(ctx, tenant, serverID, cfg.Auth)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNeedsAuthorization, err)
		}
		info, initErr := m.openAndInitialize(ctx, tenant, serverID, cfg, headers)
		if initErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrTransport, initErr)
		}
		return &ConnectResult{ServerInfo: info}, nil
	}

	authURL, startErr := m.oauth.StartAuthorization(ctx, tenant, serverID, cfg.Auth.OAuth, cfg.ReturnState)
	if startErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrNeedsAuthorization, startErr)
	}
	return &ConnectResult{NeedsAuth: true, AuthorizationURL: authURL.AuthorizationURL}, nil
}

// resolveHeaders builds the request headers for an upstream call: static
// headers for AuthNone/AuthHeader, or static headers plus a bearer token
// resolved from the OAuth provider for AuthOAuth/AuthClientCredential.
func (m *Manager) resolveHeaders(ctx context.Context, tenant, serverID string, auth AuthConfig) (map[string]string, error) {
	switch auth.Kind {
	case tenantstore.AuthOAuth, tenantstore.AuthClientCredential:
		token, err := m.oauth.EnsureValidToken(ctx, tenant, serverID, auth.OAuth)
		if err != nil {
			return nil, err
		}
		return mergedHeaders(auth, token), nil
	default:
		return mergedHeaders(auth, ""), nil
	}
}

// resolveHeadersForced is resolveHeaders' counterpart for the retry path:
// for OAuth/client-credential auth it forces the provider to refresh (or
// re-acquire) a token rather than trusting the locally-cached expiry, since
// retryAfterUnauthorized only runs after an upstream has already rejected
// whatever token resolveHeaders last handed it.
func (m *Manager) resolveHeadersForced(ctx context.Context, tenant, serverID string, auth AuthConfig) (map[string]string, error) {
	switch auth.Kind {
	case tenantstore.AuthOAuth, tenantstore.AuthClientCredential:
		token, err := m.oauth.ForceRefresh(ctx, tenant, serverID, auth.OAuth)
		if err != nil {
			return nil, err
		}
		return mergedHeaders(auth, token), nil
	default:
		return mergedHeaders(auth, ""), nil
	}
}

// openAndInitialize builds a fresh transport and performs the MCP
// initialize handshake with a 10-second deadline, caching the resulting
// session on success.
func (m *Manager) openAndInitialize(ctx context.Context, tenant, serverID string, cfg ConnectConfig, headers map[string]string) (ServerInfo, error) {
	c, err := buildTransport(ctx, cfg.URL, cfg.Transport, headers)
	if err != nil {
		return ServerInfo{}, err
	}

	info, err := performHandshake(ctx, c)
	if err != nil {
		_ = c.Close()
		return ServerInfo{}, err
	}

	m.sessions.put(tenant, serverID, &session{
		client:     c,
		serverInfo: info,
		url:        cfg.URL,
		transport:  cfg.Transport,
		auth:       cfg.Auth,
		openedAt:   time.Now(),
	})
	return info, nil
}

// performHandshake runs the MCP initialize call against an already-started
// transport with a 10-second deadline, without touching the session cache.
// Shared by Manager.openAndInitialize and ProbeInitialize.
func performHandshake(ctx context.Context, c client.MCPClient) (ServerInfo, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, initializeTimeout)
	defer cancel()

	req := mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: "2024-11-05",
			ClientInfo: mcp.Implementation{
				Name:    "hoot-gateway",
				Version: "1.0.0",
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	}

	result, err := c.Initialize(timeoutCtx, req)
	if err != nil {
		return ServerInfo{}, err
	}
	return ServerInfo{Name: result.ServerInfo.Name, Version: result.ServerInfo.Version}, nil
}

// ProbeInitialize opens a throwaway transport, performs the initialize
// handshake, and closes the connection without caching anything. Used by
// the auto-detect probe, which must never leave a session behind.
func ProbeInitialize(ctx context.Context, url string, kind tenantstore.TransportKind, headers map[string]string) (ServerInfo, error) {
	c, err := buildTransport(ctx, url, kind, headers)
	if err != nil {
		return ServerInfo{}, err
	}
	defer c.Close()
	return performHandshake(ctx, c)
}

// IsUnauthorized classifies err as an authorization failure using the same
// heuristic the session retry path uses.
func IsUnauthorized(err error) bool { return isUnauthorized(err) }

// ensureSession returns a cached session, opening one transparently from
// last-known configuration when none is cached.
func (m *Manager) ensureSession(ctx context.Context, tenant, serverID string, fallback ConnectConfig) (*session, error) {
	if s := m.sessions.get(tenant, serverID); s != nil {
		return s, nil
	}
	if fallback.URL == "" {
		return nil, ErrNoSession
	}
	headers, err := m.resolveHeaders(ctx, tenant, serverID, fallback.Auth)
	if err != nil {
		return nil, err
	}
	if _, err := m.openAndInitialize(ctx, tenant, serverID, fallback, headers); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return m.sessions.get(tenant, serverID), nil
}

// ListTools returns the upstream's full tool set, opening a session
// transparently using fallback if none is cached.
func (m *Manager) ListTools(ctx context.Context, tenant, serverID string, fallback ConnectConfig) ([]mcp.Tool, error) {
	s, err := m.ensureSession(ctx, tenant, serverID, fallback)
	if err != nil {
		return nil, err
	}

	result, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		if isUnauthorized(err) {
			return m.retryAfterUnauthorized(ctx, tenant, serverID, fallback, func(s *session) (any, error) {
				return s.client.ListTools(ctx, mcp.ListToolsRequest{})
			})
		}
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return result.Tools, nil
}

// CallTool forwards a tool execution unchanged, returning the upstream's
// result structurally unchanged. args and the returned result are passed
// through verbatim; the gateway never reinterprets them.
func (m *Manager) CallTool(ctx context.Context, tenant, serverID, name string, args map[string]any, fallback ConnectConfig) (*mcp.CallToolResult, error) {
	s, err := m.ensureSession(ctx, tenant, serverID, fallback)
	if err != nil {
		return nil, err
	}

	req := mcp.CallToolRequest{
		Params: struct {
			Name      string    `json:"name"`
			Arguments any       `json:"arguments,omitempty"`
			Meta      *mcp.Meta `json:"_meta,omitempty"`
		}{
			Name:      name,
			Arguments: args,
		},
	}

	result, err := s.client.CallTool(ctx, req)
	if err != nil {
		if isUnauthorized(err) {
			retried, rerr := m.retryAfterUnauthorized(ctx, tenant, serverID, fallback, func(s *session) (any, error) {
				return s.client.CallTool(ctx, req)
			})
			if rerr != nil {
				return nil, rerr
			}
			return retried.(*mcp.CallToolResult), nil
		}
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return result, nil
}

// retryAfterUnauthorized evicts the dead session, forces a token refresh,
// reopens, and tries the call exactly once more. A second Unauthorized
// surfaces ErrNeedsAuthorization and invalidates the stored tokens so they
// don't accumulate silently.
func (m *Manager) retryAfterUnauthorized(ctx context.Context, tenant, serverID string, fallback ConnectConfig, call func(*session) (any, error)) (any, error) {
	m.sessions.evict(tenant, serverID)

	headers, err := m.resolveHeadersForced(ctx, tenant, serverID, fallback.Auth)
	if err != nil {
		_ = m.oauth.Invalidate(ctx, tenant, serverID, tenantstore.ScopeTokens)
		return nil, ErrNeedsAuthorization
	}
	if _, err := m.openAndInitialize(ctx, tenant, serverID, fallback, headers); err != nil {
		_ = m.oauth.Invalidate(ctx, tenant, serverID, tenantstore.ScopeTokens)
		return nil, ErrNeedsAuthorization
	}

	s := m.sessions.get(tenant, serverID)
	result, err := call(s)
	if err != nil {
		if isUnauthorized(err) {
			m.sessions.evict(tenant, serverID)
			_ = m.oauth.Invalidate(ctx, tenant, serverID, tenantstore.ScopeTokens)
			return nil, ErrNeedsAuthorization
		}
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return result, nil
}

// Disconnect closes and evicts any cached session for (tenant, serverId).
// Safe to call when no session is cached.
func (m *Manager) Disconnect(tenant, serverID string) {
	m.sessions.evict(tenant, serverID)
}
