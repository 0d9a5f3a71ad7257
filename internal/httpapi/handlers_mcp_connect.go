package httpapi

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hootmcp/gateway/internal/autodetect"
	"github.com/hootmcp/gateway/internal/mcpclient"
	"github.com/hootmcp/gateway/internal/oauthclient"
	"github.com/hootmcp/gateway/internal/tenantstore"
)

type urlRequest struct {
	URL string `json:"url"`
}

// probePlaceholderID derives a stable (tenant-scoped) serverId for a URL
// that hasn't been registered yet, so auto-detect can mint a real
// authorization URL through the same StartAuthorization path /mcp/connect
// uses, without requiring the caller to pick a serverId up front.
func probePlaceholderID(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return "autodetect-" + hex.EncodeToString(sum[:])[:16]
}

func (s *Server) handleAutoDetect(w http.ResponseWriter, r *http.Request) {
	tenant := GetTenantID(r.Context())

	var req urlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeKindError(w, KindValidationError, "url is required")
		return
	}

	result, err := autodetect.Probe(r.Context(), req.URL)
	if err != nil {
		writeKindError(w, KindTransportError, "could not reach the server over either transport")
		return
	}

	var authURL string
	if result.RequiresOAuth {
		placeholderID := probePlaceholderID(req.URL)
		authRes, aerr := s.OAuth.StartAuthorization(r.Context(), tenant, placeholderID, oauthclient.ServerConfig{BaseURL: req.URL}, "")
		if aerr == nil {
			authURL = authRes.AuthorizationURL
		}
	}

	writeJSON(w, http.StatusOK, struct {
		Success                   bool          `json:"success"`
		Transport                 string        `json:"transport"`
		ServerInfo                serverInfoDTO `json:"serverInfo"`
		ServerInfoSynthesized     bool          `json:"serverInfoSynthesized"`
		RequiresOAuth             bool          `json:"requiresOAuth"`
		AuthURL                   string        `json:"authUrl,omitempty"`
		RequiresClientCredentials bool          `json:"requiresClientCredentials"`
		RequiresHeaderAuth        bool          `json:"requiresHeaderAuth"`
	}{
		Success:                   true,
		Transport:                 string(result.Transport),
		ServerInfo:                serverInfoDTO{Name: result.ServerInfo.Name, Version: result.ServerInfo.Version},
		ServerInfoSynthesized:     result.ServerInfoSynthesized,
		RequiresOAuth:             result.RequiresOAuth,
		AuthURL:                   authURL,
		RequiresClientCredentials: result.RequiresClientCredentials,
		RequiresHeaderAuth:        result.RequiresHeaderAuth,
	})
}

type discoverOAuthRequest struct {
	URL       string `json:"url"`
	Transport string `json:"transport"`
}

// handleDiscoverOAuth reports only auto-detect's OAuth classification. The
// caller's transport is validated but not used for the probe: it runs the
// same autodetect.Probe (streamable HTTP, then SSE), answers requiresOAuth
// false when the probe errors, and returns no server info or auth URL.
func (s *Server) handleDiscoverOAuth(w http.ResponseWriter, r *http.Request) {
	var req discoverOAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeKindError(w, KindValidationError, "url is required")
		return
	}
	if _, ok := parseTransport(req.Transport); !ok {
		writeKindError(w, KindValidationError, "transport must be streamable-http or sse")
		return
	}

	result, err := autodetect.Probe(r.Context(), req.URL)
	if err != nil {
		writeJSON(w, http.StatusOK, struct {
			Success       bool `json:"success"`
			RequiresOAuth bool `json:"requiresOAuth"`
		}{Success: true, RequiresOAuth: false})
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success       bool `json:"success"`
		RequiresOAuth bool `json:"requiresOAuth"`
	}{Success: true, RequiresOAuth: result.RequiresOAuth})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	tenant := GetTenantID(r.Context())

	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeKindError(w, KindValidationError, "invalid request body")
		return
	}
	if req.ServerID == "" || req.URL == "" {
		writeKindError(w, KindValidationError, "serverId and url are required")
		return
	}
	transport, ok := parseTransport(req.Transport)
	if !ok {
		writeKindError(w, KindValidationError, "transport must be streamable-http or sse")
		return
	}
	authCfg, ok := toAuthConfig(req.Auth, req.URL)
	if !ok {
		writeKindError(w, KindValidationError, "auth.kind must be one of none, header, oauth, client_credentials, custom")
		return
	}

	cfg := mcpclient.ConnectConfig{
		URL:                req.URL,
		Transport:          transport,
		Auth:               authCfg,
		AuthorizationCode:  req.AuthorizationCode,
		AuthorizationState: req.AuthorizationState,
		ReturnState:        encodeCallbackState(tenant, req.ServerID),
	}

	result, err := s.MCP.Connect(r.Context(), tenant, req.ServerID, cfg)
	if err != nil {
		kind, msg := classifyMCPError(err)
		writeKindError(w, kind, msg)
		return
	}

	if result.NeedsAuth {
		writeNeedsAuth(w, result.AuthorizationURL)
		return
	}

	s.rememberConnect(tenant, req.ServerID, cfg)
	authKind, _ := authKindOf(req.Auth.Kind)
	_ = s.Store.PutUpstreamServer(r.Context(), tenantstore.UpstreamServer{
		Tenant:    tenant,
		ServerID:  req.ServerID,
		URL:       req.URL,
		Transport: transport,
		Name:      firstNonEmpty(req.ServerName, result.ServerInfo.Name),
		Version:   result.ServerInfo.Version,
		Auth:      authKind,
		UpdatedAt: time.Now(),
	})
	_ = s.Store.TouchTenant(r.Context(), tenant)

	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
	}{Success: true})
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

type serverIDRequest struct {
	ServerID string `json:"serverId"`
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	tenant := GetTenantID(r.Context())
	var req serverIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ServerID == "" {
		writeKindError(w, KindValidationError, "serverId is required")
		return
	}

	s.MCP.Disconnect(tenant, req.ServerID)
	s.forgetConnect(tenant, req.ServerID)

	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
	}{Success: true})
}

func (s *Server) handleClearOAuthTokens(w http.ResponseWriter, r *http.Request) {
	tenant := GetTenantID(r.Context())
	var req serverIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ServerID == "" {
		writeKindError(w, KindValidationError, "serverId is required")
		return
	}

	if err := s.OAuth.Invalidate(r.Context(), tenant, req.ServerID, tenantstore.ScopeAll); err != nil {
		kind, msg := classifyMCPError(err)
		writeKindError(w, kind, msg)
		return
	}
	s.MCP.Disconnect(tenant, req.ServerID)
	s.forgetConnect(tenant, req.ServerID)

	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
	}{Success: true})
}

func (s *Server) handleOAuthMetadata(w http.ResponseWriter, r *http.Request) {
	tenant := GetTenantID(r.Context())
	serverID := chi.URLParam(r, "serverId")

	srv, err := s.Store.GetUpstreamServer(r.Context(), tenant, serverID)
	if err != nil {
		writeKindError(w, KindNotFound, "unknown serverId")
		return
	}

	cached, found := s.Favicons.Resolve(r.Context(), originOf(srv.URL), "")
	writeJSON(w, http.StatusOK, struct {
		Metadata struct {
			Name     string `json:"name"`
			Version  string `json:"version"`
			AuthKind string `json:"authKind"`
			LogoURL  string `json:"logoUrl,omitempty"`
		} `json:"metadata"`
	}{Metadata: struct {
		Name     string `json:"name"`
		Version  string `json:"version"`
		AuthKind string `json:"authKind"`
		LogoURL  string `json:"logoUrl,omitempty"`
	}{Name: srv.Name, Version: srv.Version, AuthKind: string(srv.Auth), LogoURL: withFound(cached, found)}})
}

func withFound(u string, found bool) string {
	if !found {
		return ""
	}
	return u
}

// originOf reduces a server URL to scheme+host, the key faviconcache indexes
// logos by. An unparseable URL is returned unchanged so Resolve simply misses.
func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return rawURL
	}
	return u.Scheme + "://" + u.Host
}

// callbackState is the façade's own routing payload, folded into the OAuth
// state parameter's return-state half so a later callback can recover which
// (tenant, serverId) it belongs to without any server-side session.
type callbackState struct {
	Tenant   string `json:"t"`
	ServerID string `json:"s"`
}

func encodeCallbackState(tenant, serverID string) string {
	raw, _ := json.Marshal(callbackState{Tenant: tenant, ServerID: serverID})
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCallbackState(encoded string) (tenant, serverID string, ok bool) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", false
	}
	var cs callbackState
	if err := json.Unmarshal(raw, &cs); err != nil || cs.Tenant == "" || cs.ServerID == "" {
		return "", "", false
	}
	return cs.Tenant, cs.ServerID, true
}

// handleOAuthCallback recovers the (tenant, serverId) a redirect belongs to
// from the state parameter, then re-drives mcpclient.Manager.Connect with
// the remembered connect config plus the authorization code: Connect's own
// AuthorizationCode branch performs the token exchange and retries the
// initialize handshake, exactly as it does when a caller posts the code to
// /mcp/connect directly. The façade never calls the OAuth provider's
// exchange itself, so a code is only ever redeemed once.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		writeKindError(w, KindValidationError, "code and state are required")
		return
	}

	returnState, ok := oauthclient.PeekReturnState(state)
	if !ok {
		writeKindError(w, KindVerifierMissing, "callback state could not be decoded")
		return
	}
	tenant, serverID, ok := decodeCallbackState(returnState)
	if !ok {
		writeKindError(w, KindVerifierMissing, "callback state did not resolve to a pending authorization")
		return
	}

	cfg := s.lastConnect(tenant, serverID)
	if cfg.URL == "" {
		writeKindError(w, KindNotFound, "no pending connection for this callback")
		return
	}
	cfg.AuthorizationCode = code
	cfg.AuthorizationState = state

	result, err := s.MCP.Connect(r.Context(), tenant, serverID, cfg)
	if err != nil {
		kind, msg := classifyMCPError(err)
		writeKindError(w, kind, msg)
		return
	}
	if result.NeedsAuth {
		writeKindError(w, KindUpstreamError, "authorization did not complete")
		return
	}
	s.rememberConnect(tenant, serverID, cfg)

	redirectTo := "/"
	if len(s.AllowedOrigins) > 0 {
		redirectTo = s.AllowedOrigins[0]
	}
	http.Redirect(w, r, redirectTo+"?mcpConnected="+url.QueryEscape(serverID), http.StatusFound)
}
