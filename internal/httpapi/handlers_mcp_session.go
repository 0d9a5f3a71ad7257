package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hootmcp/gateway/internal/mcpclient"
)

// fallbackConnect resolves the connect config ensureSession needs to reopen
// a transport with no caller-supplied body: the façade's own in-memory
// last-connect cache when present, else a best-effort reconstruction from
// the persisted upstream server row. The persisted row carries only display
// and classification metadata, so a reconstructed oauth/client_credentials
// config has no client secret or custom AS metadata — good enough to resume
// a server already holding a valid, non-expired token, but a restart-after-
// expiry will surface NeedsAuth until the caller reconnects explicitly.
func (s *Server) fallbackConnect(ctx context.Context, tenant, serverID string) mcpclient.ConnectConfig {
	if cfg := s.lastConnect(tenant, serverID); cfg.URL != "" {
		return cfg
	}
	srv, err := s.Store.GetUpstreamServer(ctx, tenant, serverID)
	if err != nil {
		return mcpclient.ConnectConfig{}
	}
	return mcpclient.ConnectConfig{
		URL:       srv.URL,
		Transport: srv.Transport,
		Auth:      mcpclient.AuthConfig{Kind: srv.Auth},
	}
}

func toolToDTO(t mcp.Tool) toolDescriptorDTO {
	raw, err := json.Marshal(t)
	if err != nil {
		return toolDescriptorDTO{Name: t.Name, Description: t.Description}
	}
	var dto toolDescriptorDTO
	_ = json.Unmarshal(raw, &dto)
	return dto
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	tenant := GetTenantID(r.Context())
	serverID := chi.URLParam(r, "serverId")

	fallback := s.fallbackConnect(r.Context(), tenant, serverID)
	tools, err := s.MCP.ListTools(r.Context(), tenant, serverID, fallback)
	if err != nil {
		kind, msg := classifyMCPError(err)
		writeKindError(w, kind, msg)
		return
	}

	dtos := make([]toolDescriptorDTO, len(tools))
	for i, t := range tools {
		dtos[i] = toolToDTO(t)
	}
	writeJSON(w, http.StatusOK, struct {
		Tools []toolDescriptorDTO `json:"tools"`
	}{Tools: dtos})
}

type executeRequest struct {
	ServerID  string         `json:"serverId"`
	ToolName  string         `json:"toolName"`
	Arguments map[string]any `json:"arguments"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	tenant := GetTenantID(r.Context())

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeKindError(w, KindValidationError, "invalid request body")
		return
	}
	if req.ServerID == "" || req.ToolName == "" {
		writeKindError(w, KindValidationError, "serverId and toolName are required")
		return
	}

	fallback := s.fallbackConnect(r.Context(), tenant, req.ServerID)
	result, err := s.MCP.CallTool(r.Context(), tenant, req.ServerID, req.ToolName, req.Arguments, fallback)
	if err != nil {
		kind, msg := classifyMCPError(err)
		writeKindError(w, kind, msg)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Result *mcp.CallToolResult `json:"result"`
	}{Result: result})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	tenant := GetTenantID(r.Context())
	serverID := chi.URLParam(r, "serverId")

	writeJSON(w, http.StatusOK, struct {
		Connected bool `json:"connected"`
	}{Connected: s.MCP.IsConnected(tenant, serverID)})
}

func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	tenant := GetTenantID(r.Context())

	ids := s.MCP.ConnectedServerIDs(tenant)
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, struct {
		Connections []string `json:"connections"`
	}{Connections: ids})
}

func (s *Server) handleServerInfo(w http.ResponseWriter, r *http.Request) {
	tenant := GetTenantID(r.Context())
	serverID := chi.URLParam(r, "serverId")

	srv, err := s.Store.GetUpstreamServer(r.Context(), tenant, serverID)
	if err != nil {
		writeKindError(w, KindNotFound, "unknown serverId")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		ServerInfo serverInfoDTO `json:"serverInfo"`
	}{ServerInfo: serverInfoDTO{Name: srv.Name, Version: srv.Version}})
}
