package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/hootmcp/gateway/internal/authn"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status            string `json:"status"`
		ActiveConnections int    `json:"activeConnections"`
	}{Status: "ok", ActiveConnections: s.MCP.ActiveConnections()})
}

func (s *Server) handleJWKS(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Auth.JWKS())
}

type issueTokenRequest struct {
	UserID string `json:"userId"`
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeKindError(w, KindValidationError, "invalid request body")
		return
	}

	token, tokenType, err := s.Auth.Issue(req.UserID, authn.IssueOpts{
		PortkeyOID:       s.PortkeyOID,
		PortkeyWorkspace: s.PortkeyWorkspace,
	})
	if err != nil {
		writeKindError(w, KindValidationError, "userId must be a valid UUIDv4")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success   bool   `json:"success"`
		Token     string `json:"token"`
		TokenType string `json:"tokenType"`
	}{Success: true, Token: token, TokenType: tokenType})
}
