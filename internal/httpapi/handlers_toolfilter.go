package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/hootmcp/gateway/internal/toolfilter"
)

type filterServerDTO struct {
	ID    string              `json:"id"`
	Name  string              `json:"name"`
	Tools []toolDescriptorDTO `json:"tools"`
}

type filterInitializeRequest struct {
	Servers []filterServerDTO `json:"servers"`
}

func (s *Server) handleFilterInitialize(w http.ResponseWriter, r *http.Request) {
	tenant := GetTenantID(r.Context())

	var req filterInitializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeKindError(w, KindValidationError, "invalid request body")
		return
	}

	servers := make([]toolfilter.ServerTools, len(req.Servers))
	for i, srv := range req.Servers {
		tools := make([]toolfilter.ToolDescriptor, len(srv.Tools))
		for j, t := range srv.Tools {
			var schema map[string]any
			if m, ok := t.InputSchema.(map[string]any); ok {
				schema = m
			}
			tools[j] = toolfilter.ToolDescriptor{Name: t.Name, Description: t.Description, InputSchema: schema}
		}
		servers[i] = toolfilter.ServerTools{ID: srv.ID, Name: srv.Name, Tools: tools}
	}

	if err := s.filterIndex(tenant).Initialize(r.Context(), servers); err != nil {
		writeKindError(w, KindInternal, "failed to build tool filter index")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
	}{Success: true})
}

type filterMessageDTO struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type filterOptionsDTO struct {
	TopK             int     `json:"topK,omitempty"`
	MinScore         float64 `json:"minScore,omitempty"`
	ContextMessages  int     `json:"contextMessages,omitempty"`
	MaxContextTokens int     `json:"maxContextTokens,omitempty"`
}

type filterRequest struct {
	Messages []filterMessageDTO `json:"messages"`
	Options  filterOptionsDTO   `json:"options"`
	Pins     []string           `json:"pins,omitempty"`
}

type scoredToolDTO struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	InputSchema any     `json:"inputSchema,omitempty"`
	ServerID    string  `json:"serverId"`
	Score       float64 `json:"score"`
	Pinned      bool    `json:"pinned,omitempty"`
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	tenant := GetTenantID(r.Context())

	var req filterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeKindError(w, KindValidationError, "invalid request body")
		return
	}

	idx := s.filterIndex(tenant)
	if !idx.Initialized() {
		writeKindError(w, KindFilterNotInitialized, "tool filter has not been initialized for this tenant")
		return
	}

	messages := make([]toolfilter.Message, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = toolfilter.Message{Role: m.Role, Content: m.Content}
	}
	opts := toolfilter.FilterOptions{
		TopK:             req.Options.TopK,
		MinScore:         req.Options.MinScore,
		ContextMessages:  req.Options.ContextMessages,
		MaxContextTokens: req.Options.MaxContextTokens,
	}

	tools, metrics, err := idx.Filter(r.Context(), messages, opts, req.Pins)
	if err != nil {
		writeKindError(w, KindInternal, "tool filter scoring failed")
		return
	}

	dtos := make([]scoredToolDTO, len(tools))
	for i, t := range tools {
		dtos[i] = scoredToolDTO{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
			ServerID:    t.ServerID,
			Score:       t.Score,
			Pinned:      t.Pinned,
		}
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool               `json:"success"`
		Tools   []scoredToolDTO    `json:"tools"`
		Metrics toolfilter.Metrics `json:"metrics"`
	}{Success: true, Tools: dtos, Metrics: metrics})
}

func (s *Server) handleFilterClearCache(w http.ResponseWriter, r *http.Request) {
	tenant := GetTenantID(r.Context())
	s.filterIndex(tenant).ClearCache()

	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
	}{Success: true})
}
