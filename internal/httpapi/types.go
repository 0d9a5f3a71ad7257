package httpapi

import (
	"github.com/hootmcp/gateway/internal/oauthclient"
	"github.com/hootmcp/gateway/internal/tenantstore"
)

// authRequestDTO is the wire shape of the tagged auth variant submitted to
// /mcp/connect. kind selects which of the remaining fields apply; unknown
// kinds are rejected at the façade per the tagged-variant discipline the
// rest of the system follows for dynamic auth-config shapes.
type authRequestDTO struct {
	Kind           string            `json:"kind"`
	StaticHeaders  map[string]string `json:"staticHeaders,omitempty"`
	BaseURL        string            `json:"baseUrl,omitempty"`
	Scope          string            `json:"scope,omitempty"`
	ClientSecret   string            `json:"clientSecret,omitempty"`
	CustomMetadata *asMetadataDTO    `json:"customMetadata,omitempty"`
}

// asMetadataDTO lets a caller bypass discovery entirely by supplying the
// authorization-server metadata it would otherwise fetch over HTTP.
type asMetadataDTO struct {
	Issuer                string   `json:"issuer"`
	AuthorizationEndpoint string   `json:"authorizationEndpoint"`
	TokenEndpoint         string   `json:"tokenEndpoint"`
	RegistrationEndpoint  string   `json:"registrationEndpoint"`
	ScopesSupported       []string `json:"scopesSupported,omitempty"`
}

func (a asMetadataDTO) toMetadata() *oauthclient.ASMetadata {
	return &oauthclient.ASMetadata{
		Issuer:                a.Issuer,
		AuthorizationEndpoint: a.AuthorizationEndpoint,
		TokenEndpoint:         a.TokenEndpoint,
		RegistrationEndpoint:  a.RegistrationEndpoint,
		ScopesSupported:       a.ScopesSupported,
	}
}

func authKindOf(kind string) (tenantstore.AuthKind, bool) {
	switch kind {
	case "none":
		return tenantstore.AuthNone, true
	case "header":
		return tenantstore.AuthHeader, true
	case "oauth", "custom":
		return tenantstore.AuthOAuth, true
	case "client_credentials":
		return tenantstore.AuthClientCredential, true
	default:
		return "", false
	}
}

// connectRequest is the body of POST /mcp/connect.
type connectRequest struct {
	ServerID           string         `json:"serverId"`
	ServerName         string         `json:"serverName"`
	URL                string         `json:"url"`
	Transport          string         `json:"transport"`
	Auth               authRequestDTO `json:"auth"`
	AuthorizationCode  string         `json:"authorizationCode,omitempty"`
	AuthorizationState string         `json:"authorizationState,omitempty"`
}

type serverInfoDTO struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// toolDescriptorDTO mirrors toolfilter.ToolDescriptor on the wire; kept
// distinct so the façade's JSON shape doesn't silently change if the
// internal type gains fields the wire contract shouldn't expose.
type toolDescriptorDTO struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"inputSchema,omitempty"`
}
