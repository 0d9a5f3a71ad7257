package httpapi

import (
	"github.com/hootmcp/gateway/internal/mcpclient"
	"github.com/hootmcp/gateway/internal/oauthclient"
	"github.com/hootmcp/gateway/internal/tenantstore"
)

func parseTransport(s string) (tenantstore.TransportKind, bool) {
	switch s {
	case "streamable-http", "http", "":
		return tenantstore.TransportHTTP, true
	case "sse":
		return tenantstore.TransportSSE, true
	default:
		return "", false
	}
}

// toAuthConfig converts the wire auth variant into the internal AuthConfig
// mcpclient needs, defaulting the OAuth discovery base URL to the server's
// own URL when the caller didn't supply one.
func toAuthConfig(dto authRequestDTO, serverURL string) (mcpclient.AuthConfig, bool) {
	kind, ok := authKindOf(dto.Kind)
	if !ok {
		return mcpclient.AuthConfig{}, false
	}

	cfg := mcpclient.AuthConfig{
		Kind:          kind,
		StaticHeaders: dto.StaticHeaders,
	}

	if kind == tenantstore.AuthOAuth || kind == tenantstore.AuthClientCredential {
		baseURL := dto.BaseURL
		if baseURL == "" {
			baseURL = serverURL
		}
		oauthCfg := oauthclient.ServerConfig{
			BaseURL:          baseURL,
			Scope:            dto.Scope,
			ClientCredential: kind == tenantstore.AuthClientCredential,
			ClientSecret:     dto.ClientSecret,
		}
		if dto.CustomMetadata != nil {
			oauthCfg.CustomMetadata = dto.CustomMetadata.toMetadata()
		}
		cfg.OAuth = oauthCfg
	}

	return cfg, true
}
