// Package oauthclient implements C4: a per-(tenant, serverId) OAuth 2.1
// authorization-code + PKCE client with dynamic client registration, and a
// client-credentials variant for upstreams that advertise it.
package oauthclient

import "time"

// ServerConfig is the upstream-server-specific input the provider needs:
// how to discover its authorization server and, for the client-credentials
// variant, the secret to exchange.
type ServerConfig struct {
	BaseURL          string
	CustomMetadata   *ASMetadata // bypasses discovery entirely when set
	Scope            string
	ClientCredential bool   // use the client-credentials grant instead of authorization-code
	ClientSecret     string // pre-provisioned secret for ClientCredential servers
}

// AuthorizationResult is returned by StartAuthorization.
type AuthorizationResult struct {
	AuthorizationURL string
	State            string
}

// redirectLoopGuard is the minimum spacing between two authorization
// redirects for the same (tenant, serverId).
const redirectLoopGuard = 3 * time.Second
