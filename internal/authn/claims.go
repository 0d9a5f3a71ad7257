package authn

import "github.com/golang-jwt/jwt/v5"

// Claims is the full claim set carried by a gateway-issued token. A token
// doubles as the gateway's own credential and as the bearer the
// external LLM proxy consumes, which is why PortkeyOID/PortkeyWorkspace/Scope
// ride alongside the standard registered claims.
type Claims struct {
	jwt.RegisteredClaims

	EmailID          string `json:"email_id"`
	PortkeyOID       string `json:"portkey_oid,omitempty"`
	PortkeyWorkspace string `json:"portkey_workspace,omitempty"`
	Scope            string `json:"scope,omitempty"`

	// TokenType distinguishes a gateway-signed JWT from the HMAC fallback
	// session token.
	TokenType string `json:"token_type"`
}

// TenantID is a readable alias for the sub claim.
func (c Claims) TenantID() string { return c.Subject }
