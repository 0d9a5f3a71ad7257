package oauthclient

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	verifierBytes = 32
	stateBytes    = 32
)

// generatePKCE returns a code verifier and its S256 challenge, per RFC 7636.
func generatePKCE() (verifier, challenge string, err error) {
	raw := make([]byte, verifierBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("oauthclient: generate pkce verifier: %w", err)
	}
	verifier = base64.RawURLEncoding.EncodeToString(raw)

	sum := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(sum[:])
	return verifier, challenge, nil
}

// generateState returns a random 32-byte CSRF token, base64url-encoded.
func generateState() (string, error) {
	raw := make([]byte, stateBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("oauthclient: generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// encodeState concatenates the CSRF token with an opaque, caller-supplied
// return-state blob, base64url-encoding the pair so the OAuth server treats
// it as a single opaque string and echoes it back on callback unmodified.
func encodeState(csrf, returnState string) string {
	joined := csrf + "." + returnState
	return base64.RawURLEncoding.EncodeToString([]byte(joined))
}

// decodeState splits an encoded state back into its CSRF token and return
// state. Returns ok=false if the blob is malformed.
func decodeState(encoded string) (csrf, returnState string, ok bool) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", false
	}
	s := string(raw)
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

// PeekReturnState decodes the caller-supplied return-state blob out of a raw
// callback state parameter without touching any stored verifier. Callers
// needing to route a callback to the right (tenant, serverId) before they
// can call ExchangeCode use this; ExchangeCode itself decodes state again
// once it holds the lock for that (tenant, serverId).
func PeekReturnState(encoded string) (returnState string, ok bool) {
	_, returnState, ok = decodeState(encoded)
	return
}
