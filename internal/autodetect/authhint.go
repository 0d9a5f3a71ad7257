package autodetect

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// authHint is what a raw WWW-Authenticate challenge told us about the kind
// of auth an upstream wants, independent of whatever the MCP handshake error
// string said.
type authHint struct {
	oauth            bool
	resourceMetadata string // RFC 9728 resource_metadata URL, when present
}

// hintTimeout bounds the raw challenge probe; it only needs a single
// round-trip so this is much tighter than the handshake timeout.
const hintTimeout = 5 * time.Second

// detectAuthHint issues a bare GET against rawURL and inspects the response
// for a 401/403 carrying a WWW-Authenticate challenge. A Bearer or OAuth
// scheme (optionally carrying RFC 9728's resource_metadata parameter) is
// classified as an OAuth hint; any other 401/403 is header-auth-only.
// Grounded on the WWW-Authenticate parsing shape in
// stacklok-toolhive/pkg/auth/discovery.
func detectAuthHint(ctx context.Context, rawURL string) (hint authHint, challenged bool) {
	timeoutCtx, cancel := context.WithTimeout(ctx, hintTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return authHint{}, false
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return authHint{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
		return authHint{}, false
	}

	header := resp.Header.Get("WWW-Authenticate")
	if header == "" {
		return authHint{}, true
	}

	return parseWWWAuthenticate(header), true
}

// parseWWWAuthenticate recognizes the Bearer and OAuth challenge schemes and
// pulls out the RFC 9728 resource_metadata parameter when present. Any other
// scheme (Basic, Digest, a bare custom token) is treated as non-OAuth.
func parseWWWAuthenticate(header string) authHint {
	header = strings.TrimSpace(header)

	for _, scheme := range []string{"Bearer", "OAuth"} {
		if !strings.HasPrefix(header, scheme) {
			continue
		}
		params := strings.TrimSpace(strings.TrimPrefix(header, scheme))
		return authHint{
			oauth:            true,
			resourceMetadata: extractChallengeParam(params, "resource_metadata"),
		}
	}

	return authHint{oauth: false}
}

func extractChallengeParam(params, name string) string {
	idx := strings.Index(params, name+"=")
	if idx == -1 {
		return ""
	}
	remainder := params[idx+len(name)+1:]
	if strings.HasPrefix(remainder, `"`) {
		if end := strings.Index(remainder[1:], `"`); end != -1 {
			return remainder[1 : end+1]
		}
		return ""
	}
	if end := strings.IndexAny(remainder, ", "); end != -1 {
		return remainder[:end]
	}
	return remainder
}

// asMetadataGrants is the slice of RFC 8414 metadata this package reads on
// its own, separate from oauthclient.ASMetadata: the probe never persists a
// PKCE verifier or otherwise drives oauthclient's state machine, so it has
// no reason to share that package's type.
type asMetadataGrants struct {
	GrantTypesSupported []string `json:"grant_types_supported"`
}

// supportsClientCredentials does a best-effort fetch of the authorization
// server's RFC 8414 metadata to see whether it advertises the
// client_credentials grant. A failed or inconclusive fetch returns false:
// the probe would rather under-report than block on a slow or broken AS.
func supportsClientCredentials(ctx context.Context, baseURL string) bool {
	timeoutCtx, cancel := context.WithTimeout(ctx, hintTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, strings.TrimSuffix(baseURL, "/")+"/.well-known/oauth-authorization-server", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var meta asMetadataGrants
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return false
	}
	for _, g := range meta.GrantTypesSupported {
		if g == "client_credentials" {
			return true
		}
	}
	return false
}
