// Package autodetect implements C6: classifying an unregistered MCP URL by
// transport and auth shape before the caller has chosen either, by trying a
// throwaway handshake over streamable HTTP and then, if that fails, over SSE.
package autodetect

import (
	"context"

	"github.com/hootmcp/gateway/internal/mcpclient"
	"github.com/hootmcp/gateway/internal/tenantstore"
)

// Probe classifies rawURL: which transport answers initialize, what server
// identity it reports (or a synthesized stand-in), and which auth shape a
// subsequent connect will need.
//
// Probe never persists anything and never touches the OAuth provider's
// verifier store — see Result's doc comment for why it cannot mint a real
// authorization URL. It is read-only and safe to call repeatedly for the
// same URL; the caller decides whether to cache.
func Probe(ctx context.Context, rawURL string) (*Result, error) {
	httpInfo, httpErr := mcpclient.ProbeInitialize(ctx, rawURL, tenantstore.TransportHTTP, nil)
	if httpErr == nil {
		return &Result{Transport: tenantstore.TransportHTTP, ServerInfo: httpInfo}, nil
	}

	sseInfo, sseErr := mcpclient.ProbeInitialize(ctx, rawURL, tenantstore.TransportSSE, nil)
	if sseErr == nil {
		return &Result{Transport: tenantstore.TransportSSE, ServerInfo: sseInfo}, nil
	}

	return classifyUnreachable(ctx, rawURL, httpErr, sseErr)
}

// classifyUnreachable runs once both transport attempts have failed. httpErr
// and sseErr are consulted only to decide whether either looked like an
// authorization failure; a failure that isn't triggers ErrUnreachable
// outright, since no auth challenge can explain it.
func classifyUnreachable(ctx context.Context, rawURL string, httpErr, sseErr error) (*Result, error) {
	httpUnauthorized := mcpclient.IsUnauthorized(httpErr)
	sseUnauthorized := mcpclient.IsUnauthorized(sseErr)
	if !httpUnauthorized && !sseUnauthorized {
		return nil, ErrUnreachable
	}

	// HTTP is tie-broken first per Probe's own attempt order above.
	preferredTransport := tenantstore.TransportSSE
	if httpUnauthorized {
		preferredTransport = tenantstore.TransportHTTP
	}

	hint, challenged := detectAuthHint(ctx, rawURL)
	result := &Result{
		Transport:             preferredTransport,
		ServerInfo:            mcpclient.ServerInfo{Name: hostLabelDisplayName(rawURL), Version: synthesizedVersion},
		ServerInfoSynthesized: true,
	}

	switch {
	case challenged && hint.oauth:
		result.RequiresOAuth = true
		if hint.resourceMetadata != "" {
			result.RequiresClientCredentials = supportsClientCredentials(ctx, hint.resourceMetadata)
		}
	case challenged:
		result.RequiresHeaderAuth = true
	default:
		// Got Unauthorized from the MCP handshake itself but the raw GET
		// probe came back inconclusive (no WWW-Authenticate, or the GET
		// failed outright). Treat it as header auth: it's the narrower
		// claim and the safer default for a caller deciding what to ask
		// the user for.
		result.RequiresHeaderAuth = true
	}

	return result, nil
}
