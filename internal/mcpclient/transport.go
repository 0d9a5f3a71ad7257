package mcpclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"

	"github.com/hootmcp/gateway/internal/tenantstore"
)

// buildTransport constructs and starts an MCP client for the given
// transport kind: SSE clients via client.NewSSEMCPClient +
// transport.WithHeaders, streamable-HTTP clients via
// client.NewStreamableHttpClient + transport.WithHTTPHeaders.
func buildTransport(ctx context.Context, url string, kind tenantstore.TransportKind, headers map[string]string) (client.MCPClient, error) {
	switch kind {
	case tenantstore.TransportSSE:
		var opts []transport.ClientOption
		if len(headers) > 0 {
			opts = append(opts, transport.WithHeaders(headers))
		}
		c, err := client.NewSSEMCPClient(url, opts...)
		if err != nil {
			return nil, fmt.Errorf("%w: sse client: %w", ErrTransport, err)
		}
		if err := c.Start(ctx); err != nil {
			return nil, fmt.Errorf("%w: sse start: %w", ErrTransport, err)
		}
		return c, nil

	case tenantstore.TransportHTTP:
		var opts []transport.StreamableHTTPCOption
		if len(headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(headers))
		}
		c, err := client.NewStreamableHttpClient(url, opts...)
		if err != nil {
			return nil, fmt.Errorf("%w: streamable-http client: %w", ErrTransport, err)
		}
		if err := c.Start(ctx); err != nil {
			return nil, fmt.Errorf("%w: streamable-http start: %w", ErrTransport, err)
		}
		return c, nil

	default:
		return nil, fmt.Errorf("%w: unsupported transport kind %q", ErrTransport, kind)
	}
}

// mergedHeaders combines an auth config's static headers with a bearer
// token, when one applies. The bearer header always wins a key collision.
func mergedHeaders(cfg AuthConfig, bearerToken string) map[string]string {
	headers := make(map[string]string, len(cfg.StaticHeaders)+1)
	for k, v := range cfg.StaticHeaders {
		headers[k] = v
	}
	if bearerToken != "" {
		headers["Authorization"] = "Bearer " + bearerToken
	}
	return headers
}

// isUnauthorized classifies an upstream error as an authorization failure.
// mark3labs/mcp-go does not expose a structured status code for transport
// errors, so this substring heuristic is the documented mechanism (see
// DESIGN.md) rather than a type assertion or errors.Is check.
func isUnauthorized(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range unauthorizedMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
