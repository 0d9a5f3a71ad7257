package mcpclient

import "errors"

var (
	// ErrTransport is returned for network errors, protocol errors, and
	// schema-validation failures at the transport level.
	ErrTransport = errors.New("mcpclient: transport error")

	// ErrNeedsAuthorization is returned when an initialize or tool call hit
	// an Unauthorized response and a single refresh-and-retry also failed;
	// the caller must redirect the user through a fresh authorization URL.
	ErrNeedsAuthorization = errors.New("mcpclient: authorization required")

	// ErrNoSession is returned by operations that require a session when
	// none is cached and no connect configuration was supplied to open one.
	ErrNoSession = errors.New("mcpclient: no session configuration on file")
)

// unauthorizedMarkers are substrings checked case-insensitively against an
// upstream error's message to classify it as an authorization failure.
// mark3labs/mcp-go surfaces transport errors as plain `error` values with no
// structured status code in the way this pack uses it, so this heuristic —
// not a status-code switch — is the classification mechanism (documented as
// a judgment call, see DESIGN.md).
var unauthorizedMarkers = []string{"401", "unauthorized", "403", "forbidden"}
