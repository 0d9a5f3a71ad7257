package autodetect

import (
	"github.com/hootmcp/gateway/internal/mcpclient"
	"github.com/hootmcp/gateway/internal/tenantstore"
)

// Result is the outcome of a probe: which transport answered (if either
// did), whatever server identity could be learned or synthesized, and which
// auth shape the caller will need to supply to actually connect.
//
// The probe never mints an authorization URL itself: minting one requires
// persisting a PKCE verifier keyed (tenant, serverId), and the probe has
// neither — it runs before a server has been registered. A RequiresOAuth
// result tells the façade to start an authorization against a deterministic
// placeholder serverId derived from the probed URL (see
// httpapi.probePlaceholderID), so the caller gets a real authUrl back from
// auto-detect without having to pick a serverId up front.
type Result struct {
	Transport                 tenantstore.TransportKind // zero value when neither transport answered
	ServerInfo                mcpclient.ServerInfo
	ServerInfoSynthesized     bool
	RequiresOAuth             bool
	RequiresClientCredentials bool
	RequiresHeaderAuth        bool
}
