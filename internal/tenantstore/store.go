package tenantstore

import "context"

// Store is the tenant-isolated persistence surface used by internal/oauthclient
// and internal/mcpclient. Every method is keyed by (tenant, serverId); callers
// never see another tenant's artifacts regardless of serverId collisions.
type Store interface {
	GetClientInfo(ctx context.Context, tenant, serverID string) (*ClientInfo, error)
	PutClientInfo(ctx context.Context, tenant, serverID string, info ClientInfo) error

	GetTokens(ctx context.Context, tenant, serverID string) (*Tokens, error)
	PutTokens(ctx context.Context, tenant, serverID string, tokens Tokens) error

	PutVerifier(ctx context.Context, tenant, serverID, state string, v Verifier) error
	GetVerifier(ctx context.Context, tenant, serverID, state string) (*Verifier, error)
	DeleteVerifier(ctx context.Context, tenant, serverID, state string) error

	PutUpstreamServer(ctx context.Context, s UpstreamServer) error
	GetUpstreamServer(ctx context.Context, tenant, serverID string) (*UpstreamServer, error)
	ListUpstreamServers(ctx context.Context, tenant string) ([]UpstreamServer, error)
	DeleteUpstreamServer(ctx context.Context, tenant, serverID string) error

	// Invalidate drops the artifacts named by scope for (tenant, serverId).
	// ScopeAll also removes the upstream_servers row.
	Invalidate(ctx context.Context, tenant, serverID string, scope InvalidateScope) error

	// TouchTenant records a tenant's first/last-seen instants.
	TouchTenant(ctx context.Context, tenant string) error

	Close()
}
