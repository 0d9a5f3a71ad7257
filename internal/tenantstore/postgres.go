package tenantstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// schema is applied idempotently on every boot. CREATE TABLE IF NOT EXISTS
// keeps this safe to run against an already-migrated database.
const schema = `
CREATE TABLE IF NOT EXISTS tenants (
	tenant_id   TEXT PRIMARY KEY,
	first_seen  TIMESTAMPTZ NOT NULL,
	last_seen   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS upstream_servers (
	tenant_id   TEXT NOT NULL,
	server_id   TEXT NOT NULL,
	url         TEXT NOT NULL,
	transport   TEXT NOT NULL,
	name        TEXT NOT NULL DEFAULT '',
	version     TEXT NOT NULL DEFAULT '',
	auth_kind   TEXT NOT NULL DEFAULT 'none',
	updated_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tenant_id, server_id)
);

CREATE TABLE IF NOT EXISTS oauth_client_info (
	tenant_id     TEXT NOT NULL,
	server_id     TEXT NOT NULL,
	client_id     TEXT NOT NULL,
	client_secret TEXT NOT NULL DEFAULT '',
	redirect_uris TEXT NOT NULL DEFAULT '',
	reg_access_tok TEXT NOT NULL DEFAULT '',
	issued_at     TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tenant_id, server_id)
);

CREATE TABLE IF NOT EXISTS oauth_tokens (
	tenant_id     TEXT NOT NULL,
	server_id     TEXT NOT NULL,
	access_token  TEXT NOT NULL,
	refresh_token TEXT NOT NULL DEFAULT '',
	expires_at    TIMESTAMPTZ,
	scope         TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (tenant_id, server_id)
);

CREATE TABLE IF NOT EXISTS oauth_verifiers (
	tenant_id     TEXT NOT NULL,
	server_id     TEXT NOT NULL,
	state         TEXT NOT NULL,
	code_verifier TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tenant_id, server_id, state)
);
`

// legacyMigrationCheck detects a pre-multi-tenant oauth_tokens layout: if the
// table predates the tenant_id column, every existing row belonged to a
// single implicit tenant. We add the column, stamp it with a process-unique
// legacy identifier, and widen the primary key.
const legacyMigrationCheck = `
SELECT NOT EXISTS (
	SELECT 1 FROM information_schema.columns
	WHERE table_name = 'oauth_tokens' AND column_name = 'tenant_id'
)
`

// Open creates the postgres connection pool used by PostgresStore, tuned the
// same way the gateway has always tuned its pool.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("tenantstore: parse dsn: %w", err)
	}

	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tenantstore: new pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("tenantstore: ping: %w", err)
	}

	log.Info().
		Int32("max_conns", cfg.MaxConns).
		Int32("min_conns", cfg.MinConns).
		Msg("postgres connection pool created")

	return pool, nil
}

// PostgresStore is the production Store, backed by a pgxpool.Pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore runs the idempotent schema and legacy migration, then
// returns a Store ready to serve requests.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool}
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("tenantstore: apply schema: %w", err)
	}
	if err := s.migrateLegacyLayout(ctx); err != nil {
		return nil, fmt.Errorf("tenantstore: legacy migration: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrateLegacyLayout(ctx context.Context) error {
	var needsMigration bool
	if err := s.pool.QueryRow(ctx, legacyMigrationCheck).Scan(&needsMigration); err != nil {
		return err
	}
	if !needsMigration {
		return nil
	}

	legacyTenant := fmt.Sprintf("legacy-%d", time.Now().Unix())
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `ALTER TABLE oauth_tokens ADD COLUMN tenant_id TEXT`); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE oauth_tokens SET tenant_id = $1 WHERE tenant_id IS NULL`, legacyTenant); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `ALTER TABLE oauth_tokens ALTER COLUMN tenant_id SET NOT NULL`); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `ALTER TABLE oauth_tokens DROP CONSTRAINT IF EXISTS oauth_tokens_pkey`); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `ALTER TABLE oauth_tokens ADD PRIMARY KEY (tenant_id, server_id)`); err != nil {
		return err
	}

	log.Warn().Str("legacy_tenant", legacyTenant).Msg("migrated legacy oauth_tokens layout to multi-tenant primary key")
	return tx.Commit(ctx)
}

func (s *PostgresStore) Close() { s.pool.Close() }

func (s *PostgresStore) GetClientInfo(ctx context.Context, tenant, serverID string) (*ClientInfo, error) {
	if tenant == "" {
		return nil, ErrEmptyTenant
	}
	var info ClientInfo
	var redirects string
	err := s.pool.QueryRow(ctx, `
		SELECT client_id, client_secret, redirect_uris, reg_access_tok, issued_at
		FROM oauth_client_info WHERE tenant_id = $1 AND server_id = $2`,
		tenant, serverID,
	).Scan(&info.ClientID, &info.ClientSecret, &redirects, &info.RegistrationAccessTok, &info.IssuedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	info.RedirectURIs = splitNonEmpty(redirects)
	return &info, nil
}

func (s *PostgresStore) PutClientInfo(ctx context.Context, tenant, serverID string, info ClientInfo) error {
	if tenant == "" {
		return ErrEmptyTenant
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO oauth_client_info (tenant_id, server_id, client_id, client_secret, redirect_uris, reg_access_tok, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, server_id) DO UPDATE SET
			client_id = EXCLUDED.client_id,
			client_secret = EXCLUDED.client_secret,
			redirect_uris = EXCLUDED.redirect_uris,
			reg_access_tok = EXCLUDED.reg_access_tok,
			issued_at = EXCLUDED.issued_at`,
		tenant, serverID, info.ClientID, info.ClientSecret, strings.Join(info.RedirectURIs, ","), info.RegistrationAccessTok, info.IssuedAt,
	)
	return err
}

func (s *PostgresStore) GetTokens(ctx context.Context, tenant, serverID string) (*Tokens, error) {
	if tenant == "" {
		return nil, ErrEmptyTenant
	}
	var t Tokens
	var expiresAt *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT access_token, refresh_token, expires_at, scope
		FROM oauth_tokens WHERE tenant_id = $1 AND server_id = $2`,
		tenant, serverID,
	).Scan(&t.AccessToken, &t.RefreshToken, &expiresAt, &t.Scope)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if expiresAt != nil {
		t.ExpiresAt = *expiresAt
	}
	return &t, nil
}

// PutTokens replaces the (tenant, serverId) token row atomically. When
// tokens.RefreshToken is empty, the previously stored refresh token (if any)
// is preserved — upstream servers often omit refresh_token on a refresh
// response, meaning "unchanged", not "cleared".
func (s *PostgresStore) PutTokens(ctx context.Context, tenant, serverID string, tokens Tokens) error {
	if tenant == "" {
		return ErrEmptyTenant
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO oauth_tokens (tenant_id, server_id, access_token, refresh_token, expires_at, scope)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, server_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = CASE WHEN EXCLUDED.refresh_token = '' THEN oauth_tokens.refresh_token ELSE EXCLUDED.refresh_token END,
			expires_at = EXCLUDED.expires_at,
			scope = EXCLUDED.scope`,
		tenant, serverID, tokens.AccessToken, tokens.RefreshToken, nullableTime(tokens.ExpiresAt), tokens.Scope,
	)
	return err
}

func (s *PostgresStore) PutVerifier(ctx context.Context, tenant, serverID, state string, v Verifier) error {
	if tenant == "" {
		return ErrEmptyTenant
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO oauth_verifiers (tenant_id, server_id, state, code_verifier, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, server_id, state) DO UPDATE SET
			code_verifier = EXCLUDED.code_verifier,
			created_at = EXCLUDED.created_at`,
		tenant, serverID, state, v.CodeVerifier, v.CreatedAt,
	)
	return err
}

// GetVerifier returns ErrVerifierExpired (and deletes the row) when the
// verifier is older than VerifierTTL, and ErrNotFound when absent.
func (s *PostgresStore) GetVerifier(ctx context.Context, tenant, serverID, state string) (*Verifier, error) {
	if tenant == "" {
		return nil, ErrEmptyTenant
	}
	var v Verifier
	err := s.pool.QueryRow(ctx, `
		SELECT code_verifier, created_at FROM oauth_verifiers
		WHERE tenant_id = $1 AND server_id = $2 AND state = $3`,
		tenant, serverID, state,
	).Scan(&v.CodeVerifier, &v.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if v.Expired(time.Now()) {
		_ = s.DeleteVerifier(ctx, tenant, serverID, state)
		return nil, ErrVerifierExpired
	}
	return &v, nil
}

func (s *PostgresStore) DeleteVerifier(ctx context.Context, tenant, serverID, state string) error {
	if tenant == "" {
		return ErrEmptyTenant
	}
	_, err := s.pool.Exec(ctx, `
		DELETE FROM oauth_verifiers WHERE tenant_id = $1 AND server_id = $2 AND state = $3`,
		tenant, serverID, state,
	)
	return err
}

func (s *PostgresStore) PutUpstreamServer(ctx context.Context, srv UpstreamServer) error {
	if srv.Tenant == "" {
		return ErrEmptyTenant
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO upstream_servers (tenant_id, server_id, url, transport, name, version, auth_kind, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, server_id) DO UPDATE SET
			url = EXCLUDED.url,
			transport = EXCLUDED.transport,
			name = EXCLUDED.name,
			version = EXCLUDED.version,
			auth_kind = EXCLUDED.auth_kind,
			updated_at = EXCLUDED.updated_at`,
		srv.Tenant, srv.ServerID, srv.URL, string(srv.Transport), srv.Name, srv.Version, string(srv.Auth), srv.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) GetUpstreamServer(ctx context.Context, tenant, serverID string) (*UpstreamServer, error) {
	if tenant == "" {
		return nil, ErrEmptyTenant
	}
	srv := UpstreamServer{Tenant: tenant, ServerID: serverID}
	var transport, auth string
	err := s.pool.QueryRow(ctx, `
		SELECT url, transport, name, version, auth_kind, updated_at
		FROM upstream_servers WHERE tenant_id = $1 AND server_id = $2`,
		tenant, serverID,
	).Scan(&srv.URL, &transport, &srv.Name, &srv.Version, &auth, &srv.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	srv.Transport = TransportKind(transport)
	srv.Auth = AuthKind(auth)
	return &srv, nil
}

func (s *PostgresStore) ListUpstreamServers(ctx context.Context, tenant string) ([]UpstreamServer, error) {
	if tenant == "" {
		return nil, ErrEmptyTenant
	}
	rows, err := s.pool.Query(ctx, `
		SELECT server_id, url, transport, name, version, auth_kind, updated_at
		FROM upstream_servers WHERE tenant_id = $1 ORDER BY server_id`,
		tenant,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UpstreamServer
	for rows.Next() {
		srv := UpstreamServer{Tenant: tenant}
		var transport, auth string
		if err := rows.Scan(&srv.ServerID, &srv.URL, &transport, &srv.Name, &srv.Version, &auth, &srv.UpdatedAt); err != nil {
			return nil, err
		}
		srv.Transport = TransportKind(transport)
		srv.Auth = AuthKind(auth)
		out = append(out, srv)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteUpstreamServer(ctx context.Context, tenant, serverID string) error {
	if tenant == "" {
		return ErrEmptyTenant
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM upstream_servers WHERE tenant_id = $1 AND server_id = $2`, tenant, serverID)
	return err
}

func (s *PostgresStore) Invalidate(ctx context.Context, tenant, serverID string, scope InvalidateScope) error {
	if tenant == "" {
		return ErrEmptyTenant
	}
	switch scope {
	case ScopeClient:
		_, err := s.pool.Exec(ctx, `DELETE FROM oauth_client_info WHERE tenant_id = $1 AND server_id = $2`, tenant, serverID)
		return err
	case ScopeTokens:
		_, err := s.pool.Exec(ctx, `DELETE FROM oauth_tokens WHERE tenant_id = $1 AND server_id = $2`, tenant, serverID)
		return err
	case ScopeVerifier:
		_, err := s.pool.Exec(ctx, `DELETE FROM oauth_verifiers WHERE tenant_id = $1 AND server_id = $2`, tenant, serverID)
		return err
	case ScopeAll:
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)
		for _, q := range []string{
			`DELETE FROM oauth_client_info WHERE tenant_id = $1 AND server_id = $2`,
			`DELETE FROM oauth_tokens WHERE tenant_id = $1 AND server_id = $2`,
			`DELETE FROM oauth_verifiers WHERE tenant_id = $1 AND server_id = $2`,
			`DELETE FROM upstream_servers WHERE tenant_id = $1 AND server_id = $2`,
		} {
			if _, err := tx.Exec(ctx, q, tenant, serverID); err != nil {
				return err
			}
		}
		return tx.Commit(ctx)
	default:
		return fmt.Errorf("tenantstore: unknown invalidate scope %q", scope)
	}
}

func (s *PostgresStore) TouchTenant(ctx context.Context, tenant string) error {
	if tenant == "" {
		return ErrEmptyTenant
	}
	now := time.Now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tenants (tenant_id, first_seen, last_seen)
		VALUES ($1, $2, $2)
		ON CONFLICT (tenant_id) DO UPDATE SET last_seen = EXCLUDED.last_seen`,
		tenant, now,
	)
	return err
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
