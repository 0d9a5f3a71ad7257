// Package config loads the gateway's environment-driven configuration.
//
// There is no command-line surface for the core gateway; every setting comes
// from the environment so the process can be deployed without a bespoke
// flags layer.
package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every environment-derived setting the gateway needs at boot.
type Config struct {
	// HTTPAddr is the listen address for the REST façade.
	HTTPAddr string

	// DatabaseURL is the postgres DSN backing the tenant store (C1).
	DatabaseURL string

	// AllowedOrigins is the CORS allow-list for browser-origin requests.
	AllowedOrigins []string

	// JWTPrivateKeyPEM/JWTKID configure RS256 issuance (C2). When empty, the
	// issuer falls back to a process-lifetime HMAC session token.
	JWTPrivateKeyPEM string
	JWTKID           string
	JWTLifetime      time.Duration

	// OAuthCallbackURL is the gateway's own redirect_uri used during dynamic
	// client registration (C4).
	OAuthCallbackURL string

	// EmbeddingsAPIKey/EmbeddingsModel configure the remote embedding backend
	// (C7). When EmbeddingsAPIKey is empty, the local hashing embedder is
	// used and filter() results are computed without a network call.
	EmbeddingsAPIKey string
	EmbeddingsModel  string

	// PortkeyOID/PortkeyWorkspace are opaque pass-through claims forwarded to
	// the external LLM-completion proxy.
	PortkeyOID       string
	PortkeyWorkspace string

	// FaviconCacheTTL controls how long resolved favicon/metadata entries
	// stay cached (C8).
	FaviconCacheTTL time.Duration

	// AuditLogPath is the append-only audit sink path; rotated by size.
	AuditLogPath      string
	AuditMaxSizeBytes int64

	// Env is "dev" to enable pretty console logging; any other value (or
	// empty) means production-style structured JSON logging.
	Env string
}

// Default returns a configuration with sensible defaults for local
// development. Values here mirror what an operator would otherwise have to
// set explicitly in production.
func Default() *Config {
	return &Config{
		HTTPAddr:          ":8080",
		JWTLifetime:       time.Hour,
		FaviconCacheTTL:   24 * time.Hour,
		AuditLogPath:      "audit.log",
		AuditMaxSizeBytes: 50 * 1024 * 1024,
		EmbeddingsModel:   "text-embedding-3-small",
	}
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// Load builds a Config from the process environment and validates it.
func Load() (*Config, error) {
	cfg := Default()

	cfg.HTTPAddr = env("HOOT_HTTP_ADDR", cfg.HTTPAddr)
	cfg.DatabaseURL = env("DATABASE_URL", "")
	cfg.Env = env("ENV", "")

	if origins := env("HOOT_ALLOWED_ORIGINS", ""); origins != "" {
		cfg.AllowedOrigins = splitAndTrim(origins)
	}

	cfg.JWTPrivateKeyPEM = env("JWT_PRIVATE_KEY_PEM", "")
	cfg.JWTKID = env("JWT_KID", "hoot-gw-1")
	if v := env("JWT_LIFETIME_SECONDS", ""); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.JWTLifetime = time.Duration(secs) * time.Second
		}
	}

	cfg.OAuthCallbackURL = env("HOOT_OAUTH_CALLBACK_URL", "")
	cfg.EmbeddingsAPIKey = env("EMBEDDINGS_API_KEY", "")
	cfg.EmbeddingsModel = env("EMBEDDINGS_MODEL", cfg.EmbeddingsModel)
	cfg.PortkeyOID = env("PORTKEY_OID", "")
	cfg.PortkeyWorkspace = env("PORTKEY_WORKSPACE", "")

	cfg.AuditLogPath = env("HOOT_AUDIT_LOG_PATH", cfg.AuditLogPath)
	if v := env("HOOT_AUDIT_MAX_SIZE_BYTES", ""); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.AuditMaxSizeBytes = n
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for the invariants the rest of the
// gateway relies on.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	if len(c.AllowedOrigins) == 0 {
		return ErrMissingAllowedOrigins
	}
	if c.OAuthCallbackURL != "" {
		u, err := url.Parse(c.OAuthCallbackURL)
		if err != nil || !u.IsAbs() {
			return ErrInvalidCallbackURL
		}
	}
	return nil
}

// IsDev reports whether pretty console logging should be enabled.
func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
