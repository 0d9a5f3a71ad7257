package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hootmcp/gateway/internal/audit"
	"github.com/hootmcp/gateway/internal/authn"
	"github.com/hootmcp/gateway/internal/config"
	"github.com/hootmcp/gateway/internal/faviconcache"
	"github.com/hootmcp/gateway/internal/httpapi"
	"github.com/hootmcp/gateway/internal/mcpclient"
	"github.com/hootmcp/gateway/internal/oauthclient"
	"github.com/hootmcp/gateway/internal/ratelimit"
	"github.com/hootmcp/gateway/internal/tenantstore"
	"github.com/hootmcp/gateway/internal/toolfilter"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "hoot-gateway").Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.IsDev() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	ctx := context.Background()

	pool, err := tenantstore.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()
	store, err := tenantstore.NewPostgresStore(ctx, pool)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tenant store schema")
	}

	auth := mustAuthService(cfg)

	oauthHTTPClient := &http.Client{Timeout: 15 * time.Second}
	oauthProvider := oauthclient.NewProvider(store, oauthHTTPClient, cfg.OAuthCallbackURL)

	mcp := mcpclient.New(oauthProvider)

	favicons := faviconcache.New(cfg.FaviconCacheTTL, &http.Client{Timeout: 5 * time.Second})

	embedder := toolfilter.NewEmbedder(cfg.EmbeddingsAPIKey, cfg.EmbeddingsModel)

	var auditSink *audit.Sink
	if cfg.AuditLogPath != "" {
		sink, err := audit.Open(cfg.AuditLogPath, cfg.AuditMaxSizeBytes)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open audit log")
		}
		defer sink.Close()
		auditSink = sink
	}

	limiter := ratelimit.New(ratelimit.DefaultLimit)

	srv := httpapi.NewServer(store, auth, oauthProvider, mcp, favicons, auditSink, limiter, embedder, cfg.AllowedOrigins)
	srv.PortkeyOID = cfg.PortkeyOID
	srv.PortkeyWorkspace = cfg.PortkeyWorkspace

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("server stopped")
}

// mustAuthService builds the bearer-token service: an RSA key pair parsed
// from cfg.JWTPrivateKeyPEM when set, so JWKS stays stable across restarts
// and multiple gateway instances validate each other's tokens, or a
// process-lifetime HMAC session token when no key is configured.
func mustAuthService(cfg *config.Config) *authn.Service {
	if cfg.JWTPrivateKeyPEM == "" {
		log.Warn().Msg("JWT_PRIVATE_KEY_PEM not set, issuing HMAC session tokens only for this process's lifetime")
		svc, err := authn.New(nil, cfg.JWTLifetime)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize auth service")
		}
		return svc
	}

	kp, err := authn.ParsePKCS1OrPKCS8PEM(cfg.JWTKID, []byte(cfg.JWTPrivateKeyPEM))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse JWT_PRIVATE_KEY_PEM")
	}
	svc, err := authn.New(kp, cfg.JWTLifetime)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize auth service")
	}
	return svc
}
