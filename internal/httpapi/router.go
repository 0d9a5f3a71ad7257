// Package httpapi implements C9: the REST façade wiring every other
// component together behind 18 HTTP endpoints, owning request validation,
// CORS, rate limiting, audit logging, and the taxonomy → HTTP status
// mapping every handler shares.
package httpapi

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/hootmcp/gateway/internal/audit"
	"github.com/hootmcp/gateway/internal/authn"
	"github.com/hootmcp/gateway/internal/faviconcache"
	"github.com/hootmcp/gateway/internal/mcpclient"
	"github.com/hootmcp/gateway/internal/oauthclient"
	"github.com/hootmcp/gateway/internal/ratelimit"
	"github.com/hootmcp/gateway/internal/tenantstore"
	"github.com/hootmcp/gateway/internal/toolfilter"
)

// Server holds every dependency the handlers need. One instance is built at
// process startup and shared across all requests.
type Server struct {
	Store            tenantstore.Store
	Auth             *authn.Service
	OAuth            *oauthclient.Provider
	MCP              *mcpclient.Manager
	Favicons         *faviconcache.Cache
	Audit            *audit.Sink
	RateLimiter      *ratelimit.Limiter
	Embedder         toolfilter.Embedder
	AllowedOrigins   []string
	PortkeyOID       string
	PortkeyWorkspace string

	filters   sync.Map // tenant -> *toolfilter.Index
	connectMu sync.Mutex
	connects  map[string]mcpclient.ConnectConfig // "tenant\x00serverId" -> last-known connect config
}

// NewServer constructs a Server. Embedder may be nil, putting every tenant's
// tool filter into permanent degraded mode.
func NewServer(store tenantstore.Store, auth *authn.Service, oauth *oauthclient.Provider, mcp *mcpclient.Manager, favicons *faviconcache.Cache, auditSink *audit.Sink, limiter *ratelimit.Limiter, embedder toolfilter.Embedder, allowedOrigins []string) *Server {
	return &Server{
		Store:          store,
		Auth:           auth,
		OAuth:          oauth,
		MCP:            mcp,
		Favicons:       favicons,
		Audit:          auditSink,
		RateLimiter:    limiter,
		Embedder:       embedder,
		AllowedOrigins: allowedOrigins,
		connects:       make(map[string]mcpclient.ConnectConfig),
	}
}

func connectKey(tenant, serverID string) string { return tenant + "\x00" + serverID }

func (s *Server) rememberConnect(tenant, serverID string, cfg mcpclient.ConnectConfig) {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()
	s.connects[connectKey(tenant, serverID)] = cfg
}

func (s *Server) lastConnect(tenant, serverID string) mcpclient.ConnectConfig {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()
	return s.connects[connectKey(tenant, serverID)]
}

func (s *Server) forgetConnect(tenant, serverID string) {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()
	delete(s.connects, connectKey(tenant, serverID))
}

// filterIndex returns tenant's tool filter index, creating one lazily on
// first use. One Index per tenant keeps a semantically-relevant tool subset
// from leaking across tenant boundaries, mirroring the isolation the tenant
// store enforces for OAuth artifacts.
func (s *Server) filterIndex(tenant string) *toolfilter.Index {
	if v, ok := s.filters.Load(tenant); ok {
		return v.(*toolfilter.Index)
	}
	idx := toolfilter.New(s.Embedder)
	actual, _ := s.filters.LoadOrStore(tenant, idx)
	return actual.(*toolfilter.Index)
}

// Routes assembles the chi router: global middleware, the unauthenticated
// routes (health, jwks, oauth callback), then the bearer-gated route groups.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(CorrelationMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(newCORSMiddleware(s.AllowedOrigins))

	r.Get("/health", s.handleHealth)
	r.Get("/.well-known/jwks.json", s.handleJWKS)
	r.HandleFunc("/oauth/callback", s.handleOAuthCallback)
	r.Post("/auth/token", s.handleIssueToken)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(s.Auth, s.Audit))
		r.Use(auditMiddleware(s.Audit))

		r.Group(func(r chi.Router) {
			r.Use(rateLimitMiddleware(s.RateLimiter, "mcp-detect"))
			r.Post("/mcp/auto-detect", s.handleAutoDetect)
			r.Post("/mcp/discover-oauth", s.handleDiscoverOAuth)
		})

		r.Group(func(r chi.Router) {
			r.Use(rateLimitMiddleware(s.RateLimiter, "mcp-connect"))
			r.Post("/mcp/connect", s.handleConnect)
			r.Post("/mcp/disconnect", s.handleDisconnect)
			r.Post("/mcp/clear-oauth-tokens", s.handleClearOAuthTokens)
		})

		r.Group(func(r chi.Router) {
			r.Use(rateLimitMiddleware(s.RateLimiter, "mcp-exec"))
			r.Get("/mcp/tools/{serverId}", s.handleListTools)
			r.Post("/mcp/execute", s.handleExecute)
			r.Get("/mcp/status/{serverId}", s.handleStatus)
			r.Get("/mcp/connections", s.handleConnections)
			r.Get("/mcp/server-info/{serverId}", s.handleServerInfo)
			r.Get("/mcp/oauth-metadata/{serverId}", s.handleOAuthMetadata)
		})

		r.Group(func(r chi.Router) {
			r.Use(rateLimitMiddleware(s.RateLimiter, "tool-filter"))
			r.Post("/mcp/tool-filter/initialize", s.handleFilterInitialize)
			r.Post("/mcp/tool-filter/filter", s.handleFilter)
			r.Post("/mcp/tool-filter/clear-cache", s.handleFilterClearCache)
		})
	})

	log.Info().Msg("httpapi: routes registered")
	return r
}
