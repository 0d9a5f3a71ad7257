package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/hootmcp/gateway/internal/audit"
	"github.com/hootmcp/gateway/internal/authn"
	"github.com/hootmcp/gateway/internal/ratelimit"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlationId"
	tenantIDKey      contextKey = "tenantId"
)

// bearerHeader is the gateway's own credential header, distinct from the
// standard Authorization header so browser code can attach it without
// tripping CORS preflight rules meant for the upstream MCP servers' own
// Authorization headers.
const bearerHeader = "x-hoot-token"

// CorrelationMiddleware reads X-Correlation-ID from the request, generating
// one if the client didn't supply it, attaches it to the response header and
// request context, and folds it into every log line the request produces.
func CorrelationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		w.Header().Set("X-Correlation-ID", correlationID)

		logger := log.With().Str("correlation_id", correlationID).Logger()
		ctx := context.WithValue(r.Context(), correlationIDKey, correlationID)
		ctx = logger.WithContext(ctx)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetCorrelationID retrieves the correlation ID CorrelationMiddleware stored.
func GetCorrelationID(ctx context.Context) string {
	if v, ok := ctx.Value(correlationIDKey).(string); ok {
		return v
	}
	return ""
}

// GetTenantID retrieves the tenant id authMiddleware stored after a
// successful bearer verification.
func GetTenantID(ctx context.Context) string {
	if v, ok := ctx.Value(tenantIDKey).(string); ok {
		return v
	}
	return ""
}

// newCORSMiddleware builds the allow-list CORS middleware for allowedOrigins,
// permitting the bearer header and a preflight for every mutating route.
func newCORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", bearerHeader, "X-Correlation-ID"},
		ExposedHeaders:   []string{"X-Correlation-ID", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           600,
	})
	return c.Handler
}

// authMiddleware extracts the bearer from x-hoot-token, verifies it via svc,
// and attaches the tenant id to the request context. GET /health is exempt
// (wired outside this middleware's route group in Routes).
func authMiddleware(svc *authn.Service, auditSink *audit.Sink) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(bearerHeader)
			claims, err := svc.Verify(token)
			if err != nil {
				kind := authKindOfErr(err)
				writeAuditedAuthFailure(auditSink, r, kind)
				if kind == KindTokenExpired {
					writeExpiredError(w)
					return
				}
				writeKindError(w, kind, "authentication failed")
				return
			}

			ctx := context.WithValue(r.Context(), tenantIDKey, claims.TenantID())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuditedAuthFailure(sink *audit.Sink, r *http.Request, kind Kind) {
	if sink == nil {
		return
	}
	_ = sink.Write(audit.Entry{
		Route:  r.URL.Path,
		Method: r.Method,
		Status: httpStatus[kind],
		Kind:   string(kind),
	})
}

// rateLimitMiddleware enforces ratelimit.Limiter per (tenant, routeFamily),
// where routeFamily groups sibling endpoints (e.g. every /mcp/tool-filter/*
// path shares one bucket) so a burst against one family doesn't starve
// another for the same tenant.
func rateLimitMiddleware(limiter *ratelimit.Limiter, routeFamily string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant := GetTenantID(r.Context())
			if tenant == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed, remaining, retryAfter := limiter.Allow(ratelimit.Key(tenant, routeFamily))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !allowed {
				seconds := int(retryAfter / time.Second)
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				writeKindError(w, KindRateLimited, "rate limit exceeded, retry later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// auditMiddleware appends one audit entry per completed request, carrying
// the tenant, route, method, and resulting status. Wrapped around every
// authenticated route group so every call is accounted for regardless of
// which handler served it.
func auditMiddleware(sink *audit.Sink) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			if sink == nil {
				return
			}
			_ = sink.Write(audit.Entry{
				Tenant: GetTenantID(r.Context()),
				Route:  r.URL.Path,
				Method: r.Method,
				Status: rec.status,
			})
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
