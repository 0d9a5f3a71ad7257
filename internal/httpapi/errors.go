package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/hootmcp/gateway/internal/authn"
	"github.com/hootmcp/gateway/internal/mcpclient"
	"github.com/hootmcp/gateway/internal/oauthclient"
	"github.com/hootmcp/gateway/internal/tenantstore"
)

// Kind is the protocol-level error taxonomy every handler maps its failures
// onto before writing a response. It is deliberately a closed set of string
// constants rather than arbitrary messages, so the browser client can switch
// on it.
type Kind string

const (
	KindTokenMissing         Kind = "TokenMissing"
	KindTokenInvalid         Kind = "TokenInvalid"
	KindTokenExpired         Kind = "TokenExpired"
	KindOriginRejected       Kind = "OriginRejected"
	KindRateLimited          Kind = "RateLimited"
	KindValidationError      Kind = "ValidationError"
	KindNotFound             Kind = "NotFound"
	KindNeedsAuthorization   Kind = "NeedsAuthorization"
	KindVerifierMissing      Kind = "VerifierMissing"
	KindVerifierExpired      Kind = "VerifierExpired"
	KindTransportError       Kind = "TransportError"
	KindUpstreamError        Kind = "UpstreamError"
	KindFilterNotInitialized Kind = "FilterNotInitialized"
	KindInternal             Kind = "Internal"
)

// httpStatus is the HTTP status each Kind maps to. NeedsAuthorization is
// deliberately absent: it is never written through writeKindError, since it
// is not an HTTP error — see writeNeedsAuth.
var httpStatus = map[Kind]int{
	KindTokenMissing:         http.StatusUnauthorized,
	KindTokenInvalid:         http.StatusUnauthorized,
	KindTokenExpired:         http.StatusUnauthorized,
	KindOriginRejected:       http.StatusForbidden,
	KindRateLimited:          http.StatusTooManyRequests,
	KindValidationError:      http.StatusBadRequest,
	KindNotFound:             http.StatusNotFound,
	KindVerifierMissing:      http.StatusBadRequest,
	KindVerifierExpired:      http.StatusBadRequest,
	KindTransportError:       http.StatusBadGateway,
	KindUpstreamError:        http.StatusBadGateway,
	KindFilterNotInitialized: http.StatusConflict,
	KindInternal:             http.StatusInternalServerError,
}

// apiError is the uniform JSON error body: {error, message, details?}.
type apiError struct {
	Error   Kind           `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// writeJSON writes v as a JSON body with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("httpapi: failed to encode json response")
	}
}

// writeKindError writes the uniform error body for kind with message, at the
// HTTP status httpStatus maps it to. Detailed diagnostics never go in the
// body; they belong in the audit log.
func writeKindError(w http.ResponseWriter, kind Kind, message string) {
	status, ok := httpStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, apiError{Error: kind, Message: message})
}

// writeExpiredError is TokenExpired's special case: the body additionally
// carries expired:true so the client knows to attempt a transparent refresh.
func writeExpiredError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(struct {
		Error   Kind   `json:"error"`
		Message string `json:"message"`
		Expired bool   `json:"expired"`
	}{Error: KindTokenExpired, Message: "token expired", Expired: true})
}

// writeNeedsAuth writes the one response shape that is a 200, not an HTTP
// error: the upstream requires OAuth and the caller must redirect the user
// through authorizationURL.
func writeNeedsAuth(w http.ResponseWriter, authorizationURL string) {
	writeJSON(w, http.StatusOK, struct {
		Success          bool   `json:"success"`
		NeedsAuth        bool   `json:"needsAuth"`
		AuthorizationURL string `json:"authorizationUrl"`
	}{Success: false, NeedsAuth: true, AuthorizationURL: authorizationURL})
}

// authKindOfErr classifies an authn.Verify failure into the Kind the façade
// maps to a response.
func authKindOfErr(err error) Kind {
	switch authn.KindOf(err) {
	case authn.KindExpired:
		return KindTokenExpired
	case authn.KindMissing:
		return KindTokenMissing
	default:
		return KindTokenInvalid
	}
}

// classifyMCPError maps an error returned by internal/mcpclient or
// internal/oauthclient onto the taxonomy. Handlers call this for every
// downstream failure that isn't itself a validation problem caught earlier.
func classifyMCPError(err error) (Kind, string) {
	switch {
	case err == nil:
		return "", ""
	case errors.Is(err, tenantstore.ErrNotFound):
		return KindNotFound, "not found"
	case errors.Is(err, oauthclient.ErrVerifierMissing):
		return KindVerifierMissing, "pkce verifier missing or expired"
	case errors.Is(err, tenantstore.ErrVerifierExpired):
		return KindVerifierExpired, "pkce verifier expired"
	case errors.Is(err, oauthclient.ErrLoopGuard):
		return KindRateLimited, "authorization redirect requested too recently, retry shortly"
	case errors.Is(err, oauthclient.ErrDiscoveryFailed),
		errors.Is(err, oauthclient.ErrRegistrationFailed),
		errors.Is(err, oauthclient.ErrTokenExchangeFailed):
		return KindUpstreamError, err.Error()
	case errors.Is(err, mcpclient.ErrNeedsAuthorization),
		errors.Is(err, oauthclient.ErrNeedsAuthorization):
		return KindUpstreamError, "authorization required but could not be completed: " + err.Error()
	case errors.Is(err, mcpclient.ErrTransport), errors.Is(err, mcpclient.ErrNoSession):
		return KindTransportError, err.Error()
	default:
		return KindInternal, "internal error"
	}
}
