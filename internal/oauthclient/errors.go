package oauthclient

import "errors"

var (
	// ErrVerifierMissing is returned by ExchangeCode when no PKCE verifier is
	// on file for the (tenant, serverId, state) triple — either it expired
	// (10-minute TTL) or the callback is forged/replayed.
	ErrVerifierMissing = errors.New("oauthclient: pkce verifier missing or expired")

	// ErrNeedsAuthorization is returned when a caller must redirect the user
	// through a fresh authorization URL before the operation can proceed.
	ErrNeedsAuthorization = errors.New("oauthclient: authorization required")

	// ErrLoopGuard is returned when a redirect was initiated for this
	// (tenant, serverId) less than 3 seconds ago.
	ErrLoopGuard = errors.New("oauthclient: redirect initiated too recently")

	// ErrNoRefreshToken is returned when a refresh is attempted but no
	// refresh token is on file.
	ErrNoRefreshToken = errors.New("oauthclient: no refresh token available")

	// ErrDiscoveryFailed is returned when neither RFC 9728 protected-resource
	// metadata, AS metadata, nor a customMetadata override could be resolved.
	ErrDiscoveryFailed = errors.New("oauthclient: metadata discovery failed")

	// ErrRegistrationFailed is returned when dynamic client registration
	// (RFC 7591) fails.
	ErrRegistrationFailed = errors.New("oauthclient: dynamic client registration failed")

	// ErrTokenExchangeFailed is returned when the token endpoint rejects an
	// authorization_code, refresh_token, or client_credentials grant.
	ErrTokenExchangeFailed = errors.New("oauthclient: token exchange failed")
)
