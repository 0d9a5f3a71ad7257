package tenantstore

import "errors"

var (
	// ErrNotFound is returned when no record exists for the requested key.
	ErrNotFound = errors.New("tenantstore: not found")
	// ErrVerifierExpired is returned when a verifier exists but is past its TTL.
	ErrVerifierExpired = errors.New("tenantstore: verifier expired")
	// ErrEmptyTenant is returned by every Store method when called with an
	// empty tenant, so a caller can never read or write under the empty-string
	// key by mistake.
	ErrEmptyTenant = errors.New("tenantstore: tenant must not be empty")
)
