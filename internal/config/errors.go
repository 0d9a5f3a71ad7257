package config

import "errors"

var (
	// ErrMissingDatabaseURL is returned when no postgres DSN is configured.
	ErrMissingDatabaseURL = errors.New("config: DATABASE_URL is required")
	// ErrMissingAllowedOrigins is returned when no frontend origin is configured.
	ErrMissingAllowedOrigins = errors.New("config: HOOT_ALLOWED_ORIGINS must list at least one origin")
	// ErrInvalidCallbackURL is returned when the OAuth callback URL is not an absolute URL.
	ErrInvalidCallbackURL = errors.New("config: HOOT_OAUTH_CALLBACK_URL must be an absolute URL")
)
