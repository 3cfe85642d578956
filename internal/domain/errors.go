package domain

import "errors"

// Authentication errors.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrAuthFailed      = errors.New("authentication failed")
	ErrSessionInactive = errors.New("session is not active")
	ErrMissingIdentity = errors.New("missing identity in session")
	ErrInvalidCode     = errors.New("invalid or expired login code")
)

// External service errors.
var (
	ErrKratosUnavailable  = errors.New("identity provider unavailable")
	ErrAdminNotConfigured = errors.New("admin API not configured")
	ErrOAuthRedirect      = errors.New("identity provider did not return a redirect")
)

// Backend API errors.
var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not found")
	ErrBackendFailure = errors.New("backend request failed")
)

// Profile errors.
var (
	ErrProfileNotFound = errors.New("profile not found")
)

// Session store errors.
var (
	ErrStoreUnavailable = errors.New("session store unavailable")
)
