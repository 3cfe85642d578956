package handler

import (
	"errors"
	"net/http"

	"gym-session/internal/domain"

	"github.com/labstack/echo/v4"
)

// mapDomainError converts a domain error into an appropriate echo.HTTPError.
func mapDomainError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrAuthFailed),
		errors.Is(err, domain.ErrSessionExpired),
		errors.Is(err, domain.ErrSessionInactive),
		errors.Is(err, domain.ErrMissingIdentity),
		errors.Is(err, domain.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")

	case errors.Is(err, domain.ErrInvalidCode):
		return echo.NewHTTPError(http.StatusBadRequest, "invalid or expired login code")

	case errors.Is(err, domain.ErrProfileNotFound),
		errors.Is(err, domain.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")

	case errors.Is(err, domain.ErrKratosUnavailable),
		errors.Is(err, domain.ErrOAuthRedirect):
		return echo.NewHTTPError(http.StatusBadGateway, "identity provider unavailable")

	case errors.Is(err, domain.ErrBackendFailure):
		return echo.NewHTTPError(http.StatusBadGateway, "backend unavailable")

	case errors.Is(err, domain.ErrStoreUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "session store unavailable")

	case errors.Is(err, domain.ErrAdminNotConfigured):
		return echo.NewHTTPError(http.StatusInternalServerError, "internal configuration error")

	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
