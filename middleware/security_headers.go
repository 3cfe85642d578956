// Package middleware holds the Echo middleware used by the session gateway.
package middleware

import "github.com/labstack/echo/v4"

// SecurityHeaders sets response headers for an API that only ever returns JSON
// or redirects. hsts should be false when the gateway is served over plain HTTP.
func SecurityHeaders(hsts bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			if hsts {
				h.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
			}
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Referrer-Policy", "no-referrer")
			// Session state must never be served from a shared cache.
			h.Set("Cache-Control", "no-store")
			return next(c)
		}
	}
}
