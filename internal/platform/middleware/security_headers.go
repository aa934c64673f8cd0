package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// SecurityConfig tunes SecurityHeaders. HSTS is enabled in production only.
type SecurityConfig struct {
	HSTS bool
	// Responses under these path prefixes keep their own Cache-Control,
	// e.g. report routes served through ResponseCache.
	CacheablePrefixes []string
}

// SecurityHeaders locks down responses for a JSON API that also serves
// patient documents (lab files, PDF and xlsx exports) as attachments.
func SecurityHeaders(cfg SecurityConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Referrer-Policy", "no-referrer")
			if cfg.HSTS {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			path := c.Request().URL.Path
			cacheable := false
			for _, p := range cfg.CacheablePrefixes {
				if strings.HasPrefix(path, p) {
					cacheable = true
					break
				}
			}
			if !cacheable {
				h.Set("Cache-Control", "no-store")
			}
			return next(c)
		}
	}
}
