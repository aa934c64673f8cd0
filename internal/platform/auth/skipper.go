package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// Routes reachable without a bearer token. The queue websocket carries its
// token in the query string and checks it during the upgrade.
var (
	publicRoutes = map[string]bool{
		"/health":                true,
		"/health/db":             true,
		"/ws/queue/registration": true,
	}
	publicPrefix = "/auth/jwt/"
)

// AuthSkipper reports whether the request bypasses token authentication.
// Unmatched routes have no registered path, so the raw URL path is used.
func AuthSkipper(c echo.Context) bool {
	p := c.Path()
	if p == "" {
		p = c.Request().URL.Path
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return publicRoutes[p] || strings.HasPrefix(p, publicPrefix)
}
