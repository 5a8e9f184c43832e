package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths are infrastructure endpoints reachable without identity headers.
var publicPaths = map[string]bool{
	"/health":    true,
	"/health/db": true,
	"/metrics":   true,
}

// AuthSkipper returns true for requests whose route should skip identity
// checks. Falls back to the raw URL path when no route matched.
func AuthSkipper(c echo.Context) bool {
	if p := c.Path(); p != "" {
		return publicPaths[p]
	}
	return publicPaths[c.Request().URL.Path]
}
