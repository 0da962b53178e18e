package api

import (
	echo "github.com/labstack/echo/v5"
)

// extractSessionKey extracts the per-connection session identifier the
// dispatcher uses to resolve or mint an identity (spec.md §1's "per-connection
// session identifiers" assumption). Priority: X-Session-Key header, then the
// session_key query parameter, for clients that can't set custom headers.
func extractSessionKey(c *echo.Context) string {
	if key := c.Request().Header.Get("X-Session-Key"); key != "" {
		return key
	}
	return c.QueryParam("session_key")
}
