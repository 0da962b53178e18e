package api

import (
	"io"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/cirwel/unitares-govcore/pkg/dispatch"
)

// invokeToolHandler handles POST /api/v1/tools/:name. The request body is
// the tool's arguments as a raw JSON object, passed through to the
// dispatcher unparsed — normalizeArgs accepts either a map or a JSON
// string, so the raw body bytes are forwarded as-is.
func (s *Server) invokeToolHandler(c *echo.Context) error {
	name := c.Param("name")

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "reading request body: "+err.Error())
	}

	env := s.dispatcher.Invoke(c.Request().Context(), dispatch.Invocation{
		ToolName:     name,
		SessionKey:   extractSessionKey(c),
		Arguments:    string(body),
		ResponseMode: c.QueryParam("response_mode"),
	})

	return c.JSON(statusForEnvelope(env), env)
}

// listToolsHandler handles GET /api/v1/tools — a thin alias for the
// list_tools dispatcher tool, which requires no identity.
func (s *Server) listToolsHandler(c *echo.Context) error {
	env := s.dispatcher.Invoke(c.Request().Context(), dispatch.Invocation{
		ToolName:  "list_tools",
		Arguments: "",
	})
	return c.JSON(statusForEnvelope(env), env)
}

// statusForEnvelope maps a dispatch.Envelope's error code — spec.md §6.2's
// closed ErrorKind set, produced by dispatch's mapServiceError — to an HTTP
// status. A successful envelope always returns 200 — success/failure of the
// governance decision itself (e.g. a "reject" verdict) is carried in the
// envelope body, not the transport status.
func statusForEnvelope(env dispatch.Envelope) int {
	if env.Success {
		return http.StatusOK
	}
	switch env.Error.Code {
	case "NOT_FOUND":
		return http.StatusNotFound
	case "MISSING_PARAMETER", "INVALID_PARAMETER", "MISSING_CONFIG":
		return http.StatusBadRequest
	case "AUTH_FAILED":
		return http.StatusUnauthorized
	case "IDENTITY_IN_USE", "IDENTITY_EXISTS", "LOCK_UNAVAILABLE":
		return http.StatusConflict
	case "RATE_LIMITED":
		return http.StatusTooManyRequests
	case "TIMEOUT":
		return http.StatusGatewayTimeout
	case "INVARIANT_VIOLATED":
		return http.StatusUnprocessableEntity
	case "DEPENDENCY_MISSING":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
