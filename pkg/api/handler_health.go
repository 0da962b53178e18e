package api

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/cirwel/unitares-govcore/pkg/version"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeMs int64  `json:"uptime_ms"`
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &HealthResponse{
		Status:   "healthy",
		Version:  version.Full(),
		UptimeMs: time.Since(s.startedAt).Milliseconds(),
	})
}
