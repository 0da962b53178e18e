// Package api provides the HTTP binding for the governance dispatcher.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/cirwel/unitares-govcore/pkg/dispatch"
	"github.com/cirwel/unitares-govcore/pkg/events"
)

// Server is the HTTP API server: one route per dispatcher tool name plus
// health and audit-event streaming.
type Server struct {
	echo        *echo.Echo
	httpServer  *http.Server
	dispatcher  *dispatch.Dispatcher
	connManager *events.ConnectionManager
	startedAt   time.Time
}

// NewServer creates a new API server with Echo v5.
func NewServer(d *dispatch.Dispatcher, connManager *events.ConnectionManager) *Server {
	e := echo.New()

	s := &Server{
		echo:        e,
		dispatcher:  d,
		connManager: connManager,
		startedAt:   time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes registers all API routes.
func (s *Server) setupRoutes() {
	s.echo.Use(securityHeaders())
	// Governance argument payloads are small JSON envelopes; 1 MB is
	// generous headroom over anything a tool call legitimately carries.
	s.echo.Use(middleware.BodyLimit(1 * 1024 * 1024))

	s.echo.GET("/health", s.healthHandler)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/tools/:name", s.invokeToolHandler)
	v1.GET("/tools", s.listToolsHandler)
	v1.GET("/ws", s.wsHandler)
}

// Start starts the HTTP server on the given address and blocks until the
// server stops.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener. Used
// by test infrastructure to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
