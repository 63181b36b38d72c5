// Package api provides the HTTP control plane and the live-stream
// WebSocket endpoint.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zshan-dev/agent-arena/pkg/events"
	"github.com/zshan-dev/agent-arena/pkg/services"
	"github.com/zshan-dev/agent-arena/pkg/storage"
)

// Server is the HTTP API server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	tests      *services.TestService
	repo       storage.Repository
	bus        *events.Bus
}

// NewServer builds the gin engine and registers all routes.
func NewServer(tests *services.TestService, repo storage.Repository, bus *events.Bus) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine: engine,
		tests:  tests,
		repo:   repo,
		bus:    bus,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.engine.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/tests/scenarios", s.handleListScenarios)
	api.POST("/tests", s.handleCreateTest)
	api.GET("/tests", s.handleListTests)
	api.GET("/tests/:id", s.handleGetTest)
	api.POST("/tests/:id/start", s.handleStartTest)
	api.POST("/tests/:id/stop", s.handleStopTest)
	api.DELETE("/tests/:id", s.handleDeleteTest)
	api.GET("/tests/:id/logs", s.handleGetLogs)

	s.engine.GET("/ws/tests", s.handleWS)
}

// Start begins serving on the given port.
func (s *Server) Start(port int) error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP server listening", "port", port)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// errorResponse is the uniform HTTP error body.
type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// writeError maps service errors onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrTestNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Message: "test not found", Code: "TEST_NOT_FOUND"})
	case errors.Is(err, services.ErrInvalidScenario):
		c.JSON(http.StatusBadRequest, errorResponse{Message: err.Error(), Code: "INVALID_SCENARIO"})
	case errors.Is(err, services.ErrInvalidDuration):
		c.JSON(http.StatusBadRequest, errorResponse{Message: err.Error(), Code: "INVALID_DURATION"})
	case errors.Is(err, services.ErrMaxTestsReached):
		c.JSON(http.StatusTooManyRequests, errorResponse{Message: err.Error(), Code: "MAX_TESTS_REACHED"})
	case errors.Is(err, services.ErrInvalidStatus):
		c.JSON(http.StatusConflict, errorResponse{Message: err.Error(), Code: "INVALID_STATUS"})
	case errors.Is(err, services.ErrTestActive):
		c.JSON(http.StatusConflict, errorResponse{Message: err.Error(), Code: "TEST_ACTIVE"})
	default:
		slog.Error("Request failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Message: "internal error"})
	}
}
