// Package server exposes the task engine over HTTP: task submission and
// control, the live SSE event stream, workspace file retrieval, and
// operational status endpoints.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vinayprograms/agentkit/logging"
	"golang.org/x/net/netutil"

	"github.com/ResearAI/ResearStudio/internal/backend"
	"github.com/ResearAI/ResearStudio/internal/config"
	"github.com/ResearAI/ResearStudio/internal/registry"
)

// ToolStatus is what the status endpoint needs from the tool pool.
type ToolStatus interface {
	Initialized() bool
	Schemas() []backend.ToolDef
	Unavailable() []string
}

// Server wires the registry and tool pool to the HTTP API.
type Server struct {
	reg       *registry.Registry
	tools     ToolStatus
	engine    *gin.Engine
	http      *http.Server
	heartbeat time.Duration
	maxConns  int
	logger    *logging.Logger
	startTime time.Time
}

// New builds the server and its routes.
func New(cfg *config.Config, reg *registry.Registry, tools ToolStatus, logger *logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	heartbeat := time.Duration(cfg.Limits.Heartbeat) * time.Second
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}

	s := &Server{
		reg:       reg,
		tools:     tools,
		engine:    engine,
		heartbeat: heartbeat,
		maxConns:  cfg.Server.MaxConnections,
		logger:    logger.WithComponent("server"),
		startTime: time.Now(),
	}
	s.http = &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: engine,
		// No WriteTimeout: the SSE stream is long-lived by design.
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.engine.Group("/api")

	api.GET("/health", s.handleHealth)
	api.GET("/tools/status", s.handleToolsStatus)

	api.POST("/tasks", s.handleCreateTask)
	api.GET("/tasks", s.handleListTasks)
	api.GET("/tasks/:id", s.handleGetTask)
	api.POST("/tasks/:id/pause", s.handlePause)
	api.POST("/tasks/:id/resume", s.handleResume)
	api.GET("/tasks/:id/stream", s.handleStream)
	api.GET("/tasks/:id/export", s.handleExport)

	api.GET("/file_load/:id/*path", s.handleFileLoad)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Start serves until the listener closes. The connection cap, when set,
// bounds concurrent clients at the listener.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.http.Addr, err)
	}
	if s.maxConns > 0 {
		ln = netutil.LimitListener(ln, s.maxConns)
	}

	s.logger.Info("http server listening", map[string]interface{}{
		"addr":      s.http.Addr,
		"max_conns": s.maxConns,
	})
	if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
