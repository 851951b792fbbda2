package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kbukum/depguard/config"
	"github.com/kbukum/depguard/guard"
	"github.com/kbukum/depguard/logger"
	"github.com/kbukum/depguard/observability"
	"github.com/kbukum/depguard/server/endpoint"
	"github.com/kbukum/depguard/server/middleware"
)

// Server is the operator HTTP surface of a guard deployment, backed by Gin
// and served over HTTP/1.1 and h2c on one port.
type Server struct {
	httpServer      *http.Server
	engine          *gin.Engine
	shutdownTimeout time.Duration
	log             *logger.Logger
	serving         atomic.Bool
}

// New creates a server. Routes are added with RegisterEndpoints.
func New(cfg config.AdminConfig, log *logger.Logger) *Server {
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.WithComponent("server")
	shutdown := cfg.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = 5 * time.Second
	}

	engine := gin.New()
	chain := middleware.Chain(
		middleware.Recovery(log),
		middleware.RequestID(),
		middleware.RequestLogger(log),
	)

	h2s := &http2.Server{
		MaxConcurrentStreams: 250,
		IdleTimeout:          120 * time.Second,
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           h2c.NewHandler(chain(engine), h2s),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		engine:          engine,
		shutdownTimeout: shutdown,
		log:             log,
	}
}

// RegisterEndpoints mounts the health, stats, breaker and metrics routes
// for orch.
func (s *Server) RegisterEndpoints(serviceName, version string, orch *guard.Orchestrator) error {
	reg, err := endpoint.NewMetricsRegistry(orch)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	s.engine.GET("/health", endpoint.Health(serviceName, version, orch))
	s.engine.GET("/version", endpoint.Version(serviceName))
	s.engine.GET("/metrics", endpoint.Metrics(reg))
	s.engine.GET("/stats", endpoint.Stats(orch))
	s.engine.GET("/stats/:resource", endpoint.ResourceStats(orch))
	s.engine.GET("/breakers", endpoint.Breakers(orch))
	s.engine.POST("/breakers/:resource/reset", endpoint.ResetBreaker(orch))
	return nil
}

// Handler returns the root handler, middleware and h2c included.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start binds the port and begins serving. It returns once the listener is
// bound; serving continues in a goroutine.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server failed to bind %s: %w", s.httpServer.Addr, err)
	}

	s.serving.Store(true)
	go func() {
		defer s.serving.Store(false)
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("server error", logger.Fields(logger.FieldError, err.Error()))
		}
	}()

	s.log.Info("admin server started", logger.Fields("addr", listener.Addr().String()))
	return nil
}

// Stop shuts the server down gracefully within the configured timeout.
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.log.Info("admin server stopped")
	return nil
}

// Name implements component.Component.
func (s *Server) Name() string {
	return "admin-server"
}

// Health implements component.Component.
func (s *Server) Health(ctx context.Context) observability.Health {
	h := observability.Health{Name: s.Name(), Status: observability.HealthStatusUp}
	if !s.serving.Load() {
		h.Status = observability.HealthStatusDown
		h.Message = "not serving"
	}
	return h
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}
