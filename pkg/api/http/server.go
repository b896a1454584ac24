package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tonybaloney/agentic-popup-shop-sub001/internal/application/orchestrator"
	"github.com/tonybaloney/agentic-popup-shop-sub001/internal/application/proposals"
	"github.com/tonybaloney/agentic-popup-shop-sub001/internal/application/runs"
	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/ports"
)

// Server is the REST API server.
type Server struct {
	router        *gin.Engine
	server        *http.Server
	evaluations   *proposals.Service
	deliberations *orchestrator.Service
	runs          *runs.Service
	bus           ports.EventBus
	logger        *zap.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Port          int
	Evaluations   *proposals.Service
	Deliberations *orchestrator.Service
	Runs          *runs.Service
	Bus           ports.EventBus
	Logger        *zap.Logger
}

// NewServer creates the REST API server.
func NewServer(cfg *Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(cfg.Logger))
	router.Use(corsMiddleware())

	s := &Server{
		router:        router,
		evaluations:   cfg.Evaluations,
		deliberations: cfg.Deliberations,
		runs:          cfg.Runs,
		bus:           cfg.Bus,
		logger:        cfg.Logger,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/evaluations", s.handleSubmitEvaluation)
		v1.POST("/deliberations", s.handleSubmitDeliberation)

		// Both workflows share the run-keyed endpoints.
		v1.GET("/evaluations", s.handleListEvaluations)
		v1.GET("/evaluations/:id", s.handleGetEvaluation)
		v1.GET("/evaluations/:id/status", s.handleGetStatus)
		v1.GET("/evaluations/:id/result", s.handleGetResult)
		v1.POST("/evaluations/:id/cancel", s.handleCancel)
		v1.GET("/evaluations/:id/events", s.handleStreamEvents)

		v1.GET("/runs/:id", s.handleGetEvaluation)
		v1.GET("/runs/:id/status", s.handleGetStatus)
		v1.GET("/runs/:id/result", s.handleGetResult)
		v1.POST("/runs/:id/cancel", s.handleCancel)
		v1.GET("/runs/:id/events", s.handleStreamEvents)
	}
}

// SetupWebSocket mounts the per-run websocket stream.
func (s *Server) SetupWebSocket(handler interface {
	HandleRunStream(*gin.Context)
}) {
	s.router.GET("/api/v1/evaluations/:id/ws", handler.HandleRunStream)
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info("HTTP server shut down complete")
	return nil
}

// requestLogger is a middleware for request logging
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		duration := time.Since(start)

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", duration),
			zap.String("client_ip", c.ClientIP()))
	}
}
