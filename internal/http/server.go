// Package http provides the REST API for tiermem.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tiermem/internal/logging"
	"github.com/fyrsmithlabs/tiermem/internal/services"
)

// maxBodySize caps request bodies.
const maxBodySize = "1M"

// Server serves the memory API over HTTP.
type Server struct {
	echo    *echo.Echo
	memory  *services.Memory
	logger  *zap.Logger
	config  *Config
	metrics *HTTPMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(mem *services.Memory, logger *zap.Logger, cfg *Config) (*Server, error) {
	if mem == nil {
		return nil, fmt.Errorf("memory service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "127.0.0.1",
			Port: 9595,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		memory:  mem,
		logger:  logger,
		config:  cfg,
		metrics: NewHTTPMetrics(logger),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(maxBodySize))
	e.Use(s.metrics.MetricsMiddleware())
	e.Use(requestContext)
	e.Use(s.requestLogger)

	s.registerRoutes()
	return s, nil
}

// requestContext carries the request and agent ids into the request
// context so service logs correlate with the access log.
func requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		ctx := logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))
		if agent, err := agentParam(c); err == nil {
			ctx = logging.WithAgentID(ctx, agent)
		}
		c.SetRequest(req.WithContext(ctx))
		return next(c)
	}
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			// Let echo write the response so the logged status is final.
			c.Error(err)
		}

		fields := append(logging.ContextFields(c.Request().Context()),
			zap.String("method", c.Request().Method),
			zap.String("route", c.Path()),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		if c.Response().Status >= http.StatusInternalServerError {
			s.logger.Error("http request", append(fields, zap.Error(err))...)
		} else {
			s.logger.Info("http request", fields...)
		}
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/agents", s.handleListAgents)
	v1.POST("/conversations", s.handleRecordConversation)

	agent := v1.Group("/agents/:agent")
	agent.GET("", s.handleOverview)
	agent.POST("/memories", s.handleAddMemory)
	agent.GET("/memories", s.handleListMemories)
	agent.GET("/memories/:id", s.handleGetMemory)
	agent.PATCH("/memories/:id", s.handleEditMemory)
	agent.DELETE("/memories/:id", s.handleDeleteMemory)
	agent.POST("/retrieve", s.handleRetrieve)
	agent.POST("/search", s.handleSearch)
	agent.GET("/context", s.handleContext)
	agent.POST("/summarize", s.handleSummarize)
	agent.POST("/decay", s.handleDecay)
}

// Echo exposes the underlying router for extra routes.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
