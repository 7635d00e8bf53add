package diag

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	apperrors "github.com/inferkit/inferkit/errors"
	"github.com/inferkit/inferkit/logger"
	"github.com/inferkit/inferkit/version"
)

// Server serves the diagnostics API over HTTP, backed by Gin.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	registry   *Registry
	config     Config
	log        *logger.Logger
}

// New creates a diagnostics server with its routes registered.
func New(cfg Config, registry *Registry, log *logger.Logger) *Server {
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      engine,
			ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
			IdleTimeout:  time.Duration(cfg.IdleTimeout) * time.Second,
		},
		engine:   engine,
		registry: registry,
		config:   cfg,
		log:      log.WithComponent("diag"),
	}
	s.registerRoutes()
	return s
}

// Engine returns the underlying Gin engine, mainly for tests and for
// mounting additional routes.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/stats", s.handleStats)
	s.engine.GET("/stats/:backend", s.handleBackendStats)
	s.engine.POST("/reset", s.handleReset)
	s.engine.POST("/breakers/:backend/reset", s.handleResetBreaker)
}

func (s *Server) handleHealth(c *gin.Context) {
	respondOK(c, gin.H{
		"status":   "ok",
		"version":  version.Get(),
		"backends": s.registry.Names(),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	respondOK(c, s.registry.Snapshot())
}

func (s *Server) handleBackendStats(c *gin.Context) {
	name := c.Param("backend")
	guard, ok := s.registry.Get(name)
	if !ok {
		respondWithError(c, apperrors.NotFound("backend"))
		return
	}
	respondOK(c, guard.Stats())
}

func (s *Server) handleReset(c *gin.Context) {
	s.registry.ResetAll()
	s.log.Info("diagnostics counters reset")
	respondOK(c, gin.H{"reset": s.registry.Names()})
}

func (s *Server) handleResetBreaker(c *gin.Context) {
	name := c.Param("backend")
	guard, ok := s.registry.Get(name)
	if !ok {
		respondWithError(c, apperrors.NotFound("backend"))
		return
	}
	guard.Breaker().Reset()
	s.log.Info("circuit breaker reset", logger.Fields("backend", name))
	respondOK(c, gin.H{"backend": name, "state": guard.Stats().Breaker.State})
}

// Start binds the port and begins serving. It returns once the listener is
// bound; serving continues in a goroutine.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("diag server failed to bind %s: %w", s.httpServer.Addr, err)
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("diag server error", logger.Fields(logger.FieldError, err.Error()))
		}
	}()

	s.log.Info("diagnostics server started", logger.Fields("addr", s.httpServer.Addr))
	return nil
}

// Stop gracefully shuts down the server with a 5-second deadline.
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("diag server shutdown: %w", err)
	}
	s.log.Info("diagnostics server shut down")
	return nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}
