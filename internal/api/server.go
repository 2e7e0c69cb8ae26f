// Package api exposes the engine over a JSON HTTP interface.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/jon4hz/sweepcrew/internal/auth"
	"github.com/jon4hz/sweepcrew/internal/config"
	"github.com/jon4hz/sweepcrew/internal/database"
	"github.com/jon4hz/sweepcrew/internal/engine"
)

const sessionCookie = "sweepcrew_session"

// Server serves the HTTP API.
type Server struct {
	cfg    *config.Config
	gin    *gin.Engine
	engine *engine.Engine
	auth   *auth.Service
	db     *database.Client
}

// New creates the API server.
func New(cfg *config.Config, eng *engine.Engine, authSvc *auth.Service, db *database.Client) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(), gzip.Gzip(gzip.DefaultCompression))

	server := &Server{
		cfg:    cfg,
		gin:    router,
		engine: eng,
		auth:   authSvc,
		db:     db,
	}
	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	h := newHandler(s)

	s.gin.POST("/api/login", h.Login)
	s.gin.POST("/api/register", h.Register)

	protected := s.gin.Group("/api")
	protected.Use(s.requireAuth())
	protected.POST("/logout", h.Logout)
	protected.GET("/me", h.Me)
	protected.GET("/media", h.ListMedia)
	protected.POST("/media/:id/mark", h.Mark)
	protected.DELETE("/media/:id/mark", h.Unmark)
	protected.POST("/media/:id/persist", h.Persist)
	protected.GET("/posters/:file", h.Poster)

	admin := s.gin.Group("/api/admin")
	admin.Use(s.requireAuth(), s.requireAdmin())
	admin.GET("/stats", h.Stats)
	admin.GET("/trash", h.ListTrash)
	admin.GET("/users", h.ListUsers)
	admin.POST("/users", h.CreateUser)
	admin.DELETE("/users/:id", h.DeleteUser)
	admin.POST("/invites", h.CreateInvite)
	admin.GET("/jobs", h.ListJobs)
	admin.POST("/jobs/:id/run", h.RunJob)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.gin
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.gin,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", "addr", s.cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("Request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
