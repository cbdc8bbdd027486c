// Package http exposes the gamification read API and the administrative
// write API over gin.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/alem-hub/gamification/internal/application/command"
	"github.com/alem-hub/gamification/internal/application/query"
	"github.com/alem-hub/gamification/internal/interface/http/handlers"
	"github.com/alem-hub/gamification/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// AdminAPIKeyHash is the bcrypt hash of the admin X-API-Key. Empty
	// leaves the admin routes unregistered.
	AdminAPIKeyHash string

	// Mode is the gin mode; defaults to release.
	Mode string

	// RateLimit bounds /api/v1 requests per client IP.
	RateLimit handlers.RateLimitConfig
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		Mode:         gin.ReleaseMode,
		RateLimit:    handlers.DefaultRateLimitConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains everything the route handlers call into.
type Dependencies struct {
	// Commands is the write side; admin routes and claims go through it.
	Commands *command.Handlers

	// Read side.
	Leaderboard *query.GetLeaderboardHandler
	UserStats   *query.GetUserStatsHandler
	XPHistory   *query.GetXPHistoryHandler
	Assignments *query.ListAssignmentsHandler
	Badges      *query.ListUserBadgesHandler

	Health handlers.HealthChecker
	Logger *zap.Logger
}

func (d Dependencies) validate() error {
	switch {
	case d.Commands == nil:
		return errors.New("http: command handlers are required")
	case d.Leaderboard == nil, d.UserStats == nil, d.XPHistory == nil, d.Assignments == nil, d.Badges == nil:
		return errors.New("http: query handlers are required")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	engine     *gin.Engine
	httpServer *http.Server
	logger     *zap.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) (*Server, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if config.Mode == "" {
		config.Mode = gin.ReleaseMode
	}
	gin.SetMode(config.Mode)

	s := &Server{
		config: config,
		deps:   deps,
		engine: gin.New(),
		logger: deps.Logger.With(logger.Component("http")),
	}

	s.engine.Use(
		handlers.RequestID(s.logger),
		handlers.Recovery(s.logger),
		handlers.RequestLogger(s.logger),
		handlers.SecurityHeaders(),
	)
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         config.Addr,
		Handler:      s.engine,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	r := s.engine

	r.GET("/health", s.handleHealth)
	r.GET("/ready", s.handleReady)

	limiter := handlers.NewRateLimiter(s.config.RateLimit)
	v1 := r.Group("/api/v1", limiter.Middleware())
	{
		users := v1.Group("/users/:userId")
		users.GET("/stats", s.handleGetUserStats)
		users.GET("/xp", s.handleGetXPHistory)
		users.GET("/badges", s.handleListBadges)
		users.GET("/challenges", s.handleListChallenges)
		users.POST("/challenges/:assignmentId/claim", s.handleClaimChallenge)

		v1.GET("/leaderboard", s.handleGlobalLeaderboard)
		v1.GET("/courses/:courseId/leaderboard", s.handleCourseLeaderboard)
	}

	auth := handlers.NewAPIKeyAuth(s.config.AdminAPIKeyHash)
	if !auth.Enabled() {
		s.logger.Warn("admin API disabled: no API key hash configured")
		return
	}

	admin := v1.Group("/admin", auth.Middleware(), handlers.NoCache())
	{
		admin.POST("/challenges", s.handleCreateChallenge)
		admin.POST("/badges", s.handleCreateBadge)
		admin.POST("/users/:userId/badges", s.handleAwardBadge)
		admin.POST("/users/:userId/penalties", s.handlePenalize)
		admin.POST("/users/:userId/reconcile", s.handleReconcile)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", zap.String("address", s.config.Addr))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Uptime returns how long the server has been running.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}
