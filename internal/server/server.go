// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer — it connects handlers, middleware, and routes.
// Think of it as the control centre that decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
// main.go reads configuration and calls server.New(), which assembles:
//
//	sqlite.DB → repositories
//	GitHubProvider + TokenService + GitHubGateway → AuthService → AuthHandler
//	GitHubGateway + StatRepository → StatsService → StatsHandler
//
// This is the "composition root" pattern — all dependencies are wired
// in one place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/gitstats/internal/auth"
	"github.com/sakif/gitstats/internal/gateway"
	"github.com/sakif/gitstats/internal/handler"
	"github.com/sakif/gitstats/internal/middleware"
	sqliteRepo "github.com/sakif/gitstats/internal/repository/sqlite"
	"github.com/sakif/gitstats/internal/service"
)

// Config holds server configuration.
// Using a struct for config (instead of individual parameters) makes it easy to:
// - Add new config options without changing function signatures
// - Pass config around as a single value
// - Load config from env vars in one place (main.go)
type Config struct {
	Port   int
	DBPath string

	// JWTSecret signs the session tokens. It is validated here, at startup —
	// the process refuses to boot without a usable secret rather than
	// discovering the problem on the first login.
	JWTSecret string

	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string

	// Frontend destinations for the OAuth callback redirects.
	LoginSuccessURL string
	LoginFailureURL string
}

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection (db). When the server shuts down,
// we must close this connection to flush any pending writes and release the
// file lock. This is handled in Start() during graceful shutdown.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New creates a new Server with the given config.
//
// IMPORT ALIAS:
// We import repository/sqlite as `sqliteRepo` to avoid confusion with
// the sqlite driver package. Import aliases are common in Go when
// package names would otherwise collide or be unclear.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close() // Clean up DB if route setup fails
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET /api/auth/github               → redirect to GitHub authorize page
//	GET /api/auth/github/callback      → OAuth callback, issues session token
//	GET /api/auth/me                   → current account profile        [auth]
//	GET /api/github/repos              → repository listing             [auth]
//	GET /api/github/stats              → persisted stats + totals       [auth]
//	GET /api/github/stats/{owner}/{repo} → sync one repository          [auth]
//
// MIDDLEWARE ORDER MATTERS:
// Middleware executes in the order it's added. Our order:
// 1. RequestID — assigns unique ID to each request (for tracing)
// 2. RealIP — extracts real client IP from proxy headers
// 3. Recoverer — catches panics and returns 500 instead of crashing
// 4. Logger — logs each request with timing info
func (s *Server) setupRoutes() error {
	// === Global Middleware ===
	// These run on EVERY request, in order
	s.router.Use(chimiddleware.RequestID) // Adds X-Request-ID header
	s.router.Use(chimiddleware.RealIP)    // Extracts real IP from X-Forwarded-For
	s.router.Use(chimiddleware.Recoverer) // Recovers from panics, returns 500

	// Our custom logging middleware
	s.router.Use(middleware.Logger(s.logger))

	// === Auth building blocks ===
	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	github := auth.NewGitHubProvider(
		s.config.GitHubClientID,
		s.config.GitHubClientSecret,
		s.config.GitHubCallbackURL,
	)

	gh, err := gateway.NewGitHubGateway(s.logger)
	if err != nil {
		return fmt.Errorf("creating GitHub gateway: %w", err)
	}

	// === Services and handlers ===
	// DEPENDENCY CHAIN:
	//   s.db (sqlite.DB) implements both repository interfaces;
	//   services receive the interfaces, handlers receive the services.
	//   The handler never touches the database directly, the service never
	//   touches HTTP. Clean separation.
	authService := service.NewAuthService(github, gh, s.db, tokens, s.logger)
	statsService := service.NewStatsService(gh, s.db, s.logger)

	authHandler := handler.NewAuthHandler(
		github,
		authService,
		s.config.LoginSuccessURL,
		s.config.LoginFailureURL,
		s.logger,
	)
	statsHandler := handler.NewStatsHandler(statsService, s.logger)

	// The auth gate: verifies the Bearer token AND loads the account fresh
	// from the store before any protected handler runs.
	requireAuth := auth.RequireAuth(tokens, s.db, s.logger)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Get("/github", authHandler.HandleGitHubLogin)
			r.Get("/github/callback", authHandler.HandleGitHubCallback)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/me", authHandler.HandleMe)
			})
		})

		r.Route("/github", func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/repos", statsHandler.HandleListRepositories)
			r.Get("/stats", statsHandler.HandleListStats)
			r.Get("/stats/{owner}/{repo}", statsHandler.HandleSyncRepository)
		})
	})

	return nil
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout — enough to cover
//    the bounded upstream timeout of an in-flight sync)
// 3. Close the database connection (flushes WAL, releases file lock)
//
// If we skip step 3, the database file might be left in an inconsistent state.
// The `defer s.db.Close()` ensures this happens even if something panics.
func (s *Server) Start() error {
	defer s.db.Close()

	// Create the HTTP server with sensible timeouts.
	// WriteTimeout must exceed the gateway's request timeout, or a slow
	// GitHub call would have its response cut off mid-write.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to receive OS signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Channel to receive server errors
	serverErrors := make(chan error, 1)

	// Start the server in a goroutine (so it doesn't block)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		// Server failed to start
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		// Received shutdown signal
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Give in-flight requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
