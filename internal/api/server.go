// Package api provides the HTTP server for SiApp: application pages and
// their PWA assets, the public registration form and the admin panel.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/siapp-dev/siapp/internal/api/handlers"
	"github.com/siapp-dev/siapp/internal/api/health"
	"github.com/siapp-dev/siapp/internal/api/middleware"
	"github.com/siapp-dev/siapp/internal/auth"
	"github.com/siapp-dev/siapp/internal/render"
	"github.com/siapp-dev/siapp/internal/store"
	"github.com/siapp-dev/siapp/pkg/config"
)

// Version is the current version of the server.
// This should be set at build time using ldflags.
var Version = "dev"

// Server represents the HTTP server.
type Server struct {
	router        chi.Router
	httpServer    *http.Server
	store         store.Store
	gate          *auth.Gate
	renderer      *render.Renderer
	slugs         *store.SlugGenerator
	config        *config.Config
	logger        *slog.Logger
	healthChecker *health.Checker
}

// NewServer creates a new server with the given dependencies.
func NewServer(cfg *config.Config, st store.Store, gate *auth.Gate, renderer *render.Renderer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		store:    st,
		gate:     gate,
		renderer: renderer,
		slugs:    store.NewSlugGenerator(),
		config:   cfg,
		logger:   logger,
	}

	s.healthChecker = health.NewChecker(st, renderer.FS(), Version)

	s.setupRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// setupRouter configures the router with middleware and routes.
//
// Asset paths (<slug>/manifest.json, <slug>/sw.js, <slug>/icons/...) are
// intercepted before routing. Of the remaining paths, /admin, /form, /health
// and the docs page are fixed; everything else is looked up as a slug.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	public := handlers.NewPublicHandler(s.store, s.renderer, s.logger)
	assets := handlers.NewAssetHandler(s.store, s.renderer, s.logger)
	login := handlers.NewLoginHandler(s.gate, s.logger)
	admin := handlers.NewAdminHandler(s.store, s.logger)
	form := handlers.NewFormHandler(s.store, s.slugs, s.logger)

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recovery(s.logger))
	r.Use(chimiddleware.GetHead)
	r.Use(assets.Intercept)

	r.Get("/health", s.healthChecker.Handler())
	r.Get("/"+render.DocsFile, public.Docs)

	// Admin panel. Only the login page is reachable without a session.
	r.Get("/admin", redirectTo(handlers.AdminHome))
	r.Get(auth.LoginPath, login.Show)
	r.Post(auth.LoginPath, login.Submit)
	r.Group(func(r chi.Router) {
		r.Use(s.gate.RequireAuth)

		r.Get(handlers.AdminHome, admin.Dashboard)
		r.Get("/admin/manage", admin.Manage)
		r.Post("/admin/manage", admin.ManageSubmit)
		r.Get("/admin/export", admin.Export)
		r.Get(handlers.AdminLogout, login.Logout)
		r.HandleFunc("/admin/*", http.NotFound)
	})

	// Public registration
	r.Get("/form", redirectTo("/form/"))
	r.Get("/form/", form.Show)
	r.Post("/form/", form.Submit)

	r.Get("/", public.Landing)
	r.Get("/*", public.Show)

	s.router = r
}

func redirectTo(target string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target, http.StatusMovedPermanently)
	}
}

// Start starts the HTTP server and blocks until it stops. Cancelling ctx
// shuts the server down.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting server", "addr", s.httpServer.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// HTTPServer returns the underlying http.Server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Router returns the chi router for testing purposes.
func (s *Server) Router() chi.Router {
	return s.router
}
