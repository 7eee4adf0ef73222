package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/guestbook/internal/auth"
	"github.com/saltyorg/guestbook/internal/config"
	"github.com/saltyorg/guestbook/internal/guestbook"
	"github.com/saltyorg/guestbook/internal/web/handlers"
	"github.com/saltyorg/guestbook/internal/web/live"
	"github.com/saltyorg/guestbook/internal/web/middleware"
)

//go:embed templates/*
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

const requestTimeout = 30 * time.Second

// Options configures a Server
type Options struct {
	Port         int
	Bind         string
	AllowedNet   *net.IPNet
	DefaultOrder guestbook.Order
	Version      string
	IsDev        bool
	// Notifier is optional
	Notifier handlers.Notifier
}

// Server represents the web server
type Server struct {
	opts      Options
	router    *chi.Mux
	templates map[string]*template.Template
	entries   handlers.EntryStore
	stats     handlers.StatsSource
	hub       *live.Hub
	provider  *auth.Provider
	sessions  *auth.SessionStore
	handlers  *handlers.Handlers
}

// NewServer creates a new web server. provider and sessions may both be nil,
// in which case the login routes answer 404.
func NewServer(opts Options, entries handlers.EntryStore, stats handlers.StatsSource, provider *auth.Provider, sessions *auth.SessionStore) (*Server, error) {
	s := &Server{
		opts:     opts,
		router:   chi.NewRouter(),
		entries:  entries,
		stats:    stats,
		hub:      live.NewHub(config.GetTimeouts().WebSocketPing),
		provider: provider,
		sessions: sessions,
	}

	if err := s.loadTemplates(); err != nil {
		s.hub.Stop()
		return nil, err
	}
	if err := s.setupRoutes(); err != nil {
		s.hub.Stop()
		return nil, err
	}
	return s, nil
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the live feed hub
func (s *Server) Hub() *live.Hub {
	return s.hub
}

// loadTemplates parses each page template together with the base layout
func (s *Server) loadTemplates() error {
	s.templates = make(map[string]*template.Template)

	pageTemplates := []string{
		"guestbook.html",
	}

	for _, page := range pageTemplates {
		tmpl, err := template.New("").ParseFS(templatesFS,
			"templates/base.html",
			"templates/"+page,
		)
		if err != nil {
			return fmt.Errorf("failed to parse template %s: %w", page, err)
		}
		s.templates[page] = tmpl
	}
	return nil
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() error {
	r := s.router

	r.Use(chimiddleware.RequestID)
	// AllowSubnet must come BEFORE RealIP so we check the actual connection source
	r.Use(middleware.AllowSubnet(s.opts.AllowedNet))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(chimiddleware.Recoverer)

	h := handlers.New(s.entries, s.templates, s.stats, s.hub, s.opts.IsDev)
	h.SetDefaultOrder(s.opts.DefaultOrder)
	h.SetVersion(s.opts.Version)
	if s.opts.Notifier != nil {
		h.SetNotifier(s.opts.Notifier)
	}
	if s.provider != nil && s.sessions != nil {
		h.SetAuth(s.provider, s.sessions)
	}
	s.handlers = h

	// Live feed - no timeout (long-lived connections)
	r.Get("/ws", s.hub.ServeHTTP)

	staticContent, err := fs.Sub(staticFS, "static")
	if err != nil {
		return fmt.Errorf("failed to setup static files: %w", err)
	}
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticContent))))

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(requestTimeout))
		r.Get("/healthz", h.Healthz)
	})

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(requestTimeout))
		r.Use(middleware.SessionLoader(s.sessions, s.opts.IsDev))

		r.Get("/", h.Home)
		r.Post("/", h.Submit)

		r.Get("/login", h.Login)
		r.Get("/callback", h.Callback)
		r.Get("/logout", h.Logout)
	})

	return nil
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	var addr string
	if s.opts.Bind != "" {
		addr = fmt.Sprintf("%s:%d", s.opts.Bind, s.opts.Port)
	} else {
		addr = fmt.Sprintf(":%d", s.opts.Port)
	}

	server := &http.Server{
		Addr:    addr,
		Handler: s.router,
		// ReadTimeout is for reading request body
		ReadTimeout: 15 * time.Second,
		// WriteTimeout disabled (0) to allow long-lived WebSocket connections
		// Chi middleware timeout protects regular requests
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down HTTP server")
		// Close live feed clients first, Shutdown does not wait for hijacked connections
		s.hub.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetTimeouts().Shutdown)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errChan:
		s.hub.Stop()
		return err
	}
}
