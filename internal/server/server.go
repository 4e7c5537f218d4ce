// Package server exposes the migration queue over a JSON REST API with a
// Server-Sent Events stream of job changes.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/deskmove/internal/config"
	"github.com/me/deskmove/internal/scheduler"
	"github.com/me/deskmove/internal/store"
)

// Version is reported by the health and discovery endpoints.
const Version = "0.3.0"

// Server is the deskmove REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.ServerConfig
	startTime time.Time
	queue     scheduler.Controller
	history   store.Store // optional; nil disables /history
	events    *Broadcaster
	gateway   string
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithHistory sets the store backing the /history endpoints.
func WithHistory(st store.Store) Option {
	return func(s *Server) {
		s.history = st
	}
}

// WithEvents sets the broadcaster streamed by /sse/jobs.
func WithEvents(b *Broadcaster) Option {
	return func(s *Server) {
		s.events = b
	}
}

// WithGatewayName names the directory backend in health output.
func WithGatewayName(name string) Option {
	return func(s *Server) {
		s.gateway = name
	}
}

// New creates a new Server with all routes registered.
func New(cfg config.ServerConfig, queue scheduler.Controller, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		queue:     queue,
		gateway:   "graph",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.handleListJobs)
			r.Post("/", s.handleCreateJobs)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetJob)
				r.Delete("/", s.handleRemoveJob)
				r.Post("/reorder", s.handleReorderJob)
			})
		})

		r.Route("/queue", func(r chi.Router) {
			r.Get("/", s.handleQueueStats)
			r.Put("/concurrency", s.handleSetConcurrency)
			r.Post("/start", s.handleStartQueue)
			r.Post("/stop", s.handleStopQueue)
		})

		r.Route("/history", func(r chi.Router) {
			r.Get("/", s.handleListHistory)
			r.Get("/{id}", s.handleGetHistory)
		})

		r.Get("/sse/jobs", s.handleSSEJobs)
	})
}
