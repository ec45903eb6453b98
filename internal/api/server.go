package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Dependencies) *Server {
	handler := NewHandler(deps)
	router := chi.NewRouter()

	router.Use(CORSMiddleware(cfg.AllowedOrigins))
	router.Use(RecoverMiddleware(handler.logger))
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware(handler.logger))
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Handle("/metrics", promhttp.Handler())

	router.Post("/evaluate", handler.Evaluate)
	router.Get("/evaluations/stats", handler.EvaluationStats)
	router.Get("/evaluations/{id}", handler.GetEvaluation)

	router.Route("/applicants", func(r chi.Router) {
		r.Get("/", handler.ListApplicants)
		r.Post("/", handler.CreateApplicant)
		r.Get("/{id}", handler.GetApplicant)
		r.Put("/{id}", handler.UpdateApplicant)
		r.Delete("/{id}", handler.DeleteApplicant)
		r.Get("/{id}/evaluations", handler.ListApplicantEvaluations)
		r.Post("/{id}/transactions", handler.AddTransaction)
	})

	router.Route("/config", func(r chi.Router) {
		r.Get("/snapshot", handler.GetSnapshot)
		for _, kind := range domain.ConfigKinds {
			path := "/" + string(kind)
			r.Get(path, handler.GetConfig(kind))
			r.Put(path, handler.PutConfig(kind))
			r.Get(path+"/versions", handler.ListConfigVersions(kind))
		}
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
