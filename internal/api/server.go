package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/loanscore/internal/domain"
	"github.com/opensource-finance/loanscore/internal/service"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, svc *service.Service, version string) *Server {
	handler := NewHandler(svc, version)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	router.Route("/v1", func(r chi.Router) {
		r.Use(TenantMiddleware)

		r.Put("/applicants/{id}", handler.PutApplicant)
		r.Get("/applicants/{id}", handler.GetApplicant)
		r.Put("/businesses/{id}", handler.PutBusiness)
		r.Get("/businesses/{id}", handler.GetBusiness)

		r.Get("/products", handler.ListProducts)
		r.Post("/products", handler.CreateProduct)
		r.Post("/products/reload", handler.ReloadProducts)

		r.Post("/individual/evaluate", handler.EvaluateIndividual)
		r.Post("/individual/simulate", handler.SimulateIndividual)
		r.Post("/business/evaluate", handler.EvaluateBusiness)
		r.Post("/business/simulate", handler.SimulateBusiness)

		r.Get("/evaluations/{id}", handler.GetEvaluation)
		r.Post("/amortization", handler.Amortize)

		r.Get("/rules", handler.ListRules)
		r.Post("/rules/reload", handler.ReloadRules)
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
