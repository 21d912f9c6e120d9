// Package api exposes scores, alerts, rules and reports over HTTP.
package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Server serves the analyst API.
type Server struct {
	router *chi.Mux
	http   *http.Server
}

// NewServer wires the routes. The listener is opened by Start.
func NewServer(cfg domain.ServerConfig, deps Deps) *Server {
	handler := NewHandler(deps)
	router := chi.NewRouter()

	router.Use(middleware.RealIP)
	router.Use(instrument)
	router.Use(recoverer)
	router.Use(middleware.Compress(5))

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/transactions", func(r chi.Router) {
		r.Get("/", handler.ListTransactions)
		r.Get("/{id}", handler.GetTransaction)
		r.Post("/{id}/review", handler.ReviewTransaction)
		r.Post("/{id}/fraud", handler.LabelTransaction)
		r.Put("/{id}/ml-score", handler.SetMLScore)
	})

	router.Route("/alerts", func(r chi.Router) {
		r.Get("/", handler.ListAlerts)
		r.Get("/{id}", handler.GetAlert)
		r.Post("/{id}/status", handler.SetAlertStatus)
	})

	router.Route("/rules", func(r chi.Router) {
		r.Get("/", handler.ListRules)
		r.Post("/", handler.CreateRule)
		r.Get("/{id}", handler.GetRule)
		r.Post("/{id}/activate", handler.ActivateRule)
		r.Post("/{id}/deactivate", handler.DeactivateRule)
	})

	router.Route("/reports", func(r chi.Router) {
		r.Get("/rule-performance", handler.RulePerformance)
		r.Get("/high-risk", handler.HighRisk)
		r.Get("/detection", handler.Detection)
		r.Get("/summary", handler.Summary)
	})
	router.Get("/users/{id}/summary", handler.UserSummary)

	router.Route("/batches", func(r chi.Router) {
		r.Get("/", handler.ListBatches)
		r.Post("/", handler.RequestBatch)
		r.Get("/{id}", handler.GetBatch)
	})

	return &Server{
		router: router,
		http: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       time.Duration(cfg.ReadTimeout) * time.Second,
			WriteTimeout:      time.Duration(cfg.WriteTimeout) * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
	}
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return s.http.Addr
}

// Start listens until Shutdown. It returns http.ErrServerClosed after a
// clean shutdown.
func (s *Server) Start() error {
	return s.http.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
