// Package server exposes the ingestion pipeline and the transaction store
// over HTTP. The handlers are thin: all domain logic lives in ingest and
// store.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/tally-dev/tally/internal/ingest"
	"github.com/tally-dev/tally/internal/store"
)

// Config holds server dependencies.
type Config struct {
	Port           int
	AllowedOrigins []string
	Ingest         *ingest.Service
	Store          *store.Store
	Log            zerolog.Logger
}

// Server is the HTTP server.
type Server struct {
	router *chi.Mux
	http   *http.Server
	ingest *ingest.Service
	store  *store.Store
	log    zerolog.Logger
}

// New creates a Server with routes and middleware wired.
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		ingest: cfg.Ingest,
		store:  cfg.Store,
		log:    cfg.Log.With().Str("component", "server").Logger(),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestLogger(s.log))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/upload", s.handleUpload)
		r.Get("/transactions", s.handleListTransactions)
		r.Get("/accounts", s.handleListAccounts)
		r.Get("/uploads", s.handleListUploads)
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler, used directly in tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("HTTP server listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}
