package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/BinJu/train/pkg/events"
	"github.com/BinJu/train/pkg/log"
	"github.com/BinJu/train/pkg/runner"
	"github.com/BinJu/train/pkg/security"
	"github.com/BinJu/train/pkg/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// Queue is the part of the artifact queue the API uses
type Queue interface {
	Enqueue(ctx context.Context, artID string) error
	Depth(ctx context.Context) (int, error)
}

// Config holds API server configuration
type Config struct {
	Listen    string
	Namespace string
}

// Server is the HTTP front of the engine: it records artifacts and
// credentials and notifies the scheduler through the queue.
type Server struct {
	config   Config
	store    storage.Store
	queue    Queue
	runner   runner.Runner
	secrets  *security.SecretsManager
	events   events.Publisher
	validate *validator.Validate
	logger   zerolog.Logger
	server   *http.Server
}

// NewServer creates a new API server. pub may be nil.
func NewServer(cfg Config, store storage.Store, q Queue, r runner.Runner, sm *security.SecretsManager, pub events.Publisher) *Server {
	if cfg.Namespace == "" {
		cfg.Namespace = "train"
	}
	return &Server{
		config:   cfg,
		store:    store,
		queue:    q,
		runner:   r,
		secrets:  sm,
		events:   pub,
		validate: validator.New(),
		logger:   log.WithComponent("api"),
	}
}

// Start serves HTTP until ctx is done, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("listen", s.config.Listen).Msg("API server starting")

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info().Msg("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.instrument)
	r.Use(middleware.Recoverer)

	s.healthRoutes(r)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/sched/{id}", s.handleSchedule)

		r.Route("/art", func(r chi.Router) {
			r.Get("/", s.handleListArtifacts)
			r.Post("/", s.handleApplyArtifact)
			r.Get("/{id}", s.handleGetArtifact)
			r.Delete("/{id}", s.handleDeleteArtifact)
			r.Put("/{id}/borrow", s.handleBorrow)
		})

		r.Get("/secret", s.handleListSecrets)
		r.Post("/secret", s.handleCreateSecret)
		r.Get("/account", s.handleListAccounts)
		r.Post("/account", s.handleCreateAccount)
	})

	return r
}
