package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/extract"
	"github.com/JakeFAU/contact-harvester/internal/metrics"
	"github.com/JakeFAU/contact-harvester/internal/progress"
	"github.com/JakeFAU/contact-harvester/internal/store"
)

// Controller is the session control surface the handlers drive.
type Controller interface {
	Start(ctx context.Context, q extract.Query) (string, error)
	Stop() bool
	Progress() (count int, status extract.Status, ok bool)
	Snapshot() (extract.Session, []extract.Record, bool)
}

// Platforms lists the registered collector identifiers.
type Platforms interface {
	IDs() []string
}

// Subscriber hands out live progress streams.
type Subscriber interface {
	Subscribe() (<-chan progress.Event, func())
}

// Options wires the server's collaborators. Repo, Feed and Ready are optional.
type Options struct {
	Controller Controller
	Platforms  Platforms
	Repo       store.SessionRepository
	Feed       Subscriber
	// Ready reports downstream readiness for /readyz.
	Ready func(ctx context.Context) error

	AuthEnabled    bool
	APIKey         string
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

const (
	defaultRequestTimeout = 30 * time.Second
	repoTimeout           = 3 * time.Second
)

// Server wires HTTP handlers to the coordinator and stores.
type Server struct {
	router      chi.Router
	ctrl        Controller
	platforms   Platforms
	repo        store.SessionRepository
	feed        Subscriber
	ready       func(ctx context.Context) error
	repoTimeout time.Duration
	logger      *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	s := &Server{
		ctrl:        opts.Controller,
		platforms:   opts.Platforms,
		repo:        opts.Repo,
		feed:        opts.Feed,
		ready:       opts.Ready,
		repoTimeout: repoTimeout,
		logger:      logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if opts.AuthEnabled {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}
		// Streaming routes hijack the connection and cannot sit behind
		// http.TimeoutHandler.
		r.Get("/sessions/live", s.liveSessions)

		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(timeout))
			r.Get("/platforms", s.listPlatforms)
			r.Post("/sessions", s.startSession)
			r.Get("/sessions", s.listSessions)
			r.Post("/sessions/stop", s.stopSession)
			r.Get("/sessions/current", s.currentSession)
			r.Get("/sessions/{session_id}", s.getSession)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), s.repoTimeout)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listPlatforms(w http.ResponseWriter, _ *http.Request) {
	ids := []string{}
	if s.platforms != nil {
		ids = s.platforms.IDs()
	}
	writeJSON(w, http.StatusOK, map[string]any{"platforms": ids})
}
