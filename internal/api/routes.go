// Package api provides the REST API for building, checking and expanding
// tool requests.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/galaxyproject/galaxy-params/internal/config"
	"github.com/galaxyproject/galaxy-params/internal/events"
	"github.com/galaxyproject/galaxy-params/internal/params"
	"github.com/galaxyproject/galaxy-params/internal/state"
	"github.com/galaxyproject/galaxy-params/pkg/auth"
)

// ToolLookup resolves tool ids.
type ToolLookup interface {
	Get(id string) (*params.Tool, error)
	IDs() []string
}

// JobStore persists expanded jobs.
type JobStore interface {
	SaveBatch(ctx context.Context, jobs []*state.JobParameters) error
	GetJobParameters(ctx context.Context, id string) (*state.JobParameters, error)
	GetBatchProgress(ctx context.Context, batchID string) (*state.BatchProgress, error)
}

// JobPublisher announces expanded jobs.
type JobPublisher interface {
	PublishJobRequest(ctx context.Context, event events.JobRequestEvent) error
}

// Options carry the optional backends of a Server. Nil members disable the
// features that need them.
type Options struct {
	Store     JobStore
	Publisher JobPublisher
	Logger    *slog.Logger
}

// Server is the HTTP server for the parameter API.
type Server struct {
	config  *config.Config
	router  chi.Router
	handler *Handler
	keys    *auth.KeyValidator
	logger  *slog.Logger
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, lookup ToolLookup, app *params.App, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		config:  cfg,
		handler: NewHandler(cfg, lookup, app, opts),
		keys:    auth.NewKeyValidator(cfg.Security.APIKeys),
		logger:  opts.Logger,
	}
	s.router = s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if s.config.Server.WriteTimeout > 0 {
		r.Use(middleware.Timeout(s.config.Server.WriteTimeout))
	}

	r.Get("/health", s.handler.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.keys.Middleware)
		r.Route("/tools", func(r chi.Router) {
			r.Get("/", s.handler.ListTools)
			r.Get("/{id}/build", s.handler.BuildTool)
			r.Post("/{id}/check", s.handler.CheckRequest)
			r.Post("/{id}/expand", s.handler.ExpandRequest)
		})
		r.Get("/jobs/{id}", s.handler.GetJob)
		r.Get("/batches/{id}", s.handler.GetBatch)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router returns the chi router for custom configuration.
func (s *Server) Router() chi.Router {
	return s.router
}
