// Package api exposes a Client over a local JSON HTTP API.
//
// Routes:
//
//	GET    /forms                      cached form names
//	GET    /forms/remote               names served by the provider (online only)
//	POST   /forms/download             cache several forms (online only)
//	GET    /forms/{name}               resolve a form through the cache
//	POST   /forms/{name}/fetch         re-download one form (online only)
//	DELETE /forms/{name}               evict a cached form
//	GET    /queue                      queued submissions
//	POST   /queue                      submit a form
//	DELETE /queue                      clear the queue
//	GET    /queue/drift                fingerprint drift per submission
//	PUT    /queue/{index}              replace the submission at a position
//	PATCH  /queue/items/{id}           replace a submission's data
//	POST   /queue/items/{id}/status    move a submission to a new status
//	DELETE /queue/items/{id}           remove a submission
//	GET    /draft                      restore the draft
//	PUT    /draft                      save the draft
//	DELETE /draft                      clear the draft
//	GET    /connectivity               current connectivity state
//	PUT    /connectivity               set the connectivity state
//	GET    /metrics                    prometheus exposition
//	GET    /health                     liveness
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/fieldkit/internal/client"
)

// maxBody bounds request bodies.
const maxBody = 4 << 20

// Server routes HTTP requests to a Client.
type Server struct {
	client   *client.Client
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	router   chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithGatherer serves g on /metrics. Without it /metrics is not routed.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// New builds the router for c.
func New(c *client.Client, opts ...Option) *Server {
	s := &Server{client: c, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	s.router = s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/forms", func(r chi.Router) {
		r.Get("/", s.listForms)
		r.Get("/remote", s.remoteForms)
		r.Post("/download", s.downloadForms)
		r.Get("/{name}", s.openForm)
		r.Post("/{name}/fetch", s.refreshForm)
		r.Delete("/{name}", s.evictForm)
	})

	r.Route("/queue", func(r chi.Router) {
		r.Get("/", s.listQueue)
		r.Post("/", s.submit)
		r.Delete("/", s.clearQueue)
		r.Get("/drift", s.drift)
		r.Put("/{index}", s.replaceAt)
		r.Patch("/items/{id}", s.editItem)
		r.Post("/items/{id}/status", s.setStatus)
		r.Delete("/items/{id}", s.removeItem)
	})

	r.Route("/draft", func(r chi.Router) {
		r.Get("/", s.restoreDraft)
		r.Put("/", s.saveDraft)
		r.Delete("/", s.clearDraft)
	})

	r.Get("/connectivity", s.getConnectivity)
	r.Put("/connectivity", s.setConnectivity)

	return r
}

// logRequests writes one structured line per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
