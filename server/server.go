// Package server exposes the pipeline over HTTP: the processing endpoints
// with size-based sync/async dispatch, job status, health, metrics, and the
// monitoring surface.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/semaphore"

	"github.com/prensadata/rotativa/alerts"
	"github.com/prensadata/rotativa/config"
	"github.com/prensadata/rotativa/domain"
	"github.com/prensadata/rotativa/health"
	"github.com/prensadata/rotativa/jobs"
	"github.com/prensadata/rotativa/metrics"
	"github.com/prensadata/rotativa/pipeline"
)

// maxBodySize caps inbound request bodies.
const maxBodySize = 10 * 1024 * 1024 // 10MB

// Processor is the controller surface the server depends on.
type Processor interface {
	ProcessArticle(ctx context.Context, article *domain.Article) (*domain.ArticleResult, error)
	ProcessFragment(ctx context.Context, fragment *domain.Fragment) (*domain.FragmentResult, error)
	ValidateArticle(article *domain.Article) []pipeline.FieldError
	ValidateFragment(fragment *domain.Fragment) []pipeline.FieldError
}

// Deps wires the server's collaborators.
type Deps struct {
	Processor Processor
	Tracker   *jobs.Tracker
	Metrics   *metrics.Collector
	Health    *health.Manager
	Alerts    *alerts.Manager
	Logger    *slog.Logger
}

// Server is the HTTP surface.
type Server struct {
	cfg       config.ServerConfig
	processor Processor
	tracker   *jobs.Tracker
	metrics   *metrics.Collector
	health    *health.Manager
	alerts    *alerts.Manager
	logger    *slog.Logger

	// workers bounds concurrently running controllers, sync and async alike.
	workers *semaphore.Weighted

	httpServer *http.Server
}

// New creates the server. cfg must carry resolved defaults.
func New(cfg config.ServerConfig, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	workerCount := cfg.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
	}

	s := &Server{
		cfg:       cfg,
		processor: deps.Processor,
		tracker:   deps.Tracker,
		metrics:   deps.Metrics,
		health:    deps.Health,
		alerts:    deps.Alerts,
		logger:    logger,
		workers:   semaphore.NewWeighted(int64(workerCount)),
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// routes builds the router.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestID)
	r.Use(s.latency)

	r.Post("/procesar_articulo", s.handleProcessArticle)
	r.Post("/procesar_fragmento", s.handleProcessFragment)
	r.Get("/status/{job_id}", s.handleJobStatus)

	r.Get("/health", s.handleHealth)
	r.Get("/health/detailed", s.handleHealthDetailed)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.Gatherer(), promhttp.HandlerOpts{}))

	r.Route("/monitoring", func(r chi.Router) {
		r.Get("/dashboard", s.handleDashboard)
		r.Get("/pipeline-status", s.handlePipelineStatus)
		r.Get("/alerts", s.handleAlerts)
		r.Get("/alerts/summary", s.handleAlertsSummary)
		r.Post("/alerts/test", s.handleAlertsTest)
	})

	return r
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("HTTP surface listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests within ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

type ctxKey int

const requestIDKey ctxKey = 0

// requestID stamps every request and response with an X-Request-ID. Inbound
// IDs are honored so the connector can correlate retries.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.Must(uuid.NewV7()).String()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// latency feeds the request_latency_seconds histogram.
func (s *Server) latency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.metrics.ObserveRequestLatency(time.Since(start))
	})
}

// reqID reads the request ID stamped by the middleware.
func reqID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
