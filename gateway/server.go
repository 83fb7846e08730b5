package gateway

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jobescrow/escrow"
	"jobescrow/events"
	"jobescrow/observability/metrics"
)

// Config captures the dependencies required to construct the HTTP server.
type Config struct {
	Engine    *escrow.Engine
	Recorder  *events.Recorder
	Logger    *slog.Logger
	RateLimit RateLimit
}

// Server exposes every public escrow operation over HTTP. Callers identify
// themselves with the X-Caller-Address header; the engine enforces who may
// act, the server only translates outcomes to status codes.
type Server struct {
	engine   *escrow.Engine
	recorder *events.Recorder
	logger   *slog.Logger
	metrics  *metrics.EscrowMetrics
	router   http.Handler
}

// New constructs a configured server with rate limiting and request metrics.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		engine:   cfg.Engine,
		recorder: cfg.Recorder,
		logger:   logger,
		metrics:  metrics.Escrow(),
	}
	srv.router = srv.buildRouter(cfg.RateLimit)
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler { return s.router }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	s.router.ServeHTTP(w, req)
}

func (s *Server) buildRouter(limit RateLimit) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(newRateLimiter(limit).middleware)
	r.Use(metricsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Post("/jobs", s.handleCreateJob)
		v1.Get("/events", s.handleEvents)
		v1.Route("/jobs/{jobID}", func(jr chi.Router) {
			jr.Get("/", s.handleGetJob)
			jr.Get("/status", s.handleGetStatus)
			jr.Get("/evaluation", s.handleGetEvaluation)
			jr.Get("/deadline", s.handleGetDeadline)
			jr.Post("/accept", s.handleAccept)
			jr.Post("/submit", s.handleSubmit)
			jr.Post("/withdraw", s.handleWithdraw)
			jr.Post("/cancel", s.handleCancel)
			jr.Post("/refund", s.handleDeadlineRefund)
			jr.Post("/evaluate", s.handleEvaluate)
		})
	})
	return r
}
