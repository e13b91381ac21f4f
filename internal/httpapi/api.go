// Package httpapi exposes the applications resource over HTTP.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/applyflow/internal/auth"
	"github.com/R3E-Network/applyflow/internal/errors"
	"github.com/R3E-Network/applyflow/internal/httputil"
	"github.com/R3E-Network/applyflow/internal/logging"
	"github.com/R3E-Network/applyflow/internal/metrics"
	"github.com/R3E-Network/applyflow/internal/middleware"
)

// ServiceName labels request metrics.
const ServiceName = "applyflow"

// Config wires a Server. Metrics and both limiters are optional.
// IPRateLimiter runs before credential resolution, so rejected logins are
// throttled too. RateLimiter runs after it and charges the resolved user.
type Config struct {
	Resolver      *auth.Resolver
	Logger        *logging.Logger
	Metrics       *metrics.Metrics
	RateLimiter   *middleware.RateLimiter
	IPRateLimiter *middleware.RateLimiter
	CORSOrigins   []string
	MaxBodyBytes  int64
}

// Server serves the ApplyFlow API.
type Server struct {
	resolver     *auth.Resolver
	logger       *logging.Logger
	metrics      *metrics.Metrics
	limiter      *middleware.RateLimiter
	ipLimiter    *middleware.RateLimiter
	corsOrigins  []string
	maxBodyBytes int64
}

// New creates a Server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewDiscard()
	}
	return &Server{
		resolver:     cfg.Resolver,
		logger:       logger,
		metrics:      cfg.Metrics,
		limiter:      cfg.RateLimiter,
		ipLimiter:    cfg.IPRateLimiter,
		corsOrigins:  cfg.CORSOrigins,
		maxBodyBytes: cfg.MaxBodyBytes,
	}
}

// Router returns the route table without the outer middleware chain.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(notFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	if s.metrics != nil {
		router.Use(middleware.MetricsMiddleware(ServiceName, s.metrics))
		router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	apps := router.PathPrefix("/applications").Subrouter()
	if s.ipLimiter != nil {
		apps.Use(s.ipLimiter.Handler)
	}
	apps.Use(s.resolver.Middleware)
	if s.limiter != nil {
		apps.Use(s.limiter.Handler)
	}
	apps.HandleFunc("", s.handleList).Methods(http.MethodGet)
	apps.HandleFunc("", s.handleCreate).Methods(http.MethodPost)
	apps.HandleFunc("/{id}", s.handleGet).Methods(http.MethodGet)
	apps.HandleFunc("/{id}", s.handleUpdate).Methods(http.MethodPatch)
	apps.HandleFunc("/{id}", s.handleDelete).Methods(http.MethodDelete)

	return router
}

// Handler returns the router wrapped in tracing, panic recovery and CORS.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.Router()
	h = middleware.NewCORSMiddleware(s.corsOrigins).Handler(h)
	h = middleware.Recovery(s.logger)(h)
	h = middleware.NewTracingMiddleware(s.logger).Handler(h)
	return h
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	httputil.WriteServiceError(w, errors.NotFound(""))
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	httputil.WriteServiceError(w, errors.MethodNotAllowed(r.Method))
}
