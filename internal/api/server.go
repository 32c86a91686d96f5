package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/auth"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/config"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/dispatch"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/metrics"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/storage"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/validation"
)

// Deps are the services the REST server routes requests to. Realtime and
// Metrics are optional.
type Deps struct {
	Store    storage.Store
	Auth     *auth.Service
	Dispatch *dispatch.Service
	Realtime http.Handler
	Metrics  *metrics.Metrics
}

// RESTServer represents the REST API server
type RESTServer struct {
	config    *config.Config
	store     storage.Store
	auth      *auth.Service
	dispatch  *dispatch.Service
	realtime  http.Handler
	metrics   *metrics.Metrics
	validator *validation.Validator
	limits    *rateLimits
	router    chi.Router
	server    *http.Server
}

// NewRESTServer creates a new REST API server
func NewRESTServer(cfg *config.Config, deps Deps) *RESTServer {
	s := &RESTServer{
		config:    cfg,
		store:     deps.Store,
		auth:      deps.Auth,
		dispatch:  deps.Dispatch,
		realtime:  deps.Realtime,
		metrics:   deps.Metrics,
		validator: validation.NewValidator(),
		limits:    newRateLimits(cfg.RateLimit),
		router:    chi.NewRouter(),
	}

	s.setupRoutes()

	// No WriteTimeout: realtime connections stay open. Per-request
	// deadlines come from the Timeout middleware instead.
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// setupRoutes configures all routes
func (s *RESTServer) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(s.recoverer)
	if s.metrics != nil {
		s.router.Use(s.metrics.Middleware)
	}

	// CORS
	origins := s.config.API.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if s.metrics != nil && s.config.Metrics.Enabled {
		s.router.Method(http.MethodGet, s.config.Metrics.Path, s.metrics.Handler())
	}

	s.router.NotFound(s.HandleNotFound)
	s.router.MethodNotAllowed(s.HandleMethodNotAllowed)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		s.setupAPIRoutes(r)
	})
}

// Handler returns the root HTTP handler.
func (s *RESTServer) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the server
func (s *RESTServer) ListenAndServe(addr string) error {
	s.server.Addr = addr
	log.Info().Str("addr", addr).Msg("Starting REST API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *RESTServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
