package api

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/phonebook/internal/audit"
	"github.com/foxzi/phonebook/internal/backend"
	"github.com/foxzi/phonebook/internal/config"
	"github.com/foxzi/phonebook/internal/directory"
	"github.com/foxzi/phonebook/internal/ipfilter"
	"github.com/foxzi/phonebook/internal/metrics"
	"github.com/foxzi/phonebook/internal/models"
	"github.com/foxzi/phonebook/internal/ratelimit"
	"github.com/foxzi/phonebook/internal/repository"
	"github.com/foxzi/phonebook/internal/session"
)

// Deps are the services behind the HTTP API
type Deps struct {
	Repos     *repository.Repositories
	Audit     *audit.Logger
	Sessions  *session.Manager
	Tokens    *session.TokenIssuer
	Directory *directory.Directory
	Filter    *ipfilter.Filter         // admin allowlist, nil allows all
	Proxies   *ipfilter.TrustedProxies // forwarding headers honoured from these peers, nil trusts none
	Backend   *backend.Client          // nil disables the backend routes
	Events    *EventHub                // nil disables /events
	Limiter   *ratelimit.Limiter       // failed login throttling, nil disables
	TLS       *tls.Config              // nil serves plain HTTP
	Nginx     config.NginxConfig
	Traefik   config.TraefikConfig

	// BackendExtensions sends extension CRUD to the backend table the
	// directory reads when directory.source is backend
	BackendExtensions bool
}

// Server is the HTTP API server
type Server struct {
	Deps
	router     *chi.Mux
	httpServer *http.Server
	config     *config.APIConfig
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new API server
func NewServer(deps Deps, cfg *config.APIConfig, logger *slog.Logger) *Server {
	s := &Server{
		Deps:      deps,
		router:    chi.NewRouter(),
		config:    cfg,
		logger:    logger.With("component", "api"),
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.HTTPMiddleware)

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Public directory
		r.Get("/directory", s.handleDirectory)
		r.Get("/directory/stats", s.handleDirectoryStats)
		r.Get("/directory/leaders", s.handleDirectoryLeaders)
		r.Get("/queues", s.handleQueuesPublic)
		r.With(s.requireBackend).Get("/technicians", s.handleTechniciansList)
		if s.Events != nil {
			r.Get("/events", s.Events.ServeHTTP)
		}

		r.Post("/auth/login", s.handleLogin)

		// Admin routes (bearer token and IP allowlist)
		r.Group(func(r chi.Router) {
			if s.Filter != nil {
				r.Use(s.Filter.HTTPMiddleware)
			}
			r.Use(s.authMiddleware)

			r.Get("/auth/me", s.handleMe)

			r.Route("/extensions", func(r chi.Router) {
				r.Get("/", s.handleExtensionsList)
				r.Post("/", s.handleExtensionCreate)
				r.Get("/{id}", s.handleExtensionGet)
				r.Put("/{id}", s.handleExtensionUpdate)
				r.Delete("/{id}", s.handleExtensionDelete)
			})

			// GET /queues stays public
			r.Post("/queues", s.handleQueueCreate)
			r.Get("/queues/{id}", s.handleQueueGet)
			r.Put("/queues/{id}", s.handleQueueUpdate)
			r.Delete("/queues/{id}", s.handleQueueDelete)

			r.Get("/audit-logs", s.handleAuditLogs)

			// User and allowlist management is limited to admins
			r.Group(func(r chi.Router) {
				r.Use(requireRole(models.RoleSuperAdmin, models.RoleAdmin))

				r.Route("/users", func(r chi.Router) {
					r.Get("/", s.handleUsersList)
					r.Post("/", s.handleUserCreate)
					r.Get("/{id}", s.handleUserGet)
					r.Put("/{id}", s.handleUserUpdate)
					r.Delete("/{id}", s.handleUserDelete)
				})

				r.Route("/allowed-ips", func(r chi.Router) {
					r.Use(s.requireBackend)
					r.Get("/", s.handleAllowedIPsList)
					r.Post("/", s.handleAllowedIPCreate)
					r.Get("/nginx", s.handleAllowedIPsNginx)
					r.Post("/nginx/apply", s.handleAllowedIPsNginxApply)
					r.Get("/traefik", s.handleAllowedIPsTraefik)
					r.Post("/traefik/apply", s.handleAllowedIPsTraefikApply)
					r.Put("/{id}", s.handleAllowedIPUpdate)
					r.Delete("/{id}", s.handleAllowedIPDelete)
				})
			})

			r.Route("/departments", func(r chi.Router) {
				r.Use(s.requireBackend)
				r.Get("/", s.handleDepartmentsList)
				r.Post("/", s.handleDepartmentCreate)
				r.Get("/{id}", s.handleDepartmentGet)
				r.Put("/{id}", s.handleDepartmentUpdate)
				r.Post("/{id}/toggle", s.handleDepartmentToggle)
				r.Delete("/{id}", s.handleDepartmentDelete)
			})

			// GET /technicians stays public
			r.With(s.requireBackend).Post("/technicians", s.handleTechnicianCreate)
			r.With(s.requireBackend).Put("/technicians/{id}", s.handleTechnicianUpdate)
			r.With(s.requireBackend).Delete("/technicians/{id}", s.handleTechnicianDelete)
		})
	})
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddr,
		Handler:        s.router,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
		TLSConfig:      s.TLS,
	}

	if s.TLS != nil {
		s.logger.Info("starting HTTPS API server", "addr", s.config.ListenAddr)
		return s.httpServer.ListenAndServeTLS("", "")
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.Events != nil {
		s.Events.Close()
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
