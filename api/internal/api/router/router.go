package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/iiitkota/dockpanel/api/internal/api/handlers"
	auth_middleware "github.com/iiitkota/dockpanel/api/internal/api/middleware"
)

// maxBodyBytes bounds every request body, including whole-file config uploads.
const maxBodyBytes = 1_048_576

// RouterConfig defines the strict dependencies required to build the API routing tree.
type RouterConfig struct {
	AllowedOrigins []string
	AuthHandler    *handlers.AuthHandler
	ProxyHandler   *handlers.ProxyHandler
	DomainHandler  *handlers.ServiceDomainHandler
	ServiceHandler *handlers.ServiceHandler
	WSHandler      *handlers.WebSocketHandler
	SSEHandler     *handlers.SSEHandler
	AuditHandler   *handlers.AuditHandler
	HealthHandler  *handlers.HealthHandler
	AuthMiddleware *auth_middleware.AuthMiddleware
	RBAC           *auth_middleware.RBACMiddleware
	Logger         *slog.Logger
}

// NewRouter constructs the Chi multiplexer, attaches global middleware, and wires all endpoints.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// =========================================================================
	// 1. Global Gateway Middleware Pipeline
	// =========================================================================

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(auth_middleware.StructuredLogger(cfg.Logger))
	r.Use(middleware.Recoverer)

	// 🛡️ OOM Protection
	r.Use(auth_middleware.MaxBytes(maxBodyBytes))

	// 🛡️ In-memory token bucket rate limiting
	r.Use(cfg.AuthMiddleware.RateLimit)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// =========================================================================
	// 2. API v1 Routing Tree
	// =========================================================================

	r.Route("/api/v1", func(r chi.Router) {

		// ---------------------------------------------------------------------
		// Public Routes (No Auth Required)
		// ---------------------------------------------------------------------
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Post("/auth/login", cfg.AuthHandler.Login)
			r.Post("/auth/refresh", cfg.AuthHandler.Refresh)
		})

		// ---------------------------------------------------------------------
		// Protected Routes (Requires a Valid JWT)
		// ---------------------------------------------------------------------
		r.Group(func(r chi.Router) {
			r.Use(cfg.AuthMiddleware.RequireAuthentication)

			// --- Proxy configuration ---
			// No request timeout here: the pipeline bounds its own commands and
			// runs to completion regardless of the client.
			r.Route("/proxy", func(r chi.Router) {
				r.With(cfg.RBAC.RequirePermission("proxy", "read")).
					Get("/config", cfg.ProxyHandler.GetConfig)

				r.With(cfg.RBAC.RequirePermission("proxy", "write")).
					Put("/config", cfg.ProxyHandler.PutConfig)

				r.With(cfg.RBAC.RequirePermission("proxy", "read")).
					Get("/blocks", cfg.ProxyHandler.ListBlocks)

				r.With(cfg.RBAC.RequirePermission("proxy", "read")).
					Get("/backups", cfg.ProxyHandler.ListBackups)

				r.With(cfg.RBAC.RequirePermission("proxy", "write")).
					Post("/backups/{name}/restore", cfg.ProxyHandler.RestoreBackup)

				if cfg.AuditHandler != nil {
					r.With(cfg.RBAC.RequirePermission("proxy", "read")).
						Get("/audit", cfg.AuditHandler.List)
				}

				if cfg.SSEHandler != nil {
					r.With(cfg.RBAC.RequirePermission("proxy", "read")).
						Get("/events", cfg.SSEHandler.StreamProxyEvents)
				}
			})

			// --- Service records ---
			if cfg.ServiceHandler != nil {
				r.With(cfg.RBAC.RequirePermission("services", "read")).
					Get("/services", cfg.ServiceHandler.List)

				r.With(cfg.RBAC.RequirePermission("services", "read")).
					Get("/services/{name}", cfg.ServiceHandler.Get)
			}

			// --- Service domain mapping ---
			r.With(cfg.RBAC.RequirePermission("services", "write")).
				Put("/services/{name}/domain", cfg.DomainHandler.Update)

			// --- WebSocket pipeline progress ---
			r.With(cfg.RBAC.RequirePermission("proxy", "read")).
				Get("/ws/proxy/events", cfg.WSHandler.StreamProxyEvents)
		})
	})

	if cfg.HealthHandler != nil {
		r.Get("/health", cfg.HealthHandler.Check)
	}

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})

	return r
}
