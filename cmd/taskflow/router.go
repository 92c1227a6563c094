package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/phrazzld/taskflow-api/internal/api"
	apiMiddleware "github.com/phrazzld/taskflow-api/internal/api/middleware"
	"github.com/phrazzld/taskflow-api/internal/api/shared"
	"github.com/phrazzld/taskflow-api/internal/health"
	"github.com/phrazzld/taskflow-api/internal/platform/ratelimit"
	"github.com/phrazzld/taskflow-api/internal/service"
	"github.com/phrazzld/taskflow-api/internal/service/auth"
)

// routerDeps are the collaborators the HTTP surface is built from.
type routerDeps struct {
	taskService service.TaskService
	jwtService  auth.JWTService // nil trusts the X-User-ID header
	limiter     ratelimit.Limiter
	full, ready *health.Checker
	corsOrigins []string
	info        api.ServiceInfo
	logger      *slog.Logger
}

// newRouter mounts the task API under /api/v1 and the health probes at the
// root. Health probes bypass actor resolution and rate limiting.
func newRouter(deps routerDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(apiMiddleware.Trace(deps.logger))
	r.Use(apiMiddleware.SecurityHeaders)
	if len(deps.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: deps.corsOrigins,
			AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type",
				apiMiddleware.UserIDHeader, apiMiddleware.TraceIDHeader},
			ExposedHeaders: []string{apiMiddleware.TraceIDHeader, "Retry-After"},
			MaxAge:         300,
		}))
	}

	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Get("/", api.NewInfoHandler(deps.info).Root)

	healthHandler := api.NewHealthHandler(deps.full, deps.ready)
	r.Get("/health", healthHandler.Health)
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	taskHandler := api.NewTaskHandler(deps.taskService, deps.logger)
	r.Route("/api/v1", func(r chi.Router) {
		if deps.limiter != nil {
			r.Use(apiMiddleware.RateLimit(deps.limiter))
		}
		r.Use(apiMiddleware.NewActorMiddleware(deps.jwtService).Resolve)
		taskHandler.RegisterRoutes(r)
	})

	return r
}

// newHealthRouter serves only the health probes, for the worker process.
func newHealthRouter(full, ready *health.Checker, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(apiMiddleware.Trace(logger))
	r.Use(apiMiddleware.SecurityHeaders)
	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	h := api.NewHealthHandler(full, ready)
	r.Get("/health", h.Health)
	r.Get("/health/live", h.Live)
	r.Get("/health/ready", h.Ready)
	return r
}

func notFound(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithError(w, r, http.StatusNotFound, "resource not found")
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

// newLimiter shares limits across instances through Redis when the event log
// already runs on it, and falls back to a per-process limiter otherwise.
func (app *application) newLimiter() ratelimit.Limiter {
	cfg := app.config.RateLimit
	if !cfg.Enabled {
		return nil
	}
	limits := ratelimit.Config{Requests: cfg.Requests, Window: cfg.Window}
	if app.redis != nil {
		return ratelimit.NewSlidingWindowLimiter(app.redis, limits, "", app.logger)
	}
	return ratelimit.NewLocalLimiter(limits)
}
