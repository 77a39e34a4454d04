package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mozaika228/hephaestus/app"
	"github.com/mozaika228/hephaestus/middleware"
	"github.com/mozaika228/hephaestus/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()
	cfg := deps.Config

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics(deps.Metrics))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: !allowsAnyOrigin(cfg.Server.AllowedOrigins),
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/health", deps.HealthHandler.HandleHealth)
	r.Get("/health/ready", deps.HealthHandler.HandleReadiness)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	// API routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(deps.RateLimiter, deps.Metrics, deps.Logger))
		if deps.AuthMiddleware != nil {
			r.Use(deps.AuthMiddleware.RequireAuth)
		}

		// Streaming stays open for as long as the provider talks
		r.Post("/chat", deps.ChatHandler.HandleStream)

		r.Group(func(r chi.Router) {
			if cfg.Server.RequestTimeout > 0 {
				r.Use(chimw.Timeout(cfg.Server.RequestTimeout))
			}

			r.Post("/chat/single", deps.ChatHandler.HandleSingle)
			r.Post("/logic/decision", deps.ChatHandler.HandleDecision)

			r.Route("/files", func(r chi.Router) {
				r.Post("/upload", deps.FilesHandler.HandleRegister)
				r.Post("/ingest", deps.FilesHandler.HandleIngest)
				r.Get("/{id}", deps.FilesHandler.HandleGet)
				r.Post("/{id}/analyze", deps.FilesHandler.HandleAnalyze)
				r.Post("/{id}/complete", deps.FilesHandler.HandleComplete)
			})

			r.Route("/planner/tasks", func(r chi.Router) {
				r.Get("/", deps.PlannerHandler.HandleList)
				r.Post("/", deps.PlannerHandler.HandleCreate)
				r.Get("/{id}", deps.PlannerHandler.HandleGet)
				r.Patch("/{id}", deps.PlannerHandler.HandleUpdate)
			})

			r.Route("/integrations", func(r chi.Router) {
				r.Get("/", deps.IntegrationsHandler.HandleList)
				r.Post("/{id}/connect", deps.IntegrationsHandler.HandleConnect)
			})

			r.Route("/jobs", func(r chi.Router) {
				r.Get("/", deps.JobsHandler.HandleList)
				r.Post("/", deps.JobsHandler.HandleCreate)
				r.Get("/{id}", deps.JobsHandler.HandleGet)
			})
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "Endpoint not found")
	})

	return r
}

func allowsAnyOrigin(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
