package routes

import (
	"net/http"
	"time"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/app"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/internal/observability"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/utils"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.RequestLogger(deps.Logger, deps.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	h := deps.Handlers

	// Health check endpoints
	r.Get("/health", h.Health.HandleHealth)
	r.Get("/health/ready", h.Health.HandleReadiness)

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	// API v1 routes, all authenticated
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(deps.AuthMiddleware.RequireAuth)

		r.Get("/me", h.Identities.HandleMe)

		r.Route("/interactions", func(r chi.Router) {
			r.Get("/", h.Interactions.HandleList)
			r.Post("/", h.Interactions.HandleCreate)
			r.Get("/{id}", h.Interactions.HandleGet)
			r.Post("/{id}/flag", h.Interactions.HandleFlag)
			r.Get("/{id}/anomalies", h.Anomalies.HandleListByInteraction)
			r.Post("/{id}/anomalies", h.Anomalies.HandleRaise)
		})

		r.Route("/anomalies", func(r chi.Router) {
			r.Get("/{id}", h.Anomalies.HandleGet)
			r.Post("/{id}/transitions", h.Anomalies.HandleTransition)
		})

		r.Route("/shipments/{ref}/assignments", func(r chi.Router) {
			r.Get("/", h.Assignments.HandleHistory)
			r.Post("/", h.Assignments.HandleAssign)
			r.Get("/active", h.Assignments.HandleActive)
		})

		r.Route("/audit", func(r chi.Router) {
			r.Get("/events", h.Audit.HandleEvents)
			r.Post("/events/{id}/corrections", h.Audit.HandleCorrection)
			r.Get("/verify", h.Audit.HandleVerify)
		})

		r.Route("/identities", func(r chi.Router) {
			r.Post("/", h.Identities.HandleRegister)
			r.Get("/{id}", h.Identities.HandleGet)
			r.Put("/{id}/role", h.Identities.HandleChangeRole)
			r.Delete("/{id}", h.Identities.HandlePurge)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}
