package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/maingoo/auth-service/app"
	"github.com/maingoo/auth-service/handlers"
	"github.com/maingoo/auth-service/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Instrument)
	}

	// CORS for listed origins only. An empty list would make cors allow
	// every origin, so it leaves the middleware out instead.
	if origins := deps.Config.Server.CORSAllowedOrigins; len(origins) > 0 {
		r.Use(corsHandler(origins))
	}

	// Health check endpoints
	health := handlers.NewHealthHandler(deps.SQLDB(), deps.Bus, deps.Logger)
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	authHandler := handlers.NewAuthHandler(deps.AuthService, deps.Metrics, deps.Logger)

	// API v1 routes
	r.Route("/api/v1/auth", func(r chi.Router) {
		// Public routes
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/refresh", authHandler.HandleRefresh)
		r.Post("/verify", authHandler.HandleVerify)
		r.Get("/roles", authHandler.HandleGetRoles)
		r.Get("/roles/{name}", authHandler.HandleGetRoleByName)
		r.Get("/health", authHandler.HandleHealth)

		// Current user (require authentication)
		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Get("/me", authHandler.HandleGetMe)
			r.Put("/me", authHandler.HandleUpdateMe)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusNotFound, "not_found", "Endpoint not found", nil)
	})

	return r
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
