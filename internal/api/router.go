package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Talha-Tahir2001/CollabSphere/internal/api/middleware"
	"github.com/Talha-Tahir2001/CollabSphere/internal/config"
	"github.com/Talha-Tahir2001/CollabSphere/internal/crypto"
	"github.com/Talha-Tahir2001/CollabSphere/internal/handlers"
	"github.com/Talha-Tahir2001/CollabSphere/internal/hub"
	"github.com/Talha-Tahir2001/CollabSphere/internal/store"
)

// Dependencies are the stores and live hub the router serves.
type Dependencies struct {
	DB       store.DataStore
	Messages store.MessageStore
	Limiter  store.RateLimiter // nil disables rate limiting
	Hub      *hub.Hub
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, cfg *config.Config, deps Dependencies) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(32 * 1024))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", handlers.ClientTokenHeader},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	tokens := crypto.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	h := handlers.NewHandler(deps.DB, deps.Messages, tokens, deps.Hub, logger)
	auth := middleware.NewAuthMiddleware(tokens, deps.DB)
	limiter := middleware.NewRateLimiter(deps.Limiter, logger, cfg.RateLimitMessages)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/api", h.Root)
	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		r.Use(limiter.Middleware)

		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)
	})

	// Authenticated routes (require bearer token)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Use(limiter.Middleware)

		r.Get("/ws", h.Live)
		r.Get("/auth/me", h.Me)
		r.Get("/users/{id}", h.GetUser)

		r.Get("/workspaces", h.ListWorkspaces)
		r.Post("/workspaces", h.CreateWorkspace)
		r.Post("/workspaces/{id}/members", h.AddMember)
		r.Get("/workspaces/{id}/messages", h.GetRoomMessages)
		r.Post("/workspaces/{id}/messages", h.PostMessage)
	})

	return r
}
