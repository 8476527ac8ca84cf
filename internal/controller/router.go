package controller

import (
	"time"

	"github.com/genovahq/insurance/internal/domain/settings"
	"github.com/genovahq/insurance/internal/infrastructure/config"
	"github.com/genovahq/insurance/internal/infrastructure/observability"
	customMW "github.com/genovahq/insurance/internal/middleware"
	"github.com/genovahq/insurance/internal/repository/postgres"
	"github.com/genovahq/insurance/internal/service"
	"github.com/genovahq/insurance/internal/vault"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type RouterDeps struct {
	Pool            *pgxpool.Pool
	RedisClient     *redis.Client
	PlanService     *service.PlanService
	PurchaseService *service.PurchaseService
	ClaimService    *service.ClaimService
	SettingsStore   settings.Store
	PlanCache       PlanCacheInvalidator
	Vault           *vault.Vault
	IdempotencyRepo *postgres.IdempotencyRepository
	Metrics         *observability.Metrics
	ServerConfig    config.ServerConfig
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(customMW.SecurityHeaders())
	r.Use(customMW.RateLimit(deps.ServerConfig.RateLimitPerMinute))
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.ServerConfig.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: deps.ServerConfig.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.Pool, deps.RedisClient)
	insuranceH := NewInsuranceController(deps.PlanService, deps.PurchaseService, deps.ClaimService, deps.SettingsStore)
	settingsH := NewSettingsController(deps.SettingsStore, deps.Vault, deps.PlanCache)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Idempotency middleware for mutating endpoints.
		idempotencyMW := customMW.Idempotency(deps.IdempotencyRepo)

		// Plans
		r.Get("/plans", insuranceH.ListPlans)

		// Per-order insurance
		r.With(idempotencyMW).Post("/orders/{id}/insurance", insuranceH.SelectPlan)
		r.Get("/orders/{id}/insurance", insuranceH.GetStatus)

		// Checkout events
		r.Post("/events/checkout", insuranceH.CheckoutEvent)

		// Claims
		r.With(idempotencyMW).Post("/claims", insuranceH.SubmitClaim)

		// Admin surface
		r.Group(func(r chi.Router) {
			r.Use(customMW.RequireAdmin(deps.ServerConfig.AdminJWTSecret))

			r.Post("/insurance/retry-failed", insuranceH.RetryFailed)
			r.Get("/admin/settings", settingsH.Get)
			r.Put("/admin/settings", settingsH.Update)
		})
	})

	return r
}
