package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/genovahq/insurance/internal/bootstrap"
	"github.com/genovahq/insurance/internal/controller"
	"github.com/genovahq/insurance/internal/genova"
	infraRedis "github.com/genovahq/insurance/internal/infrastructure/redis"
	"github.com/genovahq/insurance/internal/repository/postgres"
	"github.com/genovahq/insurance/internal/scheduler"
	"github.com/genovahq/insurance/internal/service"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "insurance-api", "insurance")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	settingsRepo := postgres.NewSettingsRepository(app.Pool)
	orderRepo := postgres.NewOrderRepository(app.Pool)
	insuranceRepo := postgres.NewInsuranceRepository(app.Pool)
	idempotencyRepo := postgres.NewIdempotencyRepository(app.Pool)

	// --- Infrastructure ---
	client := genova.NewClient(settingsRepo, app.Vault, nil)
	sched := scheduler.NewRedisScheduler(app.Redis)
	planCache := infraRedis.NewPlanCache(app.Redis, app.Config.Insurance.PlanCacheTTL)

	// --- Services ---
	purchaseService := service.NewPurchaseService(
		insuranceRepo, orderRepo, sched, settingsRepo, client, app.Metrics, app.Logger)
	planService := service.NewPlanService(client, planCache, insuranceRepo, app.Logger)
	claimService := service.NewClaimService(client, app.Metrics)

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		Pool:            app.Pool,
		RedisClient:     app.Redis,
		PlanService:     planService,
		PurchaseService: purchaseService,
		ClaimService:    claimService,
		SettingsStore:   settingsRepo,
		PlanCache:       planCache,
		Vault:           app.Vault,
		IdempotencyRepo: idempotencyRepo,
		Metrics:         app.Metrics,
		ServerConfig:    app.Config.Server,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
		IdleTimeout:  app.Config.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, app.Config.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Graceful shutdown failed")
	}
}
