package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/genovahq/insurance/internal/bootstrap"
	"github.com/genovahq/insurance/internal/genova"
	infraRedis "github.com/genovahq/insurance/internal/infrastructure/redis"
	"github.com/genovahq/insurance/internal/repository/postgres"
	"github.com/genovahq/insurance/internal/scheduler"
	"github.com/genovahq/insurance/internal/service"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "insurance-worker", "insurance_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	settingsRepo := postgres.NewSettingsRepository(app.Pool)
	orderRepo := postgres.NewOrderRepository(app.Pool)
	insuranceRepo := postgres.NewInsuranceRepository(app.Pool)

	// --- Purchase engine ---
	client := genova.NewClient(settingsRepo, app.Vault, nil)
	sched := scheduler.NewRedisScheduler(app.Redis)
	purchaseService := service.NewPurchaseService(
		insuranceRepo, orderRepo, sched, settingsRepo, client, app.Metrics, app.Logger)

	app.Logger.Info().
		Dur("poll_interval", app.Config.Worker.PollInterval).
		Int("batch_size", app.Config.Worker.BatchSize).
		Msg("Worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Retry queue drainer.
	g.Go(func() error {
		return runRetryDrainer(gCtx, app, sched, purchaseService)
	})

	// 2. Wait for shutdown signal.
	g.Go(func() error {
		select {
		case <-quit:
			app.Logger.Info().Msg("Shutdown signal received")
			cancel()
		case <-gCtx.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		app.Logger.Error().Err(err).Msg("Worker stopped with error")
		os.Exit(1)
	}
	app.Logger.Info().Msg("Worker stopped")
}

// runRetryDrainer polls the delayed-retry queue and hands due tasks to the
// purchase engine. A per-order lock keeps concurrent workers off the same
// order; a held lock means another worker owns the attempt, so the task is
// simply dropped (the engine re-checks state on every attempt anyway).
func runRetryDrainer(ctx context.Context, app *bootstrap.App, sched *scheduler.RedisScheduler, svc *service.PurchaseService) error {
	ticker := time.NewTicker(app.Config.Worker.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			tasks, err := sched.PopDue(ctx, time.Now(), app.Config.Worker.BatchSize)
			if err != nil {
				app.Logger.Error().Err(err).Msg("Failed to pop due retry tasks")
				continue
			}

			for _, task := range tasks {
				processTask(ctx, app, svc, task)
			}
		}
	}
}

func processTask(ctx context.Context, app *bootstrap.App, svc *service.PurchaseService, task scheduler.Task) {
	logger := app.Logger.With().Str("order_id", task.OrderID).Str("handle", task.Handle).Logger()

	if task.Name != scheduler.TaskPurchaseRetry {
		logger.Warn().Str("task", task.Name).Msg("Unknown task type, dropping")
		app.Metrics.WorkerTasksProcessed.WithLabelValues("dropped").Inc()
		return
	}

	lock := infraRedis.NewOrderLock(app.Redis, task.OrderID, app.Config.Insurance.LockTTL)
	acquired, err := lock.Acquire(ctx)
	if err != nil || !acquired {
		if err != nil {
			logger.Error().Err(err).Msg("Failed to acquire order lock")
		}
		app.Metrics.WorkerTasksProcessed.WithLabelValues("skipped").Inc()
		return
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("Failed to release order lock")
		}
	}()

	start := time.Now()
	err = svc.OnRetryDue(ctx, task.OrderID)
	app.Metrics.WorkerProcessingDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		logger.Error().Err(err).Msg("Retry task failed")
		app.Metrics.WorkerTasksProcessed.WithLabelValues("error").Inc()
		requeue(ctx, app, logger, task)
		return
	}
	app.Metrics.WorkerTasksProcessed.WithLabelValues("ok").Inc()
}

// requeue puts a task back after an infrastructure failure so a transient
// database outage doesn't silently eat a retry.
func requeue(ctx context.Context, app *bootstrap.App, logger zerolog.Logger, task scheduler.Task) {
	sched := scheduler.NewRedisScheduler(app.Redis)
	task.RunAt = time.Now().Add(app.Config.Worker.PollInterval)
	if err := sched.ScheduleAt(ctx, task); err != nil {
		logger.Error().Err(err).Msg("Failed to requeue retry task")
	}
}
