package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/genovahq/insurance/internal/domain/errors"
	"github.com/genovahq/insurance/internal/domain/insurance"
	"github.com/genovahq/insurance/internal/domain/settings"
	"github.com/genovahq/insurance/internal/genova"
	"github.com/genovahq/insurance/internal/infrastructure/observability"
	"github.com/genovahq/insurance/internal/scheduler"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PurchaseAPI is the slice of the provider client the purchase engine needs.
type PurchaseAPI interface {
	Purchase(ctx context.Context, req genova.PurchaseRequest) genova.Result
}

// idempotencyNamespace seeds the deterministic per-attempt idempotency keys.
// Stable across deployments: the same (order, attempt) pair always presents
// the same token to the provider.
var idempotencyNamespace = uuid.MustParse("a6e9c4f2-1b3d-4e8a-9c5f-2d7b8a1e6f03")

// PurchaseService drives policy purchases: the immediate attempt at checkout,
// the scheduled retries behind it, and the terminal bookkeeping when retries
// run out. All state lives on the insurance.Record; the service re-reads
// runtime settings on every attempt so admin changes apply to in-flight
// retries.
type PurchaseService struct {
	records  insurance.Repository
	orders   insurance.OrderDataProvider
	sched    scheduler.Scheduler
	settings settings.Source
	api      PurchaseAPI
	metrics  *observability.Metrics
	logger   zerolog.Logger

	now func() time.Time
}

// NewPurchaseService creates a new PurchaseService.
func NewPurchaseService(
	records insurance.Repository,
	orders insurance.OrderDataProvider,
	sched scheduler.Scheduler,
	src settings.Source,
	api PurchaseAPI,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *PurchaseService {
	return &PurchaseService{
		records:  records,
		orders:   orders,
		sched:    sched,
		settings: src,
		api:      api,
		metrics:  metrics,
		logger:   logger.With().Str("source", observability.LogSource).Logger(),
		now:      time.Now,
	}
}

// Enqueue runs the immediate purchase attempt for an order and, on failure,
// arms the retry chain. It is safe to call more than once per order: a
// purchased policy or a missing plan short-circuits without touching the
// provider, and the scheduler deduplicates the retry task by handle.
func (s *PurchaseService) Enqueue(ctx context.Context, orderID string) error {
	rec, err := s.records.GetOrCreate(ctx, orderID)
	if err != nil {
		return err
	}

	if rec.Purchased() {
		s.logger.Debug().Str("order_id", orderID).Msg("Policy already purchased, skipping")
		return nil
	}
	if !rec.HasPlan() {
		s.logger.Debug().Str("order_id", orderID).Msg("No insurance plan selected, skipping")
		return nil
	}
	if rec.Terminal() {
		// Failure-terminal records only move again through RetryFailed.
		s.logger.Debug().Str("order_id", orderID).Str("status", string(rec.Status)).Msg("Record in terminal state, skipping")
		return nil
	}

	cfg, err := s.settings.Load(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	res := s.attempt(ctx, rec, 0)
	if res.Success {
		return s.recordSuccess(ctx, rec, res)
	}

	switch {
	case !res.Retryable():
		// Configuration failures stay put until an admin fixes the settings.
		if err := rec.MarkFailedNoRetry(res.Message); err != nil {
			return err
		}
		s.logTerminal(rec, res.Message)

	case !s.sched.IsAvailable(ctx):
		if err := rec.MarkFailedNoRetry(res.Message); err != nil {
			return err
		}
		s.logTerminal(rec, res.Message)

	case cfg.MaxRetries == 0:
		if err := rec.MarkExhausted(0, res.Message); err != nil {
			return err
		}
		s.metrics.PurchasesExhausted.Inc()
		s.logTerminal(rec, *rec.LastError)

	default:
		if err := s.sched.ScheduleAt(ctx, scheduler.Task{
			Name:    scheduler.TaskPurchaseRetry,
			OrderID: orderID,
			Handle:  scheduler.PurchaseHandle(orderID),
			RunAt:   s.now().Add(insurance.InitialRetryDelay),
		}); err != nil {
			// Scheduler accepted the ping but rejected the task; degrade the
			// same way an unavailable scheduler does.
			if markErr := rec.MarkFailedNoRetry(res.Message); markErr != nil {
				return markErr
			}
			s.logger.Error().Err(err).Str("order_id", orderID).Msg("Failed to schedule purchase retry")
			s.logTerminal(rec, res.Message)
		} else {
			if err := rec.MarkScheduled(0, res.Message); err != nil {
				return err
			}
			s.metrics.PurchaseRetriesTotal.Inc()
		}
	}

	return s.records.Save(ctx, rec)
}

// OnRetryDue runs one scheduled retry. The worker calls this when a task
// fires; a record that was purchased or removed in the meantime is a no-op.
func (s *PurchaseService) OnRetryDue(ctx context.Context, orderID string) error {
	rec, err := s.records.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, domainErrors.ErrRecordNotFound) {
			s.logger.Warn().Str("order_id", orderID).Msg("Retry fired for unknown order, dropping")
			return nil
		}
		return err
	}

	if rec.Purchased() {
		s.logger.Debug().Str("order_id", orderID).Msg("Policy already purchased, dropping retry")
		return nil
	}
	if !rec.HasPlan() {
		return nil
	}
	if rec.Terminal() {
		// A stale task can fire after the record already settled.
		return nil
	}

	cfg, err := s.settings.Load(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	failed := rec.Retries()
	res := s.attempt(ctx, rec, failed+1)
	if res.Success {
		return s.recordSuccess(ctx, rec, res)
	}

	n := failed + 1
	switch {
	case !res.Retryable():
		// The configuration broke mid-chain. Stop without the exhaustion
		// prefix so admin tooling can tell "never configured" from "gave up".
		if err := rec.MarkFailedNoRetry(res.Message); err != nil {
			return err
		}
		s.logTerminal(rec, res.Message)

	case n >= cfg.MaxRetries:
		if err := rec.MarkExhausted(n, res.Message); err != nil {
			return err
		}
		s.metrics.PurchasesExhausted.Inc()
		s.logTerminal(rec, *rec.LastError)

	default:
		if err := s.sched.ScheduleAt(ctx, scheduler.Task{
			Name:    scheduler.TaskPurchaseRetry,
			OrderID: orderID,
			Handle:  scheduler.RetryHandle(orderID, n+1),
			RunAt:   s.now().Add(insurance.RetryDelay(n)),
		}); err != nil {
			if markErr := rec.MarkExhausted(n, res.Message); markErr != nil {
				return markErr
			}
			s.logger.Error().Err(err).Str("order_id", orderID).Msg("Failed to schedule purchase retry")
			s.metrics.PurchasesExhausted.Inc()
			s.logTerminal(rec, *rec.LastError)
		} else {
			if err := rec.MarkScheduled(n, res.Message); err != nil {
				return err
			}
			s.metrics.PurchaseRetriesTotal.Inc()
		}
	}

	return s.records.Save(ctx, rec)
}

// RetryFailed re-arms up to limit terminally failed orders and runs a fresh
// enqueue for each. Returns how many orders were re-enqueued. A manual bulk
// retry with the scheduler down would only flip every record straight back
// to failed_no_retry, so it is refused outright.
func (s *PurchaseService) RetryFailed(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		return 0, domainErrors.ErrInvalidInput
	}
	if !s.sched.IsAvailable(ctx) {
		return 0, domainErrors.ErrSchedulerUnavailable
	}

	failed, err := s.records.ListFailed(ctx, limit)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, rec := range failed {
		if err := rec.ResetForRetry(); err != nil {
			s.logger.Warn().Err(err).Str("order_id", rec.OrderID).Msg("Cannot reset record for retry")
			continue
		}
		if err := s.records.Save(ctx, rec); err != nil {
			return count, err
		}
		if err := s.Enqueue(ctx, rec.OrderID); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// Status returns the insurance record for an order.
func (s *PurchaseService) Status(ctx context.Context, orderID string) (*insurance.Record, error) {
	return s.records.Get(ctx, orderID)
}

// attempt performs one provider call for the record. attemptNo distinguishes
// the idempotency key per attempt: 0 is the immediate attempt, n is retry
// generation n.
func (s *PurchaseService) attempt(ctx context.Context, rec *insurance.Record, attemptNo int) genova.Result {
	start := s.now()

	input, err := s.orders.GetOrderInsuranceInput(ctx, rec.OrderID)
	if err != nil {
		return genova.Result{
			Success: false,
			Kind:    genova.FailInternal,
			Message: "load order data: " + err.Error(),
		}
	}

	req := genova.PurchaseRequest{
		OrderID:        rec.OrderID,
		PlanID:         rec.PlanID,
		Buyer:          genova.BuyerPayload{Name: input.Buyer.Name, Email: input.Buyer.Email},
		OrderTotal:     centsToFloat(input.TotalCents),
		IdempotencyKey: attemptKey(rec.OrderID, attemptNo),
	}
	for _, item := range input.Items {
		req.Items = append(req.Items, genova.ItemPayload{
			SKU:   item.SKU,
			Name:  item.Name,
			Qty:   item.Quantity,
			Price: centsToFloat(item.UnitPriceCents),
		})
	}

	res := s.api.Purchase(ctx, req)

	outcome := "success"
	if !res.Success {
		outcome = "failure"
		s.metrics.PurchaseErrors.WithLabelValues(string(res.Kind)).Inc()
	}
	s.metrics.PurchaseAttemptsTotal.WithLabelValues(outcome).Inc()
	s.metrics.PurchaseAttemptDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	return res
}

func (s *PurchaseService) recordSuccess(ctx context.Context, rec *insurance.Record, res genova.Result) error {
	if err := rec.MarkPurchased(res.PolicyID, res.Raw); err != nil {
		return err
	}
	if err := s.records.Save(ctx, rec); err != nil {
		return err
	}
	s.logger.Info().
		Str("order_id", rec.OrderID).
		Str("policy_id", res.PolicyID).
		Msg("Insurance policy purchased")
	return nil
}

func (s *PurchaseService) logTerminal(rec *insurance.Record, message string) {
	s.logger.Error().
		Str("order_id", rec.OrderID).
		Str("status", string(rec.Status)).
		Str("error", message).
		Msg("Insurance purchase failed permanently")
}

// attemptKey derives the deterministic idempotency token for one attempt.
func attemptKey(orderID string, attemptNo int) string {
	return uuid.NewSHA1(idempotencyNamespace, []byte(fmt.Sprintf("%s:%d", orderID, attemptNo))).String()
}

func centsToFloat(cents int64) float64 {
	return float64(cents) / 100
}
