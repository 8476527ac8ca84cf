package service

import (
	"context"
	"math"

	domainErrors "github.com/genovahq/insurance/internal/domain/errors"
	"github.com/genovahq/insurance/internal/domain/insurance"
	"github.com/genovahq/insurance/internal/genova"
	"github.com/rs/zerolog"
)

// PlanAPI is the slice of the provider client the plan surface needs.
type PlanAPI interface {
	ListPlans(ctx context.Context) ([]genova.Plan, genova.Result)
}

// PlanCache is a best-effort read-through cache for the remote plan list.
type PlanCache interface {
	Get(ctx context.Context) ([]genova.Plan, bool)
	Set(ctx context.Context, plans []genova.Plan) error
}

// PlanService proxies the provider plan list and attaches selected plans to
// orders. The proxy keeps the API key server-side; browsers never talk to the
// provider directly.
type PlanService struct {
	api     PlanAPI
	cache   PlanCache
	records insurance.Repository
	logger  zerolog.Logger
}

func NewPlanService(api PlanAPI, cache PlanCache, records insurance.Repository, logger zerolog.Logger) *PlanService {
	return &PlanService{
		api:     api,
		cache:   cache,
		records: records,
		logger:  logger,
	}
}

// ListPlans returns the available plans, serving from cache when possible.
func (s *PlanService) ListPlans(ctx context.Context) ([]genova.Plan, error) {
	if plans, ok := s.cache.Get(ctx); ok {
		return plans, nil
	}

	plans, res := s.api.ListPlans(ctx)
	if !res.Success {
		if res.Kind == genova.FailConfiguration {
			return nil, domainErrors.ErrAPIBaseNotConfigured
		}
		return nil, domainErrors.NewDomainError("provider_unavailable", res.Message, domainErrors.ErrProviderUnavailable)
	}

	if err := s.cache.Set(ctx, plans); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to cache plan list")
	}
	return plans, nil
}

// SelectPlan validates the plan against the live list and records it on the
// order with its fee. The selection is write-once.
func (s *PlanService) SelectPlan(ctx context.Context, orderID, planID string) (*insurance.Record, error) {
	plans, err := s.ListPlans(ctx)
	if err != nil {
		return nil, err
	}

	var chosen *genova.Plan
	for i := range plans {
		if plans[i].ID == planID {
			chosen = &plans[i]
			break
		}
	}
	if chosen == nil {
		return nil, domainErrors.ErrPlanNotFound
	}

	rec, err := s.records.GetOrCreate(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := rec.SelectPlan(chosen.ID, priceToCents(chosen.Price)); err != nil {
		return nil, err
	}
	if err := s.records.Save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func priceToCents(price float64) int64 {
	return int64(math.Round(price * 100))
}
