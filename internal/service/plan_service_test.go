package service

import (
	"context"
	"testing"

	domainErrors "github.com/genovahq/insurance/internal/domain/errors"
	"github.com/genovahq/insurance/internal/domain/insurance"
	"github.com/genovahq/insurance/internal/genova"
	"github.com/genovahq/insurance/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPlanService() (*PlanService, *testutil.MockGenovaAPI, *testutil.MockPlanCache, *testutil.MockRecordRepository) {
	api := testutil.NewMockGenovaAPI()
	cache := &testutil.MockPlanCache{}
	records := testutil.NewMockRecordRepository()
	svc := NewPlanService(api, cache, records, zerolog.Nop())
	return svc, api, cache, records
}

func TestListPlans_CacheMissFetchesAndCaches(t *testing.T) {
	svc, api, cache, _ := setupPlanService()
	api.Plans = []genova.Plan{{ID: "plan-basic", Name: "Basic", Price: 5.99}}

	plans, err := svc.ListPlans(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 1)

	cached, ok := cache.Get(context.Background())
	assert.True(t, ok)
	assert.Equal(t, plans, cached)
}

func TestListPlans_ServedFromCache(t *testing.T) {
	svc, api, cache, _ := setupPlanService()
	require.NoError(t, cache.Set(context.Background(), []genova.Plan{{ID: "plan-cached"}}))
	api.PlansResult = genova.Result{Success: false, Kind: genova.FailTransport, Message: "down"}

	plans, err := svc.ListPlans(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "plan-cached", plans[0].ID)
}

func TestListPlans_ProviderFailure(t *testing.T) {
	svc, api, _, _ := setupPlanService()
	api.PlansResult = genova.Result{Success: false, Kind: genova.FailTransport, Message: "connection refused"}

	_, err := svc.ListPlans(context.Background())
	assert.ErrorIs(t, err, domainErrors.ErrProviderUnavailable)
}

func TestListPlans_NotConfigured(t *testing.T) {
	svc, api, _, _ := setupPlanService()
	api.PlansResult = genova.Result{Success: false, Kind: genova.FailConfiguration, Message: "API base not configured"}

	_, err := svc.ListPlans(context.Background())
	assert.ErrorIs(t, err, domainErrors.ErrAPIBaseNotConfigured)
}

func TestSelectPlan(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc, api, _, records := setupPlanService()
		api.Plans = []genova.Plan{{ID: "plan-basic", Name: "Basic", Price: 5.99}}

		rec, err := svc.SelectPlan(context.Background(), "order-1", "plan-basic")
		require.NoError(t, err)
		assert.Equal(t, insurance.StatusPending, rec.Status)
		assert.Equal(t, "plan-basic", rec.PlanID)
		assert.Equal(t, int64(599), rec.FeeCents)

		stored, err := records.Get(context.Background(), "order-1")
		require.NoError(t, err)
		assert.Equal(t, "plan-basic", stored.PlanID)
	})

	t.Run("unknown plan", func(t *testing.T) {
		svc, api, _, _ := setupPlanService()
		api.Plans = []genova.Plan{{ID: "plan-basic"}}

		_, err := svc.SelectPlan(context.Background(), "order-1", "plan-bogus")
		assert.ErrorIs(t, err, domainErrors.ErrPlanNotFound)
	})

	t.Run("already selected", func(t *testing.T) {
		svc, api, _, records := setupPlanService()
		api.Plans = []genova.Plan{{ID: "plan-basic", Price: 5.99}, {ID: "plan-premium", Price: 12.50}}
		records.Add(testutil.RecordWithPlan(t, "order-1", "plan-basic"))

		_, err := svc.SelectPlan(context.Background(), "order-1", "plan-premium")
		assert.ErrorIs(t, err, domainErrors.ErrPlanAlreadySelected)
	})
}

func TestSubmitClaim(t *testing.T) {
	newClaimService := func(api *testutil.MockGenovaAPI) *ClaimService {
		return NewClaimService(api, testMetrics())
	}

	t.Run("success", func(t *testing.T) {
		api := testutil.NewMockGenovaAPI()
		api.ClaimResult = genova.Result{Success: true, ClaimID: "clm-1"}

		claimID, err := newClaimService(api).SubmitClaim(context.Background(), "pol-1", "damaged")
		require.NoError(t, err)
		assert.Equal(t, "clm-1", claimID)
		require.Len(t, api.ClaimRequests, 1)
		assert.Equal(t, "pol-1", api.ClaimRequests[0].PolicyID)
	})

	t.Run("rejected", func(t *testing.T) {
		api := testutil.NewMockGenovaAPI()
		api.ClaimResult = genova.Result{Success: false, Kind: genova.FailRemote, Message: "HTTP 404: unknown policy"}

		_, err := newClaimService(api).SubmitClaim(context.Background(), "pol-x", "lost")
		assert.ErrorIs(t, err, domainErrors.ErrProviderUnavailable)
	})
}
