package service

import (
	"context"
	"strings"
	"testing"
	"time"

	domainErrors "github.com/genovahq/insurance/internal/domain/errors"
	"github.com/genovahq/insurance/internal/domain/insurance"
	"github.com/genovahq/insurance/internal/domain/settings"
	"github.com/genovahq/insurance/internal/genova"
	"github.com/genovahq/insurance/internal/infrastructure/observability"
	"github.com/genovahq/insurance/internal/scheduler"
	"github.com/genovahq/insurance/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testMetrics() *observability.Metrics {
	return observability.NewMetrics("test", prometheus.NewRegistry())
}

type purchaseFixture struct {
	svc      *PurchaseService
	records  *testutil.MockRecordRepository
	orders   *testutil.MockOrderProvider
	sched    *testutil.MockScheduler
	api      *testutil.MockGenovaAPI
	settings *testutil.StaticSettings
}

func setupPurchaseService(t *testing.T, maxRetries int) *purchaseFixture {
	t.Helper()

	f := &purchaseFixture{
		records: testutil.NewMockRecordRepository(),
		orders:  testutil.NewMockOrderProvider(),
		sched:   testutil.NewMockScheduler(),
		api:     testutil.NewMockGenovaAPI(),
		settings: testutil.NewStaticSettings(settings.Settings{
			APIBase:    "https://api.genova.example",
			MaxRetries: maxRetries,
		}),
	}

	f.svc = NewPurchaseService(f.records, f.orders, f.sched, f.settings, f.api, testMetrics(), zerolog.Nop())
	f.svc.now = func() time.Time { return testStart }
	return f
}

func (f *purchaseFixture) seedOrder(t *testing.T, orderID string) {
	t.Helper()
	f.orders.AddOrder(testutil.OrderFixture(orderID))
	f.records.Add(testutil.RecordWithPlan(t, orderID, "plan-basic"))
}

func remoteFailure(msg string) genova.Result {
	return genova.Result{Success: false, Kind: genova.FailRemote, Message: msg}
}

func purchased(policyID string) genova.Result {
	return genova.Result{Success: true, PolicyID: policyID, Raw: []byte(`{"policy_id":"` + policyID + `"}`)}
}

// --- Enqueue ---

func TestEnqueue_ImmediateSuccess(t *testing.T) {
	f := setupPurchaseService(t, 3)
	f.seedOrder(t, "order-1")
	f.api.PurchaseResults = []genova.Result{purchased("pol-123")}

	require.NoError(t, f.svc.Enqueue(context.Background(), "order-1"))

	rec, err := f.records.Get(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, insurance.StatusPurchased, rec.Status)
	assert.Equal(t, "pol-123", rec.PolicyID)
	assert.Nil(t, rec.RetryCount)
	assert.Nil(t, rec.LastError)
	assert.Empty(t, f.sched.Scheduled(), "success must not schedule a retry")
}

func TestEnqueue_NoPlan_SkipsProvider(t *testing.T) {
	f := setupPurchaseService(t, 3)
	f.orders.AddOrder(testutil.OrderFixture("order-1"))

	require.NoError(t, f.svc.Enqueue(context.Background(), "order-1"))

	assert.Equal(t, 0, f.api.Calls())
	assert.Empty(t, f.sched.Scheduled())

	rec, err := f.records.Get(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, insurance.StatusNoPlan, rec.Status)
}

func TestEnqueue_AlreadyPurchased_SkipsProvider(t *testing.T) {
	f := setupPurchaseService(t, 3)
	f.seedOrder(t, "order-1")

	rec, _ := f.records.Get(context.Background(), "order-1")
	require.NoError(t, rec.MarkPurchased("pol-existing", nil))
	f.records.Add(rec)

	require.NoError(t, f.svc.Enqueue(context.Background(), "order-1"))
	assert.Equal(t, 0, f.api.Calls())
}

func TestEnqueue_FailureSchedulesFirstRetry(t *testing.T) {
	f := setupPurchaseService(t, 3)
	f.seedOrder(t, "order-1")
	f.api.PurchaseResults = []genova.Result{remoteFailure("HTTP 502: bad gateway")}

	require.NoError(t, f.svc.Enqueue(context.Background(), "order-1"))

	rec, err := f.records.Get(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, insurance.StatusScheduled, rec.Status)
	require.NotNil(t, rec.RetryCount)
	assert.Equal(t, 0, *rec.RetryCount)
	require.NotNil(t, rec.LastError)
	assert.Equal(t, "HTTP 502: bad gateway", *rec.LastError)

	tasks := f.sched.Scheduled()
	require.Len(t, tasks, 1)
	assert.Equal(t, scheduler.TaskPurchaseRetry, tasks[0].Name)
	assert.Equal(t, scheduler.PurchaseHandle("order-1"), tasks[0].Handle)
	assert.Equal(t, testStart.Add(60*time.Second), tasks[0].RunAt)
}

func TestEnqueue_SchedulerUnavailable_FailsWithoutRetry(t *testing.T) {
	f := setupPurchaseService(t, 3)
	f.seedOrder(t, "order-1")
	f.sched.Available = false
	f.api.PurchaseResults = []genova.Result{remoteFailure("HTTP 500: boom")}

	require.NoError(t, f.svc.Enqueue(context.Background(), "order-1"))

	rec, err := f.records.Get(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, insurance.StatusFailedNoRetry, rec.Status)
	assert.Nil(t, rec.RetryCount, "no retry was ever scheduled")
	require.NotNil(t, rec.LastError)
	assert.Equal(t, "HTTP 500: boom", *rec.LastError)
	assert.Empty(t, f.sched.Scheduled())
}

func TestEnqueue_ZeroMaxRetries_ExhaustsImmediately(t *testing.T) {
	f := setupPurchaseService(t, 0)
	f.seedOrder(t, "order-1")
	f.api.PurchaseResults = []genova.Result{remoteFailure("HTTP 503: unavailable")}

	require.NoError(t, f.svc.Enqueue(context.Background(), "order-1"))

	rec, err := f.records.Get(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, insurance.StatusExhausted, rec.Status)
	require.NotNil(t, rec.LastError)
	assert.Equal(t, insurance.ExhaustedPrefix+"HTTP 503: unavailable", *rec.LastError)
	assert.Empty(t, f.sched.Scheduled())
}

func TestEnqueue_ConfigurationFailure_NeverRetried(t *testing.T) {
	f := setupPurchaseService(t, 3)
	f.seedOrder(t, "order-1")
	f.api.PurchaseResults = []genova.Result{{
		Success: false, Kind: genova.FailConfiguration, Message: "API base not configured",
	}}

	require.NoError(t, f.svc.Enqueue(context.Background(), "order-1"))

	rec, err := f.records.Get(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, insurance.StatusFailedNoRetry, rec.Status)
	assert.Empty(t, f.sched.Scheduled())
}

func TestEnqueue_DuplicateCall_DeduplicatedByHandle(t *testing.T) {
	f := setupPurchaseService(t, 3)
	f.seedOrder(t, "order-1")
	f.api.PurchaseResults = []genova.Result{remoteFailure("HTTP 500: a"), remoteFailure("HTTP 500: b")}

	require.NoError(t, f.svc.Enqueue(context.Background(), "order-1"))
	require.NoError(t, f.svc.Enqueue(context.Background(), "order-1"))

	assert.Len(t, f.sched.Scheduled(), 1)
}

func TestEnqueue_ScheduledRecord_SchedulerLost_DegradesToFailedNoRetry(t *testing.T) {
	f := setupPurchaseService(t, 3)
	f.seedOrder(t, "order-1")
	f.api.PurchaseResults = []genova.Result{remoteFailure("HTTP 500: down")}

	require.NoError(t, f.svc.Enqueue(context.Background(), "order-1"))

	// A duplicate enqueue arrives after Redis went away.
	f.sched.Available = false
	require.NoError(t, f.svc.Enqueue(context.Background(), "order-1"))

	rec, err := f.records.Get(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, insurance.StatusFailedNoRetry, rec.Status)
	require.NotNil(t, rec.LastError)
	assert.Equal(t, "HTTP 500: down", *rec.LastError)
}

// --- OnRetryDue ---

func TestOnRetryDue_Success_ClearsRetryBookkeeping(t *testing.T) {
	f := setupPurchaseService(t, 3)
	f.seedOrder(t, "order-1")

	rec, _ := f.records.Get(context.Background(), "order-1")
	require.NoError(t, rec.MarkScheduled(0, "HTTP 500: boom"))
	f.records.Add(rec)

	f.api.PurchaseResults = []genova.Result{purchased("pol-777")}

	require.NoError(t, f.svc.OnRetryDue(context.Background(), "order-1"))

	after, err := f.records.Get(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, insurance.StatusPurchased, after.Status)
	assert.Equal(t, "pol-777", after.PolicyID)
	assert.Nil(t, after.RetryCount)
	assert.Nil(t, after.LastError)
}

func TestOnRetryDue_AlreadyPurchased_NoAttempt(t *testing.T) {
	f := setupPurchaseService(t, 3)
	f.seedOrder(t, "order-1")

	rec, _ := f.records.Get(context.Background(), "order-1")
	require.NoError(t, rec.MarkPurchased("pol-1", nil))
	f.records.Add(rec)

	require.NoError(t, f.svc.OnRetryDue(context.Background(), "order-1"))
	assert.Equal(t, 0, f.api.Calls())
}

func TestOnRetryDue_UnknownOrder_Dropped(t *testing.T) {
	f := setupPurchaseService(t, 3)
	require.NoError(t, f.svc.OnRetryDue(context.Background(), "ghost"))
	assert.Equal(t, 0, f.api.Calls())
}

func TestOnRetryDue_MissingRetryCount_TreatedAsZero(t *testing.T) {
	f := setupPurchaseService(t, 3)
	f.seedOrder(t, "order-1")

	// Scheduled status but retry_count lost (legacy row).
	rec, _ := f.records.Get(context.Background(), "order-1")
	require.NoError(t, rec.MarkScheduled(0, "HTTP 500: boom"))
	rec.RetryCount = nil
	f.records.Add(rec)

	f.api.PurchaseResults = []genova.Result{remoteFailure("HTTP 500: again")}

	require.NoError(t, f.svc.OnRetryDue(context.Background(), "order-1"))

	after, err := f.records.Get(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, insurance.StatusScheduled, after.Status)
	require.NotNil(t, after.RetryCount)
	assert.Equal(t, 1, *after.RetryCount)
}

func TestOnRetryDue_BackoffSequence(t *testing.T) {
	f := setupPurchaseService(t, 10)
	f.seedOrder(t, "order-1")
	f.api.PurchaseResults = []genova.Result{remoteFailure("HTTP 500: down")}

	require.NoError(t, f.svc.Enqueue(context.Background(), "order-1"))
	for i := 0; i < 5; i++ {
		require.NoError(t, f.svc.OnRetryDue(context.Background(), "order-1"))
	}

	tasks := f.sched.Scheduled()
	require.Len(t, tasks, 6)

	// Initial 60s, then the backoff table indexed by failures so far:
	// the first retry failure schedules the next retry another 60s out.
	wantDelays := []time.Duration{
		60 * time.Second,
		60 * time.Second,
		300 * time.Second,
		1800 * time.Second,
		7200 * time.Second,
		7200 * time.Second,
	}
	for i, task := range tasks {
		assert.Equal(t, testStart.Add(wantDelays[i]), task.RunAt, "task %d", i)
	}
}

func TestOnRetryDue_ExhaustsAtMaxRetries(t *testing.T) {
	f := setupPurchaseService(t, 3)
	f.seedOrder(t, "order-1")
	f.api.PurchaseResults = []genova.Result{remoteFailure("HTTP 502: still down")}

	require.NoError(t, f.svc.Enqueue(context.Background(), "order-1"))
	require.NoError(t, f.svc.OnRetryDue(context.Background(), "order-1")) // count 1
	require.NoError(t, f.svc.OnRetryDue(context.Background(), "order-1")) // count 2
	require.NoError(t, f.svc.OnRetryDue(context.Background(), "order-1")) // count 3 == max

	rec, err := f.records.Get(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, insurance.StatusExhausted, rec.Status)
	require.NotNil(t, rec.RetryCount)
	assert.Equal(t, 3, *rec.RetryCount)
	require.NotNil(t, rec.LastError)
	assert.True(t, strings.HasPrefix(*rec.LastError, insurance.ExhaustedPrefix))
	assert.Equal(t, insurance.ExhaustedPrefix+"HTTP 502: still down", *rec.LastError)

	// Initial retry plus the one scheduled after each non-final failure.
	assert.Len(t, f.sched.Scheduled(), 3)

	// A stale task firing after exhaustion is a no-op.
	calls := f.api.Calls()
	require.NoError(t, f.svc.OnRetryDue(context.Background(), "order-1"))
	assert.Equal(t, calls, f.api.Calls())
}

func TestOnRetryDue_ConfigurationFailure_FailsWithoutExhaustionPrefix(t *testing.T) {
	f := setupPurchaseService(t, 5)
	f.seedOrder(t, "order-1")
	f.api.PurchaseResults = []genova.Result{
		remoteFailure("HTTP 500: down"),
		{Success: false, Kind: genova.FailConfiguration, Message: "API base not configured"},
	}

	require.NoError(t, f.svc.Enqueue(context.Background(), "order-1"))

	// An admin cleared the API base between the failure and its retry.
	require.NoError(t, f.svc.OnRetryDue(context.Background(), "order-1"))

	rec, err := f.records.Get(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, insurance.StatusFailedNoRetry, rec.Status)
	require.NotNil(t, rec.LastError)
	assert.Equal(t, "API base not configured", *rec.LastError,
		"a broken configuration must stay distinguishable from exhaustion")
	assert.Len(t, f.sched.Scheduled(), 1, "no further retry behind a broken configuration")
}

func TestOnRetryDue_SettingsChangeAppliesMidFlight(t *testing.T) {
	f := setupPurchaseService(t, 5)
	f.seedOrder(t, "order-1")
	f.api.PurchaseResults = []genova.Result{remoteFailure("HTTP 500: down")}

	require.NoError(t, f.svc.Enqueue(context.Background(), "order-1"))

	// Admin lowers max retries while the first retry is pending.
	f.settings.Update(settings.Settings{APIBase: "https://api.genova.example", MaxRetries: 1})

	require.NoError(t, f.svc.OnRetryDue(context.Background(), "order-1"))

	rec, err := f.records.Get(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, insurance.StatusExhausted, rec.Status)
}

func TestOnRetryDue_UsesDistinctIdempotencyKeysPerAttempt(t *testing.T) {
	f := setupPurchaseService(t, 5)
	f.seedOrder(t, "order-1")
	f.api.PurchaseResults = []genova.Result{remoteFailure("HTTP 500: down")}

	require.NoError(t, f.svc.Enqueue(context.Background(), "order-1"))
	require.NoError(t, f.svc.OnRetryDue(context.Background(), "order-1"))
	require.NoError(t, f.svc.OnRetryDue(context.Background(), "order-1"))

	keys := map[string]bool{}
	for _, req := range f.api.PurchaseRequests {
		require.NotEmpty(t, req.IdempotencyKey)
		keys[req.IdempotencyKey] = true
	}
	assert.Len(t, keys, 3, "each attempt carries its own key")

	// The same attempt replayed presents the same key.
	assert.Equal(t, attemptKey("order-1", 0), f.api.PurchaseRequests[0].IdempotencyKey)
	assert.Equal(t, attemptKey("order-1", 1), f.api.PurchaseRequests[1].IdempotencyKey)
}

func TestAttempt_BuildsWirePayloadFromOrderData(t *testing.T) {
	f := setupPurchaseService(t, 3)
	f.seedOrder(t, "order-1")
	f.api.PurchaseResults = []genova.Result{purchased("pol-1")}

	require.NoError(t, f.svc.Enqueue(context.Background(), "order-1"))

	require.Len(t, f.api.PurchaseRequests, 1)
	req := f.api.PurchaseRequests[0]
	assert.Equal(t, "order-1", req.OrderID)
	assert.Equal(t, "plan-basic", req.PlanID)
	assert.Equal(t, "Ada Lovelace", req.Buyer.Name)
	assert.Equal(t, "ada@example.com", req.Buyer.Email)
	assert.InDelta(t, 64.49, req.OrderTotal, 0.001)
	require.Len(t, req.Items, 2)
	assert.Equal(t, "SKU-2", req.Items[1].SKU)
	assert.Equal(t, 2, req.Items[1].Qty)
	assert.InDelta(t, 7.25, req.Items[1].Price, 0.001)
}

// --- RetryFailed ---

func TestRetryFailed_ReenqueuesTerminalFailures(t *testing.T) {
	f := setupPurchaseService(t, 3)

	for _, orderID := range []string{"order-1", "order-2"} {
		f.orders.AddOrder(testutil.OrderFixture(orderID))
		rec := testutil.RecordWithPlan(t, orderID, "plan-basic")
		require.NoError(t, rec.MarkFailedNoRetry("HTTP 500: boom"))
		f.records.Add(rec)
	}

	// Second round succeeds everywhere.
	f.api.PurchaseResults = []genova.Result{purchased("pol-a"), purchased("pol-b")}

	count, err := f.svc.RetryFailed(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	for _, orderID := range []string{"order-1", "order-2"} {
		rec, err := f.records.Get(context.Background(), orderID)
		require.NoError(t, err)
		assert.Equal(t, insurance.StatusPurchased, rec.Status)
	}
}

func TestRetryFailed_NothingToDo(t *testing.T) {
	f := setupPurchaseService(t, 3)
	count, err := f.svc.RetryFailed(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRetryFailed_SchedulerUnavailable_Refused(t *testing.T) {
	f := setupPurchaseService(t, 3)
	f.orders.AddOrder(testutil.OrderFixture("order-1"))
	rec := testutil.RecordWithPlan(t, "order-1", "plan-basic")
	require.NoError(t, rec.MarkFailedNoRetry("HTTP 500: boom"))
	f.records.Add(rec)

	f.sched.Available = false

	count, err := f.svc.RetryFailed(context.Background(), 10)
	assert.ErrorIs(t, err, domainErrors.ErrSchedulerUnavailable)
	assert.Zero(t, count)
	assert.Equal(t, 0, f.api.Calls(), "no attempt may run when retries cannot be armed")

	got, getErr := f.records.Get(context.Background(), "order-1")
	require.NoError(t, getErr)
	assert.Equal(t, insurance.StatusFailedNoRetry, got.Status, "records stay untouched")
}

func TestRetryFailed_InvalidLimit(t *testing.T) {
	f := setupPurchaseService(t, 3)

	for _, limit := range []int{0, -1} {
		count, err := f.svc.RetryFailed(context.Background(), limit)
		assert.ErrorIs(t, err, domainErrors.ErrInvalidInput, "limit=%d", limit)
		assert.Zero(t, count)
	}
}
