package testutil

import (
	"context"
	"sort"
	"sync"

	domainErrors "github.com/genovahq/insurance/internal/domain/errors"
	"github.com/genovahq/insurance/internal/domain/insurance"
	"github.com/genovahq/insurance/internal/domain/settings"
	"github.com/genovahq/insurance/internal/genova"
	"github.com/genovahq/insurance/internal/scheduler"
)

// --- Insurance Record Repository Mock ---

// MockRecordRepository is an in-memory implementation of insurance.Repository.
type MockRecordRepository struct {
	mu      sync.Mutex
	records map[string]*insurance.Record

	GetFunc        func(ctx context.Context, orderID string) (*insurance.Record, error)
	SaveFunc       func(ctx context.Context, rec *insurance.Record) error
	ListFailedFunc func(ctx context.Context, limit int) ([]*insurance.Record, error)
}

func NewMockRecordRepository() *MockRecordRepository {
	return &MockRecordRepository{records: make(map[string]*insurance.Record)}
}

// Add seeds a record directly, bypassing the repository contract.
func (m *MockRecordRepository) Add(rec *insurance.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.OrderID] = rec
}

func (m *MockRecordRepository) Get(ctx context.Context, orderID string) (*insurance.Record, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, orderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[orderID]
	if !ok {
		return nil, domainErrors.ErrRecordNotFound
	}
	copied := *rec
	return &copied, nil
}

func (m *MockRecordRepository) GetOrCreate(ctx context.Context, orderID string) (*insurance.Record, error) {
	m.mu.Lock()
	rec, ok := m.records[orderID]
	if !ok {
		rec = insurance.NewRecord(orderID)
		m.records[orderID] = rec
	}
	copied := *rec
	m.mu.Unlock()
	return &copied, nil
}

func (m *MockRecordRepository) Save(ctx context.Context, rec *insurance.Record) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, rec)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *rec
	m.records[rec.OrderID] = &copied
	return nil
}

func (m *MockRecordRepository) ListFailed(ctx context.Context, limit int) ([]*insurance.Record, error) {
	if m.ListFailedFunc != nil {
		return m.ListFailedFunc(ctx, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*insurance.Record
	for _, rec := range m.records {
		if rec.Status == insurance.StatusFailedNoRetry || rec.Status == insurance.StatusExhausted {
			copied := *rec
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- Order Data Provider Mock ---

// MockOrderProvider is an in-memory implementation of insurance.OrderDataProvider.
type MockOrderProvider struct {
	mu     sync.Mutex
	orders map[string]*insurance.OrderInput

	GetFunc func(ctx context.Context, orderID string) (*insurance.OrderInput, error)
}

func NewMockOrderProvider() *MockOrderProvider {
	return &MockOrderProvider{orders: make(map[string]*insurance.OrderInput)}
}

func (m *MockOrderProvider) AddOrder(input *insurance.OrderInput) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[input.OrderID] = input
}

func (m *MockOrderProvider) GetOrderInsuranceInput(ctx context.Context, orderID string) (*insurance.OrderInput, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, orderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	input, ok := m.orders[orderID]
	if !ok {
		return nil, domainErrors.ErrOrderNotFound
	}
	return input, nil
}

// --- Scheduler Mock ---

// MockScheduler records scheduled tasks and deduplicates by handle like the
// real adapter.
type MockScheduler struct {
	mu        sync.Mutex
	Tasks     []scheduler.Task
	Available bool

	ScheduleAtFunc func(ctx context.Context, task scheduler.Task) error
}

func NewMockScheduler() *MockScheduler {
	return &MockScheduler{Available: true}
}

func (m *MockScheduler) ScheduleAt(ctx context.Context, task scheduler.Task) error {
	if m.ScheduleAtFunc != nil {
		return m.ScheduleAtFunc(ctx, task)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.Tasks {
		if existing.Handle == task.Handle {
			return nil
		}
	}
	m.Tasks = append(m.Tasks, task)
	return nil
}

func (m *MockScheduler) IsAvailable(ctx context.Context) bool {
	return m.Available
}

// Scheduled returns a copy of all tasks accepted so far.
func (m *MockScheduler) Scheduled() []scheduler.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]scheduler.Task, len(m.Tasks))
	copy(out, m.Tasks)
	return out
}

// --- Provider API Mock ---

// MockGenovaAPI scripts provider responses per call.
type MockGenovaAPI struct {
	mu sync.Mutex

	// PurchaseResults is consumed one per Purchase call; the last entry
	// repeats once the script runs out.
	PurchaseResults  []genova.Result
	PurchaseRequests []genova.PurchaseRequest

	Plans       []genova.Plan
	PlansResult genova.Result

	ClaimResult   genova.Result
	ClaimRequests []genova.ClaimRequest
}

func NewMockGenovaAPI() *MockGenovaAPI {
	return &MockGenovaAPI{
		PlansResult: genova.Result{Success: true},
		ClaimResult: genova.Result{Success: true},
	}
}

func (m *MockGenovaAPI) Purchase(ctx context.Context, req genova.PurchaseRequest) genova.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PurchaseRequests = append(m.PurchaseRequests, req)

	if len(m.PurchaseResults) == 0 {
		return genova.Result{Success: false, Kind: genova.FailInternal, Message: "no scripted result"}
	}
	res := m.PurchaseResults[0]
	if len(m.PurchaseResults) > 1 {
		m.PurchaseResults = m.PurchaseResults[1:]
	}
	return res
}

func (m *MockGenovaAPI) ListPlans(ctx context.Context) ([]genova.Plan, genova.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Plans, m.PlansResult
}

func (m *MockGenovaAPI) SubmitClaim(ctx context.Context, req genova.ClaimRequest) genova.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ClaimRequests = append(m.ClaimRequests, req)
	return m.ClaimResult
}

// Calls returns how many purchase attempts the mock has seen.
func (m *MockGenovaAPI) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.PurchaseRequests)
}

// --- Settings Source Mock ---

// StaticSettings is a settings.Source backed by a mutable in-memory value.
type StaticSettings struct {
	mu sync.Mutex
	s  settings.Settings

	LoadErr error
}

func NewStaticSettings(s settings.Settings) *StaticSettings {
	return &StaticSettings{s: s}
}

func (m *StaticSettings) Load(ctx context.Context) (settings.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return settings.Settings{}, m.LoadErr
	}
	return m.s.Normalize(), nil
}

// Save makes StaticSettings usable as a settings.Store.
func (m *StaticSettings) Save(ctx context.Context, s settings.Settings) error {
	m.Update(s)
	return nil
}

func (m *StaticSettings) Update(s settings.Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = s
}

// --- Plan Cache Mock ---

// MockPlanCache is an in-memory plan cache without TTL semantics.
type MockPlanCache struct {
	mu    sync.Mutex
	plans []genova.Plan
	ok    bool

	// Invalidated reports whether Invalidate was called.
	Invalidated bool
}

func (m *MockPlanCache) Get(ctx context.Context) ([]genova.Plan, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.plans, m.ok
}

func (m *MockPlanCache) Set(ctx context.Context, plans []genova.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans = plans
	m.ok = true
	return nil
}

func (m *MockPlanCache) Invalidate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans = nil
	m.ok = false
	m.Invalidated = true
	return nil
}
