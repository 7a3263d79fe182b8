package service

import (
	"context"
	"io"
	capacityrepository "slotkeeper/internal/capacity/repository"
	capacityservice "slotkeeper/internal/capacity/service"
	"slotkeeper/internal/holds/repository"
	"slotkeeper/internal/holds/validator"
	"slotkeeper/pkg/clock"
	"slotkeeper/pkg/config"
	"slotkeeper/pkg/events"
	"slotkeeper/pkg/lock"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"sync"
	"testing"
	"time"
)

const tenant = "tenant-1"

var (
	start     = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	slotStart = time.Date(2026, 6, 3, 10, 0, 0, 0, time.UTC)
	slotEnd   = slotStart.Add(time.Hour)
)

type holdFixture struct {
	cfg       *config.Config
	clock     *clock.Fixed
	holds     *repository.MemoryHoldRepository
	policyDB  *repository.MemoryPolicyRepository
	capacity  *capacityrepository.MemoryCapacityRepository
	ledger    capacityservice.Ledger
	policies  PolicyService
	publisher *events.MemoryPublisher
	svc       HoldService
}

func testConfig() *config.Config {
	return &config.Config{
		Log:                           logger.New(logger.Config{Level: logger.ERROR, Output: io.Discard}),
		ReadTimeout:                   5 * time.Second,
		WriteTimeout:                  5 * time.Second,
		HoldSweepBatchSize:            2,
		DefaultHoldDurationMin:        15,
		DefaultMinHoldDurationMin:     1,
		DefaultMaxHoldDurationMin:     60,
		TransitionRetryAttempts:       3,
		DefaultMaxActiveHoldsPerOwner: 5,
		DefaultActFastCount:           10,
		DefaultActFastUniqueOwners:    5,
	}
}

func newHoldFixture(t *testing.T) *holdFixture {
	return newHoldFixtureWith(t, nil, nil)
}

// newHoldFixtureWith lets a test swap the hold repository or the calendar checker.
func newHoldFixtureWith(t *testing.T, wrap func(*repository.MemoryHoldRepository) repository.HoldRepository, checker AvailabilityChecker) *holdFixture {
	t.Helper()
	f := &holdFixture{
		cfg:       testConfig(),
		clock:     clock.NewFixed(start),
		holds:     repository.NewMemoryHoldRepository(),
		policyDB:  repository.NewMemoryPolicyRepository(),
		capacity:  capacityrepository.NewMemoryCapacityRepository(),
		publisher: events.NewMemoryPublisher(),
	}
	locker := lock.NewMemoryLocker(lock.Options{RetryAttempts: 200, RetryBackoff: time.Millisecond})
	v := validator.NewHoldValidator(f.cfg.Log)

	var holdRepo repository.HoldRepository = f.holds
	if wrap != nil {
		holdRepo = wrap(f.holds)
	}

	f.ledger = capacityservice.NewLedger(f.capacity, locker, f.clock, f.cfg)
	f.policies = NewPolicyService(f.policyDB, v, f.clock, f.cfg)
	f.svc = NewHoldService(holdRepo, f.policies, f.ledger, locker, checker, f.publisher, v, f.clock, f.cfg)
	return f
}

func (f *holdFixture) pool(t *testing.T, total, overbook int) *model.CapacityPool {
	t.Helper()
	p := &model.CapacityPool{TenantID: tenant, Name: "Boat seats", TotalCapacity: total, OverbookCapacity: overbook}
	if err := f.ledger.CreatePool(context.Background(), p); err != nil {
		t.Fatalf("CreatePool() error = %v", err)
	}
	return p
}

func (f *holdFixture) policy(t *testing.T, p *model.CapacityHoldPolicy) *model.CapacityHoldPolicy {
	t.Helper()
	p.TenantID = tenant
	p.Status = model.PolicyActive
	p.IsEnabled = true
	if err := f.policies.Create(context.Background(), p); err != nil {
		t.Fatalf("Create policy error = %v", err)
	}
	return p
}

func (f *holdFixture) create(t *testing.T, req *model.CreateHoldRequest) *model.CapacityHold {
	t.Helper()
	hold, created, err := f.svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !created {
		t.Fatal("expected a new hold")
	}
	return hold
}

// activeUnits sums the pool's active allocations.
func (f *holdFixture) activeUnits(poolID string) int {
	total := 0
	for _, a := range f.capacity.Allocations() {
		if a.PoolID == poolID && a.Status == model.AllocationActive {
			total += a.Quantity
		}
	}
	return total
}

func poolRequest(poolID string, qty int) *model.CreateHoldRequest {
	return &model.CreateHoldRequest{
		TenantID:   tenant,
		Target:     model.HoldTarget{Type: model.TargetCapacityPool, ID: poolID},
		EffectMode: model.EffectBlocking,
		Quantity:   qty,
		StartsAt:   slotStart,
		EndsAt:     slotEnd,
	}
}

func ownedRequest(poolID, owner string, mode model.EffectMode) *model.CreateHoldRequest {
	req := poolRequest(poolID, 1)
	req.Owner = &model.HoldOwner{Type: model.HoldOwnerUser, ID: owner}
	req.EffectMode = mode
	return req
}

// waitForEvents polls the async publisher until it saw n events.
func waitForEvents(t *testing.T, p *events.MemoryPublisher, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if types := p.Types(); len(types) >= n {
			return types
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d published events, got %v", n, p.Types())
	return nil
}

type stubChecker struct {
	mu      sync.Mutex
	verdict *model.Verdict
	err     error
	calls   int
	now     time.Time
}

func (c *stubChecker) Evaluate(ctx context.Context, tenantID, calendarID string, window model.Window, now time.Time) (*model.Verdict, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.now = now
	return c.verdict, c.err
}
