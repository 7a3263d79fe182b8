package service

import (
	"context"
	"fmt"
	"io"
	"slotkeeper/internal/capacity/repository"
	"slotkeeper/pkg/clock"
	"slotkeeper/pkg/config"
	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/lock"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var slot = model.Window{
	Start: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	End:   time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC),
}

func newTestLedger() (Ledger, *repository.MemoryCapacityRepository) {
	cfg := &config.Config{Log: logger.New(logger.Config{Level: logger.ERROR, Output: io.Discard})}
	repo := repository.NewMemoryCapacityRepository()
	l := NewLedger(repo, lock.NewMemoryLocker(lock.Options{RetryAttempts: 20, RetryBackoff: 10 * time.Millisecond}),
		clock.NewFixed(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)), cfg)
	return l, repo
}

func createPool(t *testing.T, l Ledger, total, overbook int) *model.CapacityPool {
	t.Helper()
	pool := &model.CapacityPool{TenantID: "tenant-1", Name: "Shuttle seats", TotalCapacity: total, OverbookCapacity: overbook}
	if err := l.CreatePool(context.Background(), pool); err != nil {
		t.Fatalf("CreatePool() error = %v", err)
	}
	return pool
}

func addMember(t *testing.T, l Ledger, poolID, id string, weight, reserved int) {
	t.Helper()
	m := &model.CapacityPoolMember{
		TenantID:         "tenant-1",
		PoolID:           poolID,
		Member:           model.PoolMemberRef{Type: model.MemberResource, ID: id},
		CapacityWeight:   weight,
		ReservedCapacity: reserved,
	}
	if err := l.AddMember(context.Background(), m); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}
}

func reserveTarget(l Ledger, target model.HoldTarget, holdID string, qty int, w model.Window) error {
	ctx := context.Background()
	shares, err := l.Shares(ctx, "tenant-1", target)
	if err != nil {
		return err
	}
	_, err = l.Allocate(ctx, "tenant-1", holdID, shares, qty, w)
	return err
}

func TestLedger_ReserveUntilFull(t *testing.T) {
	l, _ := newTestLedger()
	pool := createPool(t, l, 2, 1)

	remaining, err := l.Reserve(context.Background(), "tenant-1", pool.ID, "h1", 2, slot)
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if remaining != 1 {
		t.Errorf("remaining = %d, want 1 (overbook capacity)", remaining)
	}

	_, err = l.Reserve(context.Background(), "tenant-1", pool.ID, "h2", 2, slot)
	if !apperrors.IsCode(err, apperrors.CodeCapacityExceeded) {
		t.Fatalf("expected CapacityExceeded, got %v", err)
	}

	// a disjoint window is unaffected
	later := model.Window{Start: slot.End, End: slot.End.Add(time.Hour)}
	if _, err := l.Reserve(context.Background(), "tenant-1", pool.ID, "h3", 3, later); err != nil {
		t.Fatalf("Reserve() in later window error = %v", err)
	}
}

func TestLedger_ReleaseAndCommit(t *testing.T) {
	l, repo := newTestLedger()
	pool := createPool(t, l, 1, 0)

	if _, err := l.Reserve(context.Background(), "tenant-1", pool.ID, "h1", 1, slot); err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if err := l.Release(context.Background(), "tenant-1", "h1"); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	// releasing twice is a no-op
	if err := l.Release(context.Background(), "tenant-1", "h1"); err != nil {
		t.Fatalf("second Release() error = %v", err)
	}

	if _, err := l.Reserve(context.Background(), "tenant-1", pool.ID, "h2", 1, slot); err != nil {
		t.Fatalf("Reserve() after release error = %v", err)
	}
	if err := l.Commit(context.Background(), "tenant-1", "h2"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	avail, err := l.Availability(context.Background(), "tenant-1", pool.ID, slot)
	if err != nil {
		t.Fatalf("Availability() error = %v", err)
	}
	if avail.Used != 0 || avail.Remaining != 1 {
		t.Errorf("committed allocations leave pool tracking, got used=%d remaining=%d", avail.Used, avail.Remaining)
	}

	statuses := map[model.AllocationStatus]int{}
	for _, a := range repo.Allocations() {
		statuses[a.Status]++
	}
	if statuses[model.AllocationReleased] != 1 || statuses[model.AllocationCommitted] != 1 {
		t.Errorf("unexpected allocation statuses: %v", statuses)
	}
}

func TestLedger_MemberFloorsAndWeights(t *testing.T) {
	l, _ := newTestLedger()
	pool := createPool(t, l, 10, 0)
	addMember(t, l, pool.ID, "van", 2, 0)
	addMember(t, l, pool.ID, "bus", 1, 4)

	van := model.HoldTarget{Type: model.TargetResource, ID: "van"}
	bus := model.HoldTarget{Type: model.TargetResource, ID: "bus"}

	// van may use 10 - 4 (bus floor) = 6 units = 3 holds of weight 2
	for i := 0; i < 3; i++ {
		if err := reserveTarget(l, van, fmt.Sprintf("van-%d", i), 1, slot); err != nil {
			t.Fatalf("van reservation %d error = %v", i, err)
		}
	}
	if err := reserveTarget(l, van, "van-over", 1, slot); !apperrors.IsCode(err, apperrors.CodeCapacityExceeded) {
		t.Fatalf("expected van to hit the bus floor, got %v", err)
	}

	// the bus floor is still fully available to the bus
	if err := reserveTarget(l, bus, "bus-1", 4, slot); err != nil {
		t.Fatalf("bus reservation error = %v", err)
	}
	if err := reserveTarget(l, bus, "bus-2", 1, slot); !apperrors.IsCode(err, apperrors.CodeCapacityExceeded) {
		t.Fatalf("expected pool to be full, got %v", err)
	}

	avail, err := l.Availability(context.Background(), "tenant-1", pool.ID, slot)
	if err != nil {
		t.Fatalf("Availability() error = %v", err)
	}
	if avail.ByMember["resource:van"] != 6 || avail.ByMember["resource:bus"] != 4 || avail.Remaining != 0 {
		t.Errorf("unexpected availability: %+v", avail)
	}
}

func TestLedger_TargetsOutsidePoolsHaveNoShares(t *testing.T) {
	l, _ := newTestLedger()
	createPool(t, l, 1, 0)

	shares, err := l.Shares(context.Background(), "tenant-1", model.HoldTarget{Type: model.TargetCalendar, ID: "cal-1"})
	if err != nil || len(shares) != 0 {
		t.Fatalf("expected no shares for a calendar target, got %v, %v", shares, err)
	}
	shares, err = l.Shares(context.Background(), "tenant-1", model.HoldTarget{Type: model.TargetResource, ID: "loose"})
	if err != nil || len(shares) != 0 {
		t.Fatalf("expected no shares for a resource outside any pool, got %v, %v", shares, err)
	}
}

func TestLedger_ConcurrentReservationsNeverExceedCapacity(t *testing.T) {
	l, repo := newTestLedger()
	pool := createPool(t, l, 5, 0)

	const attempts = 20
	var ok, exceeded atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Reserve(context.Background(), "tenant-1", pool.ID, fmt.Sprintf("h%d", i), 1, slot)
			switch {
			case err == nil:
				ok.Add(1)
			case apperrors.IsCode(err, apperrors.CodeCapacityExceeded):
				exceeded.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 5 || exceeded.Load() != attempts-5 {
		t.Fatalf("ok=%d exceeded=%d, want 5 and %d", ok.Load(), exceeded.Load(), attempts-5)
	}
	if n := len(repo.Allocations()); n != 5 {
		t.Errorf("expected 5 allocation rows, got %d", n)
	}
}

func TestRemaining(t *testing.T) {
	pool := &model.CapacityPool{TotalCapacity: 8, OverbookCapacity: 2}
	members := []*model.CapacityPoolMember{
		{MemberKey: "resource:a", ReservedCapacity: 3},
		{MemberKey: "resource:b", ReservedCapacity: 0},
	}
	usage := SumUsage([]*model.CapacityAllocation{
		{MemberKey: "resource:a", Quantity: 1, Status: model.AllocationActive},
		{MemberKey: "resource:b", Quantity: 2, Status: model.AllocationActive},
		{MemberKey: "resource:gone", Quantity: 1, Status: model.AllocationActive},
		{Quantity: 1, Status: model.AllocationActive},
		{Quantity: 5, Status: model.AllocationReleased},
	})

	tests := []struct {
		member string
		want   int
	}{
		{"", 10 - 1 - 3 - 2 - 1},
		{"resource:a", 10 - 1 - 1 - 2 - 1},
		{"resource:b", 10 - 1 - 3 - 2 - 1},
	}
	for _, tt := range tests {
		if got := Remaining(pool, members, usage, tt.member); got != tt.want {
			t.Errorf("Remaining(%q) = %d, want %d", tt.member, got, tt.want)
		}
	}
}
