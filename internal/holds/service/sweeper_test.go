package service

import (
	"context"
	"slotkeeper/pkg/events"
	"slotkeeper/pkg/model"
	"testing"
	"time"
)

func TestSweeper_ExpiresDueHolds(t *testing.T) {
	f := newHoldFixture(t)
	pool := f.pool(t, 6, 0)

	var due []*model.CapacityHold
	for range 5 {
		due = append(due, f.create(t, poolRequest(pool.ID, 1)))
	}
	long := poolRequest(pool.ID, 1)
	long.DurationMin = 45
	kept := f.create(t, long)

	f.clock.Advance(20 * time.Minute)
	sweeper := NewSweeper(f.svc, f.holds, f.clock, f.cfg)
	expired, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if expired != len(due) {
		t.Fatalf("expected %d expired holds across batches, got %d", len(due), expired)
	}

	for _, h := range due {
		got, err := f.svc.GetByID(context.Background(), tenant, h.ID)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.Status != model.HoldExpired || got.ExpiredAt == nil {
			t.Errorf("hold %s: expected expired, got %s", h.ID, got.Status)
		}
	}
	if got, _ := f.svc.GetByID(context.Background(), tenant, kept.ID); got.Status != model.HoldActive {
		t.Errorf("expected the long hold to stay active, got %s", got.Status)
	}
	if units := f.activeUnits(pool.ID); units != 1 {
		t.Errorf("expected only the long hold to keep capacity, got %d units", units)
	}

	// a second sweep finds nothing left to do
	again, err := sweeper.Sweep(context.Background())
	if err != nil || again != 0 {
		t.Errorf("expected an idle sweep, got %d, %v", again, err)
	}

	types := waitForEvents(t, f.publisher, 6+len(due))
	n := 0
	for _, typ := range types {
		if typ == events.HoldExpired {
			n++
		}
	}
	if n != len(due) {
		t.Errorf("expected %d %s events, got %d", len(due), events.HoldExpired, n)
	}
}

func TestSweeper_SkipsExtendedHolds(t *testing.T) {
	f := newHoldFixture(t)
	pool := f.pool(t, 2, 0)
	hold := f.create(t, poolRequest(pool.ID, 1))

	f.clock.Advance(10 * time.Minute)
	if _, err := f.svc.Extend(context.Background(), tenant, hold.ID, 10, model.SystemActor); err != nil {
		t.Fatalf("Extend() error = %v", err)
	}
	f.clock.Advance(10 * time.Minute)

	expired, err := NewSweeper(f.svc, f.holds, f.clock, f.cfg).Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if expired != 0 {
		t.Errorf("expected the extended hold to survive, got %d expired", expired)
	}
}

func TestSweeper_StopsOnCancelledContext(t *testing.T) {
	f := newHoldFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	expired, err := NewSweeper(f.svc, f.holds, f.clock, f.cfg).Sweep(ctx)
	if expired != 0 || err == nil {
		t.Errorf("expected a cancelled sweep, got %d, %v", expired, err)
	}
}
