package model

import (
	"errors"
	"testing"
	"time"
)

func TestScopePrecedence_Order(t *testing.T) {
	expected := []ScopeType{
		"custom_subject", "offer_version", "offer", "sellable", "product", "service_product",
		"service", "resource", "capacity_pool", "calendar", "location", "biz",
	}
	if len(ScopePrecedence) != len(expected) {
		t.Fatalf("expected %d scope levels, got %d", len(expected), len(ScopePrecedence))
	}
	for i, s := range expected {
		if ScopePrecedence[i] != s {
			t.Errorf("position %d: expected %s, got %s", i, s, ScopePrecedence[i])
		}
		if ScopeRank(s) != i {
			t.Errorf("ScopeRank(%s) = %d, want %d", s, ScopeRank(s), i)
		}
	}
	if ScopeRank("tenant") != -1 {
		t.Errorf("unknown scope should rank -1")
	}
}

func TestSpecificityOrder(t *testing.T) {
	if !(SpecificityRank(ModeTimestampRange) < SpecificityRank(ModeDateRange) &&
		SpecificityRank(ModeDateRange) < SpecificityRank(ModeRecurring)) {
		t.Errorf("expected timestamp_range > date_range > recurring, got %v", SpecificityOrder)
	}
	if SpecificityRank("weird") != len(SpecificityOrder) {
		t.Errorf("unknown mode should sort last")
	}
}

func TestTaggedUnionConstructors(t *testing.T) {
	tests := []struct {
		name    string
		build   func() (string, error)
		wantKey string
		wantErr bool
	}{
		{
			name: "owner ref",
			build: func() (string, error) {
				r, err := NewOwnerRef(OwnerResource, "r1")
				return r.Key(), err
			},
			wantKey: "resource:r1",
		},
		{
			name: "owner ref unknown type",
			build: func() (string, error) {
				r, err := NewOwnerRef("tenant", "r1")
				return r.Key(), err
			},
			wantErr: true,
		},
		{
			name: "owner ref empty id",
			build: func() (string, error) {
				r, err := NewOwnerRef(OwnerBiz, "  ")
				return r.Key(), err
			},
			wantErr: true,
		},
		{
			name: "hold target",
			build: func() (string, error) {
				h, err := NewHoldTarget(TargetCapacityPool, "p1")
				return h.Key(), err
			},
			wantKey: "capacity_pool:p1",
		},
		{
			name: "hold target unknown type",
			build: func() (string, error) {
				h, err := NewHoldTarget("location", "l1")
				return h.Key(), err
			},
			wantErr: true,
		},
		{
			name: "hold owner",
			build: func() (string, error) {
				o, err := NewHoldOwner(HoldOwnerGuestFingerprint, "fp")
				return o.Key(), err
			},
			wantKey: "guest_fingerprint:fp",
		},
		{
			name: "policy scope",
			build: func() (string, error) {
				s, err := NewPolicyScope(ScopeOfferVersion, "ov1")
				return s.Key(), err
			},
			wantKey: "offer_version:ov1",
		},
		{
			name: "dependency target negative weight",
			build: func() (string, error) {
				d, err := NewDependencyTarget(DependencyOnCalendar, "c1", -1)
				return d.Key(), err
			},
			wantErr: true,
		},
		{
			name: "pool member",
			build: func() (string, error) {
				m, err := NewPoolMemberRef(MemberLocation, "loc")
				return m.Key(), err
			},
			wantKey: "location:loc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := tt.build()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRef) {
					t.Fatalf("expected ErrInvalidRef, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if key != tt.wantKey {
				t.Errorf("Key() = %q, want %q", key, tt.wantKey)
			}
		})
	}
}

func TestAnonymousHoldOwnerKey(t *testing.T) {
	var owner *HoldOwner
	if owner.Key() != "" {
		t.Errorf("anonymous owner should have empty key")
	}
}

func TestHoldStateMachine(t *testing.T) {
	statuses := []HoldStatus{HoldActive, HoldReleased, HoldConsumed, HoldCancelled, HoldExpired}
	actions := []HoldAction{HoldActionRelease, HoldActionCancel, HoldActionConsume, HoldActionExpire}
	expected := map[HoldAction]HoldStatus{
		HoldActionRelease: HoldReleased,
		HoldActionCancel:  HoldCancelled,
		HoldActionConsume: HoldConsumed,
		HoldActionExpire:  HoldExpired,
	}

	for _, from := range statuses {
		for _, action := range actions {
			next, ok := NextStatus(from, action)
			if from != HoldActive {
				if ok {
					t.Errorf("%s -%s-> %s must not be reachable from a terminal state", from, action, next)
				}
				continue
			}
			if !ok || next != expected[action] {
				t.Errorf("active -%s-> got (%s, %v), want %s", action, next, ok, expected[action])
			}
			if !next.IsTerminal() {
				t.Errorf("%s should be terminal", next)
			}
		}
	}
	if HoldActive.IsTerminal() {
		t.Errorf("active must not be terminal")
	}
}

func TestCapacityHold_StampTerminal(t *testing.T) {
	at := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	for _, status := range []HoldStatus{HoldReleased, HoldConsumed, HoldCancelled, HoldExpired} {
		h := &CapacityHold{}
		h.StampTerminal(status, at)
		var got *time.Time
		switch status {
		case HoldReleased:
			got = h.ReleasedAt
		case HoldConsumed:
			got = h.ConsumedAt
		case HoldCancelled:
			got = h.CancelledAt
		case HoldExpired:
			got = h.ExpiredAt
		}
		if got == nil || !got.Equal(at) {
			t.Errorf("%s: terminal timestamp not set", status)
		}
		if TerminalField(status) == "" {
			t.Errorf("%s: missing terminal field", status)
		}
	}
}

func TestPolicy_InEffect(t *testing.T) {
	now := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name   string
		policy CapacityHoldPolicy
		want   bool
	}{
		{"active enabled", CapacityHoldPolicy{Status: PolicyActive, IsEnabled: true}, true},
		{"disabled", CapacityHoldPolicy{Status: PolicyActive}, false},
		{"draft", CapacityHoldPolicy{Status: PolicyDraft, IsEnabled: true}, false},
		{"not yet effective", CapacityHoldPolicy{Status: PolicyActive, IsEnabled: true, EffectiveFrom: &future}, false},
		{"ended", CapacityHoldPolicy{Status: PolicyActive, IsEnabled: true, EffectiveTo: &past}, false},
		{"inside window", CapacityHoldPolicy{Status: PolicyActive, IsEnabled: true, EffectiveFrom: &past, EffectiveTo: &future}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.InEffect(now); got != tt.want {
				t.Errorf("InEffect() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWindow(t *testing.T) {
	base := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	w := Window{Start: base, End: base.Add(time.Hour)}
	if !w.Valid() {
		t.Fatal("expected valid window")
	}
	if (Window{Start: base, End: base}).Valid() {
		t.Error("empty window must be invalid")
	}
	adjacent := Window{Start: base.Add(time.Hour), End: base.Add(2 * time.Hour)}
	if w.Overlaps(adjacent) {
		t.Error("half-open windows that touch must not overlap")
	}
	expanded := w.Expand(15*time.Minute, 10*time.Minute)
	if !expanded.Start.Equal(base.Add(-15*time.Minute)) || !expanded.End.Equal(base.Add(70*time.Minute)) {
		t.Errorf("unexpected expanded window %v", expanded)
	}
}

func TestPoolMemberUnits(t *testing.T) {
	m := &CapacityPoolMember{}
	if m.Units(3) != 3 {
		t.Errorf("unset weight should default to 1")
	}
	m.CapacityWeight = 2
	if m.Units(3) != 6 {
		t.Errorf("expected weighted units 6, got %d", m.Units(3))
	}
}
