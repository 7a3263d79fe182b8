package service

import (
	"context"
	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/model"
	"testing"
	"time"
)

func TestPolicyService_CreateDefaultsToDraft(t *testing.T) {
	f := newHoldFixture(t)
	p := &model.CapacityHoldPolicy{
		TenantID:           tenant,
		Name:               "  Boat   seats ",
		Scope:              model.PolicyScope{Type: model.ScopeCapacityPool, ID: "pool-1"},
		AllowBlockingHolds: true,
	}
	if err := f.policies.Create(context.Background(), p); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if p.Status != model.PolicyDraft {
		t.Errorf("expected draft, got %s", p.Status)
	}
	if p.ScopeKey != "capacity_pool:pool-1" {
		t.Errorf("expected scope key capacity_pool:pool-1, got %s", p.ScopeKey)
	}

	// drafts never resolve
	resolved, err := f.policies.Resolve(context.Background(), tenant, []model.PolicyScope{p.Scope})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved.ID != model.DefaultPolicyID {
		t.Errorf("expected the default policy, got %s", resolved.ID)
	}
}

func TestPolicyService_CreateRejectsInvalid(t *testing.T) {
	f := newHoldFixture(t)
	err := f.policies.Create(context.Background(), &model.CapacityHoldPolicy{
		TenantID:           tenant,
		Scope:              model.PolicyScope{Type: model.ScopeBiz, ID: "biz-1"},
		MinHoldDurationMin: 30,
		MaxHoldDurationMin: 10,
	})
	if !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestPolicyService_ActivateRetiresPrevious(t *testing.T) {
	f := newHoldFixture(t)
	scope := model.PolicyScope{Type: model.ScopeBiz, ID: "biz-1"}
	first := f.policy(t, &model.CapacityHoldPolicy{Scope: scope, AllowBlockingHolds: true})

	second := &model.CapacityHoldPolicy{TenantID: tenant, Scope: scope, IsEnabled: true, AllowAdvisoryHolds: true}
	if err := f.policies.Create(context.Background(), second); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	f.clock.Advance(time.Minute)
	activated, err := f.policies.Activate(context.Background(), tenant, second.ID)
	if err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if activated.Status != model.PolicyActive {
		t.Fatalf("expected active, got %s", activated.Status)
	}

	previous, err := f.policies.GetByID(context.Background(), tenant, first.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if previous.Status != model.PolicyInactive {
		t.Errorf("expected the previous policy to be retired, got %s", previous.Status)
	}

	resolved, err := f.policies.Resolve(context.Background(), tenant, []model.PolicyScope{scope})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved.ID != second.ID {
		t.Errorf("expected %s to resolve, got %s", second.ID, resolved.ID)
	}

	// activating again is a no-op
	if _, err := f.policies.Activate(context.Background(), tenant, second.ID); err != nil {
		t.Errorf("repeated Activate() error = %v", err)
	}
}

func TestPolicyService_DeactivateFallsBackToDefault(t *testing.T) {
	f := newHoldFixture(t)
	scope := model.PolicyScope{Type: model.ScopeLocation, ID: "loc-1"}
	p := f.policy(t, &model.CapacityHoldPolicy{Scope: scope, AllowBlockingHolds: true, MaxActiveHoldsPerOwner: 1})

	if _, err := f.policies.Deactivate(context.Background(), tenant, p.ID); err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}
	resolved, err := f.policies.Resolve(context.Background(), tenant, []model.PolicyScope{scope})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved.ID != model.DefaultPolicyID || resolved.MaxActiveHoldsPerOwner != f.cfg.DefaultMaxActiveHoldsPerOwner {
		t.Errorf("expected the configured default, got %+v", resolved)
	}
}

func TestPolicyService_ArchivedIsFrozen(t *testing.T) {
	f := newHoldFixture(t)
	p := &model.CapacityHoldPolicy{
		TenantID: tenant,
		Scope:    model.PolicyScope{Type: model.ScopeBiz, ID: "biz-1"},
		Status:   model.PolicyArchived,
	}
	if err := f.policies.Create(context.Background(), p); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	_, err := f.policies.Activate(context.Background(), tenant, p.ID)
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
}

func TestPolicyService_GetMissing(t *testing.T) {
	f := newHoldFixture(t)
	if _, err := f.policies.GetByID(context.Background(), tenant, "nope"); !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
	if _, err := f.policies.GetByID(context.Background(), tenant, ""); !apperrors.IsCode(err, apperrors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

func TestPolicyService_ListIsTenantScoped(t *testing.T) {
	f := newHoldFixture(t)
	f.policy(t, &model.CapacityHoldPolicy{Scope: model.PolicyScope{Type: model.ScopeBiz, ID: "biz-1"}})
	f.policy(t, &model.CapacityHoldPolicy{Scope: model.PolicyScope{Type: model.ScopeBiz, ID: "biz-2"}})

	policies, total, err := f.policies.List(context.Background(), tenant, 0, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 2 || len(policies) != 2 {
		t.Errorf("expected 2 policies, got %d of %d", len(policies), total)
	}

	other, total, err := f.policies.List(context.Background(), "tenant-2", 10, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 0 || len(other) != 0 {
		t.Errorf("expected no policies for another tenant, got %d", total)
	}
}
