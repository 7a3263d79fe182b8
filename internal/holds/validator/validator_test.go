package validator

import (
	"errors"
	"io"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"strings"
	"testing"
	"time"
)

func newTestValidator() *HoldValidator {
	return NewHoldValidator(logger.New(logger.Config{Level: logger.ERROR, Output: io.Discard}))
}

func validRequest() *model.CreateHoldRequest {
	start := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	return &model.CreateHoldRequest{
		TenantID:   "tenant-1",
		Target:     model.HoldTarget{Type: model.TargetCapacityPool, ID: "pool-1"},
		Owner:      &model.HoldOwner{Type: model.HoldOwnerUser, ID: "u-1"},
		EffectMode: model.EffectBlocking,
		Quantity:   1,
		StartsAt:   start,
		EndsAt:     start.Add(time.Hour),
		Actor:      model.Actor{Type: model.ActorUser, ID: "u-1"},
	}
}

func validPolicy() *model.CapacityHoldPolicy {
	return &model.CapacityHoldPolicy{
		TenantID:               "tenant-1",
		Scope:                  model.PolicyScope{Type: model.ScopeBiz, ID: "biz-1"},
		Status:                 model.PolicyDraft,
		MinHoldDurationMin:     5,
		MaxHoldDurationMin:     30,
		DefaultHoldDurationMin: 10,
	}
}

func fieldsOf(err error) []string {
	var errs ValidationErrors
	if !errors.As(err, &errs) {
		return nil
	}
	fields := make([]string, len(errs))
	for i, e := range errs {
		fields[i] = e.Field
	}
	return fields
}

func TestValidateRequest(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name      string
		mutate    func(r *model.CreateHoldRequest)
		wantField string
	}{
		{name: "valid", mutate: func(r *model.CreateHoldRequest) {}},
		{name: "anonymous owner", mutate: func(r *model.CreateHoldRequest) { r.Owner = nil }},
		{
			name:      "unknown target type",
			mutate:    func(r *model.CreateHoldRequest) { r.Target.Type = "planet" },
			wantField: "target",
		},
		{
			name:      "empty owner id",
			mutate:    func(r *model.CreateHoldRequest) { r.Owner.ID = " " },
			wantField: "owner",
		},
		{
			name:      "inverted window",
			mutate:    func(r *model.CreateHoldRequest) { r.EndsAt = r.StartsAt },
			wantField: "ends_at",
		},
		{
			name:      "zero quantity",
			mutate:    func(r *model.CreateHoldRequest) { r.Quantity = 0 },
			wantField: "Quantity",
		},
		{
			name:      "unknown effect mode",
			mutate:    func(r *model.CreateHoldRequest) { r.EffectMode = "maybe" },
			wantField: "EffectMode",
		},
		{
			name: "bad policy scope",
			mutate: func(r *model.CreateHoldRequest) {
				r.PolicyScopes = []model.PolicyScope{{Type: model.ScopeBiz, ID: "b"}, {Type: "shelf", ID: "s"}}
			},
			wantField: "policy_scopes[1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)
			err := v.ValidateRequest(req)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected an error on %s", tt.wantField)
			}
			if fields := fieldsOf(err); !strings.Contains(strings.Join(fields, ","), tt.wantField) {
				t.Errorf("expected field %s, got %v", tt.wantField, fields)
			}
		})
	}
}

func TestValidatePolicy(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name      string
		mutate    func(p *model.CapacityHoldPolicy)
		wantField string
	}{
		{name: "valid", mutate: func(p *model.CapacityHoldPolicy) {}},
		{name: "uncapped max", mutate: func(p *model.CapacityHoldPolicy) { p.MaxHoldDurationMin = 0 }},
		{
			name:      "max below min",
			mutate:    func(p *model.CapacityHoldPolicy) { p.MaxHoldDurationMin = 4; p.DefaultHoldDurationMin = 0 },
			wantField: "max_hold_duration_min",
		},
		{
			name:      "default outside bounds",
			mutate:    func(p *model.CapacityHoldPolicy) { p.DefaultHoldDurationMin = 45 },
			wantField: "default_hold_duration_min",
		},
		{
			name:      "unknown scope",
			mutate:    func(p *model.CapacityHoldPolicy) { p.Scope.Type = "shelf" },
			wantField: "scope",
		},
		{
			name:      "preauth without payment intent",
			mutate:    func(p *model.CapacityHoldPolicy) { p.MinPreauthAmountMinor = 500 },
			wantField: "min_preauth_amount_minor",
		},
		{
			name:      "unknown status",
			mutate:    func(p *model.CapacityHoldPolicy) { p.Status = "paused" },
			wantField: "Status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPolicy()
			tt.mutate(p)
			err := v.ValidatePolicy(p)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if fields := fieldsOf(err); !strings.Contains(strings.Join(fields, ","), tt.wantField) {
				t.Errorf("expected field %s, got %v (%v)", tt.wantField, fields, err)
			}
		})
	}
}
