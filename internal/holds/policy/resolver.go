// Package policy resolves the capacity hold policy that governs a booking context.
//
// Resolution is a pure function of its inputs so that a stored set of policies,
// scopes and a timestamp always replays to the same decision.
package policy

import (
	"slotkeeper/pkg/config"
	"slotkeeper/pkg/model"
	"time"
)

// Resolve returns the effective policy for scopes at now, or nil when no candidate applies.
//
// Candidates outside the scope set or not in effect at now are ignored. The survivors are
// ranked by ScopePrecedence, then lowest priority, then newest UpdatedAt, then smallest id.
func Resolve(candidates []*model.CapacityHoldPolicy, scopes []model.PolicyScope, now time.Time) *model.CapacityHoldPolicy {
	keys := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		keys[s.Key()] = struct{}{}
	}

	var best *model.CapacityHoldPolicy
	for _, p := range candidates {
		if p == nil {
			continue
		}
		if _, ok := keys[p.Scope.Key()]; !ok {
			continue
		}
		if model.ScopeRank(p.Scope.Type) < 0 || !p.InEffect(now) {
			continue
		}
		if best == nil || outranks(p, best) {
			best = p
		}
	}
	return best
}

func outranks(a, b *model.CapacityHoldPolicy) bool {
	ra, rb := model.ScopeRank(a.Scope.Type), model.ScopeRank(b.Scope.Type)
	if ra != rb {
		return ra < rb
	}
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID < b.ID
}

// ScopeKeys returns the canonical keys of scopes without duplicates, in input order.
func ScopeKeys(scopes []model.PolicyScope) []string {
	seen := make(map[string]struct{}, len(scopes))
	keys := make([]string, 0, len(scopes))
	for _, s := range scopes {
		k := s.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

// Default is the configured fallback used when no stored policy resolves.
func Default(cfg *config.Config, tenantID string) *model.CapacityHoldPolicy {
	return &model.CapacityHoldPolicy{
		ID:        model.DefaultPolicyID,
		TenantID:  tenantID,
		Name:      "Built-in default",
		Status:    model.PolicyActive,
		IsEnabled: true,

		AllowBlockingHolds:    true,
		AllowNonBlockingHolds: true,
		AllowAdvisoryHolds:    true,

		MinHoldDurationMin:     cfg.DefaultMinHoldDurationMin,
		MaxHoldDurationMin:     cfg.DefaultMaxHoldDurationMin,
		DefaultHoldDurationMin: cfg.DefaultHoldDurationMin,
		MaxActiveHoldsPerOwner: cfg.DefaultMaxActiveHoldsPerOwner,

		ActFastThresholdCount:        cfg.DefaultActFastCount,
		ActFastThresholdUniqueOwners: cfg.DefaultActFastUniqueOwners,
		AlertWindowMin:               cfg.AlertWindowMin,
		AlertGraceMin:                cfg.AlertGraceMin,
	}
}
