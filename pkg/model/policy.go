package model

import (
	"fmt"
	"strings"
	"time"
)

type ScopeType string

const (
	ScopeCustomSubject  ScopeType = "custom_subject"
	ScopeOfferVersion   ScopeType = "offer_version"
	ScopeOffer          ScopeType = "offer"
	ScopeSellable       ScopeType = "sellable"
	ScopeProduct        ScopeType = "product"
	ScopeServiceProduct ScopeType = "service_product"
	ScopeService        ScopeType = "service"
	ScopeResource       ScopeType = "resource"
	ScopeCapacityPool   ScopeType = "capacity_pool"
	ScopeCalendar       ScopeType = "calendar"
	ScopeLocation       ScopeType = "location"
	ScopeBiz            ScopeType = "biz"
)

// ScopePrecedence is the fixed hold policy hierarchy, most specific first.
var ScopePrecedence = []ScopeType{
	ScopeCustomSubject,
	ScopeOfferVersion,
	ScopeOffer,
	ScopeSellable,
	ScopeProduct,
	ScopeServiceProduct,
	ScopeService,
	ScopeResource,
	ScopeCapacityPool,
	ScopeCalendar,
	ScopeLocation,
	ScopeBiz,
}

// ScopeRank returns the index of t in ScopePrecedence, or -1 when t is unknown.
func ScopeRank(t ScopeType) int {
	for i, s := range ScopePrecedence {
		if s == t {
			return i
		}
	}
	return -1
}

type PolicyScope struct {
	Type ScopeType `json:"type" bson:"type"`
	ID   string    `json:"id" bson:"id"`
}

func NewPolicyScope(t ScopeType, id string) (PolicyScope, error) {
	if ScopeRank(t) < 0 {
		return PolicyScope{}, fmt.Errorf("%w: unknown policy scope %q", ErrInvalidRef, t)
	}
	if strings.TrimSpace(id) == "" {
		return PolicyScope{}, fmt.Errorf("%w: policy scope id is empty", ErrInvalidRef)
	}
	return PolicyScope{Type: t, ID: id}, nil
}

func (s PolicyScope) Key() string { return refKey(string(s.Type), s.ID) }

const (
	PolicyDraft    = "draft"
	PolicyActive   = "active"
	PolicyInactive = "inactive"
	PolicyArchived = "archived"
)

// DefaultPolicyID names the configured fallback policy used when no stored policy resolves.
const DefaultPolicyID = "default"

// CapacityHoldPolicy governs how holds may be placed within one scope.
type CapacityHoldPolicy struct {
	ID            string      `json:"id" bson:"_id"`
	TenantID      string      `json:"tenant_id" bson:"tenant_id" validate:"required"`
	Name          string      `json:"name,omitempty" bson:"name,omitempty" validate:"omitempty,max=120"`
	Scope         PolicyScope `json:"scope" bson:"scope"`
	ScopeKey      string      `json:"scope_key" bson:"scope_key"`
	Status        string      `json:"status" bson:"status" validate:"required,oneof=draft active inactive archived"`
	IsEnabled     bool        `json:"is_enabled" bson:"is_enabled"`
	Priority      int         `json:"priority" bson:"priority" validate:"gte=0"`
	EffectiveFrom *time.Time  `json:"effective_from,omitempty" bson:"effective_from,omitempty"`
	EffectiveTo   *time.Time  `json:"effective_to,omitempty" bson:"effective_to,omitempty"`

	AllowBlockingHolds    bool `json:"allow_blocking_holds" bson:"allow_blocking_holds"`
	AllowNonBlockingHolds bool `json:"allow_non_blocking_holds" bson:"allow_non_blocking_holds"`
	AllowAdvisoryHolds    bool `json:"allow_advisory_holds" bson:"allow_advisory_holds"`

	MinHoldDurationMin     int `json:"min_hold_duration_min" bson:"min_hold_duration_min" validate:"gte=0"`
	MaxHoldDurationMin     int `json:"max_hold_duration_min" bson:"max_hold_duration_min" validate:"gte=0"`
	DefaultHoldDurationMin int `json:"default_hold_duration_min" bson:"default_hold_duration_min" validate:"gte=0"`

	// zero means uncapped
	MaxActiveHoldsPerOwner            int `json:"max_active_holds_per_owner" bson:"max_active_holds_per_owner" validate:"gte=0"`
	MaxActiveBlockingHoldsPerOwner    int `json:"max_active_blocking_holds_per_owner" bson:"max_active_blocking_holds_per_owner" validate:"gte=0"`
	MaxActiveNonBlockingHoldsPerOwner int `json:"max_active_non_blocking_holds_per_owner" bson:"max_active_non_blocking_holds_per_owner" validate:"gte=0"`

	RequirePaymentIntentForBlockingHold bool  `json:"require_payment_intent_for_blocking_hold" bson:"require_payment_intent_for_blocking_hold"`
	MinPreauthAmountMinor               int64 `json:"min_preauth_amount_minor" bson:"min_preauth_amount_minor" validate:"gte=0"`

	ActFastThresholdCount        int `json:"act_fast_threshold_count" bson:"act_fast_threshold_count" validate:"gte=0"`
	ActFastThresholdUniqueOwners int `json:"act_fast_threshold_unique_owners" bson:"act_fast_threshold_unique_owners" validate:"gte=0"`
	AlertWindowMin               int `json:"alert_window_min" bson:"alert_window_min" validate:"gte=0"`
	AlertGraceMin                int `json:"alert_grace_min" bson:"alert_grace_min" validate:"gte=0"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// InEffect reports whether the policy is active, enabled and effective at now.
func (p *CapacityHoldPolicy) InEffect(now time.Time) bool {
	if p.Status != PolicyActive || !p.IsEnabled {
		return false
	}
	if p.EffectiveFrom != nil && now.Before(*p.EffectiveFrom) {
		return false
	}
	if p.EffectiveTo != nil && !now.Before(*p.EffectiveTo) {
		return false
	}
	return true
}

// Allows reports whether the policy permits holds of the given effect mode.
func (p *CapacityHoldPolicy) Allows(mode EffectMode) bool {
	switch mode {
	case EffectBlocking:
		return p.AllowBlockingHolds
	case EffectNonBlocking:
		return p.AllowNonBlockingHolds
	case EffectAdvisory:
		return p.AllowAdvisoryHolds
	default:
		return false
	}
}
