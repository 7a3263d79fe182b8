package model

import (
	"fmt"
	"strings"
	"time"
)

type DependencyTargetType string

const (
	DependencyOnCalendar      DependencyTargetType = "calendar"
	DependencyOnCustomSubject DependencyTargetType = "custom_subject"
)

type EvaluationMode string

const (
	EvaluateAll       EvaluationMode = "all"
	EvaluateAny       EvaluationMode = "any"
	EvaluateThreshold EvaluationMode = "threshold"
)

type EnforcementMode string

const (
	EnforceHardBlock EnforcementMode = "hard_block"
	EnforceSoftGate  EnforcementMode = "soft_gate"
	EnforceAdvisory  EnforcementMode = "advisory"
)

// DependencyTarget is one calendar or custom subject a dependent calendar waits on.
type DependencyTarget struct {
	Type   DependencyTargetType `json:"type" bson:"type"`
	ID     string               `json:"id" bson:"id"`
	Weight int                  `json:"weight,omitempty" bson:"weight,omitempty"`
}

func NewDependencyTarget(t DependencyTargetType, id string, weight int) (DependencyTarget, error) {
	switch t {
	case DependencyOnCalendar, DependencyOnCustomSubject:
	default:
		return DependencyTarget{}, fmt.Errorf("%w: unknown dependency target type %q", ErrInvalidRef, t)
	}
	if strings.TrimSpace(id) == "" {
		return DependencyTarget{}, fmt.Errorf("%w: dependency target id is empty", ErrInvalidRef)
	}
	if weight < 0 {
		return DependencyTarget{}, fmt.Errorf("%w: dependency target weight is negative", ErrInvalidRef)
	}
	return DependencyTarget{Type: t, ID: id, Weight: weight}, nil
}

func (t DependencyTarget) Key() string { return refKey(string(t.Type), t.ID) }

// EffectiveWeight treats an unset weight as 1.
func (t DependencyTarget) EffectiveWeight() int {
	if t.Weight <= 0 {
		return 1
	}
	return t.Weight
}

// DependencyRule gates a dependent calendar on the availability of its targets.
type DependencyRule struct {
	ID                  string             `json:"id" bson:"_id"`
	TenantID            string             `json:"tenant_id" bson:"tenant_id" validate:"required"`
	DependentCalendarID string             `json:"dependent_calendar_id" bson:"dependent_calendar_id" validate:"required"`
	Name                string             `json:"name,omitempty" bson:"name,omitempty" validate:"omitempty,max=120"`
	Targets             []DependencyTarget `json:"targets" bson:"targets" validate:"required,min=1,max=50"`
	EvaluationMode      EvaluationMode     `json:"evaluation_mode" bson:"evaluation_mode" validate:"required,oneof=all any threshold"`
	MinSatisfiedCount   *int               `json:"min_satisfied_count,omitempty" bson:"min_satisfied_count,omitempty" validate:"omitempty,gt=0"`
	MinSatisfiedPercent *float64           `json:"min_satisfied_percent,omitempty" bson:"min_satisfied_percent,omitempty" validate:"omitempty,gt=0,lte=100"`
	EnforcementMode     EnforcementMode    `json:"enforcement_mode" bson:"enforcement_mode" validate:"required,oneof=hard_block soft_gate advisory"`
	TimeOffsetBeforeMin int                `json:"time_offset_before_min" bson:"time_offset_before_min" validate:"gte=0"`
	TimeOffsetAfterMin  int                `json:"time_offset_after_min" bson:"time_offset_after_min" validate:"gte=0"`

	FailureAction        RuleAction         `json:"failure_action,omitempty" bson:"failure_action,omitempty" validate:"omitempty,oneof=available unavailable override_hours special_pricing capacity_adjustment"`
	FailureCapacityDelta *int               `json:"failure_capacity_delta,omitempty" bson:"failure_capacity_delta,omitempty"`
	FailurePricing       *PricingAdjustment `json:"failure_pricing,omitempty" bson:"failure_pricing,omitempty"`

	IsActive  bool      `json:"is_active" bson:"is_active"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// TargetResult is the availability of one dependency target for the offset window.
type TargetResult struct {
	Target    DependencyTarget `json:"target" bson:"target"`
	Available bool             `json:"available" bson:"available"`
	Error     string           `json:"error,omitempty" bson:"error,omitempty"`
}

// DependencyResult is the aggregated outcome of one dependency rule.
type DependencyResult struct {
	RuleID           string          `json:"rule_id" bson:"rule_id"`
	Satisfied        bool            `json:"satisfied" bson:"satisfied"`
	EvaluationMode   EvaluationMode  `json:"evaluation_mode" bson:"evaluation_mode"`
	EnforcementMode  EnforcementMode `json:"enforcement_mode" bson:"enforcement_mode"`
	FailureAction    RuleAction      `json:"failure_action,omitempty" bson:"failure_action,omitempty"`
	SatisfiedCount   int             `json:"satisfied_count" bson:"satisfied_count"`
	SatisfiedPercent float64         `json:"satisfied_percent" bson:"satisfied_percent"`
	Targets          []TargetResult  `json:"targets" bson:"targets"`
}
