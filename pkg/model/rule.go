package model

import "time"

type RuleMode string

const (
	ModeRecurring      RuleMode = "recurring"
	ModeDateRange      RuleMode = "date_range"
	ModeTimestampRange RuleMode = "timestamp_range"
)

// SpecificityOrder lists rule modes from narrowest to coarsest time-window
// specificity. Evaluation ranks rules by their index in this slice.
var SpecificityOrder = []RuleMode{ModeTimestampRange, ModeDateRange, ModeRecurring}

// SpecificityRank returns 0 for the most specific mode. Unknown modes sort last.
func SpecificityRank(m RuleMode) int {
	for i, mode := range SpecificityOrder {
		if mode == m {
			return i
		}
	}
	return len(SpecificityOrder)
}

type RuleAction string

const (
	ActionAvailable          RuleAction = "available"
	ActionUnavailable        RuleAction = "unavailable"
	ActionOverrideHours      RuleAction = "override_hours"
	ActionSpecialPricing     RuleAction = "special_pricing"
	ActionCapacityAdjustment RuleAction = "capacity_adjustment"
)

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

type PricingKind string

const (
	PricingPercent     PricingKind = "percent"
	PricingAmountMinor PricingKind = "amount_minor"
)

// PricingAdjustment is an opaque delta; the engine only sums it per kind.
type PricingAdjustment struct {
	Kind  PricingKind `json:"kind" bson:"kind" validate:"required,oneof=percent amount_minor"`
	Value int64       `json:"value" bson:"value"`
}

// AvailabilityRule is one pattern-match row on a calendar.
type AvailabilityRule struct {
	ID         string `json:"id" bson:"_id"`
	TenantID   string `json:"tenant_id" bson:"tenant_id" validate:"required"`
	CalendarID string `json:"calendar_id" bson:"calendar_id" validate:"required"`
	OverlayID  string `json:"overlay_id,omitempty" bson:"overlay_id,omitempty"`
	TemplateID string `json:"template_id,omitempty" bson:"template_id,omitempty"`
	Name       string `json:"name,omitempty" bson:"name,omitempty" validate:"omitempty,max=120"`

	Mode RuleMode `json:"mode" bson:"mode" validate:"required,oneof=recurring date_range timestamp_range"`

	// recurring
	Frequency       Frequency  `json:"frequency,omitempty" bson:"frequency,omitempty"`
	Interval        int        `json:"interval,omitempty" bson:"interval,omitempty" validate:"gte=0"`
	ByWeekday       []int      `json:"by_weekday,omitempty" bson:"by_weekday,omitempty" validate:"omitempty,max=7,dive,min=0,max=6"`
	ByMonthDay      []int      `json:"by_month_day,omitempty" bson:"by_month_day,omitempty" validate:"omitempty,max=31,dive,min=1,max=31"`
	RecurrenceStart *time.Time `json:"recurrence_start,omitempty" bson:"recurrence_start,omitempty"`
	RecurrenceUntil *time.Time `json:"recurrence_until,omitempty" bson:"recurrence_until,omitempty"`

	// recurring and date_range daily hours, "HH:MM" in the calendar timezone
	StartTime string `json:"start_time,omitempty" bson:"start_time,omitempty" validate:"omitempty,clock_time"`
	EndTime   string `json:"end_time,omitempty" bson:"end_time,omitempty" validate:"omitempty,clock_time"`

	// date_range, inclusive "2006-01-02"
	StartDate string `json:"start_date,omitempty" bson:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `json:"end_date,omitempty" bson:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`

	// timestamp_range
	StartAt *time.Time `json:"start_at,omitempty" bson:"start_at,omitempty"`
	EndAt   *time.Time `json:"end_at,omitempty" bson:"end_at,omitempty"`

	Action            RuleAction         `json:"action" bson:"action" validate:"required,oneof=available unavailable override_hours special_pricing capacity_adjustment"`
	CapacityDelta     *int               `json:"capacity_delta,omitempty" bson:"capacity_delta,omitempty"`
	PricingAdjustment *PricingAdjustment `json:"pricing_adjustment,omitempty" bson:"pricing_adjustment,omitempty"`

	Priority  int       `json:"priority" bson:"priority"`
	IsActive  bool      `json:"is_active" bson:"is_active"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// RuleExclusion suppresses one rule on one calendar date.
type RuleExclusion struct {
	ID         string    `json:"id" bson:"_id"`
	TenantID   string    `json:"tenant_id" bson:"tenant_id" validate:"required"`
	CalendarID string    `json:"calendar_id" bson:"calendar_id" validate:"required"`
	RuleID     string    `json:"rule_id" bson:"rule_id" validate:"required"`
	Date       string    `json:"date" bson:"date" validate:"required,datetime=2006-01-02"`
	Reason     string    `json:"reason,omitempty" bson:"reason,omitempty" validate:"omitempty,max=200"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
}

type MergeMode string

const (
	MergeAppend              MergeMode = "append"
	MergeReplace             MergeMode = "replace"
	MergeOverrideConflicting MergeMode = "override_conflicting"
)

// RuleTemplate is a reusable set of rules that calendars can bind to.
type RuleTemplate struct {
	ID        string             `json:"id" bson:"_id"`
	TenantID  string             `json:"tenant_id" bson:"tenant_id" validate:"required"`
	Name      string             `json:"name" bson:"name" validate:"required,min=2,max=120"`
	Rules     []AvailabilityRule `json:"rules" bson:"rules" validate:"required,min=1"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}

type TemplateBinding struct {
	ID             string    `json:"id" bson:"_id"`
	TenantID       string    `json:"tenant_id" bson:"tenant_id" validate:"required"`
	CalendarID     string    `json:"calendar_id" bson:"calendar_id" validate:"required"`
	TemplateID     string    `json:"template_id" bson:"template_id" validate:"required"`
	MergeMode      MergeMode `json:"merge_mode" bson:"merge_mode" validate:"required,oneof=append replace override_conflicting"`
	Priority       int       `json:"priority" bson:"priority" validate:"gte=0"`
	ExclusionDates []string  `json:"exclusion_dates,omitempty" bson:"exclusion_dates,omitempty" validate:"omitempty,dive,datetime=2006-01-02"`
	IsActive       bool      `json:"is_active" bson:"is_active"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
}
