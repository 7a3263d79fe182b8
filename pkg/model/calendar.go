package model

import "time"

type DefaultMode string

const (
	AvailableByDefault   DefaultMode = "available_by_default"
	UnavailableByDefault DefaultMode = "unavailable_by_default"
)

type RuleEvaluationOrder string

const (
	SpecificityThenPriority RuleEvaluationOrder = "specificity_then_priority"
	PriorityThenSpecificity RuleEvaluationOrder = "priority_then_specificity"
)

type ConflictResolutionMode string

const (
	UnavailableWins ConflictResolutionMode = "unavailable_wins"
	AvailableWins   ConflictResolutionMode = "available_wins"
	PriorityWins    ConflictResolutionMode = "priority_wins"
)

const (
	CalendarActive   = "active"
	CalendarInactive = "inactive"
	CalendarArchived = "archived"
)

// Calendar is the tenant-scoped time behaviour configuration of a bookable owner.
type Calendar struct {
	ID                      string                 `json:"id" bson:"_id" validate:"required"`
	TenantID                string                 `json:"tenant_id" bson:"tenant_id" validate:"required"`
	Name                    string                 `json:"name" bson:"name" validate:"required,min=2,max=120"`
	Timezone                string                 `json:"timezone" bson:"timezone" validate:"omitempty,timezone"`
	SlotDurationMin         int                    `json:"slot_duration_min" bson:"slot_duration_min" validate:"required,gt=0,max=1440"`
	SlotIntervalMin         int                    `json:"slot_interval_min" bson:"slot_interval_min" validate:"required,gt=0,max=1440"`
	PreBufferMin            int                    `json:"pre_buffer_min" bson:"pre_buffer_min" validate:"gte=0,max=1440"`
	PostBufferMin           int                    `json:"post_buffer_min" bson:"post_buffer_min" validate:"gte=0,max=1440"`
	MinAdvanceBookingHours  int                    `json:"min_advance_booking_hours" bson:"min_advance_booking_hours" validate:"gte=0"`
	MaxAdvanceBookingDays   int                    `json:"max_advance_booking_days" bson:"max_advance_booking_days" validate:"gte=0"`
	DefaultMode             DefaultMode            `json:"default_mode" bson:"default_mode" validate:"required,oneof=available_by_default unavailable_by_default"`
	RuleEvaluationOrder     RuleEvaluationOrder    `json:"rule_evaluation_order" bson:"rule_evaluation_order" validate:"required,oneof=specificity_then_priority priority_then_specificity"`
	ConflictResolutionMode  ConflictResolutionMode `json:"conflict_resolution_mode" bson:"conflict_resolution_mode" validate:"required,oneof=unavailable_wins available_wins priority_wins"`
	EnforceStrictNonOverlap bool                   `json:"enforce_strict_non_overlap" bson:"enforce_strict_non_overlap"`
	Status                  string                 `json:"status" bson:"status" validate:"required,oneof=active inactive archived"`
	Version                 int                    `json:"version" bson:"version"`
	CreatedAt               time.Time              `json:"created_at" bson:"created_at"`
	UpdatedAt               time.Time              `json:"updated_at" bson:"updated_at"`
	DeletedAt               *time.Time             `json:"deleted_at,omitempty" bson:"deleted_at,omitempty"`
}

// Location returns the calendar's timezone, falling back to UTC.
func (c *Calendar) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type CalendarUpdate struct {
	Name                    *string                 `json:"name,omitempty" validate:"omitempty,min=2,max=120"`
	Timezone                *string                 `json:"timezone,omitempty" validate:"omitempty,timezone"`
	SlotDurationMin         *int                    `json:"slot_duration_min,omitempty" validate:"omitempty,gt=0,max=1440"`
	SlotIntervalMin         *int                    `json:"slot_interval_min,omitempty" validate:"omitempty,gt=0,max=1440"`
	PreBufferMin            *int                    `json:"pre_buffer_min,omitempty" validate:"omitempty,gte=0,max=1440"`
	PostBufferMin           *int                    `json:"post_buffer_min,omitempty" validate:"omitempty,gte=0,max=1440"`
	MinAdvanceBookingHours  *int                    `json:"min_advance_booking_hours,omitempty" validate:"omitempty,gte=0"`
	MaxAdvanceBookingDays   *int                    `json:"max_advance_booking_days,omitempty" validate:"omitempty,gte=0"`
	DefaultMode             *DefaultMode            `json:"default_mode,omitempty"`
	RuleEvaluationOrder     *RuleEvaluationOrder    `json:"rule_evaluation_order,omitempty"`
	ConflictResolutionMode  *ConflictResolutionMode `json:"conflict_resolution_mode,omitempty"`
	EnforceStrictNonOverlap *bool                   `json:"enforce_strict_non_overlap,omitempty"`
	Status                  *string                 `json:"status,omitempty"`
}

// CalendarBinding maps one owner onto a calendar.
type CalendarBinding struct {
	ID          string    `json:"id" bson:"_id"`
	TenantID    string    `json:"tenant_id" bson:"tenant_id" validate:"required"`
	CalendarID  string    `json:"calendar_id" bson:"calendar_id" validate:"required"`
	Owner       OwnerRef  `json:"owner" bson:"owner"`
	OwnerRefKey string    `json:"owner_ref_key" bson:"owner_ref_key"`
	IsPrimary   bool      `json:"is_primary" bson:"is_primary"`
	IsActive    bool      `json:"is_active" bson:"is_active"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
}

type OverlayKind string

const (
	OverlayBase             OverlayKind = "base"
	OverlayHolidayBlackout  OverlayKind = "holiday_blackout"
	OverlayEmergencyClosure OverlayKind = "emergency_closure"
	OverlaySeasonal         OverlayKind = "seasonal"
	OverlayCustom           OverlayKind = "custom"
)

// Overlay is a named, prioritized layer of rules on a calendar.
type Overlay struct {
	ID            string      `json:"id" bson:"_id"`
	TenantID      string      `json:"tenant_id" bson:"tenant_id" validate:"required"`
	CalendarID    string      `json:"calendar_id" bson:"calendar_id" validate:"required"`
	Name          string      `json:"name" bson:"name" validate:"required,min=2,max=120"`
	Kind          OverlayKind `json:"kind" bson:"kind" validate:"required,oneof=base holiday_blackout emergency_closure seasonal custom"`
	Priority      int         `json:"priority" bson:"priority" validate:"gte=0"`
	EffectiveFrom *time.Time  `json:"effective_from,omitempty" bson:"effective_from,omitempty"`
	EffectiveTo   *time.Time  `json:"effective_to,omitempty" bson:"effective_to,omitempty"`
	IsActive      bool        `json:"is_active" bson:"is_active"`
	CreatedAt     time.Time   `json:"created_at" bson:"created_at"`
}

// CalendarRevision is an immutable snapshot of a calendar's configuration.
type CalendarRevision struct {
	ID         string    `json:"id" bson:"_id"`
	TenantID   string    `json:"tenant_id" bson:"tenant_id"`
	CalendarID string    `json:"calendar_id" bson:"calendar_id"`
	Revision   int       `json:"revision" bson:"revision"`
	Snapshot   Calendar  `json:"snapshot" bson:"snapshot"`
	ChangedBy  string    `json:"changed_by,omitempty" bson:"changed_by,omitempty"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
}
