package model

import "time"

type AvailabilityState string

const (
	StateAvailable        AvailabilityState = "available"
	StateUnavailable      AvailabilityState = "unavailable"
	StateCapacityAdjusted AvailabilityState = "capacity_adjusted"
	StatePriceAdjusted    AvailabilityState = "price_adjusted"
)

// Window is a half-open interval [Start, End).
type Window struct {
	Start time.Time `json:"start" bson:"start"`
	End   time.Time `json:"end" bson:"end"`
}

func (w Window) Valid() bool { return w.End.After(w.Start) }

func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Expand widens the window by before and after.
func (w Window) Expand(before, after time.Duration) Window {
	return Window{Start: w.Start.Add(-before), End: w.End.Add(after)}
}

func (w Window) Duration() time.Duration { return w.End.Sub(w.Start) }

// EvaluationContext carries per-request evaluation inputs.
type EvaluationContext struct {
	Now                  *time.Time `json:"now,omitempty" bson:"now,omitempty"`
	RequireSlotAlignment bool       `json:"require_slot_alignment,omitempty" bson:"require_slot_alignment,omitempty"`
	SkipDependencies     bool       `json:"skip_dependencies,omitempty" bson:"skip_dependencies,omitempty"`
	IgnoreHorizon        bool       `json:"ignore_horizon,omitempty" bson:"ignore_horizon,omitempty"`
	RequestedBy          string     `json:"requested_by,omitempty" bson:"requested_by,omitempty"`
	CorrelationID        string     `json:"correlation_id,omitempty" bson:"correlation_id,omitempty"`
}

type TraceKind string

const (
	TraceRule       TraceKind = "rule"
	TraceExclusion  TraceKind = "exclusion"
	TraceConflict   TraceKind = "conflict"
	TraceDefault    TraceKind = "default"
	TraceDependency TraceKind = "dependency"
	TraceHorizon    TraceKind = "horizon"
	TraceOverride   TraceKind = "override"
)

// TraceEntry is one ordered step of a decision trace.
type TraceEntry struct {
	Seq       int        `json:"seq" bson:"seq"`
	Kind      TraceKind  `json:"kind" bson:"kind"`
	RuleID    string     `json:"rule_id,omitempty" bson:"rule_id,omitempty"`
	Action    RuleAction `json:"action,omitempty" bson:"action,omitempty"`
	Effect    string     `json:"effect" bson:"effect"`
	Start     *time.Time `json:"start,omitempty" bson:"start,omitempty"`
	End       *time.Time `json:"end,omitempty" bson:"end,omitempty"`
	Detail    string     `json:"detail,omitempty" bson:"detail,omitempty"`
	Satisfied *bool      `json:"satisfied,omitempty" bson:"satisfied,omitempty"`
}

// SubInterval is a maximal piece of the evaluated window with one resolved state.
type SubInterval struct {
	Start         time.Time           `json:"start" bson:"start"`
	End           time.Time           `json:"end" bson:"end"`
	State         AvailabilityState   `json:"state" bson:"state"`
	CapacityDelta int                 `json:"capacity_delta,omitempty" bson:"capacity_delta,omitempty"`
	Pricing       []PricingAdjustment `json:"pricing,omitempty" bson:"pricing,omitempty"`
	RuleIDs       []string            `json:"rule_ids,omitempty" bson:"rule_ids,omitempty"`
}

// Verdict is the outcome of evaluating one calendar over one window.
type Verdict struct {
	CalendarID string            `json:"calendar_id" bson:"calendar_id"`
	Window     Window            `json:"window" bson:"window"`
	Status     AvailabilityState `json:"status" bson:"status"`
	Available  bool              `json:"available" bson:"available"`
	// StrictNonOverlap carries the calendar's enforce_strict_non_overlap flag.
	StrictNonOverlap bool                `json:"strict_non_overlap" bson:"strict_non_overlap"`
	Intervals        []SubInterval       `json:"intervals" bson:"intervals"`
	CapacityDelta    int                 `json:"capacity_delta" bson:"capacity_delta"`
	Pricing          []PricingAdjustment `json:"pricing,omitempty" bson:"pricing,omitempty"`
	Dependencies     []DependencyResult  `json:"dependencies,omitempty" bson:"dependencies,omitempty"`
	Trace            []TraceEntry        `json:"trace" bson:"trace"`
}

type RunStatus string

const (
	RunComplete RunStatus = "complete"
	RunPartial  RunStatus = "partial"
)

// AvailabilityResolutionRun is the write-once audit row of a top-level evaluation.
type AvailabilityResolutionRun struct {
	ID         string       `json:"id" bson:"_id"`
	TenantID   string       `json:"tenant_id" bson:"tenant_id"`
	CalendarID string       `json:"calendar_id" bson:"calendar_id"`
	Request    RunRequest   `json:"request" bson:"request"`
	Trace      []TraceEntry `json:"trace" bson:"trace"`
	Output     *Verdict     `json:"output,omitempty" bson:"output,omitempty"`
	Status     RunStatus    `json:"status" bson:"status"`
	Error      string       `json:"error,omitempty" bson:"error,omitempty"`
	RuntimeMs  int64        `json:"runtime_ms" bson:"runtime_ms"`
	CreatedAt  time.Time    `json:"created_at" bson:"created_at"`
}

type RunRequest struct {
	CalendarID string            `json:"calendar_id" bson:"calendar_id"`
	Window     Window            `json:"window" bson:"window"`
	Context    EvaluationContext `json:"context" bson:"context"`
}
