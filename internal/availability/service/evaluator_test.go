package service

import (
	"context"
	"errors"
	availabilityerrors "slotkeeper/internal/availability/errors"
	"slotkeeper/pkg/model"
	"testing"
	"time"
)

// 2026-03-02 is a Monday.
func at(day, clock string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", day+" "+clock)
	if err != nil {
		panic(err)
	}
	return t
}

func window(day, from, to string) model.Window {
	return model.Window{Start: at(day, from), End: at(day, to)}
}

func intPtr(v int) *int { return &v }

func testCalendar(mode model.DefaultMode) *model.Calendar {
	return &model.Calendar{
		ID:                     "cal-1",
		TenantID:               "tenant-1",
		Name:                   "Studio",
		Timezone:               "UTC",
		SlotDurationMin:        30,
		SlotIntervalMin:        30,
		DefaultMode:            mode,
		RuleEvaluationOrder:    model.SpecificityThenPriority,
		ConflictResolutionMode: model.UnavailableWins,
		Status:                 model.CalendarActive,
	}
}

func mondayHours(id string) *model.AvailabilityRule {
	return &model.AvailabilityRule{
		ID:         id,
		CalendarID: "cal-1",
		Mode:       model.ModeRecurring,
		Frequency:  model.FrequencyWeekly,
		ByWeekday:  []int{1},
		StartTime:  "09:00",
		EndTime:    "17:00",
		Action:     model.ActionAvailable,
		IsActive:   true,
	}
}

func stamped(id string, action model.RuleAction, from, to time.Time) *model.AvailabilityRule {
	return &model.AvailabilityRule{
		ID:         id,
		CalendarID: "cal-1",
		Mode:       model.ModeTimestampRange,
		StartAt:    &from,
		EndAt:      &to,
		Action:     action,
		IsActive:   true,
	}
}

func evaluate(t *testing.T, cal *model.Calendar, rules []*model.AvailabilityRule, w model.Window) *model.Verdict {
	t.Helper()
	set := ComposeRules(CompositionInput{Calendar: cal, Rules: rules})
	v, err := NewEvaluator(31*24*time.Hour).Evaluate(context.Background(), set, w, model.EvaluationContext{}, nil)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	return v
}

func TestEvaluate_ZeroRulesUnavailableByDefault(t *testing.T) {
	cal := testCalendar(model.UnavailableByDefault)
	windows := []model.Window{
		window("2026-03-02", "00:00", "23:59"),
		window("2026-03-02", "10:00", "10:30"),
		{Start: at("2026-03-01", "22:00"), End: at("2026-03-03", "02:00")},
	}

	for _, w := range windows {
		v := evaluate(t, cal, nil, w)
		if v.Available || v.Status != model.StateUnavailable {
			t.Errorf("window %v: got status %s available=%v, want unavailable", w, v.Status, v.Available)
		}
		if len(v.Intervals) != 1 {
			t.Errorf("window %v: expected one merged interval, got %d", w, len(v.Intervals))
		}
		if len(v.Trace) != 1 || v.Trace[0].Kind != model.TraceDefault {
			t.Errorf("window %v: expected a single default trace entry, got %+v", w, v.Trace)
		}
	}
}

func TestEvaluate_MondayOpeningHours(t *testing.T) {
	tests := []struct {
		name   string
		mode   model.DefaultMode
		window model.Window
		want   model.AvailabilityState
	}{
		{"inside hours, unavailable by default", model.UnavailableByDefault, window("2026-03-02", "10:00", "10:30"), model.StateAvailable},
		{"before hours, unavailable by default", model.UnavailableByDefault, window("2026-03-02", "08:00", "08:30"), model.StateUnavailable},
		{"inside hours, available by default", model.AvailableByDefault, window("2026-03-02", "10:00", "10:30"), model.StateAvailable},
		{"before hours, available by default", model.AvailableByDefault, window("2026-03-02", "08:00", "08:30"), model.StateAvailable},
		{"straddling close, unavailable by default", model.UnavailableByDefault, window("2026-03-02", "16:30", "17:30"), model.StateUnavailable},
		{"tuesday, unavailable by default", model.UnavailableByDefault, window("2026-03-03", "10:00", "10:30"), model.StateUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := evaluate(t, testCalendar(tt.mode), []*model.AvailabilityRule{mondayHours("r-mon")}, tt.window)
			if v.Status != tt.want {
				t.Errorf("status = %s, want %s (intervals %+v)", v.Status, tt.want, v.Intervals)
			}
		})
	}
}

func TestEvaluate_CapacityDeltasSum(t *testing.T) {
	cal := testCalendar(model.AvailableByDefault)
	a := stamped("cap-a", model.ActionCapacityAdjustment, at("2026-03-02", "10:00"), at("2026-03-02", "12:00"))
	a.CapacityDelta = intPtr(2)
	b := stamped("cap-b", model.ActionCapacityAdjustment, at("2026-03-02", "11:00"), at("2026-03-02", "13:00"))
	b.CapacityDelta = intPtr(3)

	v := evaluate(t, cal, []*model.AvailabilityRule{a, b}, window("2026-03-02", "10:00", "13:00"))

	if v.CapacityDelta != 5 {
		t.Errorf("net capacity delta = %d, want 5", v.CapacityDelta)
	}
	if v.Status != model.StateCapacityAdjusted {
		t.Errorf("status = %s, want capacity_adjusted", v.Status)
	}
	want := []int{2, 5, 3}
	if len(v.Intervals) != len(want) {
		t.Fatalf("expected %d intervals, got %+v", len(want), v.Intervals)
	}
	for i, delta := range want {
		if v.Intervals[i].CapacityDelta != delta {
			t.Errorf("interval %d delta = %d, want %d", i, v.Intervals[i].CapacityDelta, delta)
		}
	}
}

func TestEvaluate_PricingAccumulatesPerKind(t *testing.T) {
	cal := testCalendar(model.AvailableByDefault)
	a := stamped("price-a", model.ActionSpecialPricing, at("2026-03-02", "10:00"), at("2026-03-02", "11:00"))
	a.PricingAdjustment = &model.PricingAdjustment{Kind: model.PricingPercent, Value: 10}
	b := stamped("price-b", model.ActionSpecialPricing, at("2026-03-02", "10:00"), at("2026-03-02", "11:00"))
	b.PricingAdjustment = &model.PricingAdjustment{Kind: model.PricingPercent, Value: 5}

	v := evaluate(t, cal, []*model.AvailabilityRule{a, b}, window("2026-03-02", "10:00", "11:00"))

	if v.Status != model.StatePriceAdjusted {
		t.Errorf("status = %s, want price_adjusted", v.Status)
	}
	if len(v.Pricing) != 1 || v.Pricing[0].Value != 15 {
		t.Errorf("pricing = %+v, want one percent adjustment of 15", v.Pricing)
	}
}

func TestEvaluate_ConflictResolution(t *testing.T) {
	lunch := func(priority int) *model.AvailabilityRule {
		r := stamped("lunch", model.ActionUnavailable, at("2026-03-02", "12:00"), at("2026-03-02", "13:00"))
		r.Priority = priority
		return r
	}
	open := func(priority int) *model.AvailabilityRule {
		r := mondayHours("hours")
		r.Priority = priority
		return r
	}

	tests := []struct {
		name  string
		mode  model.ConflictResolutionMode
		order model.RuleEvaluationOrder
		rules []*model.AvailabilityRule
		want  model.AvailabilityState
	}{
		{"unavailable wins", model.UnavailableWins, model.SpecificityThenPriority, []*model.AvailabilityRule{open(0), lunch(5)}, model.StateUnavailable},
		{"available wins", model.AvailableWins, model.SpecificityThenPriority, []*model.AvailabilityRule{open(0), lunch(5)}, model.StateAvailable},
		{"priority wins, narrower rule first", model.PriorityWins, model.SpecificityThenPriority, []*model.AvailabilityRule{open(0), lunch(5)}, model.StateUnavailable},
		{"priority wins, lower priority first", model.PriorityWins, model.PriorityThenSpecificity, []*model.AvailabilityRule{open(0), lunch(5)}, model.StateAvailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cal := testCalendar(model.UnavailableByDefault)
			cal.ConflictResolutionMode = tt.mode
			cal.RuleEvaluationOrder = tt.order

			v := evaluate(t, cal, tt.rules, window("2026-03-02", "12:00", "13:00"))
			if v.Status != tt.want {
				t.Errorf("status = %s, want %s", v.Status, tt.want)
			}
			var conflicts int
			for _, e := range v.Trace {
				if e.Kind == model.TraceConflict {
					conflicts++
				}
			}
			if conflicts != 1 {
				t.Errorf("expected one conflict trace entry, got %d", conflicts)
			}
		})
	}
}

func TestEvaluate_ExclusionSuppressesRule(t *testing.T) {
	cal := testCalendar(model.UnavailableByDefault)
	set := ComposeRules(CompositionInput{
		Calendar:   cal,
		Rules:      []*model.AvailabilityRule{mondayHours("r-mon")},
		Exclusions: []*model.RuleExclusion{{RuleID: "r-mon", Date: "2026-03-02"}},
	})

	v, err := NewEvaluator(0).Evaluate(context.Background(), set, window("2026-03-02", "10:00", "10:30"), model.EvaluationContext{}, nil)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if v.Available {
		t.Error("excluded date should fall back to the default mode")
	}
	if v.Trace[0].Kind != model.TraceExclusion || v.Trace[0].RuleID != "r-mon" {
		t.Errorf("expected exclusion trace entry first, got %+v", v.Trace[0])
	}

	// the following Monday is unaffected
	v, err = NewEvaluator(0).Evaluate(context.Background(), set, window("2026-03-09", "10:00", "10:30"), model.EvaluationContext{}, nil)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !v.Available {
		t.Error("exclusion must only apply to its own date")
	}
}

func TestEvaluate_OverrideHoursRedefineTheDay(t *testing.T) {
	cal := testCalendar(model.UnavailableByDefault)
	daily := mondayHours("daily")
	daily.Frequency = model.FrequencyDaily
	daily.ByWeekday = nil
	override := &model.AvailabilityRule{
		ID:        "short-day",
		Mode:      model.ModeDateRange,
		StartDate: "2026-03-02",
		EndDate:   "2026-03-02",
		StartTime: "10:00",
		EndTime:   "12:00",
		Action:    model.ActionOverrideHours,
		IsActive:  true,
	}

	v := evaluate(t, cal, []*model.AvailabilityRule{daily, override}, window("2026-03-02", "09:00", "13:00"))

	want := []struct {
		from, to string
		state    model.AvailabilityState
	}{
		{"09:00", "10:00", model.StateUnavailable},
		{"10:00", "12:00", model.StateAvailable},
		{"12:00", "13:00", model.StateUnavailable},
	}
	if len(v.Intervals) != len(want) {
		t.Fatalf("expected %d intervals, got %+v", len(want), v.Intervals)
	}
	for i, w := range want {
		got := v.Intervals[i]
		if !got.Start.Equal(at("2026-03-02", w.from)) || !got.End.Equal(at("2026-03-02", w.to)) || got.State != w.state {
			t.Errorf("interval %d = [%s, %s) %s, want [%s, %s) %s", i,
				got.Start.Format("15:04"), got.End.Format("15:04"), got.State, w.from, w.to, w.state)
		}
	}

	// the day after keeps its regular hours
	v = evaluate(t, cal, []*model.AvailabilityRule{daily, override}, window("2026-03-03", "09:00", "10:00"))
	if !v.Available {
		t.Errorf("override must not leak into the next day, got %+v", v.Intervals)
	}
}

func TestEvaluate_BuffersWidenTheWindow(t *testing.T) {
	cal := testCalendar(model.UnavailableByDefault)
	cal.PreBufferMin = 15

	v := evaluate(t, cal, []*model.AvailabilityRule{mondayHours("r-mon")}, window("2026-03-02", "09:00", "09:30"))
	if v.Available {
		t.Error("pre buffer before opening must make the window unavailable")
	}
	if !v.Intervals[0].Start.Equal(at("2026-03-02", "08:45")) {
		t.Errorf("first interval starts at %s, want 08:45", v.Intervals[0].Start.Format("15:04"))
	}
}

func TestEvaluate_BookingHorizon(t *testing.T) {
	cal := testCalendar(model.AvailableByDefault)
	cal.MinAdvanceBookingHours = 2
	cal.MaxAdvanceBookingDays = 7
	now := at("2026-03-02", "09:00")
	set := ComposeRules(CompositionInput{Calendar: cal})
	ev := NewEvaluator(0)

	tests := []struct {
		name   string
		window model.Window
		ectx   model.EvaluationContext
		want   bool
	}{
		{"too soon", window("2026-03-02", "10:00", "10:30"), model.EvaluationContext{Now: &now}, false},
		{"far enough ahead", window("2026-03-02", "11:00", "11:30"), model.EvaluationContext{Now: &now}, true},
		{"beyond max advance", window("2026-03-10", "10:00", "10:30"), model.EvaluationContext{Now: &now}, false},
		{"horizon ignored", window("2026-03-02", "10:00", "10:30"), model.EvaluationContext{Now: &now, IgnoreHorizon: true}, true},
		{"no clock given", window("2026-03-02", "10:00", "10:30"), model.EvaluationContext{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ev.Evaluate(context.Background(), set, tt.window, tt.ectx, nil)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if v.Available != tt.want {
				t.Errorf("available = %v, want %v (trace %+v)", v.Available, tt.want, v.Trace)
			}
		})
	}
}

func TestEvaluate_ExclusionOnLaterDayOfTimestampRule(t *testing.T) {
	cal := testCalendar(model.AvailableByDefault)
	closure := stamped("r-closure", model.ActionUnavailable, at("2026-03-02", "20:00"), at("2026-03-04", "08:00"))
	set := ComposeRules(CompositionInput{
		Calendar:   cal,
		Rules:      []*model.AvailabilityRule{closure},
		Exclusions: []*model.RuleExclusion{{RuleID: "r-closure", Date: "2026-03-03"}},
	})
	ev := NewEvaluator(0)

	tests := []struct {
		name   string
		window model.Window
		want   bool
	}{
		{"first day still closed", window("2026-03-02", "21:00", "21:30"), false},
		{"excluded day open", window("2026-03-03", "10:00", "10:30"), true},
		{"last day still closed", window("2026-03-04", "07:00", "07:30"), false},
		{"spanning the excluded day", model.Window{Start: at("2026-03-03", "23:00"), End: at("2026-03-04", "01:00")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ev.Evaluate(context.Background(), set, tt.window, model.EvaluationContext{}, nil)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if v.Available != tt.want {
				t.Errorf("available = %v, want %v (trace %+v)", v.Available, tt.want, v.Trace)
			}
		})
	}
}

func TestEvaluate_CarriesStrictNonOverlap(t *testing.T) {
	cal := testCalendar(model.AvailableByDefault)
	cal.EnforceStrictNonOverlap = true
	set := ComposeRules(CompositionInput{Calendar: cal})

	v, err := NewEvaluator(0).Evaluate(context.Background(), set, window("2026-03-02", "10:00", "10:30"), model.EvaluationContext{}, nil)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !v.StrictNonOverlap {
		t.Error("expected the calendar's strict non-overlap flag on the verdict")
	}
}

func TestEvaluate_Rejections(t *testing.T) {
	cal := testCalendar(model.AvailableByDefault)
	set := ComposeRules(CompositionInput{Calendar: cal})
	ev := NewEvaluator(24 * time.Hour)

	tests := []struct {
		name    string
		window  model.Window
		ectx    model.EvaluationContext
		wantErr error
	}{
		{"end before start", window("2026-03-02", "11:00", "10:00"), model.EvaluationContext{}, availabilityerrors.ErrInvalidWindow},
		{"empty window", window("2026-03-02", "10:00", "10:00"), model.EvaluationContext{}, availabilityerrors.ErrInvalidWindow},
		{"too large", model.Window{Start: at("2026-03-02", "00:00"), End: at("2026-03-04", "00:00")}, model.EvaluationContext{}, availabilityerrors.ErrWindowTooLarge},
		{"misaligned slot", window("2026-03-02", "10:00", "10:45"), model.EvaluationContext{RequireSlotAlignment: true}, availabilityerrors.ErrSlotMisaligned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ev.Evaluate(context.Background(), set, tt.window, tt.ectx, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if v != nil {
				t.Error("rejected windows must not produce a verdict")
			}
		})
	}
}

func TestEvaluate_CancelledContextKeepsPartialTrace(t *testing.T) {
	cal := testCalendar(model.UnavailableByDefault)
	set := ComposeRules(CompositionInput{Calendar: cal, Rules: []*model.AvailabilityRule{mondayHours("r-mon")}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v, err := NewEvaluator(0).Evaluate(ctx, set, window("2026-03-02", "10:00", "10:30"), model.EvaluationContext{}, nil)
	if !errors.Is(err, availabilityerrors.ErrEvaluationAborted) {
		t.Fatalf("error = %v, want ErrEvaluationAborted", err)
	}
	if v == nil {
		t.Fatal("expected a partial verdict alongside the error")
	}
}

func TestEvaluate_DependencyEnforcement(t *testing.T) {
	failed := func(enforcement model.EnforcementMode, action model.RuleAction) DependencyOutcome {
		rule := &model.DependencyRule{ID: "dep-1", EnforcementMode: enforcement, FailureAction: action, FailureCapacityDelta: intPtr(-1)}
		return DependencyOutcome{
			Rule: rule,
			Result: model.DependencyResult{
				RuleID:          rule.ID,
				EnforcementMode: enforcement,
				FailureAction:   action,
				Targets:         []model.TargetResult{{Target: model.DependencyTarget{Type: model.DependencyOnCalendar, ID: "cal-2"}}},
			},
		}
	}

	tests := []struct {
		name      string
		outcome   DependencyOutcome
		wantState model.AvailabilityState
		wantDelta int
	}{
		{"hard block", failed(model.EnforceHardBlock, ""), model.StateUnavailable, 0},
		{"soft gate closes", failed(model.EnforceSoftGate, model.ActionUnavailable), model.StateUnavailable, 0},
		{"soft gate reduces capacity", failed(model.EnforceSoftGate, model.ActionCapacityAdjustment), model.StateCapacityAdjusted, -1},
		{"advisory only annotates", failed(model.EnforceAdvisory, model.ActionUnavailable), model.StateAvailable, 0},
	}

	cal := testCalendar(model.AvailableByDefault)
	set := ComposeRules(CompositionInput{Calendar: cal})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewEvaluator(0).Evaluate(context.Background(), set, window("2026-03-02", "10:00", "11:00"), model.EvaluationContext{}, []DependencyOutcome{tt.outcome})
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if v.Status != tt.wantState {
				t.Errorf("status = %s, want %s", v.Status, tt.wantState)
			}
			if v.CapacityDelta != tt.wantDelta {
				t.Errorf("capacity delta = %d, want %d", v.CapacityDelta, tt.wantDelta)
			}
			last := v.Trace[len(v.Trace)-1]
			if last.Kind != model.TraceDependency || last.Satisfied == nil || *last.Satisfied {
				t.Errorf("expected an unsatisfied dependency trace entry, got %+v", last)
			}
		})
	}
}

func TestEvaluate_InactiveCalendarIsClosed(t *testing.T) {
	cal := testCalendar(model.AvailableByDefault)
	cal.Status = model.CalendarInactive

	v := evaluate(t, cal, nil, window("2026-03-02", "10:00", "11:00"))
	if v.Available {
		t.Error("inactive calendars must never be available")
	}
}
