package validator

import (
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"strings"
	"testing"
	"time"
)

func newTestValidator() *AvailabilityValidator {
	log := logger.New(logger.Config{
		Level:     "info",
		Format:    logger.JSON,
		AddSource: false,
		Service:   "test",
	})
	return NewAvailabilityValidator(log)
}

func validCalendar() *model.Calendar {
	return &model.Calendar{
		ID:                     "cal-1",
		TenantID:               "tenant-1",
		Name:                   "Front Desk",
		Timezone:               "Europe/Berlin",
		SlotDurationMin:        30,
		SlotIntervalMin:        15,
		DefaultMode:            model.UnavailableByDefault,
		RuleEvaluationOrder:    model.SpecificityThenPriority,
		ConflictResolutionMode: model.UnavailableWins,
		Status:                 model.CalendarActive,
	}
}

func TestValidateCalendar(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name      string
		mutate    func(c *model.Calendar)
		wantError string
	}{
		{
			name:   "valid calendar",
			mutate: func(c *model.Calendar) {},
		},
		{
			name: "horizon exactly covers minimum advance",
			mutate: func(c *model.Calendar) {
				c.MinAdvanceBookingHours = 48
				c.MaxAdvanceBookingDays = 2
			},
		},
		{
			name: "horizon shorter than minimum advance",
			mutate: func(c *model.Calendar) {
				c.MinAdvanceBookingHours = 49
				c.MaxAdvanceBookingDays = 2
			},
			wantError: "max_advance_booking_days",
		},
		{
			name: "unlimited horizon with minimum advance",
			mutate: func(c *model.Calendar) {
				c.MinAdvanceBookingHours = 24
			},
		},
		{
			name:      "zero slot interval",
			mutate:    func(c *model.Calendar) { c.SlotIntervalMin = 0 },
			wantError: "is required",
		},
		{
			name:      "negative post buffer",
			mutate:    func(c *model.Calendar) { c.PostBufferMin = -1 },
			wantError: "gte",
		},
		{
			name:      "unknown conflict mode",
			mutate:    func(c *model.Calendar) { c.ConflictResolutionMode = "coin_flip" },
			wantError: "must be one of",
		},
		{
			name:      "bad timezone",
			mutate:    func(c *model.Calendar) { c.Timezone = "Nowhere/Land" },
			wantError: "IANA",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cal := validCalendar()
			tt.mutate(cal)
			err := v.ValidateCalendar(cal)
			checkError(t, err, tt.wantError)
		})
	}
}

func TestValidateRule(t *testing.T) {
	v := newTestValidator()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	delta := 2

	base := func() *model.AvailabilityRule {
		return &model.AvailabilityRule{
			TenantID:   "tenant-1",
			CalendarID: "cal-1",
			Mode:       model.ModeRecurring,
			Frequency:  model.FrequencyWeekly,
			ByWeekday:  []int{1, 3},
			StartTime:  "09:00",
			EndTime:    "17:00",
			Action:     model.ActionAvailable,
		}
	}

	tests := []struct {
		name      string
		mutate    func(r *model.AvailabilityRule)
		wantError string
	}{
		{
			name:   "valid weekly rule",
			mutate: func(r *model.AvailabilityRule) {},
		},
		{
			name: "overnight hours",
			mutate: func(r *model.AvailabilityRule) {
				r.StartTime = "22:00"
				r.EndTime = "02:00"
			},
		},
		{
			name:      "invalid clock",
			mutate:    func(r *model.AvailabilityRule) { r.StartTime = "24:30" },
			wantError: "HH:MM",
		},
		{
			name:      "only start time",
			mutate:    func(r *model.AvailabilityRule) { r.EndTime = "" },
			wantError: "set together",
		},
		{
			name:      "equal hours",
			mutate:    func(r *model.AvailabilityRule) { r.EndTime = "09:00" },
			wantError: "must differ",
		},
		{
			name:      "weekly without weekdays",
			mutate:    func(r *model.AvailabilityRule) { r.ByWeekday = nil },
			wantError: "weekly recurrence",
		},
		{
			name: "interval without anchor",
			mutate: func(r *model.AvailabilityRule) {
				r.Interval = 2
			},
			wantError: "interval is greater than 1",
		},
		{
			name: "recurring with timestamps",
			mutate: func(r *model.AvailabilityRule) {
				r.StartAt = &start
			},
			wantError: "do not belong to mode recurring",
		},
		{
			name: "valid date range",
			mutate: func(r *model.AvailabilityRule) {
				*r = model.AvailabilityRule{
					TenantID: "tenant-1", CalendarID: "cal-1", Mode: model.ModeDateRange,
					StartDate: "2026-12-24", EndDate: "2026-12-26", Action: model.ActionUnavailable,
				}
			},
		},
		{
			name: "date range ending before start",
			mutate: func(r *model.AvailabilityRule) {
				*r = model.AvailabilityRule{
					TenantID: "tenant-1", CalendarID: "cal-1", Mode: model.ModeDateRange,
					StartDate: "2026-12-26", EndDate: "2026-12-24", Action: model.ActionUnavailable,
				}
			},
			wantError: "after the range start",
		},
		{
			name: "timestamp range without end",
			mutate: func(r *model.AvailabilityRule) {
				*r = model.AvailabilityRule{
					TenantID: "tenant-1", CalendarID: "cal-1", Mode: model.ModeTimestampRange,
					StartAt: &start, Action: model.ActionUnavailable,
				}
			},
			wantError: "required for mode",
		},
		{
			name: "capacity adjustment with delta",
			mutate: func(r *model.AvailabilityRule) {
				*r = model.AvailabilityRule{
					TenantID: "tenant-1", CalendarID: "cal-1", Mode: model.ModeTimestampRange,
					StartAt: &start, EndAt: &end, Action: model.ActionCapacityAdjustment, CapacityDelta: &delta,
				}
			},
		},
		{
			name: "available with a delta",
			mutate: func(r *model.AvailabilityRule) {
				r.CapacityDelta = &delta
			},
			wantError: "requires capacity_delta",
		},
		{
			name: "special pricing without adjustment",
			mutate: func(r *model.AvailabilityRule) {
				r.Action = model.ActionSpecialPricing
			},
			wantError: "special_pricing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := base()
			tt.mutate(rule)
			checkError(t, v.ValidateRule(rule), tt.wantError)
		})
	}
}

func TestValidateDependency(t *testing.T) {
	v := newTestValidator()
	two := 2
	four := 4

	base := func() *model.DependencyRule {
		return &model.DependencyRule{
			TenantID:            "tenant-1",
			DependentCalendarID: "cal-1",
			Targets: []model.DependencyTarget{
				{Type: model.DependencyOnCalendar, ID: "room-a"},
				{Type: model.DependencyOnCalendar, ID: "room-b"},
				{Type: model.DependencyOnCustomSubject, ID: "crew", Weight: 3},
			},
			EvaluationMode:  model.EvaluateAll,
			EnforcementMode: model.EnforceHardBlock,
		}
	}

	tests := []struct {
		name      string
		mutate    func(d *model.DependencyRule)
		wantError string
	}{
		{
			name:   "valid rule",
			mutate: func(d *model.DependencyRule) {},
		},
		{
			name: "threshold with count",
			mutate: func(d *model.DependencyRule) {
				d.EvaluationMode = model.EvaluateThreshold
				d.MinSatisfiedCount = &two
			},
		},
		{
			name:      "threshold without bound",
			mutate:    func(d *model.DependencyRule) { d.EvaluationMode = model.EvaluateThreshold },
			wantError: "min_satisfied_count or min_satisfied_percent",
		},
		{
			name: "count above target total",
			mutate: func(d *model.DependencyRule) {
				d.EvaluationMode = model.EvaluateThreshold
				d.MinSatisfiedCount = &four
			},
			wantError: "cannot exceed the 3 targets",
		},
		{
			name: "self dependency",
			mutate: func(d *model.DependencyRule) {
				d.Targets[0].ID = "cal-1"
			},
			wantError: "cannot depend on itself",
		},
		{
			name: "duplicate target",
			mutate: func(d *model.DependencyRule) {
				d.Targets[1].ID = "room-a"
			},
			wantError: "more than once",
		},
		{
			name: "unknown target type",
			mutate: func(d *model.DependencyRule) {
				d.Targets[0].Type = "planet"
			},
			wantError: "calendar or custom_subject",
		},
		{
			name:      "soft gate without failure action",
			mutate:    func(d *model.DependencyRule) { d.EnforcementMode = model.EnforceSoftGate },
			wantError: "requires a failure_action",
		},
		{
			name: "soft gate with capacity failure",
			mutate: func(d *model.DependencyRule) {
				d.EnforcementMode = model.EnforceSoftGate
				d.FailureAction = model.ActionCapacityAdjustment
				d.FailureCapacityDelta = &two
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := base()
			tt.mutate(rule)
			checkError(t, v.ValidateDependency(rule), tt.wantError)
		})
	}
}

func TestValidateTemplate_PrefixesRuleErrors(t *testing.T) {
	v := newTestValidator()
	tpl := &model.RuleTemplate{
		ID:       "tpl-1",
		TenantID: "tenant-1",
		Name:     "Office hours",
		Rules: []model.AvailabilityRule{
			{TenantID: "tenant-1", Mode: model.ModeRecurring, Frequency: model.FrequencyDaily, Action: model.ActionAvailable},
			{TenantID: "tenant-1", Mode: model.ModeRecurring, Frequency: model.FrequencyWeekly, Action: model.ActionAvailable},
		},
	}

	err := v.ValidateTemplate(tpl)
	if err == nil {
		t.Fatal("expected error for weekly rule without weekdays")
	}
	if !strings.Contains(err.Error(), "rules[1].") {
		t.Errorf("expected error to point at rules[1], got %q", err.Error())
	}
	if strings.Contains(err.Error(), "rules[0].") {
		t.Errorf("rules[0] is valid, got %q", err.Error())
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"00:00", 0, true},
		{"09:30", 570, true},
		{"23:59", 1439, true},
		{"24:00", 0, false},
		{"9:30", 570, true},
		{"12:60", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseClock(tt.in)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("ParseClock(%q) = (%d, %v), want (%d, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func checkError(t *testing.T, err error, want string) {
	t.Helper()
	if want == "" {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return
	}
	if err == nil {
		t.Fatalf("expected error containing %q, got nil", want)
	}
	if !strings.Contains(err.Error(), want) {
		t.Errorf("expected error containing %q, got %q", want, err.Error())
	}
}
