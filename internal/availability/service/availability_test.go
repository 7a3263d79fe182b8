package service

import (
	"context"
	"slotkeeper/pkg/clock"
	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/model"
	"testing"
)

type availabilityFixture struct {
	svc       AvailabilityService
	calendars *memCalendarRepository
	rules     *memRuleRepository
	deps      *memDependencyRepository
	runs      *recordedRuns
}

func newAvailabilityFixture(cals ...*model.Calendar) *availabilityFixture {
	cfg := testConfig()
	f := &availabilityFixture{
		calendars: newMemCalendars(cals...),
		rules:     newMemRules(),
		deps:      &memDependencyRepository{},
		runs:      &recordedRuns{},
	}
	f.svc = NewAvailabilityService(
		NewCompositor(f.calendars, f.rules),
		NewEvaluator(cfg.MaxEvaluationWindow),
		NewDependencyChecker(f.deps, f.calendars, cfg.Log),
		f.runs,
		clock.NewFixed(at("2026-03-01", "12:00")),
		cfg,
	)
	return f
}

func calendarWithID(id string) *model.Calendar {
	cal := testCalendar(model.UnavailableByDefault)
	cal.ID = id
	return cal
}

func TestAvailabilityService_EvaluateRecordsRun(t *testing.T) {
	f := newAvailabilityFixture(calendarWithID("cal-1"))
	f.rules.CreateRule(context.Background(), mondayHours("hours"))

	v, err := f.svc.Evaluate(context.Background(), "tenant-1", "cal-1", window("2026-03-02", "10:00", "11:00"), model.EvaluationContext{})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !v.Available {
		t.Fatalf("expected window to be available, got %+v", v.Intervals)
	}

	if len(f.runs.runs) != 1 {
		t.Fatalf("expected 1 recorded run, got %d", len(f.runs.runs))
	}
	run := f.runs.runs[0]
	if run.Status != model.RunComplete || run.Output == nil {
		t.Errorf("expected complete run with output, got status=%s", run.Status)
	}
}

func TestAvailabilityService_EvaluateErrors(t *testing.T) {
	tests := []struct {
		name       string
		calendarID string
		w          model.Window
		code       string
	}{
		{"missing calendar", "cal-missing", window("2026-03-02", "10:00", "11:00"), apperrors.CodeNotFound},
		{"inverted window", "cal-1", window("2026-03-02", "11:00", "10:00"), apperrors.CodeValidation},
		{"empty calendar id", "", window("2026-03-02", "10:00", "11:00"), apperrors.CodeInvalidInput},
		{"window too large", "cal-1", model.Window{Start: at("2026-03-02", "00:00"), End: at("2026-05-02", "00:00")}, apperrors.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAvailabilityFixture(calendarWithID("cal-1"))
			_, err := f.svc.Evaluate(context.Background(), "tenant-1", tt.calendarID, tt.w, model.EvaluationContext{})
			if !apperrors.IsCode(err, tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
			if len(f.runs.runs) != 0 {
				t.Errorf("rejected requests must not be recorded, got %d runs", len(f.runs.runs))
			}
		})
	}
}

func TestAvailabilityService_TenantIsolation(t *testing.T) {
	f := newAvailabilityFixture(calendarWithID("cal-1"))
	_, err := f.svc.Evaluate(context.Background(), "tenant-2", "cal-1", window("2026-03-02", "10:00", "11:00"), model.EvaluationContext{})
	if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected other tenant's calendar to be invisible, got %v", err)
	}
}

func TestAvailabilityService_HardBlockDependency(t *testing.T) {
	f := newAvailabilityFixture(calendarWithID("cal-1"), calendarWithID("room"))
	f.rules.CreateRule(context.Background(), mondayHours("hours"))
	roomHours := mondayHours("room-hours")
	roomHours.CalendarID = "room"
	roomHours.EndTime = "10:30"
	f.rules.CreateRule(context.Background(), roomHours)
	f.deps.Create(context.Background(), dependencyRule("dep-1", "cal-1", model.EvaluateAll, calendarTarget("room", 0)))

	open, err := f.svc.Evaluate(context.Background(), "tenant-1", "cal-1", window("2026-03-02", "09:30", "10:00"), model.EvaluationContext{})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !open.Available {
		t.Errorf("expected available while the room is open, got %+v", open.Intervals)
	}

	closed, err := f.svc.Evaluate(context.Background(), "tenant-1", "cal-1", window("2026-03-02", "10:00", "11:00"), model.EvaluationContext{})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if closed.Available {
		t.Error("expected hard block while the room closes mid-window")
	}

	skipped, err := f.svc.Evaluate(context.Background(), "tenant-1", "cal-1", window("2026-03-02", "10:00", "11:00"),
		model.EvaluationContext{SkipDependencies: true})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !skipped.Available {
		t.Error("expected skip_dependencies to ignore the room")
	}
}

func TestAvailabilityService_CheckDependencies(t *testing.T) {
	f := newAvailabilityFixture(calendarWithID("cal-1"), calendarWithID("room"))
	advisory := dependencyRule("advice", "cal-1", model.EvaluateAll, calendarTarget("room", 0))
	advisory.EnforcementMode = model.EnforceAdvisory
	f.deps.Create(context.Background(), advisory)

	ok, results, err := f.svc.CheckDependencies(context.Background(), "tenant-1", "cal-1", window("2026-03-02", "10:00", "11:00"))
	if err != nil {
		t.Fatalf("CheckDependencies() error = %v", err)
	}
	if !ok {
		t.Error("advisory rules must not fail the check")
	}
	if len(results) != 1 || results[0].Satisfied {
		t.Errorf("expected one unsatisfied advisory result, got %+v", results)
	}

	f.deps.Create(context.Background(), dependencyRule("block", "cal-1", model.EvaluateAll, calendarTarget("room", 0)))
	ok, _, err = f.svc.CheckDependencies(context.Background(), "tenant-1", "cal-1", window("2026-03-02", "10:00", "11:00"))
	if err != nil {
		t.Fatalf("CheckDependencies() error = %v", err)
	}
	if ok {
		t.Error("expected the hard block rule to fail the check")
	}
}
