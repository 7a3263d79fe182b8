package service

import (
	"context"
	"errors"
	availabilityerrors "slotkeeper/internal/availability/errors"
	"slotkeeper/pkg/clock"
	"slotkeeper/pkg/config"
	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/model"
	"time"

	"github.com/google/uuid"
)

// RunRecorder persists resolution runs off the request path.
type RunRecorder interface {
	Record(run *model.AvailabilityResolutionRun)
}

type AvailabilityService interface {
	Evaluate(ctx context.Context, tenantID, calendarID string, w model.Window, ectx model.EvaluationContext) (*model.Verdict, error)
	CheckDependencies(ctx context.Context, tenantID, calendarID string, w model.Window) (bool, []model.DependencyResult, error)
	Compose(ctx context.Context, tenantID, calendarID string) (*RuleSet, error)
}

type availabilityService struct {
	compositor *Compositor
	evaluator  *Evaluator
	checker    *DependencyChecker
	recorder   RunRecorder
	clock      clock.Clock
	cfg        *config.Config
}

func NewAvailabilityService(
	compositor *Compositor,
	evaluator *Evaluator,
	checker *DependencyChecker,
	recorder RunRecorder,
	clk clock.Clock,
	cfg *config.Config,
) AvailabilityService {
	return &availabilityService{
		compositor: compositor,
		evaluator:  evaluator,
		checker:    checker,
		recorder:   recorder,
		clock:      clk,
		cfg:        cfg,
	}
}

func (s *availabilityService) Evaluate(ctx context.Context, tenantID, calendarID string, w model.Window, ectx model.EvaluationContext) (*model.Verdict, error) {
	if calendarID == "" {
		return nil, apperrors.InvalidInput("Calendar ID cannot be empty")
	}
	started := s.clock.Now()

	verdict, err := s.evaluate(ctx, tenantID, calendarID, w, ectx, s.cfg.DependencyMaxDepth)
	switch {
	case err == nil:
		s.record(tenantID, calendarID, w, ectx, verdict, model.RunComplete, nil, started)
	case errors.Is(err, availabilityerrors.ErrEvaluationAborted):
		s.record(tenantID, calendarID, w, ectx, verdict, model.RunPartial, err, started)
	}
	if err != nil {
		return nil, s.mapError(err, calendarID)
	}

	s.cfg.Log.Debug("Availability evaluated",
		"calendar_id", calendarID,
		"status", verdict.Status,
		"intervals", len(verdict.Intervals),
		"trace_entries", len(verdict.Trace),
	)
	return verdict, nil
}

func (s *availabilityService) evaluate(ctx context.Context, tenantID, calendarID string, w model.Window, ectx model.EvaluationContext, depth int) (*model.Verdict, error) {
	set, err := s.compositor.Compose(ctx, tenantID, calendarID)
	if err != nil {
		return nil, err
	}
	if err := s.evaluator.Check(set.Calendar, w, ectx); err != nil {
		return nil, err
	}

	var deps []DependencyOutcome
	if !ectx.SkipDependencies && depth > 0 {
		deps, err = s.checker.Check(ctx, tenantID, calendarID, w, depth, s.targetAvailable(ectx))
		if err != nil {
			if ctx.Err() != nil {
				return &model.Verdict{CalendarID: calendarID, Window: w}, errors.Join(availabilityerrors.ErrEvaluationAborted, err)
			}
			return nil, err
		}
	}
	return s.evaluator.Evaluate(ctx, set, w, ectx, deps)
}

// targetAvailable evaluates a dependency target on its direct rules. The offset window
// is not a booking request, so horizon and slot alignment do not apply to it.
func (s *availabilityService) targetAvailable(ectx model.EvaluationContext) TargetFunc {
	return func(ctx context.Context, tenantID, calendarID string, w model.Window, depth int) (bool, error) {
		tctx := ectx
		tctx.IgnoreHorizon = true
		tctx.RequireSlotAlignment = false
		tctx.SkipDependencies = depth <= 0

		v, err := s.evaluate(ctx, tenantID, calendarID, w, tctx, depth)
		if err != nil {
			return false, err
		}
		return v.Available, nil
	}
}

// CheckDependencies reports whether every enforcing dependency rule of the calendar
// is satisfied over w. Advisory rules are returned but never fail the check.
func (s *availabilityService) CheckDependencies(ctx context.Context, tenantID, calendarID string, w model.Window) (bool, []model.DependencyResult, error) {
	if !w.Valid() {
		return false, nil, s.mapError(availabilityerrors.ErrInvalidWindow, calendarID)
	}
	depth := max(s.cfg.DependencyMaxDepth, 1)
	outcomes, err := s.checker.Check(ctx, tenantID, calendarID, w, depth, s.targetAvailable(model.EvaluationContext{}))
	if err != nil {
		return false, nil, s.mapError(err, calendarID)
	}

	satisfied := true
	results := make([]model.DependencyResult, len(outcomes))
	for i, o := range outcomes {
		results[i] = o.Result
		if !o.Result.Satisfied && o.Result.EnforcementMode != model.EnforceAdvisory {
			satisfied = false
		}
	}
	return satisfied, results, nil
}

func (s *availabilityService) Compose(ctx context.Context, tenantID, calendarID string) (*RuleSet, error) {
	set, err := s.compositor.Compose(ctx, tenantID, calendarID)
	if err != nil {
		return nil, s.mapError(err, calendarID)
	}
	return set, nil
}

func (s *availabilityService) record(tenantID, calendarID string, w model.Window, ectx model.EvaluationContext, verdict *model.Verdict, status model.RunStatus, err error, started time.Time) {
	if s.recorder == nil {
		return
	}
	run := &model.AvailabilityResolutionRun{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		CalendarID: calendarID,
		Request:    model.RunRequest{CalendarID: calendarID, Window: w, Context: ectx},
		Status:     status,
		RuntimeMs:  s.clock.Now().Sub(started).Milliseconds(),
		CreatedAt:  s.clock.Now(),
	}
	if verdict != nil {
		run.Trace = verdict.Trace
		if status == model.RunComplete {
			run.Output = verdict
		}
	}
	if err != nil {
		run.Error = err.Error()
	}
	s.recorder.Record(run)
}

func (s *availabilityService) mapError(err error, calendarID string) error {
	switch {
	case errors.Is(err, availabilityerrors.ErrInvalidWindow),
		errors.Is(err, availabilityerrors.ErrWindowTooLarge),
		errors.Is(err, availabilityerrors.ErrSlotMisaligned):
		return apperrors.Validation(err.Error(), map[string]any{
			"calendar_id": calendarID,
		})
	case errors.Is(err, availabilityerrors.ErrCalendarNotFound):
		return apperrors.NotFoundWithID("Calendar", calendarID)
	case errors.Is(err, availabilityerrors.ErrTemplateNotFound):
		return apperrors.Internal("Calendar references a missing rule template", err)
	case errors.Is(err, availabilityerrors.ErrEvaluationAborted),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return apperrors.Timeout("Availability evaluation did not finish in time")
	case apperrors.IsAppError(err):
		return err
	default:
		s.cfg.Log.Error("Availability evaluation failed",
			"calendar_id", calendarID,
			"error", err,
		)
		return apperrors.Internal("Failed to evaluate availability", err)
	}
}
