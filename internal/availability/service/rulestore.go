package service

import (
	"context"
	"errors"
	availabilityerrors "slotkeeper/internal/availability/errors"
	"slotkeeper/internal/availability/repository"
	"slotkeeper/internal/availability/validator"
	"slotkeeper/pkg/clock"
	"slotkeeper/pkg/config"
	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/model"
	"slotkeeper/pkg/sanitizer"
	"strings"

	"github.com/google/uuid"
)

// RuleStore owns writes to calendars, their layers and their dependency rules.
type RuleStore interface {
	CreateCalendar(ctx context.Context, cal *model.Calendar, changedBy string) error
	GetCalendar(ctx context.Context, tenantID, id string) (*model.Calendar, error)
	UpdateCalendar(ctx context.Context, tenantID, id string, updates *model.CalendarUpdate, changedBy string) (*model.Calendar, error)
	ArchiveCalendar(ctx context.Context, tenantID, id, changedBy string) error
	ListRevisions(ctx context.Context, tenantID, calendarID string, limit int, offset int64) ([]*model.CalendarRevision, error)
	BindCalendar(ctx context.Context, b *model.CalendarBinding) error

	CreateOverlay(ctx context.Context, o *model.Overlay) error
	CreateRule(ctx context.Context, rule *model.AvailabilityRule) error
	DeactivateRule(ctx context.Context, tenantID, id string) error
	AddExclusion(ctx context.Context, ex *model.RuleExclusion) error
	CreateTemplate(ctx context.Context, tpl *model.RuleTemplate) error
	BindTemplate(ctx context.Context, b *model.TemplateBinding) error
	CreateDependencyRule(ctx context.Context, d *model.DependencyRule) error
}

type ruleStore struct {
	calendars repository.CalendarRepository
	rules     repository.RuleRepository
	deps      repository.DependencyRepository
	checker   *DependencyChecker
	validator *validator.AvailabilityValidator
	clock     clock.Clock
	cfg       *config.Config
}

func NewRuleStore(
	calendars repository.CalendarRepository,
	rules repository.RuleRepository,
	deps repository.DependencyRepository,
	checker *DependencyChecker,
	validator *validator.AvailabilityValidator,
	clk clock.Clock,
	cfg *config.Config,
) RuleStore {
	return &ruleStore{
		calendars: calendars,
		rules:     rules,
		deps:      deps,
		checker:   checker,
		validator: validator,
		clock:     clk,
		cfg:       cfg,
	}
}

func (s *ruleStore) CreateCalendar(ctx context.Context, cal *model.Calendar, changedBy string) error {
	now := s.clock.Now()
	cal.ID = uuid.NewString()
	cal.Version = 1
	cal.CreatedAt = now
	cal.UpdatedAt = now
	cal.DeletedAt = nil
	s.sanitizeCalendar(cal)
	applyCalendarDefaults(cal)

	if err := s.validator.ValidateCalendar(cal); err != nil {
		s.cfg.Log.Warn("Calendar validation failed",
			"tenant_id", cal.TenantID,
			"name", cal.Name,
			"error", err,
		)
		return apperrors.Validation("Calendar validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	err := s.calendars.ExecuteTransaction(ctx, func(ctx context.Context) error {
		if err := s.calendars.Create(ctx, cal); err != nil {
			return err
		}
		return s.calendars.AppendRevision(ctx, s.revision(cal, changedBy))
	})
	if err != nil {
		s.cfg.Log.Error("Failed to create calendar",
			"tenant_id", cal.TenantID,
			"name", cal.Name,
			"error", err,
		)
		return apperrors.Internal("Failed to create calendar", err)
	}

	s.cfg.Log.Info("Calendar created successfully",
		"id", cal.ID,
		"tenant_id", cal.TenantID,
		"timezone", cal.Timezone,
		"default_mode", cal.DefaultMode,
	)
	return nil
}

func (s *ruleStore) GetCalendar(ctx context.Context, tenantID, id string) (*model.Calendar, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Calendar ID cannot be empty")
	}
	cal, err := s.calendars.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, s.mapError(err, "Calendar", id)
	}
	return cal, nil
}

func (s *ruleStore) UpdateCalendar(ctx context.Context, tenantID, id string, updates *model.CalendarUpdate, changedBy string) (*model.Calendar, error) {
	existing, err := s.activeCalendar(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	merged := mergeCalendarUpdates(existing, updates)
	s.sanitizeCalendar(merged)
	if err := s.validator.ValidateCalendar(merged); err != nil {
		s.cfg.Log.Warn("Calendar validation failed",
			"id", id,
			"tenant_id", tenantID,
			"error", err,
		)
		return nil, apperrors.Validation("Calendar validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	if err := s.saveRevision(ctx, merged, existing.Version, changedBy); err != nil {
		return nil, err
	}

	s.cfg.Log.Info("Calendar updated successfully",
		"id", id,
		"tenant_id", tenantID,
		"version", merged.Version,
	)
	return merged, nil
}

func (s *ruleStore) ArchiveCalendar(ctx context.Context, tenantID, id, changedBy string) error {
	existing, err := s.activeCalendar(ctx, tenantID, id)
	if err != nil {
		return err
	}

	archived := *existing
	now := s.clock.Now()
	archived.Status = model.CalendarArchived
	archived.DeletedAt = &now

	if err := s.saveRevision(ctx, &archived, existing.Version, changedBy); err != nil {
		return err
	}

	s.cfg.Log.Info("Calendar archived",
		"id", id,
		"tenant_id", tenantID,
	)
	return nil
}

// saveRevision bumps the version and writes the calendar and its snapshot together.
func (s *ruleStore) saveRevision(ctx context.Context, cal *model.Calendar, expectedVersion int, changedBy string) error {
	cal.Version = expectedVersion + 1
	cal.UpdatedAt = s.clock.Now()

	err := s.calendars.ExecuteTransaction(ctx, func(ctx context.Context) error {
		if err := s.calendars.Update(ctx, cal, expectedVersion); err != nil {
			return err
		}
		return s.calendars.AppendRevision(ctx, s.revision(cal, changedBy))
	})
	if err != nil {
		if errors.Is(err, availabilityerrors.ErrVersionConflict) {
			return apperrors.StorageConflict("Calendar was modified concurrently, retry the update", err)
		}
		s.cfg.Log.Error("Failed to save calendar",
			"id", cal.ID,
			"tenant_id", cal.TenantID,
			"error", err,
		)
		return apperrors.Internal("Failed to save calendar", err)
	}
	return nil
}

func (s *ruleStore) revision(cal *model.Calendar, changedBy string) *model.CalendarRevision {
	return &model.CalendarRevision{
		ID:         uuid.NewString(),
		TenantID:   cal.TenantID,
		CalendarID: cal.ID,
		Revision:   cal.Version,
		Snapshot:   *cal,
		ChangedBy:  changedBy,
		CreatedAt:  cal.UpdatedAt,
	}
}

func (s *ruleStore) ListRevisions(ctx context.Context, tenantID, calendarID string, limit int, offset int64) ([]*model.CalendarRevision, error) {
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	revisions, err := s.calendars.ListRevisions(ctx, tenantID, calendarID, limit, offset)
	if err != nil {
		s.cfg.Log.Error("Failed to list calendar revisions",
			"calendar_id", calendarID,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to list calendar revisions", err)
	}
	return revisions, nil
}

func (s *ruleStore) BindCalendar(ctx context.Context, b *model.CalendarBinding) error {
	if _, err := s.activeCalendar(ctx, b.TenantID, b.CalendarID); err != nil {
		return err
	}

	b.ID = uuid.NewString()
	b.OwnerRefKey = b.Owner.Key()
	b.IsActive = true
	b.CreatedAt = s.clock.Now()
	if err := s.validator.ValidateBinding(b); err != nil {
		return apperrors.Validation("Calendar binding validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	if err := s.calendars.CreateBinding(ctx, b); err != nil {
		if errors.Is(err, availabilityerrors.ErrDuplicatePrimaryBinding) {
			return apperrors.Conflict("Owner already has an active primary calendar")
		}
		return apperrors.Internal("Failed to bind calendar", err)
	}

	s.cfg.Log.Info("Calendar bound",
		"calendar_id", b.CalendarID,
		"owner", b.OwnerRefKey,
		"primary", b.IsPrimary,
	)
	return nil
}

func (s *ruleStore) CreateOverlay(ctx context.Context, o *model.Overlay) error {
	if _, err := s.activeCalendar(ctx, o.TenantID, o.CalendarID); err != nil {
		return err
	}

	o.ID = uuid.NewString()
	o.Name = sanitizer.NormalizeName(o.Name)
	o.Priority = sanitizer.NormalizePriority(o.Priority)
	o.IsActive = true
	o.CreatedAt = s.clock.Now()
	if err := s.validator.ValidateOverlay(o); err != nil {
		return apperrors.Validation("Overlay validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	if err := s.rules.CreateOverlay(ctx, o); err != nil {
		return apperrors.Internal("Failed to create overlay", err)
	}

	s.cfg.Log.Info("Overlay created",
		"id", o.ID,
		"calendar_id", o.CalendarID,
		"kind", o.Kind,
		"priority", o.Priority,
	)
	return nil
}

func (s *ruleStore) CreateRule(ctx context.Context, rule *model.AvailabilityRule) error {
	if _, err := s.activeCalendar(ctx, rule.TenantID, rule.CalendarID); err != nil {
		return err
	}
	if rule.OverlayID != "" {
		if err := s.requireOverlay(ctx, rule.TenantID, rule.CalendarID, rule.OverlayID); err != nil {
			return err
		}
	}

	now := s.clock.Now()
	rule.ID = uuid.NewString()
	rule.IsActive = true
	rule.CreatedAt = now
	rule.UpdatedAt = now
	sanitizeRule(rule)

	if err := s.validator.ValidateRule(rule); err != nil {
		s.cfg.Log.Warn("Availability rule validation failed",
			"calendar_id", rule.CalendarID,
			"mode", rule.Mode,
			"error", err,
		)
		return apperrors.Validation("Availability rule validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	if err := s.rules.CreateRule(ctx, rule); err != nil {
		return apperrors.Internal("Failed to create availability rule", err)
	}

	s.cfg.Log.Info("Availability rule created",
		"id", rule.ID,
		"calendar_id", rule.CalendarID,
		"mode", rule.Mode,
		"action", rule.Action,
	)
	return nil
}

func (s *ruleStore) DeactivateRule(ctx context.Context, tenantID, id string) error {
	if err := s.rules.SetRuleActive(ctx, tenantID, id, false); err != nil {
		return s.mapError(err, "Availability rule", id)
	}
	s.cfg.Log.Info("Availability rule deactivated", "id", id, "tenant_id", tenantID)
	return nil
}

// AddExclusion accepts local rule ids and materialized template rule ids ("<binding>:<rule>").
func (s *ruleStore) AddExclusion(ctx context.Context, ex *model.RuleExclusion) error {
	if _, err := s.activeCalendar(ctx, ex.TenantID, ex.CalendarID); err != nil {
		return err
	}
	if !strings.Contains(ex.RuleID, ":") {
		rule, err := s.rules.FindRule(ctx, ex.TenantID, ex.RuleID)
		if err != nil {
			return s.mapError(err, "Availability rule", ex.RuleID)
		}
		if rule.CalendarID != ex.CalendarID {
			return apperrors.Validation("Rule does not belong to the calendar", map[string]any{
				"rule_id":     ex.RuleID,
				"calendar_id": ex.CalendarID,
			})
		}
	}

	ex.ID = uuid.NewString()
	ex.Date = sanitizer.NormalizeKey(ex.Date)
	ex.Reason = sanitizer.TrimAndNormalize(ex.Reason)
	ex.CreatedAt = s.clock.Now()
	if err := s.validator.ValidateExclusion(ex); err != nil {
		return apperrors.Validation("Rule exclusion validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	if err := s.rules.CreateExclusion(ctx, ex); err != nil {
		return apperrors.Internal("Failed to create rule exclusion", err)
	}

	s.cfg.Log.Info("Rule exclusion added",
		"rule_id", ex.RuleID,
		"calendar_id", ex.CalendarID,
		"date", ex.Date,
	)
	return nil
}

func (s *ruleStore) CreateTemplate(ctx context.Context, tpl *model.RuleTemplate) error {
	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}
	tpl.Name = sanitizer.NormalizeName(tpl.Name)
	tpl.CreatedAt = s.clock.Now()
	for i := range tpl.Rules {
		rule := &tpl.Rules[i]
		if rule.ID == "" {
			rule.ID = uuid.NewString()
		}
		rule.TenantID = tpl.TenantID
		rule.TemplateID = tpl.ID
		rule.IsActive = true
		rule.CreatedAt = tpl.CreatedAt
		rule.UpdatedAt = tpl.CreatedAt
		sanitizeRule(rule)
	}

	if err := s.validator.ValidateTemplate(tpl); err != nil {
		return apperrors.Validation("Rule template validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	if err := s.rules.CreateTemplate(ctx, tpl); err != nil {
		return apperrors.Internal("Failed to create rule template", err)
	}

	s.cfg.Log.Info("Rule template created",
		"id", tpl.ID,
		"tenant_id", tpl.TenantID,
		"rules", len(tpl.Rules),
	)
	return nil
}

func (s *ruleStore) BindTemplate(ctx context.Context, b *model.TemplateBinding) error {
	if _, err := s.activeCalendar(ctx, b.TenantID, b.CalendarID); err != nil {
		return err
	}
	if _, err := s.rules.FindTemplate(ctx, b.TenantID, b.TemplateID); err != nil {
		return s.mapError(err, "Rule template", b.TemplateID)
	}

	b.ID = uuid.NewString()
	if b.MergeMode == "" {
		b.MergeMode = model.MergeAppend
	}
	b.Priority = sanitizer.NormalizePriority(b.Priority)
	b.ExclusionDates = sanitizer.NormalizeDates(b.ExclusionDates)
	b.IsActive = true
	b.CreatedAt = s.clock.Now()
	if err := s.validator.ValidateTemplateBinding(b); err != nil {
		return apperrors.Validation("Template binding validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	if err := s.rules.CreateTemplateBinding(ctx, b); err != nil {
		return apperrors.Internal("Failed to bind rule template", err)
	}

	s.cfg.Log.Info("Rule template bound",
		"template_id", b.TemplateID,
		"calendar_id", b.CalendarID,
		"merge_mode", b.MergeMode,
	)
	return nil
}

func (s *ruleStore) CreateDependencyRule(ctx context.Context, d *model.DependencyRule) error {
	if _, err := s.activeCalendar(ctx, d.TenantID, d.DependentCalendarID); err != nil {
		return err
	}

	d.ID = uuid.NewString()
	d.Name = sanitizer.NormalizeName(d.Name)
	d.IsActive = true
	d.CreatedAt = s.clock.Now()
	if err := s.validator.ValidateDependency(d); err != nil {
		s.cfg.Log.Warn("Dependency rule validation failed",
			"calendar_id", d.DependentCalendarID,
			"error", err,
		)
		return apperrors.Validation("Dependency rule validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	for _, t := range d.Targets {
		if t.Type != model.DependencyOnCalendar {
			continue
		}
		if _, err := s.calendars.FindByID(ctx, d.TenantID, t.ID); err != nil {
			if errors.Is(err, availabilityerrors.ErrCalendarNotFound) {
				return apperrors.Validation("Dependency target calendar does not exist", map[string]any{
					"target": t.Key(),
				})
			}
			return apperrors.Internal("Failed to check dependency target", err)
		}
	}

	if err := s.checker.ValidateAcyclic(ctx, d); err != nil {
		if errors.Is(err, availabilityerrors.ErrDependencyCycle) {
			s.cfg.Log.Warn("Dependency rule rejected, cycle detected",
				"calendar_id", d.DependentCalendarID,
				"targets", len(d.Targets),
			)
			return apperrors.Validation("Dependency rule would introduce a cycle", map[string]any{
				"calendar_id": d.DependentCalendarID,
			})
		}
		return apperrors.Internal("Failed to check dependency graph", err)
	}

	if err := s.deps.Create(ctx, d); err != nil {
		return apperrors.Internal("Failed to create dependency rule", err)
	}

	s.cfg.Log.Info("Dependency rule created",
		"id", d.ID,
		"calendar_id", d.DependentCalendarID,
		"evaluation_mode", d.EvaluationMode,
		"enforcement_mode", d.EnforcementMode,
	)
	return nil
}

// activeCalendar loads a calendar that may still be configured.
func (s *ruleStore) activeCalendar(ctx context.Context, tenantID, id string) (*model.Calendar, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Calendar ID cannot be empty")
	}
	cal, err := s.calendars.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, s.mapError(err, "Calendar", id)
	}
	if cal.Status == model.CalendarArchived {
		return nil, apperrors.Conflict("Calendar is archived")
	}
	return cal, nil
}

func (s *ruleStore) requireOverlay(ctx context.Context, tenantID, calendarID, overlayID string) error {
	overlays, err := s.rules.ListOverlays(ctx, tenantID, calendarID)
	if err != nil {
		return apperrors.Internal("Failed to load overlays", err)
	}
	for _, o := range overlays {
		if o.ID == overlayID {
			return nil
		}
	}
	return apperrors.Validation("Overlay does not exist on the calendar", map[string]any{
		"overlay_id": overlayID,
	})
}

func (s *ruleStore) mapError(err error, resource, id string) error {
	switch {
	case errors.Is(err, availabilityerrors.ErrCalendarNotFound),
		errors.Is(err, availabilityerrors.ErrRuleNotFound),
		errors.Is(err, availabilityerrors.ErrTemplateNotFound),
		errors.Is(err, availabilityerrors.ErrOverlayNotFound),
		errors.Is(err, availabilityerrors.ErrNotFound):
		return apperrors.NotFoundWithID(resource, id)
	case apperrors.IsAppError(err):
		return err
	default:
		s.cfg.Log.Error("Storage failure",
			"resource", resource,
			"id", id,
			"error", err,
		)
		return apperrors.Internal("Failed to retrieve "+strings.ToLower(resource), err)
	}
}

func (s *ruleStore) sanitizeCalendar(cal *model.Calendar) {
	cal.Name = sanitizer.NormalizeName(cal.Name)
	cal.Timezone = sanitizer.SanitizeTimezone(cal.Timezone)
}

func sanitizeRule(rule *model.AvailabilityRule) {
	rule.Name = sanitizer.NormalizeName(rule.Name)
	rule.StartTime = sanitizer.SanitizeClock(rule.StartTime)
	rule.EndTime = sanitizer.SanitizeClock(rule.EndTime)
	rule.ByWeekday = sanitizer.NormalizeDays(rule.ByWeekday)
	rule.ByMonthDay = sanitizer.NormalizeDays(rule.ByMonthDay)
	rule.Priority = sanitizer.NormalizePriority(rule.Priority)
}

func applyCalendarDefaults(cal *model.Calendar) {
	if cal.Timezone == "" {
		cal.Timezone = "UTC"
	}
	if cal.DefaultMode == "" {
		cal.DefaultMode = model.UnavailableByDefault
	}
	if cal.RuleEvaluationOrder == "" {
		cal.RuleEvaluationOrder = model.SpecificityThenPriority
	}
	if cal.ConflictResolutionMode == "" {
		cal.ConflictResolutionMode = model.UnavailableWins
	}
	if cal.Status == "" {
		cal.Status = model.CalendarActive
	}
}

func mergeCalendarUpdates(existing *model.Calendar, u *model.CalendarUpdate) *model.Calendar {
	merged := *existing
	if u == nil {
		return &merged
	}
	if u.Name != nil {
		merged.Name = *u.Name
	}
	if u.Timezone != nil {
		merged.Timezone = *u.Timezone
	}
	if u.SlotDurationMin != nil {
		merged.SlotDurationMin = *u.SlotDurationMin
	}
	if u.SlotIntervalMin != nil {
		merged.SlotIntervalMin = *u.SlotIntervalMin
	}
	if u.PreBufferMin != nil {
		merged.PreBufferMin = *u.PreBufferMin
	}
	if u.PostBufferMin != nil {
		merged.PostBufferMin = *u.PostBufferMin
	}
	if u.MinAdvanceBookingHours != nil {
		merged.MinAdvanceBookingHours = *u.MinAdvanceBookingHours
	}
	if u.MaxAdvanceBookingDays != nil {
		merged.MaxAdvanceBookingDays = *u.MaxAdvanceBookingDays
	}
	if u.DefaultMode != nil {
		merged.DefaultMode = *u.DefaultMode
	}
	if u.RuleEvaluationOrder != nil {
		merged.RuleEvaluationOrder = *u.RuleEvaluationOrder
	}
	if u.ConflictResolutionMode != nil {
		merged.ConflictResolutionMode = *u.ConflictResolutionMode
	}
	if u.EnforceStrictNonOverlap != nil {
		merged.EnforceStrictNonOverlap = *u.EnforceStrictNonOverlap
	}
	if u.Status != nil && *u.Status != model.CalendarArchived {
		merged.Status = *u.Status
	}
	return &merged
}
